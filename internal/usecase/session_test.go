package usecase

import (
	"context"
	"testing"

	"github.com/npsg02/auth-service/internal/domain"
)

func newSessionFixture(t *testing.T) (SessionManager, *mockUserRepo, *mockSessionRepo, *mockCache) {
	t.Helper()
	cfg := testConfig()
	users := newMockUserRepo()
	sessions := newMockSessionRepo()
	cache := newMockCache()
	signer, err := NewJWTSigner(cfg)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return NewSessionManager(cfg, testLogger(), users, sessions, cache, signer), users, sessions, cache
}

func seedUser(t *testing.T, users *mockUserRepo, email string) string {
	t.Helper()
	hash := "$2a$10$irrelevant"
	user := &domain.User{Email: strptr(email), PasswordHash: &hash, FullName: "Test User", IsEmailVerified: true}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	_ = users.AssignRole(context.Background(), user.ID, "user")
	return user.ID
}

func TestSessionCreateAndValidate(t *testing.T) {
	mgr, users, _, _ := newSessionFixture(t)
	ctx := context.Background()
	userID := seedUser(t, users, "alice@example.com")

	result, err := mgr.Create(ctx, userID, "PASSWORD", SessionOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if result.AccessToken == result.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}
	if result.User == nil || result.User.ID != userID {
		t.Fatalf("unexpected user view: %+v", result.User)
	}

	data, err := mgr.Validate(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if data == nil || data.UserID != userID {
		t.Fatalf("unexpected session data: %+v", data)
	}
	if len(data.Roles) != 1 || data.Roles[0] != "user" {
		t.Fatalf("roles not carried: %+v", data.Roles)
	}
}

func TestSessionValidateRejectsRefreshToken(t *testing.T) {
	mgr, users, _, _ := newSessionFixture(t)
	ctx := context.Background()
	userID := seedUser(t, users, "bob@example.com")

	result, err := mgr.Create(ctx, userID, "PASSWORD", SessionOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	data, err := mgr.Validate(ctx, result.RefreshToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if data != nil {
		t.Fatal("refresh token must not validate as a session")
	}
}

func TestSessionRevocationIsImmediate(t *testing.T) {
	mgr, users, _, _ := newSessionFixture(t)
	ctx := context.Background()
	userID := seedUser(t, users, "carol@example.com")

	result, err := mgr.Create(ctx, userID, "PASSWORD", SessionOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mgr.Invalidate(ctx, result.AccessToken); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	data, err := mgr.Validate(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if data != nil {
		t.Fatal("revoked session still validates")
	}
	// Idempotent on repeat.
	if err := mgr.Invalidate(ctx, result.AccessToken); err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
}

func TestSessionRefreshRotatesTokens(t *testing.T) {
	mgr, users, _, _ := newSessionFixture(t)
	ctx := context.Background()
	userID := seedUser(t, users, "dave@example.com")

	first, err := mgr.Create(ctx, userID, "PASSWORD", SessionOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := mgr.Refresh(ctx, first.RefreshToken, SessionOptions{})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.AccessToken == first.AccessToken {
		t.Fatal("refresh must mint a new access token")
	}

	// Old access session is retired by the rotation.
	if data, _ := mgr.Validate(ctx, first.AccessToken); data != nil {
		t.Fatal("old access token survives refresh")
	}
	// A used refresh token cannot be replayed.
	if _, err := mgr.Refresh(ctx, first.RefreshToken, SessionOptions{}); err == nil {
		t.Fatal("expected replayed refresh to fail")
	}
	// The new pair is live.
	if data, _ := mgr.Validate(ctx, second.AccessToken); data == nil {
		t.Fatal("new access token does not validate")
	}
}

func TestSessionRefreshRejectsAccessToken(t *testing.T) {
	mgr, users, _, _ := newSessionFixture(t)
	ctx := context.Background()
	userID := seedUser(t, users, "erin@example.com")

	result, err := mgr.Create(ctx, userID, "PASSWORD", SessionOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := mgr.Refresh(ctx, result.AccessToken, SessionOptions{}); err == nil {
		t.Fatal("access token accepted as refresh token")
	}
}

func TestSessionInvalidateUserRevokesAll(t *testing.T) {
	mgr, users, _, _ := newSessionFixture(t)
	ctx := context.Background()
	userID := seedUser(t, users, "frank@example.com")

	first, _ := mgr.Create(ctx, userID, "PASSWORD", SessionOptions{})
	second, _ := mgr.Create(ctx, userID, "PASSWORD", SessionOptions{})

	if err := mgr.InvalidateUser(ctx, userID, domain.SessionAccess); err != nil {
		t.Fatalf("invalidate user: %v", err)
	}
	for _, token := range []string{first.AccessToken, second.AccessToken} {
		if data, _ := mgr.Validate(ctx, token); data != nil {
			t.Fatal("session survives user-wide revocation")
		}
	}
}

func TestSessionValidateFallsBackToStore(t *testing.T) {
	mgr, users, _, cache := newSessionFixture(t)
	ctx := context.Background()
	userID := seedUser(t, users, "grace@example.com")

	result, err := mgr.Create(ctx, userID, "PASSWORD", SessionOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Drop the cache entry; the store row must still answer.
	_ = cache.Del(ctx, "session:"+result.AccessToken)
	data, err := mgr.Validate(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if data == nil || data.UserID != userID {
		t.Fatal("store fallback failed")
	}
}

func TestSessionValidateUnknownToken(t *testing.T) {
	mgr, _, _, _ := newSessionFixture(t)
	data, err := mgr.Validate(context.Background(), "no-such-token")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if data != nil {
		t.Fatal("unknown token validated")
	}
}
