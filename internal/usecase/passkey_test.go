package usecase

import (
	"context"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/npsg02/auth-service/internal/apperr"
	"github.com/npsg02/auth-service/internal/domain"
)

type stubPasskeyProvider struct {
	challenge string
	created   *webauthn.Credential
	validated *webauthn.Credential
}

func (s *stubPasskeyProvider) BeginRegistration(user webauthn.User, _ ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	return &protocol.CredentialCreation{}, &webauthn.SessionData{Challenge: s.challenge, UserID: user.WebAuthnID()}, nil
}

func (s *stubPasskeyProvider) CreateCredential(_ webauthn.User, _ webauthn.SessionData, _ *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	return s.created, nil
}

func (s *stubPasskeyProvider) BeginLogin(user webauthn.User, _ ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return &protocol.CredentialAssertion{}, &webauthn.SessionData{Challenge: s.challenge, UserID: user.WebAuthnID()}, nil
}

func (s *stubPasskeyProvider) BeginDiscoverableLogin(_ ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return &protocol.CredentialAssertion{}, &webauthn.SessionData{Challenge: s.challenge}, nil
}

func (s *stubPasskeyProvider) ValidateLogin(_ webauthn.User, _ webauthn.SessionData, _ *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	return s.validated, nil
}

func (s *stubPasskeyProvider) ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, _ webauthn.SessionData, _ *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error) {
	user, err := handler(nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return user, s.validated, nil
}

type stubPasskeyParser struct {
	rawID     []byte
	challenge string
}

func (s stubPasskeyParser) ParseCredentialCreationResponseBytes(_ []byte) (*protocol.ParsedCredentialCreationData, error) {
	parsed := &protocol.ParsedCredentialCreationData{}
	parsed.RawID = s.rawID
	parsed.Response.CollectedClientData.Challenge = s.challenge
	return parsed, nil
}

func (s stubPasskeyParser) ParseCredentialRequestResponseBytes(_ []byte) (*protocol.ParsedCredentialAssertionData, error) {
	parsed := &protocol.ParsedCredentialAssertionData{}
	parsed.RawID = s.rawID
	parsed.Response.CollectedClientData.Challenge = s.challenge
	return parsed, nil
}

type passkeyFixture struct {
	service  *passkeyService
	users    *mockUserRepo
	passkeys *mockPasskeyRepo
	otps     *mockOtpRepo
	provider *stubPasskeyProvider
}

func newPasskeyFixture(t *testing.T) *passkeyFixture {
	t.Helper()
	cfg := testConfig()
	users := newMockUserRepo()
	wallets := newMockWalletRepo(users)
	passkeys := newMockPasskeyRepo()
	providers := newMockProviderRepo(users)
	otps := newMockOtpRepo()
	signer, err := NewJWTSigner(cfg)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	sessions := NewSessionManager(cfg, testLogger(), users, newMockSessionRepo(), newMockCache(), signer)
	svc, err := NewPasskeyService(cfg, testLogger(), users, wallets, passkeys, providers, otps, sessions)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	impl := svc.(*passkeyService)
	provider := &stubPasskeyProvider{challenge: "test-challenge"}
	impl.provider = provider
	return &passkeyFixture{service: impl, users: users, passkeys: passkeys, otps: otps, provider: provider}
}

func registerCredential(t *testing.T, fx *passkeyFixture, userID string, rawID []byte, counter uint32) *domain.PasskeyCredential {
	t.Helper()
	ctx := context.Background()
	fx.provider.created = &webauthn.Credential{
		ID:        rawID,
		PublicKey: []byte("public-key"),
		Authenticator: webauthn.Authenticator{
			SignCount: counter,
		},
	}
	fx.service.parser = stubPasskeyParser{rawID: rawID, challenge: "test-challenge"}

	if _, err := fx.service.GenerateRegistrationOptions(ctx, userID); err != nil {
		t.Fatalf("begin registration: %v", err)
	}
	credential, err := fx.service.VerifyRegistration(ctx, userID, "laptop", []byte("{}"))
	if err != nil {
		t.Fatalf("finish registration: %v", err)
	}
	return credential
}

func TestPasskeyRegistration(t *testing.T) {
	fx := newPasskeyFixture(t)
	userID := seedUser(t, fx.users, "alice@example.com")

	credential := registerCredential(t, fx, userID, []byte("cred-1"), 0)
	if credential.DeviceName != "laptop" {
		t.Fatalf("device name not kept: %q", credential.DeviceName)
	}
	stored, err := fx.passkeys.FindByCredentialID(context.Background(), credential.CredentialID)
	if err != nil {
		t.Fatalf("stored credential: %v", err)
	}
	if stored.UserID != userID {
		t.Fatal("credential bound to the wrong user")
	}
}

func TestPasskeyRegistrationChallengeIsSingleUse(t *testing.T) {
	fx := newPasskeyFixture(t)
	ctx := context.Background()
	userID := seedUser(t, fx.users, "bob@example.com")
	registerCredential(t, fx, userID, []byte("cred-1"), 0)

	// The challenge was consumed by the first ceremony.
	_, err := fx.service.VerifyRegistration(ctx, userID, "laptop", []byte("{}"))
	if err == nil {
		t.Fatal("challenge replayed")
	}
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("expected bad request, got %v", apperr.KindOf(err))
	}
}

func TestPasskeyLoginWithoutChallenge(t *testing.T) {
	fx := newPasskeyFixture(t)
	ctx := context.Background()
	userID := seedUser(t, fx.users, "ivan@example.com")
	registerCredential(t, fx, userID, []byte("cred-1"), 0)

	// No assertion ceremony was started, so no challenge exists.
	fx.provider.validated = &webauthn.Credential{
		ID:            []byte("cred-1"),
		Authenticator: webauthn.Authenticator{SignCount: 1},
	}
	_, err := fx.service.VerifyAuthenticationAndLogin(ctx, []byte("{}"), SessionOptions{})
	if err == nil {
		t.Fatal("login without a challenge accepted")
	}
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", apperr.KindOf(err))
	}
}

func TestPasskeyResponseParserRejectsGarbage(t *testing.T) {
	parser := defaultPasskeyParser{}
	if _, err := parser.ParseCredentialCreationResponseBytes([]byte("not json")); err == nil {
		t.Fatal("malformed creation response parsed")
	}
	if _, err := parser.ParseCredentialRequestResponseBytes([]byte("not json")); err == nil {
		t.Fatal("malformed assertion response parsed")
	}
}

func TestPasskeyLogin(t *testing.T) {
	fx := newPasskeyFixture(t)
	ctx := context.Background()
	userID := seedUser(t, fx.users, "carol@example.com")
	registerCredential(t, fx, userID, []byte("cred-1"), 0)

	if _, err := fx.service.GenerateAuthenticationOptions(ctx, "carol@example.com"); err != nil {
		t.Fatalf("begin login: %v", err)
	}
	fx.provider.validated = &webauthn.Credential{
		ID:            []byte("cred-1"),
		Authenticator: webauthn.Authenticator{SignCount: 1},
	}
	result, err := fx.service.VerifyAuthenticationAndLogin(ctx, []byte("{}"), SessionOptions{})
	if err != nil {
		t.Fatalf("finish login: %v", err)
	}
	if result.User.ID != userID {
		t.Fatal("login resolved the wrong user")
	}

	stored, _ := fx.passkeys.FindByCredentialID(ctx, encodeCredentialID([]byte("cred-1")))
	if stored.Counter != 1 {
		t.Fatalf("counter not advanced: %d", stored.Counter)
	}
	if stored.LastUsedAt == nil {
		t.Fatal("last used not recorded")
	}
}

func TestPasskeyDiscoverableLogin(t *testing.T) {
	fx := newPasskeyFixture(t)
	ctx := context.Background()
	userID := seedUser(t, fx.users, "dave@example.com")
	registerCredential(t, fx, userID, []byte("cred-1"), 0)

	// Empty identifier issues an anonymous challenge.
	if _, err := fx.service.GenerateAuthenticationOptions(ctx, ""); err != nil {
		t.Fatalf("begin discoverable login: %v", err)
	}
	fx.provider.validated = &webauthn.Credential{
		ID:            []byte("cred-1"),
		Authenticator: webauthn.Authenticator{SignCount: 1},
	}
	result, err := fx.service.VerifyAuthenticationAndLogin(ctx, []byte("{}"), SessionOptions{})
	if err != nil {
		t.Fatalf("finish login: %v", err)
	}
	if result.User.ID != userID {
		t.Fatal("discoverable login resolved the wrong user")
	}
}

func TestPasskeyCounterMustAdvance(t *testing.T) {
	fx := newPasskeyFixture(t)
	ctx := context.Background()
	userID := seedUser(t, fx.users, "erin@example.com")
	registerCredential(t, fx, userID, []byte("cred-1"), 5)

	if _, err := fx.service.GenerateAuthenticationOptions(ctx, "erin@example.com"); err != nil {
		t.Fatalf("begin login: %v", err)
	}
	fx.provider.validated = &webauthn.Credential{
		ID:            []byte("cred-1"),
		Authenticator: webauthn.Authenticator{SignCount: 5},
	}
	_, err := fx.service.VerifyAuthenticationAndLogin(ctx, []byte("{}"), SessionOptions{})
	if err == nil {
		t.Fatal("non-advancing counter accepted")
	}
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", apperr.KindOf(err))
	}
}

func TestPasskeyLoginUnknownCredential(t *testing.T) {
	fx := newPasskeyFixture(t)
	ctx := context.Background()
	seedUser(t, fx.users, "frank@example.com")

	fx.service.parser = stubPasskeyParser{rawID: []byte("no-such-cred"), challenge: "test-challenge"}
	_, err := fx.service.VerifyAuthenticationAndLogin(ctx, []byte("{}"), SessionOptions{})
	if err == nil {
		t.Fatal("unknown credential accepted")
	}
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized, got %v", apperr.KindOf(err))
	}
}

func TestPasskeyDeleteRefusesLastMethod(t *testing.T) {
	fx := newPasskeyFixture(t)
	ctx := context.Background()

	// A user whose only method is the passkey.
	user := &domain.User{FullName: "Passkey Only"}
	if err := fx.users.Create(ctx, user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	registerCredential(t, fx, user.ID, []byte("cred-1"), 0)
	stored, _ := fx.passkeys.FindByCredentialID(ctx, encodeCredentialID([]byte("cred-1")))

	err := fx.service.Delete(ctx, user.ID, stored.ID)
	if err == nil {
		t.Fatal("removed the only authentication method")
	}
	if apperr.CodeOf(err) != "last_auth_method" {
		t.Fatalf("unexpected code: %s", apperr.CodeOf(err))
	}
}

func TestPasskeyRename(t *testing.T) {
	fx := newPasskeyFixture(t)
	ctx := context.Background()
	userID := seedUser(t, fx.users, "grace@example.com")
	registerCredential(t, fx, userID, []byte("cred-1"), 0)
	stored, _ := fx.passkeys.FindByCredentialID(ctx, encodeCredentialID([]byte("cred-1")))

	if err := fx.service.UpdateName(ctx, userID, stored.ID, "yubikey"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	renamed, _ := fx.passkeys.FindForUser(ctx, userID, stored.ID)
	if renamed.DeviceName != "yubikey" {
		t.Fatalf("rename not applied: %q", renamed.DeviceName)
	}

	// Another user's credential is out of reach.
	otherID := seedUser(t, fx.users, "heidi@example.com")
	if err := fx.service.UpdateName(ctx, otherID, stored.ID, "stolen"); err == nil {
		t.Fatal("renamed a foreign credential")
	}
}
