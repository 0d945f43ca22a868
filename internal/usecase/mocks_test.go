package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/npsg02/auth-service/config"
	"github.com/npsg02/auth-service/internal/adapters/rediscache"
	"github.com/npsg02/auth-service/internal/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		AppName:                "auth-service-test",
		JWTAccessSecret:        "access-secret-for-tests",
		JWTRefreshSecret:       "refresh-secret-for-tests",
		JWTIssuer:              "auth-service",
		JWTAudience:            "frontend",
		AccessTTL:              15 * time.Minute,
		RefreshTTL:             168 * time.Hour,
		OtpTTL:                 5 * time.Minute,
		OtpLength:              6,
		OtpMaxAttempts:         3,
		WalletSignDomain:       "auth-service",
		WalletNonceTTL:         5 * time.Minute,
		PasskeyRPID:            "localhost",
		PasskeyRPDisplayName:   "Auth Service",
		PasskeyRPOrigins:       []string{"http://localhost:4005"},
		PasskeyChallengeTTL:    5 * time.Minute,
		OAuthStateMaxAge:       10 * time.Minute,
		SessionCleanupInterval: time.Hour,
		DefaultRole:            "user",
	}
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
	roles map[string][]string
	next  int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: map[string]*domain.User{}, roles: map[string][]string{}}
}

func (r *mockUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		r.next++
		user.ID = fmt.Sprintf("user-%d", r.next)
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *mockUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email != nil && strings.EqualFold(*u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockUserRepo) FindByPhone(_ context.Context, phone string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Phone != nil && *u.Phone == phone {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockUserRepo) FindByEmailOrPhone(ctx context.Context, email, phone string) (*domain.User, error) {
	if email != "" {
		if u, err := r.FindByEmail(ctx, email); err == nil {
			return u, nil
		}
	}
	if phone != "" {
		if u, err := r.FindByPhone(ctx, phone); err == nil {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *mockUserRepo) AssignRole(_ context.Context, userID, roleName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.roles[userID] {
		if existing == roleName {
			return nil
		}
	}
	r.roles[userID] = append(r.roles[userID], roleName)
	return nil
}

func (r *mockUserRepo) Access(_ context.Context, userID string) ([]string, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.roles[userID]...), nil, nil
}

type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	next     int
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: map[string]*domain.Session{}}
}

func (r *mockSessionRepo) CreatePair(_ context.Context, access, refresh *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range []*domain.Session{access, refresh} {
		if s.ID == "" {
			r.next++
			s.ID = fmt.Sprintf("session-%d", r.next)
		}
		copied := *s
		r.sessions[s.Token] = &copied
	}
	return nil
}

func (r *mockSessionRepo) FindByToken(_ context.Context, token string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockSessionRepo) Deactivate(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok {
		s.IsActive = false
	}
	return nil
}

func (r *mockSessionRepo) ListActive(_ context.Context, userID string, typ domain.SessionType) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []domain.Session
	for _, s := range r.sessions {
		if s.UserID != userID || !s.IsActive || s.ExpiresAt.Before(now) {
			continue
		}
		if typ != "" && s.Type != typ {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *mockSessionRepo) DeactivateForUser(_ context.Context, userID string, typ domain.SessionType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.UserID == userID && (typ == "" || s.Type == typ) {
			s.IsActive = false
		}
	}
	return nil
}

func (r *mockSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for token, s := range r.sessions {
		if s.ExpiresAt.Before(now) {
			delete(r.sessions, token)
			removed++
		}
	}
	return removed, nil
}

type mockOtpRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.OtpToken
	next   int
}

func newMockOtpRepo() *mockOtpRepo {
	return &mockOtpRepo{tokens: map[string]*domain.OtpToken{}}
}

func (r *mockOtpRepo) Create(_ context.Context, token *domain.OtpToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token.ID == "" {
		r.next++
		token.ID = fmt.Sprintf("otp-%d", r.next)
	}
	copied := *token
	r.tokens[token.ID] = &copied
	return nil
}

func (r *mockOtpRepo) FindActive(_ context.Context, identifier string, purpose domain.OtpPurpose) (*domain.OtpToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var newest *domain.OtpToken
	for _, t := range r.tokens {
		if t.Identifier != identifier || t.Purpose != purpose || t.IsUsed || t.ExpiresAt.Before(now) {
			continue
		}
		if newest == nil || t.CreatedAt.After(newest.CreatedAt) {
			newest = t
		}
	}
	if newest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *newest
	return &copied, nil
}

func (r *mockOtpRepo) FindNewestForUser(_ context.Context, userID string, purpose domain.OtpPurpose) (*domain.OtpToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var newest *domain.OtpToken
	for _, t := range r.tokens {
		if t.UserID == nil || *t.UserID != userID || t.Purpose != purpose || t.IsUsed || t.ExpiresAt.Before(now) {
			continue
		}
		if newest == nil || t.CreatedAt.After(newest.CreatedAt) {
			newest = t
		}
	}
	if newest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *newest
	return &copied, nil
}

func (r *mockOtpRepo) ConsumeIfUnused(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok || t.IsUsed {
		return false, nil
	}
	t.IsUsed = true
	return true, nil
}

func (r *mockOtpRepo) IncrementAttempts(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		t.Attempts++
	}
	return nil
}

func (r *mockOtpRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, id)
	return nil
}

func (r *mockOtpRepo) DeleteExpired(_ context.Context, identifier string, purpose domain.OtpPurpose, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.Identifier == identifier && t.Purpose == purpose && t.ExpiresAt.Before(now) {
			delete(r.tokens, id)
		}
	}
	return nil
}

func (r *mockOtpRepo) DeleteAllExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, t := range r.tokens {
		if t.ExpiresAt.Before(now) {
			delete(r.tokens, id)
			removed++
		}
	}
	return removed, nil
}

type mockWalletRepo struct {
	mu      sync.Mutex
	wallets map[string]*domain.WalletAccount
	users   *mockUserRepo
	next    int
}

func newMockWalletRepo(users *mockUserRepo) *mockWalletRepo {
	return &mockWalletRepo{wallets: map[string]*domain.WalletAccount{}, users: users}
}

func (r *mockWalletRepo) FindByAddress(_ context.Context, address string) (*domain.WalletAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if strings.EqualFold(w.Address, address) {
			copied := *w
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockWalletRepo) FindForUser(_ context.Context, userID, walletID string) (*domain.WalletAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.wallets[walletID]; ok && w.UserID == userID {
		copied := *w
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockWalletRepo) FindPrimary(_ context.Context, userID string, typ domain.ChainType) (*domain.WalletAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.UserID == userID && w.Type == typ && w.IsPrimary {
			copied := *w
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockWalletRepo) ListByUser(_ context.Context, userID string) ([]domain.WalletAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.WalletAccount
	for _, w := range r.wallets {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (r *mockWalletRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	wallets, _ := r.ListByUser(ctx, userID)
	return int64(len(wallets)), nil
}

func (r *mockWalletRepo) Upsert(_ context.Context, wallet *domain.WalletAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wallet.ID == "" {
		r.next++
		wallet.ID = fmt.Sprintf("wallet-%d", r.next)
	}
	copied := *wallet
	r.wallets[wallet.ID] = &copied
	return nil
}

func (r *mockWalletRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.wallets, id)
	return nil
}

func (r *mockWalletRepo) CreateUserWithWallet(ctx context.Context, user *domain.User, wallet *domain.WalletAccount, roleName string) error {
	if err := r.users.Create(ctx, user); err != nil {
		return err
	}
	if err := r.users.AssignRole(ctx, user.ID, roleName); err != nil {
		return err
	}
	wallet.UserID = user.ID
	return r.Upsert(ctx, wallet)
}

func (r *mockWalletRepo) SwapPrimary(_ context.Context, userID, walletID string, typ domain.ChainType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.UserID == userID && w.Type == typ {
			w.IsPrimary = w.ID == walletID
		}
	}
	return nil
}

type mockPasskeyRepo struct {
	mu          sync.Mutex
	credentials map[string]*domain.PasskeyCredential
	next        int
}

func newMockPasskeyRepo() *mockPasskeyRepo {
	return &mockPasskeyRepo{credentials: map[string]*domain.PasskeyCredential{}}
}

func (r *mockPasskeyRepo) Create(_ context.Context, credential *domain.PasskeyCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if credential.ID == "" {
		r.next++
		credential.ID = fmt.Sprintf("passkey-%d", r.next)
	}
	copied := *credential
	r.credentials[credential.ID] = &copied
	return nil
}

func (r *mockPasskeyRepo) FindByCredentialID(_ context.Context, credentialID string) (*domain.PasskeyCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.credentials {
		if c.CredentialID == credentialID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockPasskeyRepo) FindForUser(_ context.Context, userID, id string) (*domain.PasskeyCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.credentials[id]; ok && c.UserID == userID {
		copied := *c
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockPasskeyRepo) ListByUser(_ context.Context, userID string) ([]domain.PasskeyCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PasskeyCredential
	for _, c := range r.credentials {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *mockPasskeyRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	credentials, _ := r.ListByUser(ctx, userID)
	return int64(len(credentials)), nil
}

func (r *mockPasskeyRepo) UpdateCounter(_ context.Context, id string, counter uint32, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.credentials[id]; ok {
		c.Counter = counter
		c.LastUsedAt = &usedAt
	}
	return nil
}

func (r *mockPasskeyRepo) UpdateName(_ context.Context, id, deviceName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.credentials[id]; ok {
		c.DeviceName = deviceName
	}
	return nil
}

func (r *mockPasskeyRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.credentials, id)
	return nil
}

type mockProviderRepo struct {
	mu    sync.Mutex
	links map[string]*domain.AuthProviderUser
	users *mockUserRepo
}

func newMockProviderRepo(users *mockUserRepo) *mockProviderRepo {
	return &mockProviderRepo{links: map[string]*domain.AuthProviderUser{}, users: users}
}

func (r *mockProviderRepo) FindLink(_ context.Context, providerID string) (*domain.AuthProviderUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.links[providerID]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockProviderRepo) ListByUser(_ context.Context, userID string) ([]domain.AuthProviderUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuthProviderUser
	for _, l := range r.links {
		if l.UserID == userID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *mockProviderRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	links, _ := r.ListByUser(ctx, userID)
	return int64(len(links)), nil
}

func (r *mockProviderRepo) CreateLink(_ context.Context, userID, providerID, providerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[providerID] = &domain.AuthProviderUser{UserID: userID, ProviderID: providerID}
	return nil
}

func (r *mockProviderRepo) DeleteLink(_ context.Context, userID, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.links[providerID]; ok && l.UserID == userID {
		delete(r.links, providerID)
	}
	return nil
}

func (r *mockProviderRepo) CreateUserWithLink(ctx context.Context, user *domain.User, providerID, providerName, roleName string) error {
	if err := r.users.Create(ctx, user); err != nil {
		return err
	}
	if err := r.users.AssignRole(ctx, user.ID, roleName); err != nil {
		return err
	}
	return r.CreateLink(ctx, user.ID, providerID, providerName)
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// mockCache is an in-memory stand-in honoring TTLs.
type mockCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string]cacheEntry{}}
}

func (c *mockCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *mockCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return "", rediscache.ErrMiss
	}
	return entry.value, nil
}

func (c *mockCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func (c *mockCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	return ok && time.Now().Before(entry.expiresAt), nil
}

func (c *mockCache) Close() error { return nil }

type sentCode struct {
	target  string
	code    string
	purpose string
}

type mockNotifier struct {
	mu     sync.Mutex
	emails []sentCode
	sms    []sentCode
}

func (n *mockNotifier) SendOtpEmail(_ context.Context, email, code, purpose string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, sentCode{target: email, code: code, purpose: purpose})
	return nil
}

func (n *mockNotifier) SendOtpSMS(_ context.Context, phone, code, purpose string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sms = append(n.sms, sentCode{target: phone, code: code, purpose: purpose})
	return nil
}

type publishedEvent struct {
	userID string
	source string
}

type mockEvents struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (e *mockEvents) UserCreated(_ context.Context, userID string, _, _ *string, source string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, publishedEvent{userID: userID, source: source})
	return nil
}

func strptr(s string) *string { return &s }
