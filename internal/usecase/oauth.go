package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/npsg02/auth-service/config"
	repo "github.com/npsg02/auth-service/internal/adapters/postgres"
	"github.com/npsg02/auth-service/internal/apperr"
	"github.com/npsg02/auth-service/internal/domain"
	pkglog "github.com/npsg02/auth-service/pkg/log"
)

// OAuthUserData is the profile an upstream identity provider asserted after
// a completed authorization code exchange.
type OAuthUserData struct {
	Provider   string
	ProviderID string
	Email      string
	FullName   string
	Phone      *string
	Picture    *string
}

type OAuthLoginResult struct {
	*AuthResult
	IsNewUser bool
}

type OAuthService interface {
	HandleLogin(ctx context.Context, data OAuthUserData, opts SessionOptions) (*OAuthLoginResult, error)
	Link(ctx context.Context, userID string, data OAuthUserData) error
	Unlink(ctx context.Context, userID, providerID string) error
	List(ctx context.Context, userID string) ([]domain.AuthProviderUser, error)
	GenerateState() (string, error)
	VerifyState(state string) bool
}

type oauthService struct {
	cfg       *config.Config
	logger    pkglog.Logger
	users     repo.UserRepository
	providers repo.ProviderRepository
	sessions  SessionManager
	methods   *authMethods
	events    EventPublisher
	now       func() time.Time
}

func NewOAuthService(cfg *config.Config, logger pkglog.Logger, users repo.UserRepository, wallets repo.WalletRepository, passkeys repo.PasskeyRepository, providers repo.ProviderRepository, sessions SessionManager, events EventPublisher) OAuthService {
	return &oauthService{
		cfg:       cfg,
		logger:    logger,
		users:     users,
		providers: providers,
		sessions:  sessions,
		methods:   &authMethods{users: users, wallets: wallets, passkeys: passkeys, providers: providers},
		events:    events,
		now:       time.Now,
	}
}

// HandleLogin resolves a federated identity to a local account. Resolution
// order: existing provider link, then account with the asserted email, then
// a fresh registration.
func (s *oauthService) HandleLogin(ctx context.Context, data OAuthUserData, opts SessionOptions) (*OAuthLoginResult, error) {
	if data.ProviderID == "" || data.Provider == "" {
		return nil, apperr.BadRequestf("invalid_provider_data", "provider identity is incomplete")
	}

	link, err := s.providers.FindLink(ctx, data.ProviderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}
	if link != nil {
		if err := s.refreshProfile(ctx, link.UserID, data); err != nil {
			s.logger.Warn().Err(err).Str("user_id", link.UserID).Msg("oauth profile refresh failed")
		}
		result, err := s.sessions.Create(ctx, link.UserID, loginMethodFor(data.Provider), opts)
		if err != nil {
			return nil, err
		}
		return &OAuthLoginResult{AuthResult: result}, nil
	}

	if data.Email != "" {
		user, err := s.users.FindByEmail(ctx, data.Email)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Internal(err)
		}
		if user != nil {
			if err := s.providers.CreateLink(ctx, user.ID, data.ProviderID, data.Provider); err != nil {
				return nil, apperr.Internal(err)
			}
			if err := s.refreshProfile(ctx, user.ID, data); err != nil {
				s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("oauth profile refresh failed")
			}
			result, err := s.sessions.Create(ctx, user.ID, loginMethodFor(data.Provider), opts)
			if err != nil {
				return nil, err
			}
			return &OAuthLoginResult{AuthResult: result}, nil
		}
	}

	user := &domain.User{
		FullName:        data.FullName,
		Phone:           data.Phone,
		Picture:         data.Picture,
		IsEmailVerified: data.Email != "",
	}
	if data.Email != "" {
		email := data.Email
		user.Email = &email
	}
	if err := s.providers.CreateUserWithLink(ctx, user, data.ProviderID, data.Provider, s.cfg.DefaultRole); err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.events.UserCreated(ctx, user.ID, user.Email, user.Phone, data.Provider); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("user created event failed")
	}
	result, err := s.sessions.Create(ctx, user.ID, loginMethodFor(data.Provider), opts)
	if err != nil {
		return nil, err
	}
	return &OAuthLoginResult{AuthResult: result, IsNewUser: true}, nil
}

func (s *oauthService) Link(ctx context.Context, userID string, data OAuthUserData) error {
	link, err := s.providers.FindLink(ctx, data.ProviderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Internal(err)
	}
	if link != nil {
		if link.UserID == userID {
			return nil
		}
		return apperr.BadRequestf("provider_linked", "provider identity is already linked to another account")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFoundf("user_not_found", "user not found")
		}
		return apperr.Internal(err)
	}
	if data.Email != "" && user.Email != nil && !strings.EqualFold(*user.Email, data.Email) {
		return apperr.BadRequestf("email_mismatch", "provider email does not match the account email")
	}
	if err := s.providers.CreateLink(ctx, userID, data.ProviderID, data.Provider); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *oauthService) Unlink(ctx context.Context, userID, providerID string) error {
	link, err := s.providers.FindLink(ctx, providerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.BadRequestf("provider_not_found", "provider link not found")
		}
		return apperr.Internal(err)
	}
	if link.UserID != userID {
		return apperr.BadRequestf("provider_not_found", "provider link not found")
	}
	if err := s.methods.ensureNotLast(ctx, userID); err != nil {
		return err
	}
	if err := s.providers.DeleteLink(ctx, userID, providerID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *oauthService) List(ctx context.Context, userID string) ([]domain.AuthProviderUser, error) {
	links, err := s.providers.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return links, nil
}

type oauthState struct {
	Timestamp int64  `json:"timestamp"`
	Random    string `json:"random"`
}

// GenerateState mints an opaque CSRF state value for the redirect round
// trip.
func (s *oauthService) GenerateState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", apperr.Internal(err)
	}
	payload, err := json.Marshal(oauthState{
		Timestamp: s.now().UnixMilli(),
		Random:    base64.RawURLEncoding.EncodeToString(buf),
	})
	if err != nil {
		return "", apperr.Internal(err)
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// VerifyState rejects states that do not decode or are older than the
// configured window. Malformed input fails closed.
func (s *oauthService) VerifyState(state string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return false
	}
	var decoded oauthState
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return false
	}
	if decoded.Random == "" {
		return false
	}
	age := s.now().Sub(time.UnixMilli(decoded.Timestamp))
	return age >= 0 && age <= s.cfg.OAuthStateMaxAge
}

// refreshProfile follows provider-side drift of the mutable profile fields
// (name, picture, phone). Email only fills a missing one; an established
// email never changes on login.
func (s *oauthService) refreshProfile(ctx context.Context, userID string, data OAuthUserData) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	changed := false
	if data.FullName != "" && user.FullName != data.FullName {
		user.FullName = data.FullName
		changed = true
	}
	if data.Picture != nil && (user.Picture == nil || *user.Picture != *data.Picture) {
		user.Picture = data.Picture
		changed = true
	}
	if data.Phone != nil && (user.Phone == nil || *user.Phone != *data.Phone) {
		user.Phone = data.Phone
		changed = true
	}
	if user.Email == nil && data.Email != "" {
		email := data.Email
		user.Email = &email
		user.IsEmailVerified = true
		changed = true
	}
	if !changed {
		return nil
	}
	return s.users.Update(ctx, user)
}

func loginMethodFor(provider string) string {
	return "OAUTH_" + strings.ToUpper(provider)
}
