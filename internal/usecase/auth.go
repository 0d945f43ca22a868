package usecase

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/npsg02/auth-service/config"
	repo "github.com/npsg02/auth-service/internal/adapters/postgres"
	"github.com/npsg02/auth-service/internal/apperr"
	"github.com/npsg02/auth-service/internal/domain"
	pkglog "github.com/npsg02/auth-service/pkg/log"
)

type RegisterInput struct {
	Email    *string
	Phone    *string
	Password string
	FullName string
}

type RegisterResult struct {
	User                 *UserView `json:"user"`
	VerificationRequired bool      `json:"verification_required"`
}

// AuthService is the password and OTP front of the identity core. Wallet,
// passkey and OAuth flows live in their own services; everything converges
// on the SessionManager.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*RegisterResult, error)
	Login(ctx context.Context, identifier, password string, opts SessionOptions) (*AuthResult, error)
	RequestLoginOtp(ctx context.Context, identifier string) error
	LoginWithOtp(ctx context.Context, identifier, code string, opts SessionOptions) (*AuthResult, error)
	VerifyIdentifier(ctx context.Context, identifier, code string) error
	ResendVerification(ctx context.Context, identifier string) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	StartPasswordReset(ctx context.Context, identifier string) error
	FinishPasswordReset(ctx context.Context, identifier, code, newPassword string) error
	GetMe(ctx context.Context, userID string) (*UserView, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) error
	ListSessions(ctx context.Context, userID string) ([]domain.Session, error)
}

type authService struct {
	cfg       *config.Config
	logger    pkglog.Logger
	users     repo.UserRepository
	passwords PasswordService
	otps      OtpEngine
	sessions  SessionManager
	events    EventPublisher
}

func NewAuthService(cfg *config.Config, logger pkglog.Logger, users repo.UserRepository, passwords PasswordService, otps OtpEngine, sessions SessionManager, events EventPublisher) AuthService {
	return &authService{
		cfg:       cfg,
		logger:    logger,
		users:     users,
		passwords: passwords,
		otps:      otps,
		sessions:  sessions,
		events:    events,
	}
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if in.Email == nil && in.Phone == nil {
		return nil, apperr.BadRequestf("identifier_required", "email or phone is required")
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	email, phone := deref(in.Email), deref(in.Phone)
	if _, err := s.users.FindByEmailOrPhone(ctx, email, phone); err == nil {
		return nil, apperr.Conflictf("user_exists", "user with this email or phone already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: &hash,
		FullName:     in.FullName,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.users.AssignRole(ctx, user.ID, s.cfg.DefaultRole); err != nil {
		return nil, apperr.Internal(err)
	}

	// Verification code delivery is best-effort; registration stands either
	// way and the code can be re-requested.
	identifier, purpose := s.verificationTarget(user)
	if _, err := s.otps.Generate(ctx, identifier, &user.ID, purpose); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("verification code dispatch failed")
	}
	if err := s.events.UserCreated(ctx, user.ID, user.Email, user.Phone, "password"); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("user created event failed")
	}

	return &RegisterResult{
		User: &UserView{
			ID:       user.ID,
			Email:    user.Email,
			Phone:    user.Phone,
			FullName: user.FullName,
			Picture:  user.Picture,
		},
		VerificationRequired: true,
	}, nil
}

func (s *authService) Login(ctx context.Context, identifier, password string, opts SessionOptions) (*AuthResult, error) {
	user, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorizedf("invalid_credentials", "invalid credentials")
		}
		return nil, apperr.Internal(err)
	}
	if !user.HasPassword() || !s.passwords.Verify(password, *user.PasswordHash) {
		return nil, apperr.Unauthorizedf("invalid_credentials", "invalid credentials")
	}
	if err := s.checkVerified(user, identifier); err != nil {
		return nil, err
	}
	s.touchLastLogin(ctx, user)
	return s.sessions.Create(ctx, user.ID, "PASSWORD", opts)
}

func (s *authService) RequestLoginOtp(ctx context.Context, identifier string) error {
	user, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Unauthorizedf("invalid_credentials", "invalid credentials")
		}
		return apperr.Internal(err)
	}
	_, err = s.otps.Generate(ctx, identifier, &user.ID, domain.OtpLogin)
	return err
}

func (s *authService) LoginWithOtp(ctx context.Context, identifier, code string, opts SessionOptions) (*AuthResult, error) {
	user, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorizedf("invalid_credentials", "invalid credentials")
		}
		return nil, apperr.Internal(err)
	}
	ok, err := s.otps.Verify(ctx, identifier, code, domain.OtpLogin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Unauthorizedf("invalid_credentials", "invalid credentials")
	}
	// A delivered code proves control of the identifier.
	s.markVerified(ctx, user, identifier)
	s.touchLastLogin(ctx, user)
	return s.sessions.Create(ctx, user.ID, "OTP", opts)
}

func (s *authService) VerifyIdentifier(ctx context.Context, identifier, code string) error {
	user, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.BadRequestf("invalid_code", "invalid or expired code")
		}
		return apperr.Internal(err)
	}
	purpose := domain.OtpEmailVerification
	if !isEmail(identifier) {
		purpose = domain.OtpPhoneVerification
	}
	ok, err := s.otps.Verify(ctx, identifier, code, purpose)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.BadRequestf("invalid_code", "invalid or expired code")
	}
	s.markVerified(ctx, user, identifier)
	return nil
}

func (s *authService) ResendVerification(ctx context.Context, identifier string) error {
	user, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.BadRequestf("user_not_found", "user not found")
		}
		return apperr.Internal(err)
	}
	if isEmail(identifier) && user.IsEmailVerified {
		return apperr.BadRequestf("already_verified", "identifier is already verified")
	}
	if !isEmail(identifier) && user.IsPhoneVerified {
		return apperr.BadRequestf("already_verified", "identifier is already verified")
	}
	purpose := domain.OtpEmailVerification
	if !isEmail(identifier) {
		purpose = domain.OtpPhoneVerification
	}
	_, err = s.otps.Generate(ctx, identifier, &user.ID, purpose)
	return err
}

func (s *authService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFoundf("user_not_found", "user not found")
		}
		return apperr.Internal(err)
	}
	if !user.HasPassword() || !s.passwords.Verify(currentPassword, *user.PasswordHash) {
		return apperr.Unauthorizedf("invalid_credentials", "current password is incorrect")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = &hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperr.Internal(err)
	}
	return s.invalidateAll(ctx, userID)
}

// StartPasswordReset succeeds silently for unknown identifiers so the
// endpoint cannot be used to probe for accounts.
func (s *authService) StartPasswordReset(ctx context.Context, identifier string) error {
	user, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperr.Internal(err)
	}
	if _, err := s.otps.Generate(ctx, identifier, &user.ID, domain.OtpPasswordReset); err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			return err
		}
		s.logger.Warn().Err(err).Msg("password reset code dispatch failed")
	}
	return nil
}

func (s *authService) FinishPasswordReset(ctx context.Context, identifier, code, newPassword string) error {
	user, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.BadRequestf("invalid_code", "invalid or expired code")
		}
		return apperr.Internal(err)
	}
	ok, err := s.otps.Verify(ctx, identifier, code, domain.OtpPasswordReset)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.BadRequestf("invalid_code", "invalid or expired code")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = &hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperr.Internal(err)
	}
	return s.invalidateAll(ctx, user.ID)
}

func (s *authService) GetMe(ctx context.Context, userID string) (*UserView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("user_not_found", "user not found")
		}
		return nil, apperr.Internal(err)
	}
	roles, permissions, err := s.users.Access(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &UserView{
		ID:          user.ID,
		Email:       user.Email,
		Phone:       user.Phone,
		FullName:    user.FullName,
		Picture:     user.Picture,
		Roles:       roles,
		Permissions: permissions,
	}, nil
}

func (s *authService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := s.sessions.Invalidate(ctx, accessToken); err != nil {
		return err
	}
	if refreshToken != "" {
		return s.sessions.Invalidate(ctx, refreshToken)
	}
	return nil
}

func (s *authService) LogoutAll(ctx context.Context, userID string) error {
	return s.invalidateAll(ctx, userID)
}

func (s *authService) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.sessions.ListActive(ctx, userID)
}

func (s *authService) invalidateAll(ctx context.Context, userID string) error {
	if err := s.sessions.InvalidateUser(ctx, userID, domain.SessionAccess); err != nil {
		return err
	}
	return s.sessions.InvalidateUser(ctx, userID, domain.SessionRefresh)
}

func (s *authService) findByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	if isEmail(identifier) {
		return s.users.FindByEmail(ctx, identifier)
	}
	return s.users.FindByPhone(ctx, identifier)
}

// checkVerified gates password login on a verified identifier. The failure
// is a bad request rather than unauthorized so clients can offer the resend
// flow.
func (s *authService) checkVerified(user *domain.User, identifier string) error {
	if isEmail(identifier) && !user.IsEmailVerified {
		return apperr.BadRequestf("email_not_verified", "email is not verified")
	}
	if !isEmail(identifier) && !user.IsPhoneVerified {
		return apperr.BadRequestf("phone_not_verified", "phone is not verified")
	}
	return nil
}

func (s *authService) verificationTarget(user *domain.User) (string, domain.OtpPurpose) {
	if user.Email != nil {
		return *user.Email, domain.OtpEmailVerification
	}
	return *user.Phone, domain.OtpPhoneVerification
}

func (s *authService) markVerified(ctx context.Context, user *domain.User, identifier string) {
	changed := false
	if isEmail(identifier) && !user.IsEmailVerified {
		user.IsEmailVerified = true
		changed = true
	}
	if !isEmail(identifier) && !user.IsPhoneVerified {
		user.IsPhoneVerified = true
		changed = true
	}
	if !changed {
		return
	}
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("verification flag update failed")
	}
}

func (s *authService) touchLastLogin(ctx context.Context, user *domain.User) {
	now := time.Now()
	user.LastLoginAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("last login update failed")
	}
}
