package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"gorm.io/gorm"

	"github.com/npsg02/auth-service/config"
	repo "github.com/npsg02/auth-service/internal/adapters/postgres"
	"github.com/npsg02/auth-service/internal/apperr"
	"github.com/npsg02/auth-service/internal/domain"
	pkglog "github.com/npsg02/auth-service/pkg/log"
)

// anonymousIdentifier scopes login challenges issued before the user is
// known (discoverable credential flow).
const anonymousIdentifier = "anonymous"

// errChallengeGone marks a missing, expired or already consumed ceremony
// challenge. Registration reports it as a bad request, login as an
// authentication failure.
var errChallengeGone = errors.New("challenge not found or expired")

// passkeyProvider is the subset of webauthn.WebAuthn the service uses.
type passkeyProvider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

type passkeyParser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultPasskeyParser struct{}

func (defaultPasskeyParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultPasskeyParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

type PasskeyService interface {
	GenerateRegistrationOptions(ctx context.Context, userID string) (*protocol.CredentialCreation, error)
	VerifyRegistration(ctx context.Context, userID, deviceName string, response []byte) (*domain.PasskeyCredential, error)
	GenerateAuthenticationOptions(ctx context.Context, identifier string) (*protocol.CredentialAssertion, error)
	VerifyAuthenticationAndLogin(ctx context.Context, response []byte, opts SessionOptions) (*AuthResult, error)
	List(ctx context.Context, userID string) ([]domain.PasskeyCredential, error)
	UpdateName(ctx context.Context, userID, credentialID, deviceName string) error
	Delete(ctx context.Context, userID, credentialID string) error
}

type passkeyService struct {
	cfg      *config.Config
	logger   pkglog.Logger
	provider passkeyProvider
	parser   passkeyParser
	users    repo.UserRepository
	passkeys repo.PasskeyRepository
	otps     repo.OtpTokenRepository
	sessions SessionManager
	methods  *authMethods
	now      func() time.Time
}

func NewPasskeyService(cfg *config.Config, logger pkglog.Logger, users repo.UserRepository, wallets repo.WalletRepository, passkeys repo.PasskeyRepository, providers repo.ProviderRepository, otps repo.OtpTokenRepository, sessions SessionManager) (PasskeyService, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.PasskeyRPID,
		RPDisplayName: cfg.PasskeyRPDisplayName,
		RPOrigins:     cfg.PasskeyRPOrigins,
	})
	if err != nil {
		return nil, err
	}
	return &passkeyService{
		cfg:      cfg,
		logger:   logger,
		provider: wa,
		parser:   defaultPasskeyParser{},
		users:    users,
		passkeys: passkeys,
		otps:     otps,
		sessions: sessions,
		methods:  &authMethods{users: users, wallets: wallets, passkeys: passkeys, providers: providers},
		now:      time.Now,
	}, nil
}

// passkeyUser adapts a stored user and its credentials to webauthn.User.
type passkeyUser struct {
	user        *domain.User
	credentials []webauthn.Credential
}

func (u *passkeyUser) WebAuthnID() []byte { return []byte(u.user.ID) }

func (u *passkeyUser) WebAuthnName() string {
	if u.user.Email != nil {
		return *u.user.Email
	}
	if u.user.Phone != nil {
		return *u.user.Phone
	}
	return u.user.ID
}

func (u *passkeyUser) WebAuthnDisplayName() string { return u.user.FullName }

func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

func (s *passkeyService) GenerateRegistrationOptions(ctx context.Context, userID string) (*protocol.CredentialCreation, error) {
	pu, err := s.loadPasskeyUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	opts := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	}
	if len(pu.credentials) > 0 {
		opts = append(opts, webauthn.WithExclusions(webauthn.Credentials(pu.credentials).CredentialDescriptors()))
	}

	creation, session, err := s.provider.BeginRegistration(pu, opts...)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.storeChallenge(ctx, userID, userID, session.Challenge); err != nil {
		return nil, err
	}
	return creation, nil
}

func (s *passkeyService) VerifyRegistration(ctx context.Context, userID, deviceName string, response []byte) (*domain.PasskeyCredential, error) {
	pu, err := s.loadPasskeyUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	parsed, err := s.parser.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return nil, apperr.BadRequestf("invalid_credential", "malformed credential response")
	}

	session, err := s.consumeChallenge(ctx, userID, userID, parsed.Response.CollectedClientData.Challenge)
	if err != nil {
		if errors.Is(err, errChallengeGone) {
			return nil, apperr.BadRequestf("challenge_expired", "challenge not found or expired")
		}
		return nil, err
	}

	credential, err := s.provider.CreateCredential(pu, *session, parsed)
	if err != nil {
		return nil, apperr.BadRequestf("invalid_credential", "credential verification failed")
	}

	if deviceName == "" {
		deviceName = "Unknown Device"
	}
	transports := make([]string, 0, len(credential.Transport))
	for _, t := range credential.Transport {
		transports = append(transports, string(t))
	}
	record := &domain.PasskeyCredential{
		UserID:       userID,
		CredentialID: encodeCredentialID(credential.ID),
		PublicKey:    base64.StdEncoding.EncodeToString(credential.PublicKey),
		Counter:      credential.Authenticator.SignCount,
		DeviceName:   deviceName,
		BackedUp:     credential.Flags.BackupState,
		Transports:   transports,
	}
	if err := s.passkeys.Create(ctx, record); err != nil {
		return nil, apperr.Internal(err)
	}
	return record, nil
}

// GenerateAuthenticationOptions starts an assertion ceremony. With an empty
// identifier the challenge is issued for a discoverable credential and the
// user is resolved from the assertion itself.
func (s *passkeyService) GenerateAuthenticationOptions(ctx context.Context, identifier string) (*protocol.CredentialAssertion, error) {
	if identifier == "" {
		assertion, session, err := s.provider.BeginDiscoverableLogin()
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if err := s.storeChallenge(ctx, anonymousIdentifier, "", session.Challenge); err != nil {
			return nil, err
		}
		return assertion, nil
	}

	user, err := s.users.FindByEmailOrPhone(ctx, identifier, identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorizedf("invalid_credentials", "authentication failed")
		}
		return nil, apperr.Internal(err)
	}
	pu, err := s.loadPasskeyUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(pu.credentials) == 0 {
		return nil, apperr.Unauthorizedf("invalid_credentials", "authentication failed")
	}
	assertion, session, err := s.provider.BeginLogin(pu)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.storeChallenge(ctx, user.ID, user.ID, session.Challenge); err != nil {
		return nil, err
	}
	return assertion, nil
}

func (s *passkeyService) VerifyAuthenticationAndLogin(ctx context.Context, response []byte, opts SessionOptions) (*AuthResult, error) {
	parsed, err := s.parser.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return nil, apperr.BadRequestf("invalid_credential", "malformed credential response")
	}

	stored, err := s.passkeys.FindByCredentialID(ctx, encodeCredentialID(parsed.RawID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorizedf("invalid_credentials", "authentication failed")
		}
		return nil, apperr.Internal(err)
	}

	challenge := parsed.Response.CollectedClientData.Challenge
	session, err := s.consumeChallenge(ctx, stored.UserID, stored.UserID, challenge)
	if err != nil {
		if !errors.Is(err, errChallengeGone) {
			return nil, err
		}
		// Challenge may have been issued before the user was known.
		session, err = s.consumeChallenge(ctx, anonymousIdentifier, "", challenge)
		if err != nil {
			if errors.Is(err, errChallengeGone) {
				return nil, apperr.Unauthorizedf("challenge_expired", "challenge not found or expired")
			}
			return nil, err
		}
	}

	pu, err := s.loadPasskeyUser(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}

	var validated *webauthn.Credential
	if len(session.UserID) == 0 {
		handler := func(_, _ []byte) (webauthn.User, error) { return pu, nil }
		_, validated, err = s.provider.ValidatePasskeyLogin(handler, *session, parsed)
	} else {
		validated, err = s.provider.ValidateLogin(pu, *session, parsed)
	}
	if err != nil {
		return nil, apperr.Unauthorizedf("invalid_credentials", "authentication failed")
	}

	// A signature counter that does not advance means the authenticator
	// state was replayed or cloned.
	newCounter := validated.Authenticator.SignCount
	if validated.Authenticator.CloneWarning || (stored.Counter > 0 && newCounter <= stored.Counter) {
		s.logger.Warn().Str("user_id", stored.UserID).Str("credential_id", stored.CredentialID).
			Uint32("stored", stored.Counter).Uint32("received", newCounter).
			Msg("passkey counter did not advance")
		return nil, apperr.Unauthorizedf("invalid_credentials", "authentication failed")
	}
	if err := s.passkeys.UpdateCounter(ctx, stored.ID, newCounter, s.now()); err != nil {
		return nil, apperr.Internal(err)
	}

	return s.sessions.Create(ctx, stored.UserID, "PASSKEY", opts)
}

func (s *passkeyService) List(ctx context.Context, userID string) ([]domain.PasskeyCredential, error) {
	credentials, err := s.passkeys.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return credentials, nil
}

func (s *passkeyService) UpdateName(ctx context.Context, userID, credentialID, deviceName string) error {
	credential, err := s.passkeys.FindForUser(ctx, userID, credentialID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.BadRequestf("passkey_not_found", "passkey not found")
		}
		return apperr.Internal(err)
	}
	if err := s.passkeys.UpdateName(ctx, credential.ID, deviceName); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *passkeyService) Delete(ctx context.Context, userID, credentialID string) error {
	credential, err := s.passkeys.FindForUser(ctx, userID, credentialID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.BadRequestf("passkey_not_found", "passkey not found")
		}
		return apperr.Internal(err)
	}
	if err := s.methods.ensureNotLast(ctx, userID); err != nil {
		return err
	}
	if err := s.passkeys.Delete(ctx, credential.ID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *passkeyService) loadPasskeyUser(ctx context.Context, userID string) (*passkeyUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundf("user_not_found", "user not found")
		}
		return nil, apperr.Internal(err)
	}
	records, err := s.passkeys.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		credential, err := decodeStoredCredential(record)
		if err != nil {
			s.logger.Warn().Err(err).Str("credential_id", record.CredentialID).Msg("skipping undecodable passkey credential")
			continue
		}
		credentials = append(credentials, credential)
	}
	return &passkeyUser{user: user, credentials: credentials}, nil
}

// storeChallenge persists a ceremony challenge as a single-use token row.
// identifier scopes the lookup; userID is empty for discoverable logins.
func (s *passkeyService) storeChallenge(ctx context.Context, identifier, userID, challenge string) error {
	now := s.now()
	if err := s.otps.DeleteExpired(ctx, identifier, domain.OtpTwoFactor, now); err != nil {
		return apperr.Internal(err)
	}
	token := &domain.OtpToken{
		Identifier:  identifier,
		Token:       challenge,
		Purpose:     domain.OtpTwoFactor,
		MaxAttempts: 1,
		ExpiresAt:   now.Add(s.cfg.PasskeyChallengeTTL),
	}
	if userID != "" {
		token.UserID = &userID
	}
	if err := s.otps.Create(ctx, token); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// consumeChallenge rebuilds the ceremony session from the stored token and
// marks it used. The token is burned whether or not the ceremony succeeds.
func (s *passkeyService) consumeChallenge(ctx context.Context, identifier, userID, challenge string) (*webauthn.SessionData, error) {
	token, err := s.otps.FindActive(ctx, identifier, domain.OtpTwoFactor)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errChallengeGone
		}
		return nil, apperr.Internal(err)
	}
	if token.Token != challenge || !token.Active(s.now()) {
		return nil, errChallengeGone
	}
	ok, err := s.otps.ConsumeIfUnused(ctx, token.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, errChallengeGone
	}
	session := &webauthn.SessionData{
		Challenge: token.Token,
		Expires:   token.ExpiresAt,
	}
	if userID != "" {
		session.UserID = []byte(userID)
	}
	return session, nil
}

func encodeCredentialID(id []byte) string {
	return base64.RawURLEncoding.EncodeToString(id)
}

func decodeStoredCredential(record domain.PasskeyCredential) (webauthn.Credential, error) {
	id, err := base64.RawURLEncoding.DecodeString(record.CredentialID)
	if err != nil {
		return webauthn.Credential{}, err
	}
	publicKey, err := base64.StdEncoding.DecodeString(record.PublicKey)
	if err != nil {
		return webauthn.Credential{}, err
	}
	transports := make([]protocol.AuthenticatorTransport, 0, len(record.Transports))
	for _, t := range record.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:        id,
		PublicKey: publicKey,
		Transport: transports,
		Flags:     webauthn.CredentialFlags{BackupState: record.BackedUp},
		Authenticator: webauthn.Authenticator{
			SignCount: record.Counter,
		},
	}, nil
}
