package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"gorm.io/gorm"

	"github.com/npsg02/auth-service/config"
	repo "github.com/npsg02/auth-service/internal/adapters/postgres"
	"github.com/npsg02/auth-service/internal/adapters/rediscache"
	"github.com/npsg02/auth-service/internal/apperr"
	"github.com/npsg02/auth-service/internal/domain"
	pkglog "github.com/npsg02/auth-service/pkg/log"
)

const nonceKeyPrefix = "wallet:nonce:"

type WalletLogin struct {
	Address   string
	Signature string
	Message   string
	Nonce     string
}

type WalletRegister struct {
	WalletLogin
	FullName string
	Email    *string
	Phone    *string
}

type WalletLink struct {
	Address   string
	Signature string
	Message   string
	Type      domain.ChainType
}

// WalletAuthService authenticates users by proof of control over a
// blockchain address. Nonces are issued server-side and consumed on use.
type WalletAuthService interface {
	GenerateNonce(ctx context.Context) (string, error)
	GenerateSignMessage(nonce string) string
	VerifySignature(address, message, signature string) bool
	Login(ctx context.Context, in WalletLogin, opts SessionOptions) (*AuthResult, error)
	Register(ctx context.Context, in WalletRegister, opts SessionOptions) (*AuthResult, error)
	Link(ctx context.Context, userID string, in WalletLink) (*domain.WalletAccount, error)
	Unlink(ctx context.Context, userID, walletID string) error
	SetPrimary(ctx context.Context, userID, walletID string) error
	List(ctx context.Context, userID string) ([]domain.WalletAccount, error)
}

type walletAuthService struct {
	cfg      *config.Config
	logger   pkglog.Logger
	users    repo.UserRepository
	wallets  repo.WalletRepository
	cache    rediscache.Cache
	sessions SessionManager
	methods  *authMethods
	events   EventPublisher
}

func NewWalletAuthService(cfg *config.Config, logger pkglog.Logger, users repo.UserRepository, wallets repo.WalletRepository, passkeys repo.PasskeyRepository, providers repo.ProviderRepository, cache rediscache.Cache, sessions SessionManager, events EventPublisher) WalletAuthService {
	return &walletAuthService{
		cfg:      cfg,
		logger:   logger,
		users:    users,
		wallets:  wallets,
		cache:    cache,
		sessions: sessions,
		methods:  &authMethods{users: users, wallets: wallets, passkeys: passkeys, providers: providers},
		events:   events,
	}
}

func (s *walletAuthService) GenerateNonce(ctx context.Context) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", apperr.Internal(err)
	}
	nonce := hexutil.Encode(buf)
	if err := s.cache.Set(ctx, nonceKeyPrefix+nonce, "1", s.cfg.WalletNonceTTL); err != nil {
		return "", apperr.Internal(err)
	}
	return nonce, nil
}

func (s *walletAuthService) GenerateSignMessage(nonce string) string {
	timestamp := time.Now().Unix()
	return fmt.Sprintf("Sign this message to authenticate with %s.\n\nNonce: %s\nTimestamp: %d",
		s.cfg.WalletSignDomain, nonce, timestamp)
}

// VerifySignature recovers the signer of an EIP-191 personal-sign message
// and compares it case-insensitively to address. Malformed input fails
// closed.
func (s *walletAuthService) VerifySignature(address, message, signature string) bool {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	// Wallets produce V as 27/28; recovery expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}
	hash := accounts.TextHash([]byte(message))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return false
	}
	recovered := crypto.PubkeyToAddress(*pub)
	return strings.EqualFold(recovered.Hex(), address)
}

func (s *walletAuthService) Login(ctx context.Context, in WalletLogin, opts SessionOptions) (*AuthResult, error) {
	if err := s.checkNonce(ctx, in.Message, in.Nonce); err != nil {
		return nil, err
	}
	if !s.VerifySignature(in.Address, in.Message, in.Signature) {
		return nil, apperr.Unauthorizedf("invalid_signature", "invalid wallet signature")
	}
	wallet, err := s.wallets.FindByAddress(ctx, in.Address)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorizedf("wallet_not_found", "wallet not found or not verified")
		}
		return nil, apperr.Internal(err)
	}
	if !wallet.IsVerified {
		return nil, apperr.Unauthorizedf("wallet_not_found", "wallet not found or not verified")
	}
	return s.sessions.Create(ctx, wallet.UserID, "WALLET_SIGNATURE", opts)
}

func (s *walletAuthService) Register(ctx context.Context, in WalletRegister, opts SessionOptions) (*AuthResult, error) {
	if err := s.checkNonce(ctx, in.Message, in.Nonce); err != nil {
		return nil, err
	}
	if !s.VerifySignature(in.Address, in.Message, in.Signature) {
		return nil, apperr.BadRequestf("invalid_signature", "invalid wallet signature")
	}
	if _, err := s.wallets.FindByAddress(ctx, in.Address); err == nil {
		return nil, apperr.BadRequestf("wallet_registered", "wallet is already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}
	if in.Email != nil || in.Phone != nil {
		email, phone := deref(in.Email), deref(in.Phone)
		if _, err := s.users.FindByEmailOrPhone(ctx, email, phone); err == nil {
			return nil, apperr.BadRequestf("identifier_taken", "user with this email or phone already exists")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Internal(err)
		}
	}

	fullName := in.FullName
	if fullName == "" {
		fullName = "Wallet User " + shortAddress(in.Address)
	}
	user := &domain.User{
		Email:    in.Email,
		Phone:    in.Phone,
		FullName: fullName,
	}
	wallet := &domain.WalletAccount{
		Address:    in.Address,
		Type:       domain.ChainEthereum,
		IsVerified: true,
		IsPrimary:  true,
		Metadata: map[string]interface{}{
			"registered_at":       time.Now().UTC().Format(time.RFC3339),
			"verification_method": "signature",
		},
	}
	if err := s.wallets.CreateUserWithWallet(ctx, user, wallet, s.cfg.DefaultRole); err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.events.UserCreated(ctx, user.ID, user.Email, user.Phone, "wallet"); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("user created event failed")
	}
	return s.sessions.Create(ctx, user.ID, "WALLET_REGISTRATION", opts)
}

func (s *walletAuthService) Link(ctx context.Context, userID string, in WalletLink) (*domain.WalletAccount, error) {
	if in.Type == "" {
		in.Type = domain.ChainEthereum
	}
	if !s.VerifySignature(in.Address, in.Message, in.Signature) {
		return nil, apperr.BadRequestf("invalid_signature", "invalid wallet signature")
	}

	existing, err := s.wallets.FindByAddress(ctx, in.Address)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err)
	}
	if existing != nil && existing.UserID != userID {
		return nil, apperr.BadRequestf("wallet_linked", "wallet is already linked to another account")
	}

	metadata := map[string]interface{}{
		"linked_at":           time.Now().UTC().Format(time.RFC3339),
		"verification_method": "signature",
	}
	wallet := existing
	if wallet == nil {
		// First wallet of this chain type becomes primary.
		isPrimary := false
		if _, err := s.wallets.FindPrimary(ctx, userID, in.Type); errors.Is(err, gorm.ErrRecordNotFound) {
			isPrimary = true
		} else if err != nil {
			return nil, apperr.Internal(err)
		}
		wallet = &domain.WalletAccount{
			UserID:     userID,
			Address:    in.Address,
			Type:       in.Type,
			IsVerified: true,
			IsPrimary:  isPrimary,
			Metadata:   metadata,
		}
	} else {
		wallet.IsVerified = true
		wallet.Metadata = metadata
	}
	if err := s.wallets.Upsert(ctx, wallet); err != nil {
		return nil, apperr.Internal(err)
	}
	return wallet, nil
}

func (s *walletAuthService) Unlink(ctx context.Context, userID, walletID string) error {
	if _, err := s.wallets.FindForUser(ctx, userID, walletID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.BadRequestf("wallet_not_found", "wallet not found")
		}
		return apperr.Internal(err)
	}
	if err := s.methods.ensureNotLast(ctx, userID); err != nil {
		return err
	}
	if err := s.wallets.Delete(ctx, walletID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *walletAuthService) SetPrimary(ctx context.Context, userID, walletID string) error {
	wallet, err := s.wallets.FindForUser(ctx, userID, walletID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.BadRequestf("wallet_not_found", "wallet not found")
		}
		return apperr.Internal(err)
	}
	if err := s.wallets.SwapPrimary(ctx, userID, walletID, wallet.Type); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *walletAuthService) List(ctx context.Context, userID string) ([]domain.WalletAccount, error) {
	wallets, err := s.wallets.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return wallets, nil
}

// checkNonce binds the proof to a server-issued nonce: the message must
// embed it and the nonce must still be live, consumed exactly once.
func (s *walletAuthService) checkNonce(ctx context.Context, message, nonce string) error {
	if nonce == "" || !strings.Contains(message, nonce) {
		return apperr.BadRequestf("nonce_mismatch", "message must contain the provided nonce")
	}
	key := nonceKeyPrefix + nonce
	if _, err := s.cache.Get(ctx, key); err != nil {
		if errors.Is(err, rediscache.ErrMiss) {
			return apperr.BadRequestf("nonce_expired", "nonce is unknown or expired")
		}
		return apperr.Internal(err)
	}
	if err := s.cache.Del(ctx, key); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func shortAddress(address string) string {
	if len(address) > 8 {
		return address[:8]
	}
	return address
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
