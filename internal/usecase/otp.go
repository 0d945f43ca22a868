package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/npsg02/auth-service/config"
	"github.com/npsg02/auth-service/internal/adapters/notifier"
	repo "github.com/npsg02/auth-service/internal/adapters/postgres"
	"github.com/npsg02/auth-service/internal/adapters/rediscache"
	"github.com/npsg02/auth-service/internal/apperr"
	"github.com/npsg02/auth-service/internal/domain"
	pkglog "github.com/npsg02/auth-service/pkg/log"
)

const otpKeyPrefix = "otp:"

// OtpEngine manages one-time codes per (identifier, purpose) pair. At most
// one active code exists per pair; consumption is exactly-once.
type OtpEngine interface {
	// Generate creates and dispatches a fresh code. It fails with a conflict
	// while an unexpired, unused code for the pair exists.
	Generate(ctx context.Context, identifier string, userID *string, purpose domain.OtpPurpose) (string, error)
	// Verify consumes the active code on match. It fails closed on any
	// missing, expired, used or exhausted token.
	Verify(ctx context.Context, identifier, code string, purpose domain.OtpPurpose) (bool, error)
}

type otpEngine struct {
	cfg      *config.Config
	logger   pkglog.Logger
	tokens   repo.OtpTokenRepository
	cache    rediscache.Cache
	notifier notifier.Client
}

func NewOtpEngine(cfg *config.Config, logger pkglog.Logger, tokens repo.OtpTokenRepository, cache rediscache.Cache, sender notifier.Client) OtpEngine {
	return &otpEngine{cfg: cfg, logger: logger, tokens: tokens, cache: cache, notifier: sender}
}

func (e *otpEngine) Generate(ctx context.Context, identifier string, userID *string, purpose domain.OtpPurpose) (string, error) {
	now := time.Now()
	if err := e.tokens.DeleteExpired(ctx, identifier, purpose, now); err != nil {
		return "", apperr.Internal(err)
	}
	if _, err := e.tokens.FindActive(ctx, identifier, purpose); err == nil {
		return "", apperr.Conflictf("otp_active", "an active code already exists, wait for it to expire")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.Internal(err)
	}

	code, err := randomCode(e.cfg.OtpLength)
	if err != nil {
		return "", apperr.Internal(err)
	}
	token := &domain.OtpToken{
		UserID:      userID,
		Identifier:  identifier,
		Token:       code,
		Purpose:     purpose,
		MaxAttempts: e.cfg.OtpMaxAttempts,
		ExpiresAt:   now.Add(e.cfg.OtpTTL),
	}
	if err := e.tokens.Create(ctx, token); err != nil {
		return "", apperr.Internal(err)
	}

	if err := e.cache.Set(ctx, otpKey(identifier, purpose), code, e.cfg.OtpTTL); err != nil {
		e.logger.Warn().Err(err).Str("purpose", string(purpose)).Msg("otp cache write failed")
	}

	// Delivery is best-effort: a dispatch failure leaves the code valid.
	e.dispatch(ctx, identifier, code, purpose)
	return code, nil
}

func (e *otpEngine) Verify(ctx context.Context, identifier, code string, purpose domain.OtpPurpose) (bool, error) {
	token, err := e.tokens.FindActive(ctx, identifier, purpose)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No active token; clear whatever stale rows remain.
			_ = e.tokens.DeleteExpired(ctx, identifier, purpose, time.Now())
			return false, nil
		}
		return false, apperr.Internal(err)
	}

	if token.Attempts >= token.MaxAttempts {
		if err := e.tokens.DeleteByID(ctx, token.ID); err != nil {
			return false, apperr.Internal(err)
		}
		_ = e.cache.Del(ctx, otpKey(identifier, purpose))
		return false, nil
	}

	if token.Token != code {
		if err := e.tokens.IncrementAttempts(ctx, token.ID); err != nil {
			return false, apperr.Internal(err)
		}
		if token.Attempts+1 >= token.MaxAttempts {
			if err := e.tokens.DeleteByID(ctx, token.ID); err != nil {
				return false, apperr.Internal(err)
			}
			_ = e.cache.Del(ctx, otpKey(identifier, purpose))
		}
		return false, nil
	}

	// Conditional mark-used: exactly one concurrent caller wins.
	consumed, err := e.tokens.ConsumeIfUnused(ctx, token.ID)
	if err != nil {
		return false, apperr.Internal(err)
	}
	if !consumed {
		return false, nil
	}
	if err := e.cache.Del(ctx, otpKey(identifier, purpose)); err != nil {
		e.logger.Warn().Err(err).Str("purpose", string(purpose)).Msg("otp cache purge failed")
	}
	return true, nil
}

func (e *otpEngine) dispatch(ctx context.Context, identifier, code string, purpose domain.OtpPurpose) {
	var err error
	if isEmail(identifier) {
		err = e.notifier.SendOtpEmail(ctx, identifier, code, string(purpose))
	} else {
		err = e.notifier.SendOtpSMS(ctx, identifier, code, string(purpose))
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("purpose", string(purpose)).Msg("otp delivery failed")
	}
}

func otpKey(identifier string, purpose domain.OtpPurpose) string {
	return otpKeyPrefix + string(purpose) + ":" + identifier
}

func randomCode(length int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

func isEmail(identifier string) bool {
	at := strings.Index(identifier, "@")
	return at > 0 && at < len(identifier)-1
}
