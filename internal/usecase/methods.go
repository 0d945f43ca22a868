package usecase

import (
	"context"
	"errors"

	"gorm.io/gorm"

	repo "github.com/npsg02/auth-service/internal/adapters/postgres"
	"github.com/npsg02/auth-service/internal/apperr"
)

// authMethods counts a user's usable authentication methods so that unlink
// and delete paths can refuse to remove the last one.
type authMethods struct {
	users     repo.UserRepository
	wallets   repo.WalletRepository
	passkeys  repo.PasskeyRepository
	providers repo.ProviderRepository
}

type methodCounts struct {
	password  bool
	wallets   int64
	passkeys  int64
	providers int64
}

func (a *authMethods) counts(ctx context.Context, userID string) (*methodCounts, error) {
	user, err := a.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.BadRequestf("user_not_found", "user not found")
		}
		return nil, apperr.Internal(err)
	}
	wallets, err := a.wallets.CountByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	passkeys, err := a.passkeys.CountByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	providers, err := a.providers.CountByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &methodCounts{
		password:  user.HasPassword(),
		wallets:   wallets,
		passkeys:  passkeys,
		providers: providers,
	}, nil
}

func (c *methodCounts) total() int64 {
	n := c.wallets + c.passkeys + c.providers
	if c.password {
		n++
	}
	return n
}

// ensureNotLast rejects the removal when, after discounting the method being
// removed, the user would have no way left to authenticate.
func (a *authMethods) ensureNotLast(ctx context.Context, userID string) error {
	counts, err := a.counts(ctx, userID)
	if err != nil {
		return err
	}
	if counts.total() <= 1 {
		return apperr.BadRequestf("last_auth_method", "cannot remove the only authentication method")
	}
	return nil
}
