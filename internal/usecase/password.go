package usecase

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/npsg02/auth-service/internal/apperr"
)

// PasswordService hashes and verifies passwords. Pure component, no storage.
type PasswordService interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

type bcryptPasswords struct {
	cost int
}

func NewPasswordService() PasswordService {
	return &bcryptPasswords{cost: bcrypt.DefaultCost}
}

func (p *bcryptPasswords) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return string(hash), nil
}

func (p *bcryptPasswords) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return apperr.BadRequestf("weak_password", "password must be at least 8 characters")
	}
	return nil
}
