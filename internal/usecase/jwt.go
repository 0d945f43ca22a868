package usecase

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/npsg02/auth-service/config"
)

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenSigner mints and parses the compact signed tokens that double as
// session lookup keys. Access and refresh tokens use distinct secrets.
type TokenSigner interface {
	SignAccessToken(subject string, claims map[string]interface{}, ttl time.Duration) (string, error)
	SignRefreshToken(subject string, ttl time.Duration) (string, error)
	ParseAccess(token string) (*jwt.Token, jwt.MapClaims, error)
	ParseRefresh(token string) (*jwt.Token, jwt.MapClaims, error)
}

type jwtSigner struct {
	cfg        *config.Config
	accessKey  []byte
	refreshKey []byte
}

func NewJWTSigner(cfg *config.Config) (TokenSigner, error) {
	if cfg.JWTAccessSecret == "" || cfg.JWTRefreshSecret == "" {
		return nil, errors.New("access and refresh jwt secrets required")
	}
	if cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		return nil, errors.New("access and refresh jwt secrets must differ")
	}
	return &jwtSigner{
		cfg:        cfg,
		accessKey:  []byte(cfg.JWTAccessSecret),
		refreshKey: []byte(cfg.JWTRefreshSecret),
	}, nil
}

func (s *jwtSigner) SignAccessToken(subject string, claims map[string]interface{}, ttl time.Duration) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)
	now := time.Now().UTC()
	std := token.Claims.(jwt.MapClaims)
	std["sub"] = subject
	std["jti"] = uuid.NewString()
	std["iss"] = s.cfg.JWTIssuer
	std["aud"] = s.cfg.JWTAudience
	std["exp"] = now.Add(ttl).Unix()
	std["iat"] = now.Unix()
	for k, v := range claims {
		std[k] = v
	}
	return token.SignedString(s.accessKey)
}

func (s *jwtSigner) SignRefreshToken(subject string, ttl time.Duration) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)
	now := time.Now().UTC()
	std := token.Claims.(jwt.MapClaims)
	std["sub"] = subject
	std["jti"] = uuid.NewString()
	std["typ"] = "refresh"
	std["iss"] = s.cfg.JWTIssuer
	std["aud"] = s.cfg.JWTAudience
	std["exp"] = now.Add(ttl).Unix()
	std["iat"] = now.Unix()
	return token.SignedString(s.refreshKey)
}

func (s *jwtSigner) ParseAccess(tokenStr string) (*jwt.Token, jwt.MapClaims, error) {
	return s.parse(tokenStr, s.accessKey)
}

func (s *jwtSigner) ParseRefresh(tokenStr string) (*jwt.Token, jwt.MapClaims, error) {
	return s.parse(tokenStr, s.refreshKey)
}

func (s *jwtSigner) parse(tokenStr string, key []byte) (*jwt.Token, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithAudience(s.cfg.JWTAudience),
		jwt.WithIssuer(s.cfg.JWTIssuer),
		jwt.WithLeeway(30*time.Second),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	})
	return token, claims, err
}
