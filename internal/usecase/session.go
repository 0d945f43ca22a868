package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/npsg02/auth-service/config"
	"github.com/npsg02/auth-service/internal/adapters/rediscache"
	repo "github.com/npsg02/auth-service/internal/adapters/postgres"
	"github.com/npsg02/auth-service/internal/apperr"
	"github.com/npsg02/auth-service/internal/domain"
	pkglog "github.com/npsg02/auth-service/pkg/log"
)

const (
	sessionKeyPrefix = "session:"
	refreshKeyPrefix = "refresh:"
)

// SessionData is the reconstructed context of a validated session: the
// authenticated principal plus device metadata.
type SessionData struct {
	UserID      string   `json:"user_id"`
	SessionID   string   `json:"session_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	DeviceInfo  *string  `json:"device_info,omitempty"`
	IPAddress   *string  `json:"ip_address,omitempty"`
	UserAgent   *string  `json:"user_agent,omitempty"`
}

type refreshData struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

type SessionOptions struct {
	DeviceInfo *string
	IPAddress  *string
	UserAgent  *string
	ExpiresIn  time.Duration
}

type UserView struct {
	ID          string   `json:"id"`
	Email       *string  `json:"email"`
	Phone       *string  `json:"phone"`
	FullName    string   `json:"full_name"`
	Picture     *string  `json:"picture"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type AuthResult struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         *UserView `json:"user"`
}

// SessionManager issues, validates and revokes the access/refresh pair of
// every authentication method. The store is the source of truth; the cache
// is a best-effort accelerator whose failures never fail an operation.
type SessionManager interface {
	Create(ctx context.Context, userID, loginMethod string, opts SessionOptions) (*AuthResult, error)
	// Validate returns the session context for a live access token, or
	// (nil, nil) when the token is unknown, inactive or expired.
	Validate(ctx context.Context, token string) (*SessionData, error)
	Refresh(ctx context.Context, refreshToken string, opts SessionOptions) (*AuthResult, error)
	Invalidate(ctx context.Context, token string) error
	InvalidateUser(ctx context.Context, userID string, typ domain.SessionType) error
	ListActive(ctx context.Context, userID string) ([]domain.Session, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

type sessionManager struct {
	cfg      *config.Config
	logger   pkglog.Logger
	users    repo.UserRepository
	sessions repo.SessionRepository
	cache    rediscache.Cache
	signer   TokenSigner
}

func NewSessionManager(cfg *config.Config, logger pkglog.Logger, users repo.UserRepository, sessions repo.SessionRepository, cache rediscache.Cache, signer TokenSigner) SessionManager {
	return &sessionManager{cfg: cfg, logger: logger, users: users, sessions: sessions, cache: cache, signer: signer}
}

func (m *sessionManager) Create(ctx context.Context, userID, loginMethod string, opts SessionOptions) (*AuthResult, error) {
	user, err := m.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorizedf("unauthorized", "invalid credentials")
		}
		return nil, apperr.Internal(err)
	}
	roles, permissions, err := m.users.Access(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	accessTTL := m.cfg.AccessTTL
	if opts.ExpiresIn > 0 {
		accessTTL = opts.ExpiresIn
	}
	refreshTTL := m.cfg.RefreshTTL

	claims := map[string]interface{}{
		"roles":        roles,
		"permissions":  permissions,
		"session_type": string(domain.SessionAccess),
		"login_method": loginMethod,
	}
	accessToken, err := m.signer.SignAccessToken(userID, claims, accessTTL)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	refreshToken, err := m.signer.SignRefreshToken(userID, refreshTTL)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := time.Now()
	access := &domain.Session{
		UserID:     userID,
		Token:      accessToken,
		Type:       domain.SessionAccess,
		DeviceInfo: opts.DeviceInfo,
		IPAddress:  opts.IPAddress,
		UserAgent:  opts.UserAgent,
		IsActive:   true,
		ExpiresAt:  now.Add(accessTTL),
	}
	refresh := &domain.Session{
		UserID:     userID,
		Token:      refreshToken,
		Type:       domain.SessionRefresh,
		DeviceInfo: opts.DeviceInfo,
		IPAddress:  opts.IPAddress,
		UserAgent:  opts.UserAgent,
		IsActive:   true,
		ExpiresAt:  now.Add(refreshTTL),
	}
	if err := m.sessions.CreatePair(ctx, access, refresh); err != nil {
		return nil, apperr.Internal(err)
	}

	m.cacheSession(ctx, access, &SessionData{
		UserID:      userID,
		SessionID:   access.ID,
		Roles:       roles,
		Permissions: permissions,
		DeviceInfo:  opts.DeviceInfo,
		IPAddress:   opts.IPAddress,
		UserAgent:   opts.UserAgent,
	}, accessTTL)
	m.cacheRefresh(ctx, refresh, refreshTTL)

	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(accessTTL.Seconds()),
		User: &UserView{
			ID:          user.ID,
			Email:       user.Email,
			Phone:       user.Phone,
			FullName:    user.FullName,
			Picture:     user.Picture,
			Roles:       roles,
			Permissions: permissions,
		},
	}, nil
}

func (m *sessionManager) Validate(ctx context.Context, token string) (*SessionData, error) {
	if cached, err := m.cache.Get(ctx, sessionKeyPrefix+token); err == nil {
		var data SessionData
		if err := json.Unmarshal([]byte(cached), &data); err == nil {
			return &data, nil
		}
	} else if !errors.Is(err, rediscache.ErrMiss) {
		m.logger.Warn().Err(err).Msg("session cache read failed")
	}

	session, err := m.sessions.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Internal(err)
	}
	if session.Type != domain.SessionAccess || !session.IsActive || time.Now().After(session.ExpiresAt) {
		return nil, nil
	}

	// Roles come from the current assignments, not from stale token claims.
	roles, permissions, err := m.users.Access(ctx, session.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	data := &SessionData{
		UserID:      session.UserID,
		SessionID:   session.ID,
		Roles:       roles,
		Permissions: permissions,
		DeviceInfo:  session.DeviceInfo,
		IPAddress:   session.IPAddress,
		UserAgent:   session.UserAgent,
	}
	m.cacheSession(ctx, session, data, time.Until(session.ExpiresAt))
	return data, nil
}

func (m *sessionManager) Refresh(ctx context.Context, refreshToken string, opts SessionOptions) (*AuthResult, error) {
	var userID string
	if cached, err := m.cache.Get(ctx, refreshKeyPrefix+refreshToken); err == nil {
		var data refreshData
		if err := json.Unmarshal([]byte(cached), &data); err == nil {
			userID = data.UserID
		}
	}
	if userID == "" {
		session, err := m.sessions.FindByToken(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.Unauthorizedf("invalid_refresh_token", "invalid or expired refresh token")
			}
			return nil, apperr.Internal(err)
		}
		if session.Type != domain.SessionRefresh || !session.IsActive || time.Now().After(session.ExpiresAt) {
			return nil, apperr.Unauthorizedf("invalid_refresh_token", "invalid or expired refresh token")
		}
		userID = session.UserID
	}

	// Single-use rotation: every prior access token dies with the refresh
	// that covered it, and the used refresh token is retired.
	if err := m.InvalidateUser(ctx, userID, domain.SessionAccess); err != nil {
		return nil, err
	}
	if err := m.Invalidate(ctx, refreshToken); err != nil {
		return nil, err
	}
	return m.Create(ctx, userID, "REFRESH_TOKEN", opts)
}

func (m *sessionManager) Invalidate(ctx context.Context, token string) error {
	if err := m.cache.Del(ctx, sessionKeyPrefix+token, refreshKeyPrefix+token); err != nil {
		m.logger.Warn().Err(err).Msg("session cache purge failed")
	}
	if err := m.sessions.Deactivate(ctx, token); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (m *sessionManager) InvalidateUser(ctx context.Context, userID string, typ domain.SessionType) error {
	sessions, err := m.sessions.ListActive(ctx, userID, typ)
	if err != nil {
		return apperr.Internal(err)
	}
	keys := make([]string, 0, len(sessions)*2)
	for _, s := range sessions {
		keys = append(keys, sessionKeyPrefix+s.Token, refreshKeyPrefix+s.Token)
	}
	if err := m.cache.Del(ctx, keys...); err != nil {
		m.logger.Warn().Err(err).Msg("session cache purge failed")
	}
	if err := m.sessions.DeactivateForUser(ctx, userID, typ); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (m *sessionManager) ListActive(ctx context.Context, userID string) ([]domain.Session, error) {
	sessions, err := m.sessions.ListActive(ctx, userID, "")
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return sessions, nil
}

func (m *sessionManager) CleanupExpired(ctx context.Context) (int64, error) {
	// Cache entries self-expire; only the store needs sweeping.
	n, err := m.sessions.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}

func (m *sessionManager) cacheSession(ctx context.Context, session *domain.Session, data *SessionData, ttl time.Duration) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, sessionKeyPrefix+session.Token, string(payload), ttl); err != nil {
		m.logger.Warn().Err(err).Str("user_id", data.UserID).Msg("session cache write failed")
	}
}

func (m *sessionManager) cacheRefresh(ctx context.Context, session *domain.Session, ttl time.Duration) {
	payload, err := json.Marshal(refreshData{UserID: session.UserID, SessionID: session.ID})
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, refreshKeyPrefix+session.Token, string(payload), ttl); err != nil {
		m.logger.Warn().Err(err).Str("user_id", session.UserID).Msg("refresh cache write failed")
	}
}
