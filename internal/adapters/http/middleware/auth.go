package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/npsg02/auth-service/internal/principal"
	"github.com/npsg02/auth-service/internal/usecase"
	res "github.com/npsg02/auth-service/pkg/http"
)

// AuthMiddleware resolves the bearer token to a live session. Revoked and
// expired sessions are rejected here regardless of the token's own expiry.
type AuthMiddleware struct {
	sessions usecase.SessionManager
}

func NewAuthMiddleware(sessions usecase.SessionManager) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

func (m *AuthMiddleware) Handler(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := BearerToken(c)
		if token == "" {
			return res.ErrorJSON(c, http.StatusUnauthorized, "unauthorized", "missing token", requestIDFromCtx(c), nil)
		}
		data, err := m.sessions.Validate(c.Request().Context(), token)
		if err != nil {
			return res.ErrorJSON(c, http.StatusInternalServerError, "internal_error", "internal error", requestIDFromCtx(c), nil)
		}
		if data == nil {
			return res.ErrorJSON(c, http.StatusUnauthorized, "unauthorized", "invalid or expired session", requestIDFromCtx(c), nil)
		}

		p := &principal.Principal{
			UserID:      data.UserID,
			SessionID:   data.SessionID,
			Roles:       data.Roles,
			Permissions: data.Permissions,
		}
		c.Set("user_id", p.UserID)
		c.Set("access_token", token)
		c.SetRequest(c.Request().WithContext(principal.NewContext(c.Request().Context(), p)))
		return next(c)
	}
}

// BearerToken extracts the token from the Authorization header, empty when
// absent or malformed.
func BearerToken(c echo.Context) string {
	authz := c.Request().Header.Get(echo.HeaderAuthorization)
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func requestIDFromCtx(c echo.Context) string {
	if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
