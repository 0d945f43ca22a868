package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/npsg02/auth-service/internal/adapters/http/middleware"
	"github.com/npsg02/auth-service/internal/usecase"
	res "github.com/npsg02/auth-service/pkg/http"
)

type AuthHandler struct {
	service  usecase.AuthService
	sessions usecase.SessionManager
}

func NewAuthHandler(service usecase.AuthService, sessions usecase.SessionManager) *AuthHandler {
	return &AuthHandler{service: service, sessions: sessions}
}

type registerRequest struct {
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type otpRequest struct {
	Identifier string `json:"identifier"`
}

type otpLoginRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

type verifyIdentifierRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type passwordResetStartRequest struct {
	Identifier string `json:"identifier"`
}

type passwordResetFinishRequest struct {
	Identifier  string `json:"identifier"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) Register(c echo.Context) error {
	req := new(registerRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	result, err := h.service.Register(c.Request().Context(), usecase.RegisterInput{
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusCreated, result)
}

func (h *AuthHandler) Login(c echo.Context) error {
	req := new(loginRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	result, err := h.service.Login(c.Request().Context(), req.Identifier, req.Password, sessionOptions(c))
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, result)
}

func (h *AuthHandler) RequestLoginOtp(c echo.Context) error {
	req := new(otpRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := h.service.RequestLoginOtp(c.Request().Context(), req.Identifier); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": "code sent"})
}

func (h *AuthHandler) LoginWithOtp(c echo.Context) error {
	req := new(otpLoginRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	result, err := h.service.LoginWithOtp(c.Request().Context(), req.Identifier, req.Code, sessionOptions(c))
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, result)
}

func (h *AuthHandler) VerifyIdentifier(c echo.Context) error {
	req := new(verifyIdentifierRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := h.service.VerifyIdentifier(c.Request().Context(), req.Identifier, req.Code); err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, map[string]string{"status": "verified"})
}

func (h *AuthHandler) ResendVerification(c echo.Context) error {
	req := new(otpRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := h.service.ResendVerification(c.Request().Context(), req.Identifier); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": "code sent"})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	req := new(refreshRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	result, err := h.sessions.Refresh(c.Request().Context(), req.RefreshToken, sessionOptions(c))
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, result)
}

func (h *AuthHandler) PasswordResetStart(c echo.Context) error {
	req := new(passwordResetStartRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := h.service.StartPasswordReset(c.Request().Context(), req.Identifier); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": "if the account exists, a code was sent"})
}

func (h *AuthHandler) PasswordResetFinish(c echo.Context) error {
	req := new(passwordResetFinishRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := h.service.FinishPasswordReset(c.Request().Context(), req.Identifier, req.Code, req.NewPassword); err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	req := new(changePasswordRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := h.service.ChangePassword(c.Request().Context(), userID(c), req.CurrentPassword, req.NewPassword); err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) GetMe(c echo.Context) error {
	me, err := h.service.GetMe(c.Request().Context(), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, me)
}

func (h *AuthHandler) Logout(c echo.Context) error {
	req := new(logoutRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	token, _ := c.Get("access_token").(string)
	if token == "" {
		token = middleware.BearerToken(c)
	}
	if err := h.service.Logout(c.Request().Context(), token, req.RefreshToken); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) LogoutAll(c echo.Context) error {
	if err := h.service.LogoutAll(c.Request().Context(), userID(c)); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) ListSessions(c echo.Context) error {
	sessions, err := h.service.ListSessions(c.Request().Context(), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, sessions)
}
