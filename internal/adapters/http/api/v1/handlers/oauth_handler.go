package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/npsg02/auth-service/internal/usecase"
	res "github.com/npsg02/auth-service/pkg/http"
)

// OAuthHandler terminates federated logins. The authorization code exchange
// happens at the gateway; this service receives the asserted profile
// together with the state value it minted for the round trip.
type OAuthHandler struct {
	service usecase.OAuthService
}

func NewOAuthHandler(service usecase.OAuthService) *OAuthHandler {
	return &OAuthHandler{service: service}
}

type oauthCallbackRequest struct {
	State      string  `json:"state"`
	ProviderID string  `json:"provider_id"`
	Email      string  `json:"email"`
	FullName   string  `json:"full_name"`
	Phone      *string `json:"phone"`
	Picture    *string `json:"picture"`
}

type oauthLinkRequest struct {
	ProviderID string  `json:"provider_id"`
	Email      string  `json:"email"`
	FullName   string  `json:"full_name"`
	Phone      *string `json:"phone"`
	Picture    *string `json:"picture"`
}

func (h *OAuthHandler) State(c echo.Context) error {
	state, err := h.service.GenerateState()
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, map[string]string{"state": state})
}

func (h *OAuthHandler) Callback(c echo.Context) error {
	req := new(oauthCallbackRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if !h.service.VerifyState(req.State) {
		return res.ErrorJSON(c, http.StatusBadRequest, "invalid_state", "state is invalid or expired", requestIDFromCtx(c), nil)
	}
	result, err := h.service.HandleLogin(c.Request().Context(), usecase.OAuthUserData{
		Provider:   c.Param("provider"),
		ProviderID: req.ProviderID,
		Email:      req.Email,
		FullName:   req.FullName,
		Phone:      req.Phone,
		Picture:    req.Picture,
	}, sessionOptions(c))
	if err != nil {
		return fail(c, err)
	}
	status := http.StatusOK
	if result.IsNewUser {
		status = http.StatusCreated
	}
	return res.JSON(c, status, result)
}

func (h *OAuthHandler) Link(c echo.Context) error {
	req := new(oauthLinkRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	err := h.service.Link(c.Request().Context(), userID(c), usecase.OAuthUserData{
		Provider:   c.Param("provider"),
		ProviderID: req.ProviderID,
		Email:      req.Email,
		FullName:   req.FullName,
		Phone:      req.Phone,
		Picture:    req.Picture,
	})
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, map[string]string{"status": "linked"})
}

func (h *OAuthHandler) Unlink(c echo.Context) error {
	if err := h.service.Unlink(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *OAuthHandler) List(c echo.Context) error {
	links, err := h.service.List(c.Request().Context(), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, links)
}
