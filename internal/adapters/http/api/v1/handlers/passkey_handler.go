package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/npsg02/auth-service/internal/usecase"
	res "github.com/npsg02/auth-service/pkg/http"
)

type PasskeyHandler struct {
	service usecase.PasskeyService
}

func NewPasskeyHandler(service usecase.PasskeyService) *PasskeyHandler {
	return &PasskeyHandler{service: service}
}

type passkeyFinishRegistrationRequest struct {
	DeviceName string          `json:"device_name"`
	Response   json.RawMessage `json:"response"`
}

type passkeyBeginLoginRequest struct {
	Identifier string `json:"identifier"`
}

type passkeyFinishLoginRequest struct {
	Response json.RawMessage `json:"response"`
}

type passkeyRenameRequest struct {
	DeviceName string `json:"device_name"`
}

func (h *PasskeyHandler) BeginRegistration(c echo.Context) error {
	options, err := h.service.GenerateRegistrationOptions(c.Request().Context(), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, options)
}

func (h *PasskeyHandler) FinishRegistration(c echo.Context) error {
	req := new(passkeyFinishRegistrationRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	credential, err := h.service.VerifyRegistration(c.Request().Context(), userID(c), req.DeviceName, req.Response)
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusCreated, credential)
}

func (h *PasskeyHandler) BeginLogin(c echo.Context) error {
	req := new(passkeyBeginLoginRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	options, err := h.service.GenerateAuthenticationOptions(c.Request().Context(), req.Identifier)
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, options)
}

func (h *PasskeyHandler) FinishLogin(c echo.Context) error {
	req := new(passkeyFinishLoginRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	result, err := h.service.VerifyAuthenticationAndLogin(c.Request().Context(), req.Response, sessionOptions(c))
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, result)
}

func (h *PasskeyHandler) List(c echo.Context) error {
	credentials, err := h.service.List(c.Request().Context(), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, credentials)
}

func (h *PasskeyHandler) Rename(c echo.Context) error {
	req := new(passkeyRenameRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	if err := h.service.UpdateName(c.Request().Context(), userID(c), c.Param("id"), req.DeviceName); err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PasskeyHandler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
