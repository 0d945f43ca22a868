package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/npsg02/auth-service/internal/domain"
	"github.com/npsg02/auth-service/internal/usecase"
	res "github.com/npsg02/auth-service/pkg/http"
)

type WalletHandler struct {
	service usecase.WalletAuthService
}

func NewWalletHandler(service usecase.WalletAuthService) *WalletHandler {
	return &WalletHandler{service: service}
}

type walletLoginRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
	Nonce     string `json:"nonce"`
}

type walletRegisterRequest struct {
	walletLoginRequest
	FullName string  `json:"full_name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
}

type walletLinkRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
	Type      string `json:"type"`
}

func (h *WalletHandler) Nonce(c echo.Context) error {
	nonce, err := h.service.GenerateNonce(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, map[string]string{
		"nonce":   nonce,
		"message": h.service.GenerateSignMessage(nonce),
	})
}

func (h *WalletHandler) Login(c echo.Context) error {
	req := new(walletLoginRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	result, err := h.service.Login(c.Request().Context(), usecase.WalletLogin{
		Address:   req.Address,
		Signature: req.Signature,
		Message:   req.Message,
		Nonce:     req.Nonce,
	}, sessionOptions(c))
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, result)
}

func (h *WalletHandler) Register(c echo.Context) error {
	req := new(walletRegisterRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	result, err := h.service.Register(c.Request().Context(), usecase.WalletRegister{
		WalletLogin: usecase.WalletLogin{
			Address:   req.Address,
			Signature: req.Signature,
			Message:   req.Message,
			Nonce:     req.Nonce,
		},
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
	}, sessionOptions(c))
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusCreated, result)
}

func (h *WalletHandler) Link(c echo.Context) error {
	req := new(walletLinkRequest)
	if err := c.Bind(req); err != nil {
		return badPayload(c)
	}
	wallet, err := h.service.Link(c.Request().Context(), userID(c), usecase.WalletLink{
		Address:   req.Address,
		Signature: req.Signature,
		Message:   req.Message,
		Type:      domain.ChainType(req.Type),
	})
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, wallet)
}

func (h *WalletHandler) Unlink(c echo.Context) error {
	if err := h.service.Unlink(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *WalletHandler) SetPrimary(c echo.Context) error {
	if err := h.service.SetPrimary(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WalletHandler) List(c echo.Context) error {
	wallets, err := h.service.List(c.Request().Context(), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return res.JSON(c, http.StatusOK, wallets)
}
