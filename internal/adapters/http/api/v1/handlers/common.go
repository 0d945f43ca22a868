package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/npsg02/auth-service/internal/apperr"
	"github.com/npsg02/auth-service/internal/usecase"
	res "github.com/npsg02/auth-service/pkg/http"
)

func fail(c echo.Context, err error) error {
	return res.ErrorJSON(c, statusOf(err), apperr.CodeOf(err), apperr.MessageOf(err), requestIDFromCtx(c), nil)
}

func badPayload(c echo.Context) error {
	return res.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", requestIDFromCtx(c), nil)
}

func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindBadRequest:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// sessionOptions captures the device context of the request for the session
// record.
func sessionOptions(c echo.Context) usecase.SessionOptions {
	opts := usecase.SessionOptions{}
	if ip := c.RealIP(); ip != "" {
		opts.IPAddress = &ip
	}
	if ua := c.Request().UserAgent(); ua != "" {
		opts.UserAgent = &ua
	}
	if device := c.Request().Header.Get("X-Device-Info"); device != "" {
		opts.DeviceInfo = &device
	}
	return opts
}

func userID(c echo.Context) string {
	id, _ := c.Get("user_id").(string)
	return id
}

func requestIDFromCtx(c echo.Context) string {
	if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}
