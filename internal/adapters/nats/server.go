package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/npsg02/auth-service/internal/usecase"
)

// ValidateHandler answers session validation requests from sibling
// services over NATS request/reply.
type ValidateHandler struct {
	sessions  usecase.SessionManager
	timeout   time.Duration
	respondFn func(msg *nats.Msg, resp validateResponse)
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid       bool     `json:"valid"`
	UserID      string   `json:"user_id,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func NewValidateHandler(sessions usecase.SessionManager) *ValidateHandler {
	return &ValidateHandler{sessions: sessions, timeout: 3 * time.Second, respondFn: respond}
}

func (h *ValidateHandler) Subscribe(conn *nats.Conn, subject, queue string) error {
	if conn == nil {
		return errors.New("nats connection is nil")
	}
	_, err := conn.QueueSubscribe(subject, queue, h.handle)
	return err
}

func (h *ValidateHandler) handle(msg *nats.Msg) {
	var req validateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.respondFn(msg, validateResponse{Valid: false, Error: "invalid_payload"})
		return
	}
	if req.Token == "" {
		h.respondFn(msg, validateResponse{Valid: false, Error: "token_required"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	data, err := h.sessions.Validate(ctx, req.Token)
	if err != nil {
		h.respondFn(msg, validateResponse{Valid: false, Error: "validation_failed"})
		return
	}
	if data == nil {
		h.respondFn(msg, validateResponse{Valid: false, Error: "invalid_session"})
		return
	}
	h.respondFn(msg, validateResponse{
		Valid:       true,
		UserID:      data.UserID,
		SessionID:   data.SessionID,
		Roles:       data.Roles,
		Permissions: data.Permissions,
	})
}

func respond(msg *nats.Msg, resp validateResponse) {
	data, _ := json.Marshal(resp)
	_ = msg.Respond(data)
}
