package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client dispatches OTP codes over the notification gateway. Delivery is
// best-effort: callers log failures and never fail the surrounding operation.
type Client interface {
	SendOtpEmail(ctx context.Context, email, code string, purpose string) error
	SendOtpSMS(ctx context.Context, phone, code string, purpose string) error
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) Client {
	return &httpClient{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (c *httpClient) SendOtpEmail(ctx context.Context, email, code, purpose string) error {
	payload := map[string]interface{}{"to": email, "channel": "email", "code": code, "purpose": purpose}
	return c.post(ctx, "/api/v1/notifications/otp", payload, nil)
}

func (c *httpClient) SendOtpSMS(ctx context.Context, phone, code, purpose string) error {
	payload := map[string]interface{}{"to": phone, "channel": "sms", "code": code, "purpose": purpose}
	return c.post(ctx, "/api/v1/notifications/otp", payload, nil)
}

func (c *httpClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	op := func() error {
		body, err := json.Marshal(payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", c.baseURL, path), bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		res, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode >= 400 {
			return fmt.Errorf("notifier error: %d", res.StatusCode)
		}
		if out != nil {
			if err := json.NewDecoder(res.Body).Decode(out); err != nil {
				return backoff.Permanent(err)
			}
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 3 * time.Second
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

// Noop is used when no notifier endpoint is configured; codes are still
// persisted and verifiable, delivery is skipped.
type Noop struct{}

func (Noop) SendOtpEmail(context.Context, string, string, string) error { return nil }
func (Noop) SendOtpSMS(context.Context, string, string, string) error   { return nil }
