package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"tanbih/internal/providers"
)

// Client talks to a self-hosted WhatsApp gateway instance (Evolution API
// style): one instance name per deployment, api key in a header.
type Client struct {
	BaseURL  string
	APIKey   string
	Instance string
	HTTP     *http.Client

	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker

	CallTimeout time.Duration
}

func (c *Client) Configured() bool {
	return c.BaseURL != "" && c.APIKey != "" && c.Instance != ""
}

type sendTextResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Send posts a text message for the configured instance. The gateway
// signals acceptance either with a key.id or a PENDING status.
func (c *Client) Send(ctx context.Context, number, text string) (string, error) {
	timeout := c.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return providers.Do(ctx, c.Limiter, c.Breaker, timeout, func(callCtx context.Context) (string, error) {
		return c.sendOnce(callCtx, number, text)
	})
}

func (c *Client) sendOnce(ctx context.Context, number, text string) (string, error) {
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/message/sendText/" + c.Instance

	payload, _ := json.Marshal(map[string]string{
		"number": JID(number),
		"text":   text,
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("apikey", c.APIKey)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", &providers.CallError{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	var out sendTextResponse
	_ = json.Unmarshal(b, &out)

	accepted := resp.StatusCode >= 200 && resp.StatusCode < 300 &&
		(out.Key.ID != "" || strings.EqualFold(out.Status, "PENDING"))
	if !accepted {
		msg := out.Message
		if msg == "" {
			msg = "whatsapp send failed"
		}
		return "", &providers.CallError{Err: errors.New(msg), HTTPStatus: resp.StatusCode, Raw: b}
	}
	return out.Key.ID, nil
}
