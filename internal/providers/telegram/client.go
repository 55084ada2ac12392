package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"tanbih/internal/providers"
)

type Client struct {
	BotToken string
	HTTP     *http.Client
	BaseURL  string

	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker

	// CallTimeout bounds one sendMessage attempt (default 10s).
	CallTimeout time.Duration
}

func (c *Client) Configured() bool { return c.BotToken != "" }

type sendMessageResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Description string `json:"description"`
}

// Send posts a sendMessage call to the Bot API. Success is the ok:true
// envelope; the returned id is the Telegram message_id.
func (c *Client) Send(ctx context.Context, chatID, text string) (string, error) {
	timeout := c.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return providers.Do(ctx, c.Limiter, c.Breaker, timeout, func(callCtx context.Context) (string, error) {
		return c.sendOnce(callCtx, chatID, text)
	})
}

func (c *Client) sendOnce(ctx context.Context, chatID, text string) (string, error) {
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	endpoint := baseURL + "/bot" + c.BotToken + "/sendMessage"

	payload, _ := json.Marshal(map[string]string{
		"chat_id": chatID,
		"text":    text,
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", &providers.CallError{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	var out sendMessageResponse
	_ = json.Unmarshal(b, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.OK {
		msg := out.Description
		if msg == "" {
			msg = "telegram send failed"
		}
		return "", &providers.CallError{Err: errors.New(msg), HTTPStatus: resp.StatusCode, Raw: b}
	}
	return strconv.FormatInt(out.Result.MessageID, 10), nil
}
