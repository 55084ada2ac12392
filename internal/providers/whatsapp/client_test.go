package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(srv *httptest.Server) *Client {
	return &Client{
		BaseURL:     srv.URL,
		APIKey:      "key-1",
		Instance:    "main",
		HTTP:        srv.Client(),
		CallTimeout: time.Second,
	}
}

func TestSendAcceptedByKeyID(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("apikey")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"key":    map[string]any{"id": "WA-77"},
			"status": "PENDING",
		})
	}))
	defer srv.Close()

	id, err := testClient(srv).Send(context.Background(), "0501234567", "تذكير")
	require.NoError(t, err)
	assert.Equal(t, "WA-77", id)
	assert.Equal(t, "/message/sendText/main", gotPath)
	assert.Equal(t, "key-1", gotAPIKey)
	assert.Equal(t, "966501234567@s.whatsapp.net", gotBody["number"])
}

func TestSendAcceptedByPendingStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "pending"})
	}))
	defer srv.Close()

	id, err := testClient(srv).Send(context.Background(), "0501234567", "hi")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestSendRejected(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "invalid api key"})
	}))
	defer srv.Close()

	_, err := testClient(srv).Send(context.Background(), "0501234567", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Equal(t, 1, calls, "auth failures must not be retried")
}
