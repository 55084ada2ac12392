package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tanbih/internal/dispatch"
	"tanbih/internal/domain"
	"tanbih/internal/store"
)

type fakeDispatcher struct {
	runOpts     *dispatch.RunOptions
	runErr      error
	unifiedReq  *domain.UnifiedRequest
	unifiedResp domain.UnifiedResponse
}

func (f *fakeDispatcher) Run(_ context.Context, _ time.Time, opts dispatch.RunOptions) (dispatch.Summary, error) {
	f.runOpts = &opts
	if f.runErr != nil {
		return dispatch.Summary{RunID: "run-1", Status: domain.RunFailed}, f.runErr
	}
	return dispatch.Summary{
		RunID:      "run-1",
		Status:     domain.RunCompleted,
		DurationMS: 42,
		Results:    domain.RunResults{Processed: 3, Sent: map[string]int{"telegram": 3}},
	}, nil
}

func (f *fakeDispatcher) SendUnified(_ context.Context, req domain.UnifiedRequest, _ time.Time) (domain.UnifiedResponse, error) {
	f.unifiedReq = &req
	if err := req.Validate(); err != nil {
		return domain.UnifiedResponse{}, err
	}
	return f.unifiedResp, nil
}

type fakeRunStore struct{}

func (fakeRunStore) ListRuns(context.Context, int) ([]store.AutomationRun, error) {
	return []store.AutomationRun{{ID: "run-1", Status: "completed"}}, nil
}

func (fakeRunStore) GetRun(_ context.Context, id string) (store.AutomationRun, bool, error) {
	if id == "run-1" {
		return store.AutomationRun{ID: "run-1", Status: "completed"}, true, nil
	}
	return store.AutomationRun{}, false, nil
}

func testRouter(d Dispatcher) http.Handler {
	s := New()
	api := &API{Dispatcher: d, Runs: fakeRunStore{}, Now: time.Now}
	api.Register(s.Mux)
	return SharedSecret("s3cret")(s.Mux)
}

func TestAutomatedRemindersOK(t *testing.T) {
	d := &fakeDispatcher{}
	h := testRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/automated-reminders", strings.NewReader(`{"triggered_by":"cron","source":"scheduler"}`))
	req.Header.Set("X-Internal-Secret", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "run-1", body["run_id"])
	require.NotNil(t, d.runOpts)
	assert.Equal(t, "cron", d.runOpts.TriggeredBy)
}

func TestAutomatedRemindersEmptyBody(t *testing.T) {
	d := &fakeDispatcher{}
	h := testRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/automated-reminders", nil)
	req.Header.Set("X-Internal-Secret", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, d.runOpts)
	assert.Equal(t, "manual", d.runOpts.TriggeredBy)
}

func TestAutomatedRemindersFatal(t *testing.T) {
	d := &fakeDispatcher{runErr: errors.New("item scan failed")}
	h := testRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/automated-reminders", nil)
	req.Header.Set("X-Internal-Secret", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "item scan failed", body["error"])
}

func TestSharedSecretMismatch(t *testing.T) {
	h := testRouter(&fakeDispatcher{})

	req := httptest.NewRequest(http.MethodPost, "/automated-reminders", nil)
	req.Header.Set("X-Internal-Secret", "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnifiedNoChannelsRejected(t *testing.T) {
	h := testRouter(&fakeDispatcher{})

	req := httptest.NewRequest(http.MethodPost, "/unified-notification",
		strings.NewReader(`{"type":"alert","channels":[],"recipient":{"name":"Ali"}}`))
	req.Header.Set("X-Internal-Secret", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnifiedOK(t *testing.T) {
	d := &fakeDispatcher{unifiedResp: domain.UnifiedResponse{
		Success: true,
		Results: []domain.ChannelResult{{Channel: domain.ChannelTelegram, Status: domain.StatusSent}},
		Summary: domain.UnifiedSummary{Total: 1, Success: 1},
	}}
	h := testRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/unified-notification",
		strings.NewReader(`{"type":"alert","channels":["telegram"],"recipient":{"name":"Ali","telegram_id":"100"},"data":{"message":"hi"}}`))
	req.Header.Set("X-Internal-Secret", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.UnifiedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Summary.Total)
}

func TestGetRunNotFound(t *testing.T) {
	h := testRouter(&fakeDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/automation-runs/run-404", nil)
	req.Header.Set("X-Internal-Secret", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
