package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
	"github.com/signalmesh/notify-relay-service/internal/domain/registry"
)

type fakeIngestor struct {
	seq     uint64
	err     error
	lastLen int
}

func (f *fakeIngestor) Enqueue(_ context.Context, _ uuid.UUID, payload []byte) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.lastLen = len(payload)
	f.seq++
	return f.seq, nil
}

type fakeTokens struct {
	token string
}

func (f *fakeTokens) Issue(uuid.UUID) (string, time.Duration) {
	return f.token, 30 * time.Second
}

func (f *fakeTokens) Consume(token string) (uuid.UUID, error) {
	if token != f.token {
		return uuid.Nil, fmt.Errorf("%w: unknown or expired token", model.ErrValidation)
	}
	return uuid.New(), nil
}

type fakeDeliverer struct {
	stats model.HubStats
}

func (f *fakeDeliverer) Subscribe(context.Context, uuid.UUID) (registry.Connector, error) {
	return nil, nil
}
func (f *fakeDeliverer) Unsubscribe(uuid.UUID, uuid.UUID) {}
func (f *fakeDeliverer) Stats() model.HubStats            { return f.stats }

func newTestAPI(ing *fakeIngestor) *API {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAPI(ing, &fakeTokens{token: "tok-1"}, &fakeDeliverer{stats: model.HubStats{Users: 3, Sessions: 5}}, logger)
}

func TestPostMessageAccepted(t *testing.T) {
	api := newTestAPI(&fakeIngestor{})

	body := fmt.Sprintf(`{"user_id":%q,"message":"hello"}`, uuid.New())
	rec := httptest.NewRecorder()
	api.PostMessage(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d, want 202", rec.Code)
	}
	var resp struct {
		Sequence uint64 `json:"sequence"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Sequence != 1 {
		t.Fatalf("sequence %d, want 1", resp.Sequence)
	}
}

func TestPostMessageBadRequests(t *testing.T) {
	cases := []struct {
		name string
		ing  *fakeIngestor
		body string
	}{
		{"malformed json", &fakeIngestor{}, `{"user_id": `},
		{"bad user id", &fakeIngestor{}, `{"user_id":"not-a-uuid","message":"x"}`},
		{"validation rejection", &fakeIngestor{err: fmt.Errorf("%w: empty message", model.ErrValidation)}, fmt.Sprintf(`{"user_id":%q,"message":""}`, uuid.New())},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestAPI(tc.ing)
			rec := httptest.NewRecorder()
			api.PostMessage(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(tc.body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d, want 400", rec.Code)
			}
		})
	}
}

func TestPostMessageInternalFailure(t *testing.T) {
	api := newTestAPI(&fakeIngestor{err: fmt.Errorf("sequencer stalled")})

	body := fmt.Sprintf(`{"user_id":%q,"message":"x"}`, uuid.New())
	rec := httptest.NewRecorder()
	api.PostMessage(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}
}

func TestPostToken(t *testing.T) {
	api := newTestAPI(&fakeIngestor{})

	body := fmt.Sprintf(`{"user_id":%q}`, uuid.New())
	rec := httptest.NewRecorder()
	api.PostToken(rec, httptest.NewRequest(http.MethodPost, "/v1/tokens", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in_ms"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token != "tok-1" {
		t.Fatalf("token %q", resp.Token)
	}
	if resp.ExpiresIn != 30000 {
		t.Fatalf("expires_in_ms %d", resp.ExpiresIn)
	}
}

func TestGetStats(t *testing.T) {
	api := newTestAPI(&fakeIngestor{})

	rec := httptest.NewRecorder()
	api.GetStats(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var stats model.HubStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Users != 3 || stats.Sessions != 5 {
		t.Fatalf("stats %+v", stats)
	}
}
