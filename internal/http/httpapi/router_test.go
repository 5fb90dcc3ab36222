package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/text/language"

	"comfyremote/internal/generation"
	"comfyremote/internal/history"
	"comfyremote/internal/http/handlers"
	"comfyremote/internal/workflow"
	"comfyremote/pkg/zip"
)

type stubGenerations struct {
	statuses *generation.StatusStore
}

func (s stubGenerations) Start(ctx context.Context, req workflow.Request, locale language.Tag) (generation.Job, error) {
	s.statuses.Begin("job-1", locale)
	return generation.Job{ID: "job-1"}, nil
}

func (s stubGenerations) Artifacts(ctx context.Context, jobID string) ([]zip.Asset, error) {
	return nil, generation.ErrUnknownJob
}

func (s stubGenerations) Statuses() *generation.StatusStore { return s.statuses }

func newRouter(limit int) http.Handler {
	app := handlers.NewApp(stubGenerations{statuses: generation.NewStatusStore(0)}, history.NewMemoryStore(0), nil, nil)
	return NewRouter(app, Options{
		AllowedOrigins:   []string{"*"},
		SubmitsPerMinute: limit,
		DefaultLocale:    language.English,
	})
}

func TestRouterHealthCarriesRequestID(t *testing.T) {
	h := newRouter(0)
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "abc" {
		t.Fatalf("request id = %q", got)
	}
	if got := rec.Header().Get("Content-Language"); got != "en" {
		t.Fatalf("content language = %q", got)
	}
}

func TestRouterRateLimitsSubmissions(t *testing.T) {
	h := newRouter(1)
	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/v1/generations", strings.NewReader(`{"prompt":"x"}`))
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := post(); code != http.StatusAccepted {
		t.Fatalf("first submit = %d", code)
	}
	if code := post(); code != http.StatusTooManyRequests {
		t.Fatalf("second submit = %d", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/generations/job-1", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status reads must not be limited, got %d", rec.Code)
	}
}

func TestRouterUnknownJobZip(t *testing.T) {
	h := newRouter(0)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/generations/nope/zip", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
