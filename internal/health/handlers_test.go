package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maxnotes/storefront/internal/health"
)

type stubChecker struct {
	redisErr error
}

func (s stubChecker) PingRedis(_ context.Context, _ time.Duration) error {
	return s.redisErr
}

func TestLive(t *testing.T) {
	handler := health.Handler{}
	rr := httptest.NewRecorder()
	handler.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestReadySuccess(t *testing.T) {
	handler := health.Handler{
		Checker:      stubChecker{},
		RedisTimeout: 50 * time.Millisecond,
		Probes: map[string]health.Probe{
			"catalog": func(context.Context) error { return nil },
		},
	}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var status map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status["redis"] != "ok" || status["catalog"] != "ok" {
		t.Fatalf("unexpected status %#v", status)
	}
}

func TestReadyFailure(t *testing.T) {
	cases := map[string]health.Handler{
		"redis down": {Checker: stubChecker{redisErr: errors.New("redis down")}, RedisTimeout: 10 * time.Millisecond},
		"probe down": {
			Checker: stubChecker{},
			Probes: map[string]health.Probe{
				"catalog": func(context.Context) error { return errors.New("catalog unreadable") },
			},
		},
		"no checker": {},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rr.Code != http.StatusServiceUnavailable {
				t.Fatalf("expected 503 got %d", rr.Code)
			}
		})
	}
}
