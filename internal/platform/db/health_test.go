package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakeChecker struct {
	err   error
	stats PoolStats
}

func (f *fakeChecker) Ping(context.Context) error { return f.err }

func (f *fakeChecker) Stats() *PoolStats {
	s := f.stats
	return &s
}

func TestPoolStats_JSONTags(t *testing.T) {
	b, err := json.Marshal(&PoolStats{TotalConns: 3, MaxConns: 20, Healthy: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"total_conns":3`, `"max_conns":20`, `"healthy":true`, `"acquire_duration"`,
		`"canceled_acquires"`, `"saturated":false`} {
		if !strings.Contains(string(b), key) {
			t.Errorf("expected %s in %s", key, b)
		}
	}
}

func TestCheckHandler(t *testing.T) {
	tests := []struct {
		name       string
		checker    *fakeChecker
		wantCode   int
		wantStatus string
	}{
		{"healthy", &fakeChecker{stats: PoolStats{TotalConns: 2, AcquiredConns: 1, MaxConns: 20, Healthy: true}},
			http.StatusOK, "healthy"},
		{"saturated pool", &fakeChecker{stats: PoolStats{TotalConns: 20, AcquiredConns: 20, MaxConns: 20, Saturated: true, Healthy: true}},
			http.StatusOK, "degraded"},
		{"ping fails", &fakeChecker{err: errors.New("connection refused"), stats: PoolStats{Healthy: true}},
			http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)

			if err := CheckHandler(tt.checker)(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var body struct {
				Status string    `json:"status"`
				Pool   PoolStats `json:"pool"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("expected status %q, got %q", tt.wantStatus, body.Status)
			}
			if tt.checker.err != nil && body.Pool.Healthy {
				t.Error("expected unhealthy pool on ping failure")
			}
		})
	}
}
