package health

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOverallStatusHealthyWithNoComponents(t *testing.T) {
	c := NewChecker()
	if got := c.OverallStatus(); got != StatusHealthy {
		t.Errorf("expected healthy with no components, got %v", got)
	}
}

func TestOverallStatusCriticalUnhealthyWins(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("store", true, func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy}
	})
	c.RegisterFunc("registry", false, func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	c.Check(context.Background())

	if got := c.OverallStatus(); got != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %v", got)
	}
}

func TestOverallStatusNonCriticalDegrades(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("registry", false, func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy}
	})
	c.Check(context.Background())

	if got := c.OverallStatus(); got != StatusDegraded {
		t.Errorf("expected degraded, got %v", got)
	}
}

func TestCheckRecoversFromPanic(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("panicky", true, func(ctx context.Context) CheckResult {
		panic("boom")
	})

	results := c.Check(context.Background())
	result, ok := results["panicky"]
	if !ok {
		t.Fatal("expected a result for panicky component")
	}
	if result.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy after panic, got %v", result.Status)
	}
}

func TestCheckHonoursTimeout(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:     "slow",
		Critical: true,
		Timeout:  10 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			time.Sleep(50 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})

	results := c.Check(context.Background())
	if results["slow"].Status != StatusUnhealthy {
		t.Errorf("expected timeout to report unhealthy, got %v", results["slow"].Status)
	}
}

func TestDatabaseCheck(t *testing.T) {
	ok := DatabaseCheck(func(ctx context.Context) error { return nil })
	if got := ok(context.Background()).Status; got != StatusHealthy {
		t.Errorf("expected healthy, got %v", got)
	}

	fail := DatabaseCheck(func(ctx context.Context) error { return errors.New("no connection") })
	if got := fail(context.Background()).Status; got != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %v", got)
	}
}

func TestHandlerReportsReadyState(t *testing.T) {
	c := NewChecker()
	c.SetReady(true)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ready":true`) {
		t.Errorf("expected ready=true in body, got %q", w.Body.String())
	}
}

func TestHandlerFullRunsChecks(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("store", true, func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy, Message: "ok"}
	})

	req := httptest.NewRequest("GET", "/healthz?full=true", nil)
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "store") {
		t.Errorf("expected component result in body, got %q", w.Body.String())
	}
}

func TestHandlerUnhealthyReturns503(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("store", true, func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy}
	})
	c.Check(context.Background())

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, req)

	if w.Code != 503 {
		t.Errorf("expected 503, got %d", w.Code)
	}
}
