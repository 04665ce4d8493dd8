package supervisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(t *testing.T, healthURL string) Config {
	t.Helper()
	return Config{
		ExePath:          "/bin/sleep",
		Args:             []string{"30"},
		HealthURL:        healthURL,
		StartupTimeout:   3 * time.Second,
		HealthInterval:   50 * time.Millisecond,
		HealthTimeout:    500 * time.Millisecond,
		FailureThreshold: 2,
		MaxRestarts:      2,
		BackoffInitial:   10 * time.Millisecond,
		BackoffMax:       100 * time.Millisecond,
	}
}

func TestSupervisor_StartBecomesHealthyOnOKResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(testConfig(t, srv.URL), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer s.Shutdown()

	if !s.Healthy() {
		t.Fatal("expected supervisor to be healthy after successful probe")
	}

	if err := s.WaitHealthy(context.Background()); err != nil {
		t.Fatalf("WaitHealthy should return immediately when already healthy: %v", err)
	}
}

func TestSupervisor_StartTimesOutWhenBackendNeverAnswers(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1/health")
	cfg.StartupTimeout = 1500 * time.Millisecond
	s := New(cfg, nil)

	err := s.Start(context.Background())
	if err == nil {
		t.Fatal("expected startup timeout error")
	}
	if s.State() != StateDead {
		t.Fatalf("expected state dead after failed startup, got %v", s.State())
	}
}

func TestSupervisor_WaitHealthyRespectsContextCancellation(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1/health")
	cfg.StartupTimeout = time.Millisecond
	s := New(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.setState(StateStarting)
	err := s.WaitHealthy(ctx)
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}

func TestSupervisor_RestartsAfterConsecutiveFailuresThenRecovers(t *testing.T) {
	var failCount int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Start's probe succeeds; the next three fail, so the health loop
		// crosses FailureThreshold and the restart's first probe fails too.
		if n := atomic.AddInt32(&failCount, 1); n >= 2 && n <= 4 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	s := New(cfg, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	defer s.Shutdown()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.Healthy() && atomic.LoadInt32(&failCount) > 4 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("expected supervisor to recover to healthy after restart")
}

func TestSupervisor_BackoffForGrowsAndCaps(t *testing.T) {
	s := New(Config{BackoffInitial: 10 * time.Millisecond, BackoffMax: 100 * time.Millisecond}, nil)

	if got := s.backoffFor(1); got != 10*time.Millisecond {
		t.Fatalf("expected 10ms for attempt 1, got %v", got)
	}
	if got := s.backoffFor(2); got != 20*time.Millisecond {
		t.Fatalf("expected 20ms for attempt 2, got %v", got)
	}
	if got := s.backoffFor(10); got != 100*time.Millisecond {
		t.Fatalf("expected backoff capped at 100ms, got %v", got)
	}
}
