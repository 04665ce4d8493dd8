// Package supervisor manages the external LLM backend child process:
// spawning it, polling its health endpoint, and restarting it with
// exponential backoff when it stops answering, per the supervision
// contract the dialog engine depends on through the HealthGate
// interface.
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"voxd-server/internal/domain/eventbus"
	platformerrors "voxd-server/internal/platform/errors"
	"voxd-server/internal/platform/logging"
)

// State is the backend process's health state machine.
type State int

const (
	StateStarting State = iota
	StateHealthy
	StateUnhealthy
	StateRestarting
	StateDead
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	case StateRestarting:
		return "restarting"
	case StateDead:
		return "dead"
	default:
		return "starting"
	}
}

// Config tunes the supervised child process.
type Config struct {
	ExePath          string
	Args             []string
	WorkDir          string
	HealthURL        string
	StartupTimeout   time.Duration
	HealthInterval   time.Duration
	HealthTimeout    time.Duration
	FailureThreshold int
	MaxRestarts      int
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
}

// Supervisor owns the single, process-global backend child process.
// Its state is read-mostly and guarded by a mutex; the health loop runs
// on its own goroutine and is the state's sole writer besides Start.
type Supervisor struct {
	cfg    Config
	logger *logging.Logger
	client *http.Client

	mu           sync.Mutex
	state        State
	cmd          *exec.Cmd
	restartCount int
	failures     int
	wake         chan struct{}

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a supervisor. Call Start to spawn the child process.
func New(cfg Config, logger *logging.Logger) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.HealthTimeout},
		wake:   make(chan struct{}),
		stopCh: make(chan struct{}),
	}
}

// Start spawns the child process and blocks until its health endpoint
// answers or startupTimeout elapses, then launches the background
// health loop. A startup timeout kills the process and returns a
// KindBackendUnavailable error; the caller (main) is expected to treat
// this as a fatal startup condition.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.spawn(); err != nil {
		return err
	}

	deadline := time.Now().Add(s.cfg.StartupTimeout)
	for time.Now().Before(deadline) {
		probeCtx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
		err := s.probe(probeCtx)
		cancel()
		if err == nil {
			s.setState(StateHealthy)
			s.doneCh = make(chan struct{})
			go s.healthLoop()
			return nil
		}
		time.Sleep(time.Second)
	}

	s.killProcess()
	s.setState(StateDead)
	return platformerrors.New(platformerrors.KindBackendUnavailable, "supervisor.start", "backend did not become healthy within startup timeout")
}

func (s *Supervisor) spawn() error {
	cmd := exec.Command(s.cfg.ExePath, s.cfg.Args...)
	cmd.Dir = s.cfg.WorkDir
	if err := cmd.Start(); err != nil {
		return platformerrors.Wrap(platformerrors.KindFatal, "supervisor.spawn", "failed to launch backend process", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("backend process started", "exe", s.cfg.ExePath, "pid", cmd.Process.Pid)
	}
	return nil
}

func (s *Supervisor) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.HealthURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Supervisor) healthLoop() {
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HealthTimeout)
			err := s.probe(ctx)
			cancel()

			if err == nil {
				s.mu.Lock()
				s.failures = 0
				s.mu.Unlock()
				s.setState(StateHealthy)
				continue
			}

			s.mu.Lock()
			s.failures++
			failures := s.failures
			s.mu.Unlock()

			if s.logger != nil {
				s.logger.Warn("backend health probe failed", "consecutive_failures", failures, "error", err)
			}

			if failures >= s.cfg.FailureThreshold {
				s.setState(StateUnhealthy)
				if s.restart() {
					return
				}
			}
		}
	}
}

// restart performs one restart attempt, returning true if the backend
// was declared permanently dead (the health loop should exit).
func (s *Supervisor) restart() bool {
	s.setState(StateRestarting)

	s.mu.Lock()
	s.restartCount++
	attempt := s.restartCount
	s.mu.Unlock()

	if attempt > s.cfg.MaxRestarts {
		s.killProcess()
		s.setState(StateDead)
		if s.logger != nil {
			s.logger.Error("backend permanently dead after exhausting restarts", "restart_count", attempt-1)
		}
		return true
	}

	backoff := s.backoffFor(attempt)
	if s.logger != nil {
		s.logger.Warn("restarting backend process", "attempt", attempt, "backoff", backoff)
	}
	time.Sleep(backoff)

	s.killProcess()
	if err := s.spawn(); err != nil {
		if s.logger != nil {
			s.logger.Error("backend respawn failed", "error", err)
		}
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StartupTimeout)
	defer cancel()
	deadline := time.Now().Add(s.cfg.StartupTimeout)
	for time.Now().Before(deadline) {
		probeCtx, pcancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
		err := s.probe(probeCtx)
		pcancel()
		if err == nil {
			s.mu.Lock()
			s.failures = 0
			s.mu.Unlock()
			s.setState(StateHealthy)
			return false
		}
		time.Sleep(time.Second)
	}

	return false
}

func (s *Supervisor) backoffFor(attempt int) time.Duration {
	d := s.cfg.BackoffInitial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.cfg.BackoffMax {
			return s.cfg.BackoffMax
		}
	}
	if d > s.cfg.BackoffMax {
		return s.cfg.BackoffMax
	}
	return d
}

func (s *Supervisor) killProcess() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
	}
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	restarts := s.restartCount
	old := s.wake
	s.wake = make(chan struct{})
	s.mu.Unlock()
	close(old)

	if topic, ok := backendEventTopic(state); ok {
		eventbus.PublishAsync(topic, eventbus.BackendEventData{RestartCount: restarts, Message: state.String()})
	}
}

func backendEventTopic(state State) (string, bool) {
	switch state {
	case StateHealthy:
		return eventbus.EventBackendHealthy, true
	case StateUnhealthy:
		return eventbus.EventBackendUnhealthy, true
	case StateRestarting:
		return eventbus.EventBackendRestarted, true
	case StateDead:
		return eventbus.EventBackendDead, true
	default:
		return "", false
	}
}

// Healthy reports whether the backend is currently safe to call.
func (s *Supervisor) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateHealthy
}

// State exposes the current health state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WaitHealthy blocks until the backend becomes healthy, the context is
// canceled, or the backend is declared permanently dead. It implements
// dialog.HealthGate.
func (s *Supervisor) WaitHealthy(ctx context.Context) error {
	for {
		s.mu.Lock()
		state := s.state
		wake := s.wake
		s.mu.Unlock()

		switch state {
		case StateHealthy:
			return nil
		case StateDead:
			return platformerrors.New(platformerrors.KindBackendUnavailable, "supervisor.wait_healthy", "backend is permanently dead")
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats samples CPU and memory usage of the child process.
func (s *Supervisor) Stats() (cpuPercent float64, rssBytes uint64, err error) {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return 0, 0, fmt.Errorf("backend process not running")
	}

	proc, err := process.NewProcess(int32(cmd.Process.Pid))
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err = proc.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	return cpuPercent, memInfo.RSS, nil
}

// Shutdown terminates the child process and stops the health loop.
func (s *Supervisor) Shutdown() {
	close(s.stopCh)
	s.mu.Lock()
	done := s.doneCh
	s.mu.Unlock()
	if done != nil {
		<-done
	}
	s.killProcess()
}
