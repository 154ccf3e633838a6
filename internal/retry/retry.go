package retry

import (
	"context"
	"fmt"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // linear backoff: attempt * Delay
}

// State is the position of a Machine in the attempt cycle.
type State int

const (
	Attempting State = iota
	Succeeded
	Exhausted
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Machine tracks a bounded sequence of attempts:
//
//	Attempting(1) -> Succeeded
//	Attempting(n) -> Attempting(n+1)   after a failure, when n < MaxAttempts
//	Attempting(n) -> Exhausted         after a failure, when n == MaxAttempts
//
// It performs no waiting itself; Fail reports the delay the caller should
// sleep before the next attempt.
type Machine struct {
	cfg     RetryConfig
	state   State
	attempt int
	waits   int
}

// NewMachine starts in Attempting(1). A config with no attempts starts Exhausted.
func NewMachine(cfg RetryConfig) *Machine {
	m := &Machine{cfg: cfg, attempt: 1}
	if cfg.MaxAttempts <= 0 {
		m.state = Exhausted
		m.attempt = 0
	}
	return m
}

func (m *Machine) State() State { return m.state }

// Attempt is the 1-based number of the current (or last) attempt.
func (m *Machine) Attempt() int { return m.attempt }

// Waits counts the backoff waits handed out so far.
func (m *Machine) Waits() int { return m.waits }

func (m *Machine) Done() bool { return m.state != Attempting }

// Succeed moves an attempting machine to Succeeded.
func (m *Machine) Succeed() {
	if m.state == Attempting {
		m.state = Succeeded
	}
}

// Fail records a failed attempt. When another attempt is allowed it returns
// the delay to wait and true; otherwise the machine is Exhausted.
func (m *Machine) Fail() (time.Duration, bool) {
	if m.state != Attempting {
		return 0, false
	}
	if m.attempt >= m.cfg.MaxAttempts {
		m.state = Exhausted
		return 0, false
	}
	delay := m.cfg.Delay
	if m.cfg.Backoff {
		delay = time.Duration(m.attempt) * m.cfg.Delay
	}
	m.attempt++
	m.waits++
	return delay, true
}

// Abort ends the cycle without further attempts.
func (m *Machine) Abort() {
	if m.state == Attempting {
		m.state = Exhausted
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WithRetry runs fn until it succeeds or the attempts are used up.
func WithRetry(ctx context.Context, config RetryConfig, fn func() error) error {
	m := NewMachine(config)
	var lastErr error

	for !m.Done() {
		err := fn()
		if err == nil {
			m.Succeed()
			return nil
		}
		lastErr = err

		delay, again := m.Fail()
		if !again {
			break
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}

	if lastErr == nil {
		return fmt.Errorf("no attempts configured")
	}
	return fmt.Errorf("failed after %d attempts: %w", m.Attempt(), lastErr)
}
