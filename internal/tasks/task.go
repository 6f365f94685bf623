// Package tasks supervises the long-running ingestion loops.
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State of a Task. Transitions are Idle -> Running -> Stopping -> Idle.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// RunFunc is the body of a task. It must return once ctx is done.
type RunFunc func(ctx context.Context) error

// Task runs one RunFunc in the background with idempotent Start and Stop.
type Task struct {
	name   string
	run    RunFunc
	logger *logrus.Logger

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	lastErr   error
	pending   context.Context // parent of a restart queued while stopping
}

func NewTask(name string, run RunFunc, logger *logrus.Logger) *Task {
	if logger == nil {
		logger = logrus.New()
	}
	return &Task{name: name, run: run, logger: logger, state: StateIdle}
}

func (t *Task) Name() string { return t.name }

// Start launches the task under parent. It reports false, and does
// nothing, when the task is already running. A Start while the task is
// still stopping is queued and runs once the current run has returned.
func (t *Task) Start(parent context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateRunning:
		t.logger.WithFields(logrus.Fields{"task": t.name, "state": t.state}).Info("task already started")
		return false
	case StateStopping:
		if t.pending != nil {
			t.logger.WithField("task", t.name).Info("task restart already queued")
			return false
		}
		t.pending = parent
		t.logger.WithField("task", t.name).Info("task is stopping, restart queued")
		return true
	}

	t.launch(parent)
	return true
}

// launch starts a run under parent. t.mu must be held.
func (t *Task) launch(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	t.state = StateRunning
	t.cancel = cancel
	t.done = done
	t.startedAt = time.Now().UTC()
	t.lastErr = nil

	go func() {
		err := t.run(ctx)
		cancel()

		t.mu.Lock()
		defer close(done)
		defer t.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			t.lastErr = err
			t.logger.WithField("task", t.name).WithError(err).Error("task exited")
		} else {
			t.logger.WithField("task", t.name).Info("task stopped")
		}
		t.state = StateIdle
		t.cancel = nil

		if next := t.pending; next != nil {
			t.pending = nil
			t.launch(next)
		}
	}()

	t.logger.WithField("task", t.name).Info("task started")
}

// Stop signals the task to stop without waiting for it. It reports false
// when there was nothing to stop. Stopping a task with a queued restart
// drops the restart.
func (t *Task) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateStopping && t.pending != nil {
		t.pending = nil
		t.logger.WithField("task", t.name).Info("queued restart dropped")
		return true
	}
	if t.state != StateRunning || t.cancel == nil {
		t.logger.WithFields(logrus.Fields{"task": t.name, "state": t.state}).Debug("stop ignored")
		return false
	}
	t.state = StateStopping
	t.cancel()
	t.logger.WithField("task", t.name).Info("stopping task")
	return true
}

// Wait blocks until the current run has returned or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status is a snapshot of a task for reporting.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Status{Name: t.name, State: t.state}
	if t.state != StateIdle {
		s.StartedAt = t.startedAt
	}
	if t.lastErr != nil {
		s.LastError = t.lastErr.Error()
	}
	return s
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
