package tasks

import (
	"context"
)

// Supervisor starts and stops a fixed set of tasks together.
type Supervisor struct {
	parent context.Context
	tasks  []*Task
}

// NewSupervisor binds tasks to parent; every Start derives from it.
func NewSupervisor(parent context.Context, tasks ...*Task) *Supervisor {
	return &Supervisor{parent: parent, tasks: tasks}
}

// Start starts every idle task and returns the names of those started.
func (s *Supervisor) Start() []string {
	started := []string{}
	for _, t := range s.tasks {
		if t.Start(s.parent) {
			started = append(started, t.Name())
		}
	}
	return started
}

// Stop signals every running task and returns the names of those signalled.
func (s *Supervisor) Stop() []string {
	stopped := []string{}
	for _, t := range s.tasks {
		if t.Stop() {
			stopped = append(stopped, t.Name())
		}
	}
	return stopped
}

// Wait blocks until every task has returned or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	for _, t := range s.tasks {
		if err := t.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) Status() []Status {
	out := make([]Status, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Status()
	}
	return out
}
