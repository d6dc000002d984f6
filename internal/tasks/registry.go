// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tasks runs research and report jobs in the background and keeps
// their status, progress and result for polling.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/internal/metrics"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// Task kinds; they prefix task ids.
const (
	KindQuery  = "query"
	KindReport = "report"
)

var (
	// ErrNotFound is returned for unknown or cancelled task ids.
	ErrNotFound = errors.New("task not found")
	// ErrNotReady is returned when a result is requested before completion.
	ErrNotReady = errors.New("task has not completed")
	// ErrFinished is returned when cancelling a task that already ended.
	ErrFinished = errors.New("task already finished")
)

// Worker does the job. It reports progress through p and returns the
// task result. ctx is cancelled when the task is cancelled.
type Worker func(ctx context.Context, p *Progress) (any, error)

// Registry tracks the jobs of one kind.
type Registry struct {
	kind string
	log  zerolog.Logger
	now  func() time.Time

	mu    sync.Mutex
	tasks map[string]*entry
	wg    sync.WaitGroup
}

type entry struct {
	snap   types.TaskSnapshot
	cancel context.CancelFunc
}

// New returns an empty registry for kind.
func New(kind string) *Registry {
	return &Registry{
		kind:  kind,
		log:   logx.With("tasks").With().Str("kind", kind).Logger(),
		now:   time.Now,
		tasks: make(map[string]*entry),
	}
}

// Kind returns the registry's task kind.
func (r *Registry) Kind() string {
	return r.kind
}

// Submit records a pending task and starts w in the background. The task
// does not inherit the caller's context; it runs until w returns or the
// task is cancelled.
func (r *Registry) Submit(query string, w Worker) types.TaskSnapshot {
	ctx, cancel := context.WithCancel(context.Background())
	now := r.now()
	e := &entry{
		snap: types.TaskSnapshot{
			TaskID:    r.kind + "_" + uuid.NewString(),
			Kind:      r.kind,
			Query:     query,
			Status:    types.TaskPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}

	r.mu.Lock()
	r.tasks[e.snap.TaskID] = e
	snap := e.snap
	r.mu.Unlock()
	metrics.ActiveTasks.Inc()
	r.log.Info().Str("task", snap.TaskID).Msg("task submitted")

	r.wg.Add(1)
	go r.run(ctx, snap.TaskID, w)
	return snap
}

func (r *Registry) run(ctx context.Context, id string, w Worker) {
	defer r.wg.Done()
	defer func() {
		if v := recover(); v != nil {
			r.finish(id, nil, fmt.Errorf("task panicked: %v", v))
		}
	}()

	if !r.update(id, func(s *types.TaskSnapshot) { s.Status = types.TaskRunning }) {
		return
	}
	result, err := w(ctx, &Progress{r: r, id: id})
	r.finish(id, result, err)
}

// finish records the outcome unless the task was cancelled meanwhile.
func (r *Registry) finish(id string, result any, err error) {
	var status types.TaskStatus
	ok := r.update(id, func(s *types.TaskSnapshot) {
		if err != nil {
			s.Status = types.TaskError
			s.ErrorMessage = err.Error()
		} else {
			s.Status = types.TaskCompleted
			s.Progress = 100
			s.Result = result
			s.HasResult = result != nil
		}
		status = s.Status
	})
	if !ok {
		return
	}

	r.mu.Lock()
	if e, found := r.tasks[id]; found {
		e.cancel()
	}
	r.mu.Unlock()

	metrics.ActiveTasks.Dec()
	metrics.Tasks.WithLabelValues(r.kind, string(status)).Inc()
	if err != nil {
		r.log.Warn().Err(err).Str("task", id).Msg("task failed")
	} else {
		r.log.Info().Str("task", id).Msg("task completed")
	}
}

// update applies fn to a live, non-terminal task and reports whether it
// did.
func (r *Registry) update(id string, fn func(*types.TaskSnapshot)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok || e.snap.Status.Terminal() {
		return false
	}
	fn(&e.snap)
	e.snap.UpdatedAt = r.now()
	return true
}

// Get returns a snapshot of the task.
func (r *Registry) Get(id string) (types.TaskSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok {
		return types.TaskSnapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.snap, nil
}

// Result returns the result of a completed task.
func (r *Registry) Result(id string) (any, types.TaskSnapshot, error) {
	snap, err := r.Get(id)
	if err != nil {
		return nil, snap, err
	}
	if snap.Status != types.TaskCompleted {
		return nil, snap, fmt.Errorf("%w: %s is %s", ErrNotReady, id, snap.Status)
	}
	return snap.Result, snap, nil
}

// Cancel marks a pending or running task cancelled, signals its worker
// and removes it from the registry. The worker may keep running until it
// notices; its outcome is discarded.
func (r *Registry) Cancel(id string) (types.TaskSnapshot, error) {
	r.mu.Lock()
	e, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return types.TaskSnapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.snap.Status.Terminal() {
		snap := e.snap
		r.mu.Unlock()
		return snap, fmt.Errorf("%w: %s is %s", ErrFinished, id, snap.Status)
	}
	e.snap.Status = types.TaskCancelled
	e.snap.ErrorMessage = "cancelled by user"
	e.snap.UpdatedAt = r.now()
	delete(r.tasks, id)
	snap := e.snap
	r.mu.Unlock()

	e.cancel()
	metrics.ActiveTasks.Dec()
	metrics.Tasks.WithLabelValues(r.kind, string(types.TaskCancelled)).Inc()
	r.log.Info().Str("task", id).Msg("task cancelled")
	return snap, nil
}

// List returns snapshots of every task, oldest first.
func (r *Registry) List() []types.TaskSnapshot {
	r.mu.Lock()
	out := make([]types.TaskSnapshot, 0, len(r.tasks))
	for _, e := range r.tasks {
		out = append(out, e.snap)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

// Len returns the number of tracked tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Prune drops finished tasks last updated before cutoff and returns how
// many were removed.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.tasks {
		if e.snap.Status.Terminal() && e.snap.UpdatedAt.Before(cutoff) {
			delete(r.tasks, id)
			n++
		}
	}
	return n
}

// Shutdown cancels every live task and waits for the workers to return
// or for ctx to end.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, e := range r.tasks {
		e.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Progress lets a worker report completion percentage.
type Progress struct {
	r  *Registry
	id string
}

// Set raises the task's progress to pct, clamped to 0..100. Lower values
// than the current one are ignored.
func (p *Progress) Set(pct int) {
	pct = max(0, min(100, pct))
	p.r.update(p.id, func(s *types.TaskSnapshot) {
		if pct > s.Progress {
			s.Progress = pct
		}
	})
}
