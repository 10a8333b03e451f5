// Package recurring re-executes registered plans on cron schedules. Entries
// live in memory; a restarted process starts with an empty schedule.
package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jperaza/planwave/pkg/schema"
)

// PlanRunner is the interface the runner uses to execute plans. Satisfied
// by the engine.
type PlanRunner interface {
	Execute(ctx context.Context, plan *schema.QueryPlan) (*schema.ExecutionResult, error)
}

// Entry is one recurring plan registration.
type Entry struct {
	ID            string
	Name          string
	CronExpr      string
	Plan          *schema.QueryPlan
	NextRunAt     time.Time
	LastRunAt     *time.Time
	LastRunStatus string
	Enabled       bool
}

// Runner evaluates registered entries on a fixed ticker and executes those
// that are due.
type Runner struct {
	runner PlanRunner
	parser cron.Parser
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	entriesMu sync.Mutex
	entries   map[string]*Entry

	inflightMu sync.Mutex
	inflight   map[string]struct{} // entry IDs currently executing (dedup)
}

// NewRunner creates a Runner over the given plan runner.
func NewRunner(r PlanRunner, logger *slog.Logger) *Runner {
	return &Runner{
		runner:   r,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		entries:  make(map[string]*Entry),
		inflight: make(map[string]struct{}),
	}
}

// Add registers a plan under a cron expression and returns the entry ID.
// The plan is leveled by the engine on every run, so a defective plan fails
// at run time, not at registration; the cron expression is checked here.
func (r *Runner) Add(name, cronExpr string, plan *schema.QueryPlan) (string, error) {
	next, err := r.nextRun(cronExpr, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if plan == nil {
		return "", schema.NewError(schema.ErrCodeValidation, "plan is nil")
	}

	entry := &Entry{
		ID:        uuid.NewString(),
		Name:      name,
		CronExpr:  cronExpr,
		Plan:      plan,
		NextRunAt: next,
		Enabled:   true,
	}

	r.entriesMu.Lock()
	r.entries[entry.ID] = entry
	r.entriesMu.Unlock()

	r.logger.Info("recurring plan registered",
		slog.String("entry_id", entry.ID),
		slog.String("name", name),
		slog.String("cron", cronExpr))
	return entry.ID, nil
}

// Remove unregisters an entry.
func (r *Runner) Remove(id string) error {
	r.entriesMu.Lock()
	defer r.entriesMu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "recurring entry %q not found", id)
	}
	delete(r.entries, id)
	return nil
}

// SetEnabled toggles an entry without removing it.
func (r *Runner) SetEnabled(id string, enabled bool) error {
	r.entriesMu.Lock()
	defer r.entriesMu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "recurring entry %q not found", id)
	}
	entry.Enabled = enabled
	return nil
}

// List returns a snapshot of all entries.
func (r *Runner) List() []Entry {
	r.entriesMu.Lock()
	defer r.entriesMu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}

// Start launches the background loop with a 60s ticker.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return fmt.Errorf("recurring runner already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(loopCtx)
	r.logger.Info("recurring runner started")
	return nil
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately.
	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick runs every enabled entry whose next run time has passed.
func (r *Runner) tick(ctx context.Context) {
	now := time.Now().UTC()

	r.entriesMu.Lock()
	due := make([]*Entry, 0)
	for _, e := range r.entries {
		if e.Enabled && !e.NextRunAt.After(now) {
			due = append(due, e)
		}
	}
	r.entriesMu.Unlock()

	for _, entry := range due {
		if !r.tryAcquire(entry.ID) {
			continue // previous run still in flight
		}
		r.runEntry(ctx, entry, now)
		r.release(entry.ID)
	}
}

// runEntry executes one entry and advances its schedule.
func (r *Runner) runEntry(ctx context.Context, entry *Entry, now time.Time) {
	r.logger.Info("running recurring plan",
		slog.String("entry_id", entry.ID),
		slog.String("name", entry.Name))

	status := "success"
	result, err := r.runner.Execute(ctx, entry.Plan)
	switch {
	case err != nil:
		status = "error"
		r.logger.Error("recurring plan execution failed",
			slog.String("entry_id", entry.ID),
			slog.String("error", err.Error()))
	case result.Status == schema.RunStatusFailed:
		status = "error"
		r.logger.Error("recurring plan run failed",
			slog.String("entry_id", entry.ID),
			slog.String("run_id", result.RunID),
			slog.String("error", result.Error.Error()))
	}

	next, nerr := r.nextRun(entry.CronExpr, now)

	r.entriesMu.Lock()
	defer r.entriesMu.Unlock()
	entry.LastRunAt = &now
	entry.LastRunStatus = status
	if nerr == nil {
		entry.NextRunAt = next
	}
}

func (r *Runner) tryAcquire(id string) bool {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	if _, ok := r.inflight[id]; ok {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *Runner) release(id string) {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	delete(r.inflight, id)
}

// nextRun computes the next run time for a cron expression.
func (r *Runner) nextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := r.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation,
			"parse cron expression %q: %s", cronExpr, err.Error()).WithCause(err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the runner.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return nil
	}

	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil

	r.logger.Info("recurring runner stopped")
	return nil
}
