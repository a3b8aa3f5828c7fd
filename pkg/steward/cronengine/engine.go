// Package cronengine runs the persistent cron jobs: agent tasks stored
// in PostgreSQL and executed as synthetic conversation turns on the
// main thread.
package cronengine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jholhewres/steward/pkg/steward/agent"
	"github.com/jholhewres/steward/pkg/steward/store"
)

// Engine schedules and executes cron jobs. Triggers live in memory and
// are rebuilt from the database on start and on refresh.
type Engine struct {
	store  *store.Store
	agent  *agent.Agent
	logger *slog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	entries map[int64]cron.EntryID
	running map[int64]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Compile-time check that the engine satisfies the tool-facing
// scheduler interface.
var _ agent.Scheduler = (*Engine)(nil)

// New creates a cron engine.
func New(st *store.Store, ag *agent.Agent, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  st,
		agent:  ag,
		logger: logger.With("component", "cron"),
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		entries: make(map[int64]cron.EntryID),
		running: make(map[int64]bool),
	}
}

// Start loads all active jobs and begins scheduling.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	jobs, err := e.store.ListCronJobs(ctx, "active")
	if err != nil {
		return fmt.Errorf("load active jobs: %w", err)
	}
	for _, job := range jobs {
		if err := e.schedule(job); err != nil {
			e.logger.Error("failed to schedule job", "id", job.ID, "name", job.Name, "error", err)
		}
	}

	e.cron.Start()
	e.logger.Info("scheduler started", "active_jobs", len(jobs))
	return nil
}

// Stop halts scheduling and waits briefly for running jobs.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	stopCtx := e.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		e.logger.Warn("timed out waiting for running jobs")
	}
	e.logger.Info("scheduler stopped")
}

// RefreshJob re-reads a job and updates its trigger: rescheduled when
// active, removed when paused or deleted. Called after any mutation.
func (e *Engine) RefreshJob(ctx context.Context, jobID int64) {
	job, err := e.store.GetCronJob(ctx, jobID)
	if err != nil || job.Status != "active" {
		e.RemoveJob(jobID)
		return
	}
	if err := e.schedule(job); err != nil {
		e.logger.Error("failed to schedule job", "id", jobID, "error", err)
	}
}

// RemoveJob drops a job's trigger.
func (e *Engine) RemoveJob(jobID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entryID, ok := e.entries[jobID]; ok {
		e.cron.Remove(entryID)
		delete(e.entries, jobID)
	}
}

// ReloadAll rebuilds every trigger from the database.
func (e *Engine) ReloadAll(ctx context.Context) error {
	e.mu.Lock()
	for id, entryID := range e.entries {
		e.cron.Remove(entryID)
		delete(e.entries, id)
	}
	e.mu.Unlock()

	jobs, err := e.store.ListCronJobs(ctx, "active")
	if err != nil {
		return fmt.Errorf("load active jobs: %w", err)
	}
	for _, job := range jobs {
		if err := e.schedule(job); err != nil {
			e.logger.Error("failed to schedule job", "id", job.ID, "error", err)
		}
	}
	e.logger.Info("reloaded jobs", "count", len(jobs))
	return nil
}

// schedule installs a trigger for one job, replacing any existing one.
func (e *Engine) schedule(job *store.CronJob) error {
	e.RemoveJob(job.ID)

	if job.IsOneTime {
		return e.scheduleOneTime(job)
	}

	spec, err := recurringSpec(job)
	if err != nil {
		return err
	}
	jobID := job.ID
	entryID, err := e.cron.AddFunc(spec, func() {
		e.executeJob(jobID)
	})
	if err != nil {
		return fmt.Errorf("add cron entry: %w", err)
	}

	e.mu.Lock()
	e.entries[job.ID] = entryID
	e.mu.Unlock()
	e.logger.Debug("scheduled recurring job", "id", job.ID, "spec", spec)
	return nil
}

// scheduleOneTime arms a timer for a dated job. Past-due jobs are left
// alone; the operator can reschedule or delete them.
func (e *Engine) scheduleOneTime(job *store.CronJob) error {
	runAt, err := oneTimeRunAt(job)
	if err != nil {
		return err
	}
	delay := time.Until(runAt)
	if delay <= 0 {
		e.logger.Warn("one-time job is in the past, not scheduling", "id", job.ID, "run_at", runAt)
		return nil
	}

	jobID := job.ID
	go func() {
		select {
		case <-time.After(delay):
			e.executeJob(jobID)
		case <-e.ctx.Done():
		}
	}()
	e.logger.Debug("armed one-time job", "id", job.ID, "run_at", runAt)
	return nil
}

// executeJob runs one job as a synthetic conversation turn. The job is
// re-read first so pauses and edits between trigger and fire are
// honored.
func (e *Engine) executeJob(jobID int64) {
	e.mu.Lock()
	if e.running[jobID] {
		e.mu.Unlock()
		e.logger.Warn("job still running, skipping overlap", "id", jobID)
		return
	}
	e.running[jobID] = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.running, jobID)
		e.mu.Unlock()

		if r := recover(); r != nil {
			e.logger.Error("job panicked", "id", jobID, "panic", r)
			_ = e.store.RecordCronRun(context.Background(), jobID, "error", fmt.Sprintf("panic: %v", r))
		}
	}()

	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	job, err := e.store.GetCronJob(ctx, jobID)
	if err != nil {
		e.logger.Error("job not found", "id", jobID, "error", err)
		return
	}
	if job.Status != "active" {
		e.logger.Info("skipping inactive job", "id", jobID)
		_ = e.store.RecordCronRun(ctx, jobID, "skipped", "")
		return
	}

	e.logger.Info("executing cron job", "id", jobID, "name", job.Name, "one_time", job.IsOneTime)

	_, err = e.agent.Chat(ctx, agent.ChatRequest{
		ThreadID:        "main",
		UserMessage:     fmt.Sprintf("[Cron: %s]\n\n%s", job.Name, job.Instructions),
		UserDisplayName: "cron",
		UserID:          "agent:cron",
		ChannelType:     "internal",
	})
	if err != nil {
		e.logger.Error("cron job failed", "id", jobID, "error", err)
		_ = e.store.RecordCronRun(ctx, jobID, "error", err.Error())
		return
	}

	_ = e.store.RecordCronRun(ctx, jobID, "success", "")
	if job.IsOneTime {
		if _, err := e.store.SetCronJobStatus(ctx, jobID, "paused"); err != nil {
			e.logger.Error("failed to deactivate one-time job", "id", jobID, "error", err)
		} else {
			e.logger.Info("one-time job completed and deactivated", "id", jobID)
		}
		e.RemoveJob(jobID)
	}
}

// dayNames indexes cron day-of-week names with 0=Monday.
var dayNames = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// recurringSpec builds the cron spec for a recurring job, carrying the
// job's timezone via a CRON_TZ prefix.
func recurringSpec(job *store.CronJob) (string, error) {
	if len(job.ScheduleDays) == 0 {
		return "", fmt.Errorf("recurring job %d has no schedule days", job.ID)
	}
	timeStr := job.ScheduleTime
	if timeStr == "" {
		timeStr = "12:00 PM"
	}
	hour, minute, err := ParseTime(timeStr)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(job.ScheduleDays))
	for _, d := range job.ScheduleDays {
		if d < 0 || d >= len(dayNames) {
			return "", fmt.Errorf("invalid schedule day %d", d)
		}
		names = append(names, dayNames[d])
	}

	tz := job.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * %s", tz, minute, hour, strings.Join(names, ",")), nil
}

// oneTimeRunAt resolves the wall-clock fire time of a one-time job in
// its own timezone.
func oneTimeRunAt(job *store.CronJob) (time.Time, error) {
	if job.RunDate == "" {
		return time.Time{}, fmt.Errorf("one-time job %d has no run date", job.ID)
	}
	timeStr := job.ScheduleTime
	if timeStr == "" {
		timeStr = "12:00 PM"
	}
	hour, minute, err := ParseTime(timeStr)
	if err != nil {
		return time.Time{}, err
	}

	tz := job.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	date, err := time.ParseInLocation("2006-01-02", job.RunDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run date %q: %w", job.RunDate, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc), nil
}

// ParseTime parses schedule times like "7:00 PM", "19:00", or "7 PM"
// into 24-hour (hour, minute).
func ParseTime(s string) (hour, minute int, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	isPM := strings.Contains(s, "PM")
	isAM := strings.Contains(s, "AM")
	if isPM || isAM {
		s = strings.TrimSpace(strings.NewReplacer("AM", "", "PM", "").Replace(s))
	}

	if before, after, found := strings.Cut(s, ":"); found {
		hour, err = strconv.Atoi(strings.TrimSpace(before))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid time %q", s)
		}
		minute, err = strconv.Atoi(strings.TrimSpace(after))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid time %q", s)
		}
	} else {
		hour, err = strconv.Atoi(s)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid time %q", s)
		}
	}

	if isPM && hour != 12 {
		hour += 12
	} else if isAM && hour == 12 {
		hour = 0
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q out of range", s)
	}
	return hour, minute, nil
}
