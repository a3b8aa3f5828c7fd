package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CronJob is a scheduled agent task.
type CronJob struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Instructions  string     `json:"instructions"`
	Timezone      string     `json:"timezone"`
	ScheduleDays  []int      `json:"schedule_days,omitempty"`
	ScheduleTime  string     `json:"schedule_time,omitempty"`
	RunDate       string     `json:"run_date,omitempty"`
	IsOneTime     bool       `json:"is_one_time"`
	Status        string     `json:"status"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
	LastRunError  string     `json:"last_run_error,omitempty"`
	RunCount      int        `json:"run_count"`
}

// NewCronJob are the fields needed to create a job. RunDate non-empty
// makes it one-time.
type NewCronJob struct {
	Name         string
	Description  string
	Instructions string
	Timezone     string
	ScheduleDays []int
	ScheduleTime string
	RunDate      string
	CreatedBy    string
}

const cronJobColumns = `id, name, description, instructions, timezone,
	schedule_days::text, schedule_time, run_date::text, is_one_time, status,
	created_by, created_at, updated_at, last_run_at, last_run_status,
	last_run_error, run_count`

// CreateCronJob inserts a job and returns the stored row.
func (s *Store) CreateCronJob(ctx context.Context, j NewCronJob) (*CronJob, error) {
	if j.Timezone == "" {
		j.Timezone = "America/New_York"
	}
	if j.CreatedBy == "" {
		j.CreatedBy = "user"
	}
	isOneTime := j.RunDate != ""

	row := s.DB.QueryRowContext(ctx,
		`INSERT INTO cron_jobs
		 (name, description, instructions, timezone, schedule_days, schedule_time, run_date, is_one_time, created_by)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5::int[], NULLIF($6, ''), NULLIF($7, '')::date, $8, $9)
		 RETURNING `+cronJobColumns,
		j.Name, j.Description, j.Instructions, j.Timezone,
		intArrayLiteral(j.ScheduleDays), j.ScheduleTime, j.RunDate, isOneTime, j.CreatedBy)

	job, err := scanCronJob(row)
	if err != nil {
		return nil, fmt.Errorf("create cron job: %w", err)
	}
	s.logger.Info("created cron job", "name", job.Name, "id", job.ID, "one_time", job.IsOneTime)
	return job, nil
}

// GetCronJob returns a job by ID, or ErrNotFound.
func (s *Store) GetCronJob(ctx context.Context, id int64) (*CronJob, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+cronJobColumns+` FROM cron_jobs WHERE id = $1`, id)
	job, err := scanCronJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cron job: %w", err)
	}
	return job, nil
}

// ListCronJobs returns jobs newest first, optionally filtered by status.
func (s *Store) ListCronJobs(ctx context.Context, status string) ([]*CronJob, error) {
	query := `SELECT ` + cronJobColumns + ` FROM cron_jobs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cron jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*CronJob
	for rows.Next() {
		job, err := scanCronJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cron job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CronJobUpdate carries optional field updates. Nil pointers are left
// untouched.
type CronJobUpdate struct {
	Name         *string
	Description  *string
	Instructions *string
	Timezone     *string
	ScheduleDays *[]int
	ScheduleTime *string
	RunDate      *string
	Status       *string
}

// UpdateCronJob applies the given field updates and returns the updated
// row, or ErrNotFound.
func (s *Store) UpdateCronJob(ctx context.Context, id int64, u CronJobUpdate) (*CronJob, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Instructions != nil {
		add("instructions", *u.Instructions)
	}
	if u.Timezone != nil {
		add("timezone", *u.Timezone)
	}
	if u.ScheduleDays != nil {
		args = append(args, intArrayLiteral(*u.ScheduleDays))
		sets = append(sets, fmt.Sprintf("schedule_days = $%d::int[]", len(args)))
	}
	if u.ScheduleTime != nil {
		add("schedule_time", *u.ScheduleTime)
	}
	if u.RunDate != nil {
		args = append(args, *u.RunDate)
		sets = append(sets, fmt.Sprintf("run_date = NULLIF($%d, '')::date", len(args)))
		sets = append(sets, fmt.Sprintf("is_one_time = ($%d != '')", len(args)))
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if len(sets) == 0 {
		return s.GetCronJob(ctx, id)
	}

	args = append(args, id)
	row := s.DB.QueryRowContext(ctx,
		fmt.Sprintf(`UPDATE cron_jobs SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
			strings.Join(sets, ", "), len(args), cronJobColumns),
		args...)

	job, err := scanCronJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update cron job: %w", err)
	}
	s.logger.Info("updated cron job", "name", job.Name, "id", id)
	return job, nil
}

// DeleteCronJob removes a job. Returns ErrNotFound if it did not exist.
func (s *Store) DeleteCronJob(ctx context.Context, id int64) error {
	var deleted int64
	err := s.DB.QueryRowContext(ctx,
		`DELETE FROM cron_jobs WHERE id = $1 RETURNING id`, id).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete cron job: %w", err)
	}
	s.logger.Info("deleted cron job", "id", id)
	return nil
}

// SetCronJobStatus pauses or resumes a job.
func (s *Store) SetCronJobStatus(ctx context.Context, id int64, status string) (*CronJob, error) {
	return s.UpdateCronJob(ctx, id, CronJobUpdate{Status: &status})
}

// RecordCronRun stamps the outcome of a job execution.
func (s *Store) RecordCronRun(ctx context.Context, id int64, status, runErr string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE cron_jobs
		 SET last_run_at = NOW(), last_run_status = $1, last_run_error = NULLIF($2, ''),
		     run_count = run_count + 1
		 WHERE id = $3`,
		status, runErr, id)
	if err != nil {
		return fmt.Errorf("record cron run: %w", err)
	}
	if status == "error" && runErr != "" {
		s.logger.Error("cron job failed", "id", id, "error", runErr)
	} else {
		s.logger.Info("cron job completed", "id", id, "status", status)
	}
	return nil
}

// CloneCronJob copies a job's schedule and instructions under a new
// name. Clones are always user-created and never inherit a one-time
// run date.
func (s *Store) CloneCronJob(ctx context.Context, id int64, newName string) (*CronJob, error) {
	original, err := s.GetCronJob(ctx, id)
	if err != nil {
		return nil, err
	}
	name := newName
	if name == "" {
		name = original.Name + " (Copy)"
	}
	return s.CreateCronJob(ctx, NewCronJob{
		Name:         name,
		Description:  original.Description,
		Instructions: original.Instructions,
		Timezone:     original.Timezone,
		ScheduleDays: original.ScheduleDays,
		ScheduleTime: original.ScheduleTime,
		CreatedBy:    "user",
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCronJob(row rowScanner) (*CronJob, error) {
	var (
		j             CronJob
		description   sql.NullString
		days          sql.NullString
		schedTime     sql.NullString
		runDate       sql.NullString
		lastRunAt     sql.NullTime
		lastRunStatus sql.NullString
		lastRunError  sql.NullString
	)
	err := row.Scan(&j.ID, &j.Name, &description, &j.Instructions, &j.Timezone,
		&days, &schedTime, &runDate, &j.IsOneTime, &j.Status,
		&j.CreatedBy, &j.CreatedAt, &j.UpdatedAt, &lastRunAt, &lastRunStatus,
		&lastRunError, &j.RunCount)
	if err != nil {
		return nil, err
	}
	j.Description = description.String
	j.ScheduleDays = parseIntArray(days.String)
	j.ScheduleTime = schedTime.String
	j.RunDate = runDate.String
	if lastRunAt.Valid {
		t := lastRunAt.Time
		j.LastRunAt = &t
	}
	j.LastRunStatus = lastRunStatus.String
	j.LastRunError = lastRunError.String
	return &j, nil
}

// intArrayLiteral renders a Postgres int[] literal ("{0,2,4}").
func intArrayLiteral(days []int) any {
	if days == nil {
		return nil
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// parseIntArray parses a Postgres int[] text literal.
func parseIntArray(lit string) []int {
	lit = strings.TrimSpace(lit)
	lit = strings.TrimPrefix(lit, "{")
	lit = strings.TrimSuffix(lit, "}")
	if lit == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(lit, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// CommonTimezones is the curated timezone catalogue offered to job
// editors, in display order.
var CommonTimezones = []struct {
	Value string
	Label string
}{
	{"America/New_York", "Eastern Time (ET)"},
	{"America/Chicago", "Central Time (CT)"},
	{"America/Denver", "Mountain Time (MT)"},
	{"America/Los_Angeles", "Pacific Time (PT)"},
	{"America/Anchorage", "Alaska Time (AKT)"},
	{"Pacific/Honolulu", "Hawaii Time (HT)"},
	{"Europe/London", "Greenwich Mean Time (GMT)"},
	{"Europe/Paris", "Central European Time (CET)"},
	{"Europe/Athens", "Eastern European Time (EET)"},
	{"Asia/Tokyo", "Japan Standard Time (JST)"},
	{"Asia/Shanghai", "China Standard Time (CST)"},
	{"Asia/Dubai", "Gulf Standard Time (GST)"},
	{"Australia/Sydney", "Australian Eastern Time (AET)"},
	{"Pacific/Auckland", "New Zealand Time (NZT)"},
	{"UTC", "UTC"},
}

// TimezoneDisplay returns the friendly label for a timezone, or the
// raw name when it is not in the catalogue.
func TimezoneDisplay(tz string) string {
	for _, entry := range CommonTimezones {
		if entry.Value == tz {
			return entry.Label
		}
	}
	return tz
}

// DayNames indexes weekday labels with 0=Monday.
var DayNames = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// FormatDays renders a weekday set for display.
func FormatDays(days []int) string {
	set := map[int]bool{}
	for _, d := range days {
		set[d] = true
	}
	if len(days) == 7 {
		return "Every day"
	}
	if len(days) == 5 && set[0] && set[1] && set[2] && set[3] && set[4] {
		return "Weekdays"
	}
	if len(days) == 2 && set[5] && set[6] {
		return "Weekends"
	}
	sorted := append([]int(nil), days...)
	sort.Ints(sorted)
	names := make([]string, 0, len(sorted))
	for _, d := range sorted {
		if d >= 0 && d < len(DayNames) {
			names = append(names, DayNames[d])
		}
	}
	return strings.Join(names, ", ")
}
