package store

import (
	"context"
	"fmt"
	"time"
)

// DailySummary is the agent's end-of-day journal entry, one per date.
type DailySummary struct {
	ID        int64     `json:"id"`
	Date      string    `json:"summary_date"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertDailySummary writes the summary for a date, replacing any
// existing entry for the same day.
func (s *Store) UpsertDailySummary(ctx context.Context, date, content string) (DailySummary, error) {
	var sum DailySummary
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO daily_summaries (summary_date, content)
		 VALUES ($1, $2)
		 ON CONFLICT (summary_date) DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()
		 RETURNING id, summary_date::text, content, created_at, updated_at`,
		date, content).Scan(&sum.ID, &sum.Date, &sum.Content, &sum.CreatedAt, &sum.UpdatedAt)
	if err != nil {
		return DailySummary{}, fmt.Errorf("upsert daily summary: %w", err)
	}
	return sum, nil
}

// RecentDailySummaries returns the newest n summaries, most recent first.
func (s *Store) RecentDailySummaries(ctx context.Context, n int) ([]DailySummary, error) {
	if n <= 0 {
		n = 7
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, summary_date::text, content, created_at, updated_at
		 FROM daily_summaries ORDER BY summary_date DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("load daily summaries: %w", err)
	}
	defer rows.Close()

	var sums []DailySummary
	for rows.Next() {
		var sum DailySummary
		if err := rows.Scan(&sum.ID, &sum.Date, &sum.Content, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan daily summary: %w", err)
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}
