package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Fact is one curated archival memory entry.
type Fact struct {
	ID        int64          `json:"id"`
	Content   string         `json:"content"`
	Category  string         `json:"category,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StoreFact saves a fact to archival memory. Empty content is rejected.
func (s *Store) StoreFact(ctx context.Context, content, category string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO archival.facts (content, category) VALUES ($1, NULLIF($2, ''))`,
		content, strings.TrimSpace(category))
	if err != nil {
		return fmt.Errorf("store fact: %w", err)
	}
	return nil
}

// QueryFacts searches archival memory by substring over content and
// category, optionally narrowed to an exact category, newest first.
// Limit is clamped to [1, 50].
func (s *Store) QueryFacts(ctx context.Context, query, category string, limit int) ([]Fact, error) {
	if limit < 1 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	sqlQuery := `SELECT id, content, category, created_at, metadata
	             FROM archival.facts
	             WHERE (content ILIKE $1 OR category ILIKE $1)`
	args := []any{"%" + query + "%"}
	if category != "" {
		sqlQuery += ` AND category = $2`
		args = append(args, category)
	}
	sqlQuery += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.DB.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var (
			f    Fact
			cat  sql.NullString
			meta []byte
		)
		if err := rows.Scan(&f.ID, &f.Content, &cat, &f.CreatedAt, &meta); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.Category = cat.String
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &f.Metadata)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
