package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message is one row of conversation history.
type Message struct {
	ID        int64          `json:"id"`
	ThreadID  string         `json:"thread_id"`
	Idx       int            `json:"idx"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Reasoning string         `json:"reasoning,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata"`
}

// NewMessage is a message to append. Idx is assigned by the store.
type NewMessage struct {
	Role      string
	Content   string
	Reasoning string
	Metadata  map[string]any
}

// WindowOptions controls how much history LoadWindow returns.
type WindowOptions struct {
	// Limit is the minimum number of recent messages to keep.
	Limit int

	// MaxTokens caps the estimated token size of the window. The newest
	// message always survives the cap.
	MaxTokens int

	// IncludeTools keeps tool-result rows (excluded by default).
	IncludeTools bool

	// ExcludeHeartbeat drops rows labelled role_display=heartbeat.
	ExcludeHeartbeat bool
}

// LoadWindow returns the context window for a thread: everything from
// today (agent timezone) or the last Limit messages, whichever reaches
// further back, then trimmed to MaxTokens from the oldest end.
func (s *Store) LoadWindow(ctx context.Context, threadID string, now time.Time, opts WindowOptions) ([]Message, error) {
	msgs, err := s.loadThread(ctx, threadID, opts.IncludeTools, opts.ExcludeHeartbeat)
	if err != nil {
		return nil, err
	}

	midnight := startOfDay(now.In(s.loc))
	msgs = msgs[windowStart(msgs, opts.Limit, midnight):]
	return trimToTokenLimit(msgs, opts.MaxTokens), nil
}

// ListRecent returns the last limit non-tool messages of a thread in
// ascending order, for the HTTP message listing.
func (s *Store) ListRecent(ctx context.Context, threadID string, limit int) ([]Message, error) {
	msgs, err := s.loadThread(ctx, threadID, false, false)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *Store) loadThread(ctx context.Context, threadID string, includeTools, excludeHeartbeat bool) ([]Message, error) {
	query := `SELECT id, thread_id, idx, role, content, reasoning, created_at, metadata
	          FROM messages WHERE thread_id = $1`
	if !includeTools {
		query += ` AND role != 'tool'`
	}
	if excludeHeartbeat {
		query += ` AND (metadata->>'role_display' IS NULL OR metadata->>'role_display' != 'heartbeat')`
	}
	query += ` ORDER BY idx ASC`

	rows, err := s.DB.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		s.stampLocalTime(&m)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// stampLocalTime enriches message metadata with the local date and time
// so the model can see when each message happened.
func (s *Store) stampLocalTime(m *Message) {
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	local := m.CreatedAt.In(s.loc)
	m.Metadata["date_est"] = local.Format("2006-01-02")
	m.Metadata["time_est"] = local.Format("15:04:05 MST")
}

// Append appends messages to a thread with contiguous indices, all in
// one transaction.
func (s *Store) Append(ctx context.Context, threadID string, msgs []NewMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(idx), -1) + 1 FROM messages WHERE thread_id = $1`, threadID).Scan(&next)
	if err != nil {
		return fmt.Errorf("next idx: %w", err)
	}

	now := time.Now().In(s.loc)
	for _, m := range msgs {
		meta, err := json.Marshal(withWriteDate(m.Metadata, now))
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (thread_id, idx, role, content, reasoning, metadata)
			 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`,
			threadID, next, m.Role, m.Content, m.Reasoning, meta)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		next++
	}
	return tx.Commit()
}

// Search finds user/assistant messages whose content matches the query,
// newest first.
func (s *Store) Search(ctx context.Context, query, threadID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	args := []any{"%" + query + "%"}
	if threadID != "" {
		args = append(args, threadID)
	}

	rows, err := s.DB.QueryContext(ctx, searchQuery(threadID, limit), args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		s.stampLocalTime(&m)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// searchQuery builds the search statement. Ordering is by created_at,
// not idx, so "newest first" holds even when the search spans threads.
func searchQuery(threadID string, limit int) string {
	q := `SELECT id, thread_id, idx, role, content, reasoning, created_at, metadata
	      FROM messages
	      WHERE content ILIKE $1 AND role IN ('user', 'assistant')`
	if threadID != "" {
		q += ` AND thread_id = $2`
	}
	return q + fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)
}

// CountHeartbeats returns how many heartbeat turns were stored for a
// given local date. Errors count as zero so the heartbeat never blocks.
func (s *Store) CountHeartbeats(ctx context.Context, date string) int {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE role = 'user'
		   AND metadata->>'role_display' = 'heartbeat'
		   AND metadata->>'date_est' = $1`, date).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}

func scanMessage(rows *sql.Rows) (Message, error) {
	var (
		m         Message
		reasoning sql.NullString
		meta      []byte
	)
	if err := rows.Scan(&m.ID, &m.ThreadID, &m.Idx, &m.Role, &m.Content, &reasoning, &m.CreatedAt, &meta); err != nil {
		return Message{}, fmt.Errorf("scan message: %w", err)
	}
	m.Reasoning = reasoning.String
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &m.Metadata)
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	return m, nil
}

// withWriteDate copies metadata with the local write date stamped in.
// Date-scoped queries (counting the day's stored heartbeats) filter on
// the persisted value, so it has to exist at insert time, not only in
// the read-time enrichment.
func withWriteDate(meta map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["date_est"] = now.Format("2006-01-02")
	return out
}

// windowStart picks where the context window begins: the first message
// of today or the start of the last-limit suffix, whichever is earlier.
func windowStart(msgs []Message, limit int, todayStart time.Time) int {
	todayIdx := len(msgs)
	for i, m := range msgs {
		if !m.CreatedAt.Before(todayStart) {
			todayIdx = i
			break
		}
	}
	lastN := len(msgs) - limit
	if lastN < 0 {
		lastN = 0
	}
	if todayIdx < lastN {
		return todayIdx
	}
	return lastN
}

// trimToTokenLimit drops the oldest messages until the estimated token
// total fits. The newest message is always kept.
func trimToTokenLimit(msgs []Message, maxTokens int) []Message {
	if maxTokens <= 0 {
		return msgs
	}
	total := 0
	start := 0
	kept := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		t := estimateTokens(tokenText(msgs[i]))
		if total+t > maxTokens && kept > 0 {
			start = i + 1
			break
		}
		total += t
		kept++
	}
	return msgs[start:]
}

func tokenText(m Message) string {
	if m.Reasoning != "" {
		return "[Reasoning: " + m.Reasoning + "]\n\n" + m.Content
	}
	return m.Content
}

// estimateTokens is a cheap chars/4 heuristic, rounded up.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// RoleDisplay returns the display label stored on a message, falling
// back to the raw role.
func (m Message) RoleDisplay() string {
	if v, ok := m.Metadata["role_display"].(string); ok && v != "" {
		return v
	}
	return m.Role
}

// Snippet truncates content for search result rendering.
func Snippet(content string, max int) string {
	if len(content) <= max {
		return content
	}
	return strings.TrimSpace(content[:max]) + "…"
}
