package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CoreBlocks are the editable always-in-context memory blocks.
var CoreBlocks = []string{"user", "identity", "ideaspace"}

// ValidBlock reports whether name is an editable core memory block.
func ValidBlock(name string) bool {
	for _, b := range CoreBlocks {
		if b == name {
			return true
		}
	}
	return false
}

// Block is one core memory block.
type Block struct {
	Type      string    `json:"block_type"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetBlock returns a core memory block. Unwritten blocks come back empty
// at version 0.
func (s *Store) GetBlock(ctx context.Context, blockType string) (Block, error) {
	if !ValidBlock(blockType) {
		return Block{}, fmt.Errorf("invalid block type %q", blockType)
	}
	b := Block{Type: blockType}
	err := s.DB.QueryRowContext(ctx,
		`SELECT content, version, updated_at FROM core_memory WHERE block_type = $1`,
		blockType).Scan(&b.Content, &b.Version, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return Block{}, fmt.Errorf("get block %s: %w", blockType, err)
	}
	return b, nil
}

// GetBlocks returns all core memory blocks keyed by type.
func (s *Store) GetBlocks(ctx context.Context) (map[string]Block, error) {
	blocks := make(map[string]Block, len(CoreBlocks))
	for _, bt := range CoreBlocks {
		b, err := s.GetBlock(ctx, bt)
		if err != nil {
			return nil, err
		}
		blocks[bt] = b
	}
	return blocks, nil
}

// UpdateBlock replaces a block's content, saving the previous version to
// history first. Returns the new version number.
func (s *Store) UpdateBlock(ctx context.Context, blockType, content string) (int, error) {
	if !ValidBlock(blockType) {
		return 0, fmt.Errorf("invalid block type %q", blockType)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO core_memory_history (block_type, content, version, updated_at)
		 SELECT block_type, content, version, updated_at FROM core_memory WHERE block_type = $1`,
		blockType)
	if err != nil {
		return 0, fmt.Errorf("save history: %w", err)
	}

	var version int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO core_memory (block_type, content, version, updated_at)
		 VALUES ($1, $2, 1, NOW())
		 ON CONFLICT (block_type) DO UPDATE
		 SET content = EXCLUDED.content, version = core_memory.version + 1, updated_at = NOW()
		 RETURNING version`,
		blockType, content).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("update block %s: %w", blockType, err)
	}
	return version, tx.Commit()
}

// AppendToBlock adds content to the end of a block, separated by a blank
// line. Returns the new version number.
func (s *Store) AppendToBlock(ctx context.Context, blockType, addition string) (int, error) {
	current, err := s.GetBlock(ctx, blockType)
	if err != nil {
		return 0, err
	}
	content := strings.TrimSpace(current.Content)
	addition = strings.TrimSpace(addition)
	if content == "" {
		content = addition
	} else {
		content = content + "\n\n" + addition
	}
	return s.UpdateBlock(ctx, blockType, content)
}

// RollbackBlock restores a block to its most recent saved version and
// removes that history entry. Returns the restored version, or ok=false
// when there is no history.
func (s *Store) RollbackBlock(ctx context.Context, blockType string) (version int, ok bool, err error) {
	if !ValidBlock(blockType) {
		return 0, false, fmt.Errorf("invalid block type %q", blockType)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin rollback: %w", err)
	}
	defer tx.Rollback()

	var (
		histID  int64
		content string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, content, version FROM core_memory_history
		 WHERE block_type = $1 ORDER BY id DESC LIMIT 1`,
		blockType).Scan(&histID, &content, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load history: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE core_memory SET content = $1, version = $2, updated_at = NOW()
		 WHERE block_type = $3`,
		content, version, blockType)
	if err != nil {
		return 0, false, fmt.Errorf("restore block %s: %w", blockType, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM core_memory_history WHERE id = $1`, histID); err != nil {
		return 0, false, fmt.Errorf("pop history: %w", err)
	}
	return version, true, tx.Commit()
}

// SystemInstructions returns the read-only operator instructions block.
func (s *Store) SystemInstructions(ctx context.Context) (string, error) {
	var content string
	err := s.DB.QueryRowContext(ctx,
		`SELECT content FROM system_instructions WHERE id = 1`).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get system instructions: %w", err)
	}
	return content, nil
}

// SetSystemInstructions replaces the operator instructions block. Only
// humans reach this; the agent has no tool for it.
func (s *Store) SetSystemInstructions(ctx context.Context, content string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO system_instructions (id, content, updated_at)
		 VALUES (1, $1, NOW())
		 ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, updated_at = NOW()`,
		content)
	if err != nil {
		return fmt.Errorf("set system instructions: %w", err)
	}
	return nil
}
