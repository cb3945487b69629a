package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// KeywordRepository handles client keywords
type KeywordRepository struct {
	db *sqlx.DB
}

// NewKeywordRepository creates a new keyword repository
func NewKeywordRepository(db *sqlx.DB) *KeywordRepository {
	return &KeywordRepository{db: db}
}

// GetKeywordsForClient returns the keywords of a client in the order they were set
func (r *KeywordRepository) GetKeywordsForClient(ctx context.Context, clientID string) ([]string, error) {
	res := []string{}
	err := r.db.SelectContext(ctx, &res, "SELECT keyword FROM client_keywords WHERE client_id = ? ORDER BY position", clientID)
	if err != nil {
		return nil, fmt.Errorf("get keywords: %w", err)
	}
	return res, nil
}

// SetKeywords replaces the keywords of a client. Blank and repeated (case-insensitive) keywords
// are dropped, the stored list is returned.
func (r *KeywordRepository) SetKeywords(ctx context.Context, clientID string, keywords []string) ([]string, error) {
	clean := make([]string, 0, len(keywords))
	seen := map[string]bool{}
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" || seen[strings.ToLower(k)] {
			continue
		}
		seen[strings.ToLower(k)] = true
		clean = append(clean, k)
	}

	err := retryOnLock(ctx, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit

		if _, err := tx.ExecContext(ctx, "DELETE FROM client_keywords WHERE client_id = ?", clientID); err != nil {
			return fmt.Errorf("delete keywords: %w", err)
		}
		for i, k := range clean {
			if _, err := tx.ExecContext(ctx, "INSERT INTO client_keywords (client_id, position, keyword) VALUES (?, ?, ?)",
				clientID, i, k); err != nil {
				return fmt.Errorf("insert keyword: %w", err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("set keywords: %w", err)
	}
	return clean, nil
}

// FlagRepository handles per-client feature flags
type FlagRepository struct {
	db *sqlx.DB
}

// NewFlagRepository creates a new flag repository
func NewFlagRepository(db *sqlx.DB) *FlagRepository {
	return &FlagRepository{db: db}
}

// IsEnabled reports whether the flag is on for the client, unknown flags are off
func (r *FlagRepository) IsEnabled(ctx context.Context, clientID, flag string) (bool, error) {
	var enabled []bool
	err := r.db.SelectContext(ctx, &enabled, "SELECT enabled FROM feature_flags WHERE client_id = ? AND flag = ?", clientID, flag)
	if err != nil {
		return false, fmt.Errorf("get flag %s: %w", flag, err)
	}
	return len(enabled) > 0 && enabled[0], nil
}

// SetFlag turns the flag on or off for the client
func (r *FlagRepository) SetFlag(ctx context.Context, clientID, flag string, enabled bool) error {
	query := `
		INSERT INTO feature_flags (client_id, flag, enabled, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id, flag) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at
	`
	err := retryOnLock(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, clientID, flag, enabled, time.Now().UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("set flag %s: %w", flag, err)
	}
	return nil
}
