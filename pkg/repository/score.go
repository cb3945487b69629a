package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/umputun/discovery/pkg/domain"
)

// ScoreRepository handles item scores
type ScoreRepository struct {
	db *sqlx.DB
}

// scoreSQL represents a score for SQL operations
type scoreSQL struct {
	ItemID           int64                              `db:"item_id"`
	ClientID         string                             `db:"client_id"`
	Score            float64                            `db:"score"`
	KeywordScore     float64                            `db:"keyword_score"`
	RecencyScore     float64                            `db:"recency_score"`
	SourceScore      float64                            `db:"source_score"`
	AppliedThreshold float64                            `db:"applied_threshold"`
	WeightsVersion   string                             `db:"weights_version"`
	Components       jsonColumn[domain.ScoreComponents] `db:"components_json"`
	StatusOutcome    string                             `db:"status_outcome"`
	ScoredAt         time.Time                          `db:"scored_at"`
}

// NewScoreRepository creates a new score repository
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// UpsertScores writes scores keyed by item id and moves every item to its status outcome,
// all in one transaction. Writing the same score twice leaves the same row.
func (r *ScoreRepository) UpsertScores(ctx context.Context, scores []domain.Score) error {
	if len(scores) == 0 {
		return nil
	}
	query := `
		INSERT INTO discovery_scores (
			item_id, client_id, score, keyword_score, recency_score, source_score,
			applied_threshold, weights_version, components_json, status_outcome, scored_at
		) VALUES (
			:item_id, :client_id, :score, :keyword_score, :recency_score, :source_score,
			:applied_threshold, :weights_version, :components_json, :status_outcome, :scored_at
		)
		ON CONFLICT(item_id) DO UPDATE SET
			client_id = excluded.client_id,
			score = excluded.score,
			keyword_score = excluded.keyword_score,
			recency_score = excluded.recency_score,
			source_score = excluded.source_score,
			applied_threshold = excluded.applied_threshold,
			weights_version = excluded.weights_version,
			components_json = excluded.components_json,
			status_outcome = excluded.status_outcome,
			scored_at = excluded.scored_at
	`
	err := retryOnLock(ctx, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit

		for _, s := range scores {
			if _, err := tx.NamedExecContext(ctx, query, toScoreSQL(s)); err != nil {
				return fmt.Errorf("upsert score of item %d: %w", s.ItemID, err)
			}
			if _, err := tx.ExecContext(ctx, "UPDATE discovery_items SET status = ? WHERE id = ?",
				string(s.StatusOutcome), s.ItemID); err != nil {
				return fmt.Errorf("update status of item %d: %w", s.ItemID, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("upsert scores: %w", err)
	}
	return nil
}

// GetScore returns the score of an item
func (r *ScoreRepository) GetScore(ctx context.Context, itemID int64) (*domain.Score, error) {
	var row scoreSQL
	err := r.db.GetContext(ctx, &row, "SELECT * FROM discovery_scores WHERE item_id = ?", itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get score of item %d: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get score of item %d: %w", itemID, err)
	}
	return &domain.Score{
		ItemID:           row.ItemID,
		ClientID:         row.ClientID,
		Score:            row.Score,
		KeywordScore:     row.KeywordScore,
		RecencyScore:     row.RecencyScore,
		SourceScore:      row.SourceScore,
		AppliedThreshold: row.AppliedThreshold,
		WeightsVersion:   row.WeightsVersion,
		Components:       row.Components.V,
		StatusOutcome:    domain.ItemStatus(row.StatusOutcome),
		ScoredAt:         row.ScoredAt,
	}, nil
}

func toScoreSQL(s domain.Score) *scoreSQL {
	return &scoreSQL{
		ItemID:           s.ItemID,
		ClientID:         s.ClientID,
		Score:            s.Score,
		KeywordScore:     s.KeywordScore,
		RecencyScore:     s.RecencyScore,
		SourceScore:      s.SourceScore,
		AppliedThreshold: s.AppliedThreshold,
		WeightsVersion:   s.WeightsVersion,
		Components:       jsonColumn[domain.ScoreComponents]{V: s.Components},
		StatusOutcome:    string(s.StatusOutcome),
		ScoredAt:         s.ScoredAt.UTC(),
	}
}
