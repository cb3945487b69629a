package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/health"
)

// DefaultFetchIntervalMinutes is used for sources without a positive fetch interval
const DefaultFetchIntervalMinutes = 60

// ErrDuplicate is returned when a source with the same duplicate key exists for the client
var ErrDuplicate = errors.New("duplicate source")

// SourceRepository handles discovery sources, their claim cycle and ingest runs
type SourceRepository struct {
	db *sqlx.DB
}

// sourceSQL represents a source for SQL operations
type sourceSQL struct {
	ID                   int64                               `db:"id"`
	ClientID             string                              `db:"client_id"`
	SourceType           string                              `db:"source_type"`
	Identifier           string                              `db:"identifier"`
	URL                  string                              `db:"url"`
	FetchIntervalMinutes int                                 `db:"fetch_interval_minutes"`
	NextFetchAt          *time.Time                          `db:"next_fetch_at"`
	LastFetchStatus      string                              `db:"last_fetch_status"`
	LastFetchStartedAt   *time.Time                          `db:"last_fetch_started_at"`
	LastFetchCompletedAt *time.Time                          `db:"last_fetch_completed_at"`
	LastFailureReason    string                              `db:"last_failure_reason"`
	ConsecutiveFailures  int                                 `db:"consecutive_failure_count"`
	LastSuccessAt        *time.Time                          `db:"last_success_at"`
	Health               jsonColumn[*domain.HealthSnapshot] `db:"health_json"`
	Config               jsonColumn[domain.SourceConfig]     `db:"config_json"`
	CreatedAt            time.Time                           `db:"created_at"`
}

// runSQL represents an ingest run for SQL operations
type runSQL struct {
	ID             int64                      `db:"id"`
	RunID          string                     `db:"run_id"`
	SourceID       int64                      `db:"source_id"`
	ClientID       string                     `db:"client_id"`
	StartedAt      time.Time                  `db:"started_at"`
	CompletedAt    time.Time                  `db:"completed_at"`
	Status         string                     `db:"status"`
	FailureReason  string                     `db:"failure_reason"`
	RetryInMinutes *int                       `db:"retry_in_minutes"`
	Metrics        jsonColumn[map[string]any] `db:"metrics_json"`
	Telemetry      jsonColumn[map[string]any] `db:"telemetry_json"`
}

// CompleteRequest is the outcome of one fetch cycle of a claimed source
type CompleteRequest struct {
	SourceID       int64
	RunID          string // generated if empty
	StartedAt      time.Time
	CompletedAt    time.Time
	FailureReason  domain.FailureReason // empty on success
	RetryInMinutes *int                 // overrides the fetch interval for the next fetch
	Metrics        map[string]any
	Telemetry      map[string]any
}

// CompleteResult reports the health transition made by Complete or Release
type CompleteResult struct {
	Previous    *domain.HealthSnapshot
	Health      domain.HealthSnapshot
	NextFetchAt time.Time
}

// NewSourceRepository creates a new source repository
func NewSourceRepository(db *sqlx.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// CreateSource registers a new source, returns ErrDuplicate if the client already has it
func (r *SourceRepository) CreateSource(ctx context.Context, src *domain.Source) error {
	if _, err := domain.ParseSourceType(string(src.Type)); err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	if src.FetchIntervalMinutes <= 0 {
		src.FetchIntervalMinutes = DefaultFetchIntervalMinutes
	}
	if src.LastFetchStatus == "" {
		src.LastFetchStatus = domain.FetchIdle
	}
	src.CreatedAt = time.Now().UTC()

	row := &sourceSQL{
		ClientID:             src.ClientID,
		SourceType:           string(src.Type),
		Identifier:           src.Identifier,
		URL:                  src.URL,
		FetchIntervalMinutes: src.FetchIntervalMinutes,
		NextFetchAt:          utc(src.NextFetchAt),
		LastFetchStatus:      string(src.LastFetchStatus),
		Health:               jsonColumn[*domain.HealthSnapshot]{V: src.Health},
		Config:               jsonColumn[domain.SourceConfig]{V: src.Config},
		CreatedAt:            src.CreatedAt,
	}
	query := `
		INSERT INTO discovery_sources (
			client_id, source_type, identifier, url, fetch_interval_minutes, next_fetch_at,
			last_fetch_status, health_json, config_json, created_at
		) VALUES (
			:client_id, :source_type, :identifier, :url, :fetch_interval_minutes, :next_fetch_at,
			:last_fetch_status, :health_json, :config_json, :created_at
		)
	`
	var result sql.Result
	err := retryOnLock(ctx, func() (err error) {
		result, err = r.db.NamedExecContext(ctx, query, row)
		return err
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("create source %s: %w", src.DuplicateKey(), ErrDuplicate)
		}
		return fmt.Errorf("create source: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get insert id: %w", err)
	}
	src.ID = id
	return nil
}

// GetSource retrieves a source by ID
func (r *SourceRepository) GetSource(ctx context.Context, id int64) (*domain.Source, error) {
	var row sourceSQL
	err := r.db.GetContext(ctx, &row, "SELECT * FROM discovery_sources WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get source %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get source %d: %w", id, err)
	}
	return row.toDomain(), nil
}

// ListDue returns sources due at now and not running, oldest schedule first.
// Sources never scheduled (null next_fetch_at) are due immediately and go first.
// Only clients with the discovery flag enabled are listed, disabled ones keep their schedule untouched.
func (r *SourceRepository) ListDue(ctx context.Context, limit int, now time.Time) ([]domain.Source, error) {
	query := `
		SELECT s.* FROM discovery_sources s
		JOIN feature_flags f ON f.client_id = s.client_id AND f.flag = ? AND f.enabled != 0
		WHERE s.last_fetch_status != 'running'
		AND (s.next_fetch_at IS NULL OR s.next_fetch_at <= ?)
		ORDER BY s.next_fetch_at ASC, s.id ASC
		LIMIT ?
	`
	var rows []sourceSQL
	if err := r.db.SelectContext(ctx, &rows, query, domain.FlagDiscoveryAgent, now.UTC(), limit); err != nil {
		return nil, fmt.Errorf("list due sources: %w", err)
	}
	res := make([]domain.Source, len(rows))
	for i := range rows {
		res[i] = *rows[i].toDomain()
	}
	return res, nil
}

// Claim atomically marks a due, not running source as running. Returns nil without error if
// the source was taken by another worker or is no longer due.
func (r *SourceRepository) Claim(ctx context.Context, id int64, now time.Time) (*domain.Source, error) {
	query := `
		UPDATE discovery_sources
		SET last_fetch_status = 'running', last_fetch_started_at = ?
		WHERE id = ?
		AND last_fetch_status != 'running'
		AND (next_fetch_at IS NULL OR next_fetch_at <= ?)
		RETURNING *
	`
	now = now.UTC()
	var row sourceSQL
	claimed := false
	err := retryOnLock(ctx, func() error {
		err := r.db.GetContext(ctx, &row, query, now, id, now)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim source %d: %w", id, err)
	}
	if !claimed {
		return nil, nil
	}
	return row.toDomain(), nil
}

// Complete records a finished fetch cycle in one transaction: it appends the ingest run,
// recomputes health and schedules the next fetch at completedAt + (retry delay or interval).
func (r *SourceRepository) Complete(ctx context.Context, req CompleteRequest) (CompleteResult, error) {
	var res CompleteResult
	err := retryOnLock(ctx, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit

		var row sourceSQL
		if err = tx.GetContext(ctx, &row, "SELECT * FROM discovery_sources WHERE id = ?", req.SourceID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("source %d: %w", req.SourceID, ErrNotFound)
			}
			return err
		}
		src := row.toDomain()

		if err = insertRun(ctx, tx, src.ClientID, req); err != nil {
			return err
		}

		res = outcome(src, req)
		if err = updateOutcome(ctx, tx, req, res); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return CompleteResult{}, fmt.Errorf("complete source %d: %w", req.SourceID, err)
	}
	return res, nil
}

// Release is the non-transactional fallback of Complete. It resets the running status, health
// and schedule of the claimed source without writing an ingest run, so a failed Complete
// doesn't leave the source running forever.
func (r *SourceRepository) Release(ctx context.Context, claimed domain.Source, req CompleteRequest) (CompleteResult, error) {
	req.SourceID = claimed.ID
	res := outcome(&claimed, req)
	err := retryOnLock(ctx, func() error {
		return updateOutcome(ctx, r.db, req, res)
	})
	if err != nil {
		return CompleteResult{}, fmt.Errorf("release source %d: %w", claimed.ID, err)
	}
	return res, nil
}

// StaleSource is a source marked stale by MarkStale
type StaleSource struct {
	Source   domain.Source
	Previous *domain.HealthSnapshot
}

// MarkStale flags sources whose last completed fetch (or creation, if never fetched) is older
// than cutoff and which are not running. Only health is updated, the schedule is not touched.
func (r *SourceRepository) MarkStale(ctx context.Context, cutoff, now time.Time) ([]StaleSource, error) {
	query := `
		SELECT * FROM discovery_sources
		WHERE last_fetch_status != 'running'
		AND COALESCE(last_fetch_completed_at, created_at) < ?
		ORDER BY id
	`
	var rows []sourceSQL
	if err := r.db.SelectContext(ctx, &rows, query, cutoff.UTC()); err != nil {
		return nil, fmt.Errorf("select stale sources: %w", err)
	}

	res := make([]StaleSource, 0, len(rows))
	for i := range rows {
		src := rows[i].toDomain()
		snap := health.Stale(src.Health, src.ConsecutiveFailures, now)
		var updated int64
		err := retryOnLock(ctx, func() error {
			result, err := r.db.ExecContext(ctx,
				"UPDATE discovery_sources SET health_json = ? WHERE id = ? AND last_fetch_status != 'running'",
				jsonColumn[*domain.HealthSnapshot]{V: &snap}, src.ID)
			if err != nil {
				return err
			}
			updated, err = result.RowsAffected()
			return err
		})
		if err != nil {
			return res, fmt.Errorf("mark source %d stale: %w", src.ID, err)
		}
		if updated == 0 {
			continue // claimed meanwhile
		}
		prev := src.Health
		src.Health = &snap
		res = append(res, StaleSource{Source: *src, Previous: prev})
	}
	return res, nil
}

// ListRuns returns the latest ingest runs of a source, newest first
func (r *SourceRepository) ListRuns(ctx context.Context, sourceID int64, limit int) ([]domain.IngestRun, error) {
	query := `
		SELECT * FROM discovery_ingest_runs
		WHERE source_id = ?
		ORDER BY completed_at DESC, id DESC
		LIMIT ?
	`
	var rows []runSQL
	if err := r.db.SelectContext(ctx, &rows, query, sourceID, limit); err != nil {
		return nil, fmt.Errorf("list runs of source %d: %w", sourceID, err)
	}
	res := make([]domain.IngestRun, len(rows))
	for i, row := range rows {
		res[i] = domain.IngestRun{
			RunID:          row.RunID,
			SourceID:       row.SourceID,
			ClientID:       row.ClientID,
			StartedAt:      row.StartedAt,
			CompletedAt:    row.CompletedAt,
			Status:         domain.RunStatus(row.Status),
			FailureReason:  domain.FailureReason(row.FailureReason),
			RetryInMinutes: row.RetryInMinutes,
			Metrics:        row.Metrics.V,
			Telemetry:      row.Telemetry.V,
		}
	}
	return res, nil
}

func insertRun(ctx context.Context, tx *sqlx.Tx, clientID string, req CompleteRequest) error {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	status := domain.RunSucceeded
	if req.FailureReason != "" {
		status = domain.RunFailed
	}
	row := &runSQL{
		RunID:          runID,
		SourceID:       req.SourceID,
		ClientID:       clientID,
		StartedAt:      req.StartedAt.UTC(),
		CompletedAt:    req.CompletedAt.UTC(),
		Status:         string(status),
		FailureReason:  string(req.FailureReason),
		RetryInMinutes: req.RetryInMinutes,
		Metrics:        jsonColumn[map[string]any]{V: nonNilMap(req.Metrics)},
		Telemetry:      jsonColumn[map[string]any]{V: nonNilMap(req.Telemetry)},
	}
	query := `
		INSERT INTO discovery_ingest_runs (
			run_id, source_id, client_id, started_at, completed_at, status, failure_reason,
			retry_in_minutes, metrics_json, telemetry_json
		) VALUES (
			:run_id, :source_id, :client_id, :started_at, :completed_at, :status, :failure_reason,
			:retry_in_minutes, :metrics_json, :telemetry_json
		)
	`
	if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("insert ingest run: %w", err)
	}
	return nil
}

// outcome computes health and the next schedule of a source after a fetch cycle
func outcome(src *domain.Source, req CompleteRequest) CompleteResult {
	interval := src.FetchIntervalMinutes
	if interval <= 0 {
		interval = DefaultFetchIntervalMinutes
	}
	if req.RetryInMinutes != nil {
		interval = *req.RetryInMinutes
	}
	completed := req.CompletedAt.UTC()
	return CompleteResult{
		Previous:    src.Health,
		Health:      health.Next(src.Health, src.ConsecutiveFailures, req.FailureReason, completed),
		NextFetchAt: completed.Add(time.Duration(interval) * time.Minute),
	}
}

func updateOutcome(ctx context.Context, db sqlx.ExecerContext, req CompleteRequest, res CompleteResult) error {
	status := domain.FetchSuccess
	if req.FailureReason != "" {
		status = domain.FetchFailure
	}
	query := `
		UPDATE discovery_sources
		SET last_fetch_status = ?,
		    last_fetch_completed_at = ?,
		    last_failure_reason = ?,
		    consecutive_failure_count = ?,
		    last_success_at = ?,
		    health_json = ?,
		    next_fetch_at = ?
		WHERE id = ?
	`
	_, err := db.ExecContext(ctx, query, string(status), req.CompletedAt.UTC(), string(req.FailureReason),
		res.Health.ConsecutiveFailures, utc(res.Health.LastSuccessAt),
		jsonColumn[*domain.HealthSnapshot]{V: &res.Health}, res.NextFetchAt, req.SourceID)
	if err != nil {
		return fmt.Errorf("update source outcome: %w", err)
	}
	return nil
}

func (s *sourceSQL) toDomain() *domain.Source {
	return &domain.Source{
		ID:                   s.ID,
		ClientID:             s.ClientID,
		Type:                 domain.SourceType(s.SourceType),
		Identifier:           s.Identifier,
		URL:                  s.URL,
		FetchIntervalMinutes: s.FetchIntervalMinutes,
		NextFetchAt:          s.NextFetchAt,
		LastFetchStatus:      domain.FetchStatus(s.LastFetchStatus),
		LastFetchStartedAt:   s.LastFetchStartedAt,
		LastFetchCompletedAt: s.LastFetchCompletedAt,
		LastFailureReason:    domain.FailureReason(s.LastFailureReason),
		ConsecutiveFailures:  s.ConsecutiveFailures,
		LastSuccessAt:        s.LastSuccessAt,
		Health:               s.Health.V,
		Config:               s.Config.V,
		CreatedAt:            s.CreatedAt,
	}
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
