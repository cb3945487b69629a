package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/umputun/discovery/pkg/domain"
)

// ItemRepository handles discovered items
type ItemRepository struct {
	db *sqlx.DB
}

// itemSQL represents an item for SQL operations
type itemSQL struct {
	ID                int64                             `db:"id"`
	ClientID          string                            `db:"client_id"`
	SourceID          int64                             `db:"source_id"`
	ExternalID        string                            `db:"external_id"`
	Title             string                            `db:"title"`
	URL               string                            `db:"url"`
	Status            string                            `db:"status"`
	RawHash           string                            `db:"raw_hash"`
	FetchedAt         time.Time                         `db:"fetched_at"`
	PublishedAt       *time.Time                        `db:"published_at"`
	PublishedAtSource string                            `db:"published_at_source"`
	Normalized        jsonColumn[domain.NormalizedItem] `db:"normalized_json"`
	RawPayload        jsonColumn[map[string]any]        `db:"raw_payload_json"`
	SourceMetadata    jsonColumn[map[string]any]        `db:"source_metadata_json"`
	CreatedAt         time.Time                         `db:"created_at"`
}

// InsertResult reports the outcome of an idempotent batch insert
type InsertResult struct {
	Inserted   []int64 // ids of the new items
	Duplicates int
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// InsertItems inserts items whose raw hash is new for their client as pending_scoring.
// Existing hashes are looked up in one query per client, the new rows are written in one
// transaction and a unique conflict from a concurrent insert is counted as a duplicate.
func (r *ItemRepository) InsertItems(ctx context.Context, items []domain.Item) (InsertResult, error) {
	res := InsertResult{}
	if len(items) == 0 {
		return res, nil
	}

	existing, err := r.existingHashes(ctx, items)
	if err != nil {
		return res, err
	}

	fresh := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if existing[it.ClientID][it.RawHash] {
			res.Duplicates++
			continue
		}
		fresh = append(fresh, it)
	}
	if len(fresh) == 0 {
		return res, nil
	}

	query := `
		INSERT INTO discovery_items (
			client_id, source_id, external_id, title, url, status, raw_hash, fetched_at,
			published_at, published_at_source, normalized_json, raw_payload_json, source_metadata_json, created_at
		) VALUES (
			:client_id, :source_id, :external_id, :title, :url, :status, :raw_hash, :fetched_at,
			:published_at, :published_at_source, :normalized_json, :raw_payload_json, :source_metadata_json, :created_at
		)
		ON CONFLICT(client_id, raw_hash) DO NOTHING
	`
	var inserted []int64
	var conflicts int
	err = retryOnLock(ctx, func() error {
		inserted, conflicts = nil, 0
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit

		now := time.Now().UTC()
		for _, it := range fresh {
			result, err := tx.NamedExecContext(ctx, query, toItemSQL(it, now))
			if err != nil {
				return fmt.Errorf("insert item %q: %w", it.ExternalID, err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if affected == 0 {
				conflicts++
				continue
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("get insert id: %w", err)
			}
			inserted = append(inserted, id)
		}
		return tx.Commit()
	})
	if err != nil {
		return InsertResult{Duplicates: res.Duplicates}, fmt.Errorf("insert items: %w", err)
	}
	res.Inserted = inserted
	res.Duplicates += conflicts
	return res, nil
}

// ResetToPending moves items back to pending_scoring so they get scored again later
func (r *ItemRepository) ResetToPending(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("UPDATE discovery_items SET status = ? WHERE id IN (?)", string(domain.ItemPendingScoring), ids)
	if err != nil {
		return fmt.Errorf("build reset query: %w", err)
	}
	err = retryOnLock(ctx, func() error {
		_, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("reset items to pending: %w", err)
	}
	return nil
}

// CountPending returns the number of items of the client waiting for scoring
func (r *ItemRepository) CountPending(ctx context.Context, clientID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM discovery_items WHERE client_id = ? AND status = ?", clientID, string(domain.ItemPendingScoring))
	if err != nil {
		return 0, fmt.Errorf("count pending items: %w", err)
	}
	return count, nil
}

// FetchItemsByIDs loads items by ids, missing ids are simply absent from the result
func (r *ItemRepository) FetchItemsByIDs(ctx context.Context, ids []int64) ([]domain.Item, error) {
	if len(ids) == 0 {
		return []domain.Item{}, nil
	}
	query, args, err := sqlx.In("SELECT * FROM discovery_items WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, fmt.Errorf("build fetch query: %w", err)
	}
	var rows []itemSQL
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}
	res := make([]domain.Item, len(rows))
	for i := range rows {
		res[i] = rows[i].toDomain()
	}
	return res, nil
}

// ListPending returns ids of pending_scoring items with id above afterID grouped by client, oldest first.
// Items of clients without the discovery flag enabled are not listed.
func (r *ItemRepository) ListPending(ctx context.Context, afterID int64, limit int) (map[string][]int64, error) {
	var rows []struct {
		ID       int64  `db:"id"`
		ClientID string `db:"client_id"`
	}
	query := `
		SELECT i.id, i.client_id FROM discovery_items i
		JOIN feature_flags f ON f.client_id = i.client_id AND f.flag = ? AND f.enabled != 0
		WHERE i.status = ? AND i.id > ?
		ORDER BY i.id
		LIMIT ?
	`
	err := r.db.SelectContext(ctx, &rows, query, domain.FlagDiscoveryAgent, string(domain.ItemPendingScoring), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending items: %w", err)
	}
	res := map[string][]int64{}
	for _, row := range rows {
		res[row.ClientID] = append(res[row.ClientID], row.ID)
	}
	return res, nil
}

// existingHashes returns the already stored hashes among the items, keyed by client
func (r *ItemRepository) existingHashes(ctx context.Context, items []domain.Item) (map[string]map[string]bool, error) {
	byClient := map[string][]string{}
	for _, it := range items {
		byClient[it.ClientID] = append(byClient[it.ClientID], it.RawHash)
	}

	res := make(map[string]map[string]bool, len(byClient))
	for clientID, hashes := range byClient {
		query, args, err := sqlx.In("SELECT raw_hash FROM discovery_items WHERE client_id = ? AND raw_hash IN (?)", clientID, hashes)
		if err != nil {
			return nil, fmt.Errorf("build hash query: %w", err)
		}
		var found []string
		if err := r.db.SelectContext(ctx, &found, r.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("lookup existing hashes: %w", err)
		}
		res[clientID] = make(map[string]bool, len(found))
		for _, h := range found {
			res[clientID][h] = true
		}
	}
	return res, nil
}

func toItemSQL(it domain.Item, now time.Time) *itemSQL {
	status := it.Status
	if status == "" {
		status = domain.ItemPendingScoring
	}
	return &itemSQL{
		ClientID:          it.ClientID,
		SourceID:          it.SourceID,
		ExternalID:        it.ExternalID,
		Title:             it.Title,
		URL:               it.URL,
		Status:            string(status),
		RawHash:           it.RawHash,
		FetchedAt:         it.FetchedAt.UTC(),
		PublishedAt:       utc(it.PublishedAt),
		PublishedAtSource: string(it.PublishedAtSource),
		Normalized:        jsonColumn[domain.NormalizedItem]{V: it.Normalized},
		RawPayload:        jsonColumn[map[string]any]{V: nonNilMap(it.RawPayload)},
		SourceMetadata:    jsonColumn[map[string]any]{V: nonNilMap(it.SourceMetadata)},
		CreatedAt:         now,
	}
}

func (s *itemSQL) toDomain() domain.Item {
	return domain.Item{
		ID:                s.ID,
		ClientID:          s.ClientID,
		SourceID:          s.SourceID,
		ExternalID:        s.ExternalID,
		Title:             s.Title,
		URL:               s.URL,
		Status:            domain.ItemStatus(s.Status),
		RawHash:           s.RawHash,
		FetchedAt:         s.FetchedAt,
		PublishedAt:       s.PublishedAt,
		PublishedAtSource: domain.PublishedAtSource(s.PublishedAtSource),
		Normalized:        s.Normalized.V,
		RawPayload:        s.RawPayload.V,
		SourceMetadata:    s.SourceMetadata.V,
		CreatedAt:         s.CreatedAt,
	}
}
