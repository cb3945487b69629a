package server

import (
	"context"

	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/repository"
)

// RepositoryAdapter adapts repositories to server.Store interface
type RepositoryAdapter struct {
	repos *repository.Repositories
}

// NewRepositoryAdapter creates a new repository adapter
func NewRepositoryAdapter(repos *repository.Repositories) *RepositoryAdapter {
	return &RepositoryAdapter{repos: repos}
}

// CreateSource registers a new source
func (r *RepositoryAdapter) CreateSource(ctx context.Context, src *domain.Source) error {
	return r.repos.Source.CreateSource(ctx, src)
}

// GetSource returns a source by id
func (r *RepositoryAdapter) GetSource(ctx context.Context, id int64) (*domain.Source, error) {
	return r.repos.Source.GetSource(ctx, id)
}

// ListRuns returns the latest ingest runs of a source
func (r *RepositoryAdapter) ListRuns(ctx context.Context, sourceID int64, limit int) ([]domain.IngestRun, error) {
	return r.repos.Source.ListRuns(ctx, sourceID, limit)
}

// SetKeywords replaces the keywords of a client
func (r *RepositoryAdapter) SetKeywords(ctx context.Context, clientID string, keywords []string) ([]string, error) {
	return r.repos.Keyword.SetKeywords(ctx, clientID, keywords)
}

// SetFlag turns a client feature flag on or off
func (r *RepositoryAdapter) SetFlag(ctx context.Context, clientID, flag string, enabled bool) error {
	return r.repos.Flag.SetFlag(ctx, clientID, flag, enabled)
}
