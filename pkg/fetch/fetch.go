// Package fetch defines the adapter contract for discovery sources and dispatches fetches
// to the adapter registered for a source type. Adapters report failures as values in
// domain.FetchResult, mapped from HTTP and transport errors with the helpers of this package.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/umputun/discovery/pkg/domain"
)

// ErrUnknownSourceType returned when a registry is built with an unsupported source type
var ErrUnknownSourceType = errors.New("unknown source type")

// Request is everything an adapter needs to fetch one source
type Request struct {
	SourceID   int64
	ClientID   string
	Type       domain.SourceType
	Identifier string
	URL        string
	Config     domain.SourceConfig
	Now        time.Time
}

// RequestFor builds a fetch request for a source
func RequestFor(src domain.Source, now time.Time) Request {
	return Request{
		SourceID:   src.ID,
		ClientID:   src.ClientID,
		Type:       src.Type,
		Identifier: src.Identifier,
		URL:        src.URL,
		Config:     src.Config,
		Now:        now,
	}
}

// Adapter fetches a source and normalizes its content. Implementations never return errors,
// every failure is described by FetchResult.Failure.
type Adapter interface {
	Fetch(ctx context.Context, req Request) domain.FetchResult
}

// AdapterFunc is a function implementing Adapter
type AdapterFunc func(ctx context.Context, req Request) domain.FetchResult

// Fetch calls f(ctx, req)
func (f AdapterFunc) Fetch(ctx context.Context, req Request) domain.FetchResult {
	return f(ctx, req)
}

// Registry dispatches fetches to the adapter bound to the source type. The set of types is closed,
// a registry can only be built with an adapter for every type.
type Registry struct {
	adapters map[domain.SourceType]Adapter
}

// NewRegistry makes a registry, every domain.SourceTypes entry must have an adapter
func NewRegistry(adapters map[domain.SourceType]Adapter) (*Registry, error) {
	res := &Registry{adapters: make(map[domain.SourceType]Adapter, len(adapters))}
	for st, a := range adapters {
		if _, err := domain.ParseSourceType(string(st)); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSourceType, st)
		}
		if a == nil {
			return nil, fmt.Errorf("nil adapter for %s", st)
		}
		res.adapters[st] = a
	}
	for _, st := range domain.SourceTypes {
		if _, ok := res.adapters[st]; !ok {
			return nil, fmt.Errorf("no adapter for source type %s", st)
		}
	}
	return res, nil
}

// Fetch dispatches req to the adapter of req.Type and drops candidates failing validation
func (r *Registry) Fetch(ctx context.Context, req Request) domain.FetchResult {
	a, ok := r.adapters[req.Type]
	if !ok {
		return domain.FetchFailed(domain.Failure{Reason: domain.FailureUnknown,
			Message: fmt.Sprintf("no adapter for source type %q", req.Type)}, domain.FetchMetadata{})
	}
	res := a.Fetch(ctx, req)
	if !res.OK() {
		return res
	}
	res.Items, res.Metadata.Skipped = Validated(res.Items, res.Metadata.Skipped)
	return res
}

// Validated returns items passing NormalizedItem.Validate, appending the rest to skipped.
// Skipped entries keep the item's position in the fetched document.
func Validated(items []domain.NormalizedItem, skipped []domain.SkippedEntry) ([]domain.NormalizedItem, []domain.SkippedEntry) {
	valid := make([]domain.NormalizedItem, 0, len(items))
	for _, item := range items {
		if err := item.Validate(); err != nil {
			skipped = append(skipped, domain.SkippedEntry{Index: item.Position, ExternalID: item.ExternalID, Reason: SkipInvalidItem})
			continue
		}
		valid = append(valid, item)
	}
	return valid, skipped
}

// skip reasons reported in FetchMetadata.Skipped
const (
	SkipEmptyContent = "empty_content"
	SkipMissingLink  = "missing_link"
	SkipInvalidItem  = "invalid_item"
	SkipUnavailable  = "unavailable"
)
