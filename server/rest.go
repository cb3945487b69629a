package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/umputun/discovery/pkg/domain"
	"github.com/umputun/discovery/pkg/events"
	"github.com/umputun/discovery/pkg/normalize"
	"github.com/umputun/discovery/pkg/repository"
	"github.com/umputun/discovery/pkg/scheduler"
)

const defaultRunsLimit = 20

// sourceResponse is the api view of a source
type sourceResponse struct {
	ID                   int64                  `json:"id"`
	ClientID             string                 `json:"clientId"`
	Type                 domain.SourceType      `json:"sourceType"`
	Identifier           string                 `json:"identifier"`
	URL                  string                 `json:"url"`
	FetchIntervalMinutes int                    `json:"fetchIntervalMinutes"`
	NextFetchAt          *time.Time             `json:"nextFetchAt,omitempty"`
	LastFetchStatus      domain.FetchStatus     `json:"lastFetchStatus"`
	LastFetchCompletedAt *time.Time             `json:"lastFetchCompletedAt,omitempty"`
	LastFailureReason    domain.FailureReason   `json:"lastFailureReason,omitempty"`
	ConsecutiveFailures  int                    `json:"consecutiveFailures"`
	LastSuccessAt        *time.Time             `json:"lastSuccessAt,omitempty"`
	Health               *domain.HealthSnapshot `json:"health,omitempty"`
	Config               domain.SourceConfig    `json:"config"`
	CreatedAt            time.Time              `json:"createdAt"`
	Runs                 []runResponse          `json:"runs,omitempty"`
}

type runResponse struct {
	RunID          string               `json:"runId"`
	StartedAt      time.Time            `json:"startedAt"`
	CompletedAt    time.Time            `json:"completedAt"`
	Status         domain.RunStatus     `json:"status"`
	FailureReason  domain.FailureReason `json:"failureReason,omitempty"`
	RetryInMinutes *int                 `json:"retryInMinutes,omitempty"`
	Metrics        map[string]any       `json:"metrics"`
	Telemetry      map[string]any       `json:"telemetry"`
}

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
	}
	renderJSON(w, r, http.StatusOK, status)
}

// runIngestionHandler runs one ingestion pass and returns its stats.
// Body is optional, {"workerLimit": n, "batchSize": n} override the defaults.
func (s *Server) runIngestionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkerLimit int `json:"workerLimit"`
		BatchSize   int `json:"batchSize"`
	}
	if err := decodeOptional(r, &req); err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}
	if req.WorkerLimit < 0 || req.BatchSize < 0 {
		renderError(w, r, errors.New("workerLimit and batchSize must not be negative"), http.StatusBadRequest)
		return
	}

	stats, err := s.scheduler.RunNow(r.Context(), scheduler.RunOptions{WorkerLimit: req.WorkerLimit, BatchSize: req.BatchSize})
	if err != nil {
		log.Printf("[ERROR] ingestion run failed: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, stats)
}

// createSourceHandler registers a source from a url, the url is normalized and classified
func (s *Server) createSourceHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID             string `json:"clientId"`
		URL                  string `json:"url"`
		FetchIntervalMinutes int    `json:"fetchIntervalMinutes"`
		MaxResults           int    `json:"maxResults"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ClientID) == "" {
		renderError(w, r, errors.New("clientId is required"), http.StatusBadRequest)
		return
	}
	if req.FetchIntervalMinutes < 0 {
		renderError(w, r, errors.New("fetchIntervalMinutes must not be negative"), http.StatusBadRequest)
		return
	}

	target, err := normalize.Normalize(req.URL)
	if err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}

	src := &domain.Source{
		ClientID:             strings.TrimSpace(req.ClientID),
		Type:                 target.Type,
		Identifier:           target.Identifier,
		URL:                  target.CanonicalURL,
		FetchIntervalMinutes: req.FetchIntervalMinutes,
	}
	if target.Type.IsYouTube() {
		src.Config.MaxResults = req.MaxResults
	}

	if err := s.store.CreateSource(r.Context(), src); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			renderError(w, r, err, http.StatusConflict)
			return
		}
		log.Printf("[ERROR] failed to create source: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	log.Printf("[INFO] registered %s source %q for %s", src.Type, src.Identifier, src.ClientID)
	renderJSON(w, r, http.StatusCreated, toSourceResponse(src, nil))
}

// getSourceHandler returns a source with its latest runs, ?runs=n limits the run history
func (s *Server) getSourceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		renderError(w, r, errors.New("invalid source ID"), http.StatusBadRequest)
		return
	}
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("runs"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			renderError(w, r, errors.New("invalid runs limit"), http.StatusBadRequest)
			return
		}
	}

	src, err := s.store.GetSource(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			renderError(w, r, err, http.StatusNotFound)
			return
		}
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	var runs []domain.IngestRun
	if limit > 0 {
		if runs, err = s.store.ListRuns(r.Context(), id, limit); err != nil {
			log.Printf("[ERROR] failed to list runs of source %d: %v", id, err)
			renderError(w, r, err, http.StatusInternalServerError)
			return
		}
	}
	renderJSON(w, r, http.StatusOK, toSourceResponse(src, runs))
}

// setKeywordsHandler replaces keywords of a client and publishes keyword.updated
func (s *Server) setKeywordsHandler(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client")
	var req struct {
		Keywords []string `json:"keywords"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}

	stored, err := s.store.SetKeywords(r.Context(), clientID, req.Keywords)
	if err != nil {
		log.Printf("[ERROR] failed to set keywords of %s: %v", clientID, err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	if s.events != nil {
		s.events.Publish(events.Event{Type: events.KeywordUpdated, ClientID: clientID,
			Payload: map[string]any{"keywords": stored}})
	}
	renderJSON(w, r, http.StatusOK, map[string]any{"clientId": clientID, "keywords": stored})
}

// setFlagHandler turns a client feature flag on or off, body is {"enabled": bool}
func (s *Server) setFlagHandler(w http.ResponseWriter, r *http.Request) {
	clientID, flag := r.PathValue("client"), r.PathValue("flag")
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		renderError(w, r, errors.New("body must be {\"enabled\": true|false}"), http.StatusBadRequest)
		return
	}
	if err := s.store.SetFlag(r.Context(), clientID, flag, *req.Enabled); err != nil {
		log.Printf("[ERROR] failed to set flag %s of %s: %v", flag, clientID, err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]any{"clientId": clientID, "flag": flag, "enabled": *req.Enabled})
}

func toSourceResponse(src *domain.Source, runs []domain.IngestRun) sourceResponse {
	res := sourceResponse{
		ID:                   src.ID,
		ClientID:             src.ClientID,
		Type:                 src.Type,
		Identifier:           src.Identifier,
		URL:                  src.URL,
		FetchIntervalMinutes: src.FetchIntervalMinutes,
		NextFetchAt:          src.NextFetchAt,
		LastFetchStatus:      src.LastFetchStatus,
		LastFetchCompletedAt: src.LastFetchCompletedAt,
		LastFailureReason:    src.LastFailureReason,
		ConsecutiveFailures:  src.ConsecutiveFailures,
		LastSuccessAt:        src.LastSuccessAt,
		Health:               src.Health,
		Config:               src.Config,
		CreatedAt:            src.CreatedAt,
	}
	for _, run := range runs {
		res.Runs = append(res.Runs, runResponse{
			RunID:          run.RunID,
			StartedAt:      run.StartedAt,
			CompletedAt:    run.CompletedAt,
			Status:         run.Status,
			FailureReason:  run.FailureReason,
			RetryInMinutes: run.RetryInMinutes,
			Metrics:        run.Metrics,
			Telemetry:      run.Telemetry,
		})
	}
	return res
}

// decodeOptional decodes a json body if there is one
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}
