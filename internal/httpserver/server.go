package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radiusdt/flowlens/internal/config"
	"github.com/radiusdt/flowlens/internal/flow"
	"github.com/radiusdt/flowlens/internal/ingest"
	"github.com/radiusdt/flowlens/internal/metrics"
	"github.com/radiusdt/flowlens/internal/models"
	"github.com/radiusdt/flowlens/internal/similarity"
	"github.com/radiusdt/flowlens/internal/storage"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Source  storage.RecordSource
	Uploads *storage.MemorySource
	Scorer  similarity.Scorer
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Session is one analysis session over a campaign table. A session pins
// the view mode and the currently active flow between requests.
type Session struct {
	ID         string        `json:"id"`
	CampaignID string        `json:"campaign_id"`
	Mode       flow.ViewMode `json:"mode"`
	Flow       *models.Flow  `json:"flow,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Server wraps HTTP handlers and the flow engine.
type Server struct {
	engine  *flow.Engine
	loader  *ingest.Loader
	source  storage.RecordSource
	uploads *storage.MemorySource
	scorer  similarity.Scorer
	logger  *zap.Logger
	config  *config.Config
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	uploads := deps.Uploads
	if uploads == nil {
		uploads = storage.NewMemorySource()
	}

	loader := ingest.NewLoader(deps.Logger)
	loader.SetMetrics(deps.Metrics)

	s := &Server{
		engine:   flow.NewEngine(deps.Logger, deps.Metrics),
		loader:   loader,
		source:   deps.Source,
		uploads:  uploads,
		scorer:   deps.Scorer,
		logger:   deps.Logger,
		config:   deps.Config,
		metrics:  deps.Metrics,
		sessions: make(map[string]*Session),
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Campaign tables: upload, selection, ranking, overview
	mux.HandleFunc("/campaigns/", s.handleCampaign)

	// Analysis sessions
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessionByID)

	// Relevance scoring
	mux.HandleFunc("/similarity/score", s.handleSimilarity)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Campaigns ----

// records loads the working table for a campaign: an uploaded export wins
// over the configured backend so an analyst can iterate on a fresh file
// without touching the warehouse.
func (s *Server) records(r *http.Request, campaignID string) ([]models.PerformanceRecord, error) {
	rows, err := s.uploads.Records(r.Context(), campaignID)
	if err == nil && len(rows) > 0 {
		return rows, nil
	}
	if s.source == nil {
		return rows, nil
	}
	return s.source.Records(r.Context(), campaignID)
}

func (s *Server) handleCampaign(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/campaigns/")
	parts := strings.SplitN(rest, "/", 2)
	campaignID := parts[0]
	if campaignID == "" {
		http.NotFound(w, r)
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "upload":
		s.handleUpload(w, r, campaignID)
	case "flows/default":
		s.handleDefaultFlow(w, r, campaignID)
	case "flows/best":
		s.handleRankedFlows(w, r, campaignID, false)
	case "flows/worst":
		s.handleRankedFlows(w, r, campaignID, true)
	case "overview":
		s.handleOverview(w, r, campaignID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, campaignID string) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.config.Data.MaxUploadBytes)
	defer body.Close()

	records, err := s.loader.Load(body)
	if err != nil {
		s.logger.Warn("export upload failed",
			zap.String("campaign_id", campaignID), zap.Error(err))
		s.errorResponse(w, "failed to parse export: "+err.Error(), http.StatusBadRequest)
		return
	}

	raw := len(records)
	if r.URL.Query().Get("optimize") != "false" {
		records = ingest.Optimize(records, s.config.Data.KeepPerFlow, s.logger)
	}
	s.uploads.Put(campaignID, records)

	s.logger.Info("export uploaded",
		zap.String("campaign_id", campaignID),
		zap.Int("rows_raw", raw),
		zap.Int("rows_kept", len(records)),
	)
	s.jsonResponse(w, map[string]int{"rows_raw": raw, "rows_kept": len(records)})
}

func (s *Server) handleDefaultFlow(w http.ResponseWriter, r *http.Request, campaignID string) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := s.records(r, campaignID)
	if err != nil {
		s.logger.Error("failed to load records", zap.Error(err))
		s.errorResponse(w, "failed to load records", http.StatusInternalServerError)
		return
	}

	f := s.engine.Default(records)
	if f == nil {
		s.errorResponse(w, "no flow available", http.StatusNotFound)
		return
	}
	s.jsonResponse(w, f)
}

func (s *Server) handleRankedFlows(w http.ResponseWriter, r *http.Request, campaignID string, worst bool) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := s.records(r, campaignID)
	if err != nil {
		s.logger.Error("failed to load records", zap.Error(err))
		s.errorResponse(w, "failed to load records", http.StatusInternalServerError)
		return
	}

	n := s.config.Data.DefaultTopN
	if v := r.URL.Query().Get("count"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			n = i
		}
	}
	includeSerp := r.URL.Query().Get("serp") != "false"

	var flows []models.Flow
	if worst {
		flows = s.engine.Worst(records, n, includeSerp)
	} else {
		flows = s.engine.Best(records, n, includeSerp)
	}
	if flows == nil {
		flows = []models.Flow{}
	}
	s.jsonResponse(w, flows)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request, campaignID string) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := s.records(r, campaignID)
	if err != nil {
		s.logger.Error("failed to load records", zap.Error(err))
		s.errorResponse(w, "failed to load records", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	mode := flow.OverviewMode(q.Get("mode"))
	switch mode {
	case flow.OverviewBest, flow.OverviewWorst, flow.OverviewOverall:
	default:
		mode = flow.OverviewBest
	}
	by := flow.OverviewSort(q.Get("sort"))
	switch by {
	case flow.SortImpressions, flow.SortClicks, flow.SortConversions, flow.SortCTR, flow.SortCVR:
	default:
		by = flow.SortImpressions
	}
	limit := s.config.Data.DefaultTopN
	if v := q.Get("count"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			limit = i
		}
	}

	s.jsonResponse(w, s.engine.Overview(records, mode, by, limit))
}

// ---- Sessions ----

type createSessionRequest struct {
	CampaignID string        `json:"campaign_id"`
	Mode       flow.ViewMode `json:"mode"`
}

type updateSessionRequest struct {
	Mode    flow.ViewMode `json:"mode,omitempty"`
	Filters flow.Filters  `json:"filters"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.CampaignID == "" {
		s.errorResponse(w, "campaign_id is required", http.StatusBadRequest)
		return
	}
	if req.Mode != flow.ModeAdvanced {
		req.Mode = flow.ModeBasic
	}

	records, err := s.records(r, req.CampaignID)
	if err != nil {
		s.logger.Error("failed to load records", zap.Error(err))
		s.errorResponse(w, "failed to load records", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:         uuid.NewString(),
		CampaignID: req.CampaignID,
		Mode:       req.Mode,
		Flow:       s.engine.Default(records),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Snapshot before publishing: once the session is in the map, updates
	// mutate it under s.mu and encoding the live struct would race them.
	snapshot := *sess
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}

	s.logger.Info("session created",
		zap.String("session_id", snapshot.ID),
		zap.String("campaign_id", snapshot.CampaignID),
		zap.String("mode", string(snapshot.Mode)),
	)
	s.jsonResponse(w, &snapshot)
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		// Encode a copy taken under the lock; updates mutate the stored
		// session concurrently.
		s.mu.RLock()
		snapshot := *sess
		s.mu.RUnlock()
		s.jsonResponse(w, &snapshot)

	case http.MethodPost:
		var req updateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}

		records, err := s.records(r, sess.CampaignID)
		if err != nil {
			s.logger.Error("failed to load records", zap.Error(err))
			s.errorResponse(w, "failed to load records", http.StatusInternalServerError)
			return
		}

		s.mu.Lock()
		if req.Mode == flow.ModeBasic || req.Mode == flow.ModeAdvanced {
			sess.Mode = req.Mode
		}
		sel := s.engine.Resolve(records, sess.Mode, sess.Flow, req.Filters)
		sess.Flow = sel.Flow
		sess.UpdatedAt = time.Now().UTC()
		snapshot := *sess
		s.mu.Unlock()

		s.jsonResponse(w, &snapshot)

	case http.MethodDelete:
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.ActiveSessions.Dec()
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---- Similarity ----

func (s *Server) handleSimilarity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.scorer == nil {
		s.errorResponse(w, "similarity scoring not available", http.StatusServiceUnavailable)
		return
	}

	var f models.Flow
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	scores, err := s.scorer.ScoreFlow(r.Context(), &f)
	if err != nil {
		s.logger.Error("similarity scoring failed", zap.Error(err))
		s.errorResponse(w, "scoring failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	s.jsonResponse(w, scores)
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
