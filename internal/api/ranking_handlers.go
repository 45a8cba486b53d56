package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aipulse/toolrank/internal/metrics"
	"github.com/aipulse/toolrank/internal/middleware"
	"github.com/aipulse/toolrank/internal/ranking"
	"github.com/aipulse/toolrank/internal/snapshot"
	"github.com/aipulse/toolrank/internal/tool"
)

// RankingHandlers serves the published rankings and the publish
// operation.
type RankingHandlers struct {
	tools     tool.Repository
	snapshots *snapshot.Manager
	engine    *ranking.Engine
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewRankingHandlers creates ranking handlers.
func NewRankingHandlers(tools tool.Repository, snapshots *snapshot.Manager, engine *ranking.Engine, m *metrics.Metrics, logger *slog.Logger) *RankingHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &RankingHandlers{
		tools:     tools,
		snapshots: snapshots,
		engine:    engine,
		metrics:   m,
		logger:    logger,
	}
}

// movementResponse is the wire shape of an entry's movement.
type movementResponse struct {
	PreviousPosition *int   `json:"previous_position"`
	Change           int    `json:"change"`
	Direction        string `json:"direction"`
}

// entryResponse is the wire shape of one ranking entry.
type entryResponse struct {
	Rank         int                `json:"rank"`
	ToolID       string             `json:"tool_id"`
	Tier         string             `json:"tier"`
	Score        float64            `json:"score"`
	FactorScores map[string]float64 `json:"factor_scores"`
	Movement     movementResponse   `json:"movement"`
}

// rankingsResponse is the wire shape of GET /rankings.
type rankingsResponse struct {
	Period           string          `json:"period"`
	AlgorithmVersion string          `json:"algorithm_version"`
	CreatedAt        string          `json:"created_at"`
	Entries          []entryResponse `json:"entries"`
}

// Rankings handles GET /rankings: the current published snapshot.
func (h *RankingHandlers) Rankings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	s, err := h.snapshots.Current(r.Context())
	if errors.Is(err, snapshot.ErrNoCurrent) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNoSnapshot)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNoSnapshot, "No ranking snapshot has been published")
		return
	}
	if err != nil {
		h.logger.Error("failed to load current snapshot", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load rankings")
		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse(s), h.logger)
}

// RankingsByPeriod handles GET /rankings/{period}: a historical snapshot.
func (h *RankingHandlers) RankingsByPeriod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	period := r.PathValue("period")
	s, err := h.snapshots.Repo().GetByPeriod(r.Context(), period)
	if errors.Is(err, snapshot.ErrNotFound) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "No snapshot for period "+period)
		return
	}
	if err != nil {
		h.logger.Error("failed to load snapshot", "period", period, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load rankings")
		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse(s), h.logger)
}

// publishRequest is the wire shape of POST /rankings/publish.
type publishRequest struct {
	Period string `json:"period"`
}

// Publish handles POST /rankings/publish: recompute the ranking from
// current tool scores and promote it to the current snapshot.
func (h *RankingHandlers) Publish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid JSON body")
		return
	}
	now := time.Now().UTC()
	if req.Period == "" {
		req.Period = now.Format("2006-01")
	}

	tools, err := h.tools.List(r.Context())
	if err != nil {
		h.logger.Error("failed to load tools", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load tools")
		return
	}

	ranked := h.engine.Rank(tools)
	s, err := h.snapshots.Publish(r.Context(), req.Period, h.engine.AlgorithmVersion(), ranked, now)
	if err != nil {
		h.logger.Error("failed to publish snapshot", "period", req.Period, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to publish rankings")
		return
	}
	if h.metrics != nil {
		h.metrics.PublishesTotal.Inc()
		h.metrics.RankedTools.Set(float64(len(s.Entries)))
	}

	writeJSON(w, http.StatusCreated, snapshotResponse(s), h.logger)
}

// snapshotResponse converts a snapshot to its wire shape.
func snapshotResponse(s *snapshot.Snapshot) rankingsResponse {
	resp := rankingsResponse{
		Period:           s.Period,
		AlgorithmVersion: s.AlgorithmVersion,
		CreatedAt:        s.CreatedAt.UTC().Format(time.RFC3339),
		Entries:          make([]entryResponse, len(s.Entries)),
	}
	for i, e := range s.Entries {
		resp.Entries[i] = entryResponse{
			Rank:         e.Rank,
			ToolID:       e.ToolID,
			Tier:         e.Tier,
			Score:        e.Score,
			FactorScores: e.FactorScores,
			Movement: movementResponse{
				PreviousPosition: e.Movement.PreviousRank,
				Change:           e.Movement.Delta,
				Direction:        e.Movement.Direction,
			},
		}
	}
	return resp
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, body interface{}, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
