package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aipulse/toolrank/internal/article"
	"github.com/aipulse/toolrank/internal/dryrun"
	"github.com/aipulse/toolrank/internal/ingest"
	"github.com/aipulse/toolrank/internal/middleware"
	"github.com/aipulse/toolrank/internal/tool"
)

// IngestHandlers serves article submission: preview (dry-run), apply,
// and discard.
type IngestHandlers struct {
	coordinator *dryrun.Coordinator
	logger      *slog.Logger
}

// NewIngestHandlers creates ingestion handlers.
func NewIngestHandlers(coordinator *dryrun.Coordinator, logger *slog.Logger) *IngestHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestHandlers{coordinator: coordinator, logger: logger}
}

// preprocessedData carries content analyzed outside the service.
type preprocessedData struct {
	Content     string           `json:"content"`
	ContentHash string           `json:"content_hash,omitempty"`
	Analysis    *ingest.Analysis `json:"analysis"`
}

// ingestRequest is the wire shape of POST /ingest.
type ingestRequest struct {
	Type             string            `json:"type"`
	Input            string            `json:"input,omitempty"`
	PreprocessedData *preprocessedData `json:"preprocessedData,omitempty"`
	DryRun           bool              `json:"dryRun"`
	CacheKey         string            `json:"cache_key,omitempty"`
	Period           string            `json:"period,omitempty"`
	Metadata         article.Metadata  `json:"metadata"`
	PerformedBy      string            `json:"performed_by,omitempty"`
}

// Ingest handles POST /ingest. With dryRun true the submission is
// previewed and nothing is persisted; with dryRun false it is applied
// atomically. The response shape is identical either way.
func (h *IngestHandlers) Ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid JSON body")
		return
	}

	dreq := dryrun.Request{
		Type:        req.Type,
		Input:       req.Input,
		CacheKey:    req.CacheKey,
		Period:      req.Period,
		Metadata:    req.Metadata,
		PerformedBy: req.PerformedBy,
	}
	if req.Type == article.TypePreprocessed {
		if req.PreprocessedData == nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "preprocessedData is required for type preprocessed")
			return
		}
		dreq.Input = req.PreprocessedData.Content
		dreq.ContentHash = req.PreprocessedData.ContentHash
		dreq.Analysis = req.PreprocessedData.Analysis
	}

	var (
		out *dryrun.Outcome
		err error
	)
	if req.DryRun {
		out, err = h.coordinator.Preview(r.Context(), dreq)
	} else {
		out, err = h.coordinator.Apply(r.Context(), dreq)
	}
	if err != nil {
		h.writeIngestError(w, r, err)
		return
	}

	status := http.StatusOK
	if !req.DryRun {
		status = http.StatusCreated
	}
	writeJSON(w, status, out, h.logger)
}

// discardRequest is the wire shape of POST /ingest/discard.
type discardRequest struct {
	CacheKey string `json:"cache_key"`
}

// Discard handles POST /ingest/discard: drop a cached preview without
// applying it.
func (h *IngestHandlers) Discard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req discardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CacheKey == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "cache_key is required")
		return
	}

	out, err := h.coordinator.Discard(r.Context(), req.CacheKey)
	if err != nil {
		h.writeIngestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out, h.logger)
}

// writeIngestError maps coordinator errors onto API error codes.
func (h *IngestHandlers) writeIngestError(w http.ResponseWriter, r *http.Request, err error) {
	var code string
	switch {
	case errors.Is(err, ingest.ErrMalformedInput):
		code = ErrCodeValidation
	case errors.Is(err, dryrun.ErrPreviewNotFound):
		code = ErrCodePreviewNotFound
	case errors.Is(err, dryrun.ErrPreviewStale):
		code = ErrCodePreviewStale
	case errors.Is(err, dryrun.ErrContentMismatch):
		code = ErrCodeContentMismatch
	case errors.Is(err, tool.ErrConcurrentUpdate):
		code = ErrCodeConcurrentUpdate
	default:
		code = ErrCodeInternal
	}

	status := StatusCodeMapping(code)
	message := err.Error()
	if status >= 500 {
		h.logger.Error("ingestion failed", "error", err)
		message = "Ingestion failed"
	}
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, status, code, message)
}
