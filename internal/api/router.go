package api

import (
	"net/http"

	"github.com/aipulse/toolrank/internal/metrics"
)

// RouterConfig carries the handlers wired into the HTTP mux.
type RouterConfig struct {
	Rankings *RankingHandlers
	Ingest   *IngestHandlers
	Health   *HealthHandlers
	Metrics  *metrics.Metrics
}

// NewRouter builds the service mux. Middleware (request ID, logging) is
// applied by the caller around the returned handler.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /rankings", cfg.Rankings.Rankings)
	mux.HandleFunc("GET /rankings/{period}", cfg.Rankings.RankingsByPeriod)
	mux.HandleFunc("POST /rankings/publish", cfg.Rankings.Publish)

	mux.HandleFunc("POST /ingest", cfg.Ingest.Ingest)
	mux.HandleFunc("POST /ingest/discard", cfg.Ingest.Discard)

	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	return mux
}
