package ipc

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps an HTTP server with engine-specific routing.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to the given address. A nil gatherer
// serves the default Prometheus registry.
func NewServer(h *Handler, listenAddr string, gatherer prometheus.Gatherer) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    listenAddr,
			Handler: corsMiddleware(NewMux(h, gatherer)),
		},
	}
}

// NewMux registers every route on a fresh ServeMux.
func NewMux(h *Handler, gatherer prometheus.Gatherer) *http.ServeMux {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()

	// Health endpoint.
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// World control.
	mux.HandleFunc("POST /api/v1/worlds", h.CreateWorld)
	mux.HandleFunc("GET /api/v1/worlds", h.ListWorlds)
	mux.HandleFunc("GET /api/v1/worlds/{worldID}", h.GetWorld)
	mux.HandleFunc("POST /api/v1/worlds/{worldID}/start", h.StartWorld)
	mux.HandleFunc("POST /api/v1/worlds/{worldID}/stop", h.StopWorld)

	// World content.
	mux.HandleFunc("POST /api/v1/worlds/{worldID}/events", h.InjectEvent)
	mux.HandleFunc("GET /api/v1/worlds/{worldID}/events", h.ListEvents)
	mux.HandleFunc("GET /api/v1/worlds/{worldID}/claims", h.ListClaims)
	mux.HandleFunc("POST /api/v1/worlds/{worldID}/claims/vote", h.VoteClaim)
	mux.HandleFunc("GET /api/v1/worlds/{worldID}/posts", h.ListPosts)
	mux.HandleFunc("GET /api/v1/worlds/{worldID}/wiki", h.ListWiki)
	mux.HandleFunc("GET /api/v1/worlds/{worldID}/audit", h.ListAudit)

	// Operations.
	mux.HandleFunc("GET /api/v1/ops/metrics", h.OpsMetrics)
	mux.HandleFunc("GET /api/v1/ops/alerts", h.OpsAlerts)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Observers.
	mux.HandleFunc("GET /ws/{worldID}", h.ServeWS)

	return mux
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for browser observers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Actor")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
