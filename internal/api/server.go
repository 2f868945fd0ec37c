package api

import (
	"net/http"

	"github.com/oriys/halo/internal/api/controlplane"
	"github.com/oriys/halo/internal/api/dataplane"
	"github.com/oriys/halo/internal/dispatch"
	"github.com/oriys/halo/internal/logging"
	"github.com/oriys/halo/internal/metrics"
	"github.com/oriys/halo/internal/observability"
)

// ServerConfig contains dependencies for the HTTP server.
type ServerConfig struct {
	Dispatcher *dispatch.Dispatcher
	Records    dataplane.RecordStore // Optional: persisted invocation records
}

// StartHTTPServer creates and starts the HTTP server with control plane and
// data plane handlers. The caller owns shutdown via the returned server.
func StartHTTPServer(addr string, cfg ServerConfig) *http.Server {
	mux := http.NewServeMux()

	cpHandler := &controlplane.Handler{
		Dispatcher: cfg.Dispatcher,
	}
	cpHandler.RegisterRoutes(mux)

	dpHandler := &dataplane.Handler{
		Dispatcher: cfg.Dispatcher,
		Records:    cfg.Records,
	}
	dpHandler.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = requestMetrics(handler)
	handler = observability.HTTPMiddleware(handler)

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	return server
}

// requestMetrics tracks in-flight HTTP requests.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.IncActiveRequests()
		defer metrics.DecActiveRequests()
		next.ServeHTTP(w, r)
	})
}
