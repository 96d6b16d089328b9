// Package api implements the HTTP Boundary Adapter: the indexer control
// plane's external surface on top of a plain net/http ServeMux.
package api

import (
	"net/http"

	"github.com/indexerhq/controlplane/internal/coordinator"
	"github.com/indexerhq/controlplane/internal/logging"
)

// ServerConfig contains the HTTP server's dependencies.
type ServerConfig struct {
	Coordinator *coordinator.Coordinator
}

// StartHTTPServer builds the indexer routes on a new mux and starts
// serving addr in a background goroutine.
func StartHTTPServer(addr string, cfg ServerConfig) *http.Server {
	mux := http.NewServeMux()

	h := &Handler{Coordinator: cfg.Coordinator}
	h.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("HTTP server error", "error", err)
		}
	}()

	return server
}
