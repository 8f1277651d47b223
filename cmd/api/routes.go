package main

import (
	"net/http"

	httphandlers "linkproxy/internal/interfaces/http"
	"linkproxy/internal/shared/config"
	"linkproxy/internal/shared/logger"
	"linkproxy/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Link API
	mux.HandleFunc("/api/link-token", deps.LinkHandler.HandleLinkToken)
	mux.HandleFunc("/api/exchange-token", deps.LinkHandler.HandleExchangeToken)
	mux.HandleFunc("/api/link-token-update", deps.LinkHandler.HandleLinkTokenUpdate)
	mux.HandleFunc("/api/transactions", deps.LinkHandler.HandleTransactions)

	// Frontend bundle
	l := logger.For("main")
	if static := httphandlers.StaticHandler(cfg.Server.StaticDir); static != nil {
		mux.Handle("/", static)
		l.Info().Str("dir", cfg.Server.StaticDir).Msg("Serving static files")
	} else {
		l.Info().Str("dir", cfg.Server.StaticDir).Msg("Static directory not found, frontend not served")
	}

	// Apply global middleware (outermost first at request time)
	var handler http.Handler = mux
	handler = middleware.CORS(cfg.Server.AllowedHosts)(handler)
	handler = middleware.NoSniff(handler)
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
	}
	if cfg.Telemetry.Enabled {
		handler = middleware.Tracing(handler)
		handler = middleware.Telemetry(cfg.Telemetry.ServiceName)(handler)
	}
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)

	return handler
}
