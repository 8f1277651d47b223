package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"linkproxy/internal/shared/config"
	"linkproxy/internal/shared/logger"
	"linkproxy/internal/shared/middleware"
)

const (
	readTimeout  = 15 * time.Second
	writeTimeout = config.ServerWriteTimeout
	idleTimeout  = 60 * time.Second
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Handler      http.Handler
	Addr         string
	TLSEnabled   bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
	AllowedHosts []string
}

// StartServers creates and starts the main server and optional redirect server.
// Fatal listener errors are sent on the returned channel.
func StartServers(scfg ServerConfig) (srv, redirectSrv *http.Server, errCh <-chan error) {
	l := logger.For("main")
	errs := make(chan error, 2)

	srv = &http.Server{
		Addr:         scfg.Addr,
		Handler:      scfg.Handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	if scfg.TLSEnabled && scfg.RedirectHTTP {
		redirectSrv = createRedirectServer(scfg.AllowedHosts)
		go func() {
			l.Info().Str("addr", redirectSrv.Addr).Msg("HTTP redirect server starting")
			if err := redirectSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				l.Error().Err(err).Msg("HTTP redirect server error")
			}
		}()
	}

	go func() {
		var err error
		if scfg.TLSEnabled {
			l.Info().Str("addr", scfg.Addr).Msg("HTTPS server starting")
			err = srv.ListenAndServeTLS(scfg.CertPath, scfg.KeyPath)
		} else {
			l.Info().Str("addr", scfg.Addr).Msg("HTTP server starting")
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	return srv, redirectSrv, errs
}

// GracefulShutdown stops accepting requests, then drains the audit
// dispatcher and flushes telemetry.
func GracefulShutdown(srv, redirectSrv *http.Server, deps *Dependencies, telemetryShutdown func(context.Context) error, timeout time.Duration) {
	l := logger.For("main")
	l.Info().Msg("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if redirectSrv != nil {
		if err := redirectSrv.Shutdown(ctx); err != nil {
			l.Error().Err(err).Msg("Error shutting down HTTP redirect server")
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Error shutting down main server")
	}

	if deps != nil {
		if err := deps.Dispatcher.Shutdown(ctx); err != nil {
			l.Error().Err(err).Msg("Audit events not fully drained")
		}
		if err := deps.Close(); err != nil {
			l.Error().Err(err).Msg("Error closing dependencies")
		}
	}

	if telemetryShutdown != nil {
		if err := telemetryShutdown(ctx); err != nil {
			l.Error().Err(err).Msg("Error shutting down telemetry")
		}
	}

	l.Info().Msg("Server stopped")
}

// createRedirectServer creates an HTTP server that redirects all requests to HTTPS.
func createRedirectServer(allowedHosts []string) *http.Server {
	redirectHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Header.Get("X-Forwarded-Host")
		if host == "" {
			host = r.Host
		}

		if !middleware.IsHostAllowed(host, allowedHosts) {
			http.Error(w, "Invalid host", http.StatusBadRequest)
			return
		}

		http.Redirect(w, r, "https://"+canonicalHost(host)+r.RequestURI, http.StatusMovedPermanently)
	})

	return &http.Server{
		Addr:         ":80",
		Handler:      redirectHandler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// canonicalHost drops the port, keeping brackets around IPv6 literals.
func canonicalHost(host string) string {
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if net.ParseIP(h) != nil && net.ParseIP(h).To4() == nil {
		return "[" + h + "]"
	}
	return h
}

// NewServerConfigFromConfig creates ServerConfig from application config.
func NewServerConfigFromConfig(handler http.Handler, cfg *config.Config) ServerConfig {
	return ServerConfig{
		Handler:      handler,
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		TLSEnabled:   cfg.TLS.Enabled,
		CertPath:     cfg.TLS.CertPath,
		KeyPath:      cfg.TLS.KeyPath,
		RedirectHTTP: cfg.TLS.RedirectHTTP,
		AllowedHosts: cfg.Server.AllowedHosts,
	}
}
