package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"finledger/internal/interfaces/scheduler"
	"finledger/internal/shared/config"
	"finledger/internal/shared/middleware"
)

const telemetryFlushTimeout = 5 * time.Second

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

// Server is a running HTTP server. errs receives the listener error if it
// stops for any reason other than Shutdown.
type Server struct {
	*http.Server
	errs chan error
}

// StartServers starts the main server and, with TLS redirect enabled, an
// HTTP server redirecting to HTTPS. The redirect server is nil otherwise.
func StartServers(scfg ServerConfig, log zerolog.Logger) (*Server, *http.Server) {
	srv := &Server{
		Server: &http.Server{
			Addr:              scfg.Addr,
			Handler:           scfg.Handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		errs: make(chan error, 1),
	}

	var redirectSrv *http.Server
	if scfg.TLSEnabled && scfg.RedirectHTTP {
		redirectSrv = createRedirectServer(scfg.AllowedHosts)
		go func() {
			log.Info().Str("addr", redirectSrv.Addr).Msg("HTTP redirect server starting")
			if err := redirectSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP redirect server error")
			}
		}()
	}

	go func() {
		var err error
		if scfg.TLSEnabled {
			log.Info().Str("addr", scfg.Addr).Msg("HTTPS server starting")
			err = srv.ListenAndServeTLS(scfg.CertPath, scfg.KeyPath)
		} else {
			log.Info().Str("addr", scfg.Addr).Msg("HTTP server starting")
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.errs <- err
		}
	}()

	return srv, redirectSrv
}

// GracefulShutdown stops the scheduler first so no job starts while the
// servers drain.
func GracefulShutdown(srv *Server, redirectSrv *http.Server, sched *scheduler.Scheduler, timeout time.Duration, log zerolog.Logger) {
	log.Info().Dur("timeout", timeout).Msg("server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if sched != nil {
		sched.Shutdown(timeout)
	}

	if redirectSrv != nil {
		if err := redirectSrv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("error shutting down HTTP redirect server")
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error shutting down main server")
	}

	log.Info().Msg("server stopped")
}

// createRedirectServer redirects every request to the HTTPS URL of an
// allowed host.
func createRedirectServer(allowedHosts []string) *http.Server {
	return &http.Server{
		Addr:              ":80",
		Handler:           redirectHandler(allowedHosts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func redirectHandler(allowedHosts []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
}

func canonicalHost(host string) string {
	if idx := strings.Index(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}

// NewServerConfigFromConfig creates ServerConfig from application config.
func NewServerConfigFromConfig(handler http.Handler, cfg *config.Config) ServerConfig {
	return ServerConfig{
		Handler:      handler,
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		TLSEnabled:   cfg.TLS.Enabled,
		CertPath:     cfg.TLS.CertPath,
		KeyPath:      cfg.TLS.KeyPath,
		RedirectHTTP: cfg.TLS.RedirectHTTP,
		AllowedHosts: cfg.Server.AllowedHosts,
	}
}
