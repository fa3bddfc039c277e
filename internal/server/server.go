// ABOUTME: HTTP server wiring for the gateway's proxy surface.
// ABOUTME: Assembles store, caches, license gate, auth selector, and forwarder behind a mux router.

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/techwithwayne/postpress-gateway/internal/authmode"
	"github.com/techwithwayne/postpress-gateway/internal/config"
	"github.com/techwithwayne/postpress-gateway/internal/kvcache"
	"github.com/techwithwayne/postpress-gateway/internal/license"
	"github.com/techwithwayne/postpress-gateway/internal/proxy"
	"github.com/techwithwayne/postpress-gateway/internal/siteid"
	"github.com/techwithwayne/postpress-gateway/internal/store"
)

// cacheSize bounds the volatile cache. The gateway's working set is a
// handful of keys; the bound is a backstop.
const cacheSize = 1024

// Server is the gateway HTTP server.
type Server struct {
	cfg       *config.Config
	store     store.Store
	cache     *kvcache.Cache
	truths    *license.TruthStore
	verifier  *license.Verifier
	gate      *license.Gate
	selector  *authmode.Selector
	forwarder *proxy.Forwarder
	augmentor *proxy.Augmentor
	logger    *slog.Logger
	version   string

	httpSrv *http.Server
}

// New assembles a Server from configuration and an opened store.
func New(cfg *config.Config, st store.Store, version string) *Server {
	cache := kvcache.New(cacheSize)
	currentSiteID := siteid.Normalize(cfg.Site.URL)

	truths := license.NewTruthStore(cache, st, currentSiteID, cfg.Gate.MaxAge)
	forwarder := proxy.NewForwarder(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, version)
	verifier := license.NewVerifier(forwarder, st, truths, cfg.Site.URL, cfg.ProbeAllowed())
	gate := license.NewGate(truths, verifier, cache, cfg.Gate.MinVerifyInterval)
	selector := authmode.NewSelector(st, cfg.License.PreferLicenseKey)
	augmentor := proxy.NewAugmentor(st, cfg.Site.URL)

	return &Server{
		cfg:       cfg,
		store:     st,
		cache:     cache,
		truths:    truths,
		verifier:  verifier,
		gate:      gate,
		selector:  selector,
		forwarder: forwarder,
		augmentor: augmentor,
		logger:    slog.Default().With("component", "server"),
		version:   version,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	// Content proxy, license-gated.
	r.Handle("/api/preview", s.proxyEndpoint("preview")).Methods("POST")
	r.Handle("/api/generate", s.proxyEndpoint("generate")).Methods("POST")
	r.Handle("/api/store", s.proxyEndpoint("store")).Methods("POST")

	// Diagnostics, authenticated but never gated.
	r.Handle("/api/debug-headers", s.endpoint("debug_headers", s.requireEditor(s.handleDebugHeaders))).Methods("POST")

	// License admin surface, never gated: it is the gate's data source.
	r.Handle("/api/license/verify", s.endpoint("license_verify", s.requireEditor(s.licenseAction("verify")))).Methods("POST")
	r.Handle("/api/license/activate", s.endpoint("license_activate", s.requireEditor(s.licenseAction("activate")))).Methods("POST")
	r.Handle("/api/license/deactivate", s.endpoint("license_deactivate", s.requireEditor(s.licenseAction("deactivate")))).Methods("POST")
	r.Handle("/api/license/capability-reset", s.endpoint("capability_reset", s.requireAdmin(s.handleCapabilityReset))).Methods("POST")
	r.Handle("/api/license/status", s.endpoint("license_status", s.requireEditor(s.handleLicenseStatus))).Methods("GET")

	r.HandleFunc("/healthz", s.handleHealthz).Methods("GET")

	return r
}

// proxyEndpoint chains the middleware for a gated content endpoint.
func (s *Server) proxyEndpoint(name string) http.Handler {
	return s.endpoint(name, s.requireEditor(s.handleContent(name)))
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Server.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("gateway listening", "addr", s.cfg.Server.HTTPAddr, "upstream", s.cfg.Upstream.BaseURL)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and releases the volatile cache.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cache.Close()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": s.version})
}
