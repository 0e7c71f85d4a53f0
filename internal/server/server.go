package server

import (
	"context"
	"fmt"
	"log"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duggee/stakeboard/internal/db"
	"github.com/duggee/stakeboard/internal/viewmodel"
)

// Version is reported by /health.
const Version = "0.1.0"

// Console is the daemon surface the API serves.
type Console interface {
	NodeID() string
	Uptime() time.Duration
	View() viewmodel.Page
	Dispatch(ctx context.Context, intents ...viewmodel.Intent) (viewmodel.Page, error)
	RequestRefresh()
	ChainStatus() map[string]interface{}
	SnapshotStatus() map[string]interface{}
	WalletStatus() map[string]interface{}
	ImportWallet(key string) error
	GenerateNewWallet() error
	DisconnectWallet() error
	SignMessage(message string) (map[string]interface{}, error)
	RecentSubmissions(limit int) ([]db.Submission, error)
	SubmissionCount() (int, error)
}

// corsMiddleware answers browsers. The dashboard's own origin and the
// configured origins get CORS headers; any other origin may read nothing and
// change nothing. State-changing requests must carry a JSON body so a plain
// form or text/plain POST can never reach a handler.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin == "" || s.originAllowed(origin, r.Host)
		if origin != "" {
			w.Header().Add("Vary", "Origin")
		}
		if origin != "" && allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead:
			next.ServeHTTP(w, r)
			return
		case http.MethodOptions:
			if !allowed {
				writeError(w, http.StatusForbidden, "origin not allowed")
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !allowed {
			log.Printf("[api] Refused %s %s from origin %s", r.Method, r.URL.Path, origin)
			writeError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
			writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AllowOrigins adds browser origins, such as a wallet front end, that may
// call the API. It must be called before Start.
func (s *Server) AllowOrigins(origins ...string) {
	for _, o := range origins {
		s.origins[strings.TrimRight(o, "/")] = true
	}
}

// originAllowed reports whether origin is configured or is the page served
// by this API. A same-host origin only counts when the host is an IP literal
// or localhost, so a rebound DNS name cannot pass as the dashboard.
func (s *Server) originAllowed(origin, host string) bool {
	if s.origins[origin] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "http" || u.Host != host {
		return false
	}
	name := u.Hostname()
	return name == "localhost" || net.ParseIP(name) != nil
}

// Server is the HTTP JSON API and dashboard of the staking console.
type Server struct {
	httpSrv *http.Server
	console Console
	bind    string
	port    int
	origins map[string]bool
}

// New creates an HTTP server. gatherer backs /metrics; nil means the
// default Prometheus registry.
func New(bind string, port int, console Console, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{console: console, bind: bind, port: port, origins: make(map[string]bool)}
	s.httpSrv = &http.Server{
		Handler:           s.routes(gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) routes(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/", s.handleDashboard)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/view", s.handleView)
		api.Post("/intents", s.handleIntent)
		api.Post("/refresh", s.handleRefresh)
		api.Get("/submissions", s.handleSubmissions)

		api.Route("/wallet", func(wr chi.Router) {
			wr.Get("/", s.handleWallet)
			wr.Post("/generate", s.handleWalletGenerate)
			wr.Post("/import", s.handleWalletImport)
			wr.Post("/disconnect", s.handleWalletDisconnect)
			wr.Post("/sign", s.handleWalletSign)
			wr.Post("/verify", s.handleWalletVerify)
		})
	})
	return r
}

// Start pre-acquires the port and begins serving HTTP requests.
// If the primary port is in use, it falls back to port+1.
// Returns the actual port bound.
func (s *Server) Start() (int, error) {
	addr := fmt.Sprintf("%s:%d", s.bind, s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		fallbackPort := s.port + 1
		fallbackAddr := fmt.Sprintf("%s:%d", s.bind, fallbackPort)
		ln, err = net.Listen("tcp", fallbackAddr)
		if err != nil {
			return 0, fmt.Errorf("listen on %s and fallback %s: %w", addr, fallbackAddr, err)
		}
		log.Printf("[api] WARNING: Using fallback port %d (primary %d was in use)", fallbackPort, s.port)
	}
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcp.Port
	}

	log.Printf("[api] HTTP API listening on %s:%d", s.bind, s.port)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] HTTP server error: %v", err)
		}
	}()
	return s.port, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpSrv.Shutdown(ctx)
	log.Println("[api] HTTP server stopped")
}
