package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"guincheuse/internal/config"
	appLog "guincheuse/internal/log"
	"guincheuse/internal/model"
)

// Server renders the public site and its two JSON endpoints.
type Server struct {
	cfg          *config.Config
	events       EventSource
	reservations http.Handler
	loc          *time.Location
	now          func() time.Time

	content *siteContent
	pages   map[string]*template.Template
	router  *mux.Router
}

// Options wires a Server.
type Options struct {
	Config *config.Config
	// Events feeds /event and /api/events.
	Events EventSource
	// Reservations handles POST /api/reservation.
	Reservations http.Handler
	// Location is used to display event dates. Defaults to Config.Timezone.
	Location *time.Location
}

//go:embed templates/*.html
var templateFS embed.FS

//go:embed all:static
var embeddedStatic embed.FS

const shutdownTimeout = 10 * time.Second

// NewServer parses the embedded templates and content and builds the
// router.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	content, err := loadContent(contentYAML)
	if err != nil {
		return nil, err
	}
	pages, err := parsePages(templateFS)
	if err != nil {
		return nil, err
	}

	loc := opts.Location
	if loc == nil {
		loc = resolveLocationOrLocal(opts.Config.Timezone)
	}

	s := &Server{
		cfg:          opts.Config,
		events:       opts.Events,
		reservations: opts.Reservations,
		loc:          loc,
		now:          time.Now,
		content:      content,
		pages:        pages,
		router:       mux.NewRouter(),
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return withMiddleware(s.router)
}

// Serve runs the site on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	r := s.router

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	if s.reservations != nil {
		r.Handle("/api/reservation", s.reservations).Methods(http.MethodPost)
	}

	r.HandleFunc("/", s.handleHome).Methods(http.MethodGet)
	r.HandleFunc("/carte", s.handleCarte).Methods(http.MethodGet)
	r.HandleFunc("/event", s.handleEventPage).Methods(http.MethodGet)
	r.HandleFunc("/reservation", s.handleReservationPage).Methods(http.MethodGet)
	r.HandleFunc("/politique-de-confidentialite", s.handlePrivacy).Methods(http.MethodGet)

	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", s.staticFileServer()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleEvents returns the live programme as JSON. Unlike the events page
// there is no fallback: a feed failure is a 503.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, msgFeedUnavailable)
		return
	}
	occs, err := s.events.Events(r.Context(), s.now())
	if err != nil {
		appLog.Error("api events: load failed", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusServiceUnavailable, msgFeedUnavailable)
		return
	}
	if occs == nil {
		occs = []model.Occurrence{}
	}
	writeJSON(w, http.StatusOK, occs)
}

// staticFileServer serves the embedded stylesheet, script and images.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static files not available", http.StatusServiceUnavailable)
		})
	}
	return http.FileServer(http.FS(sub))
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
