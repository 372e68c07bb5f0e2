package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-pkgz/lgr"

	"github.com/umputun/brieflink/pkg/brief"
	"github.com/umputun/brieflink/pkg/notify"
	"github.com/umputun/brieflink/pkg/store"
)

//go:embed templates static
var content embed.FS

// ServerConfig holds configuration for the web server.
type ServerConfig struct {
	Listen       string        // address to listen on, e.g. ":8080"
	BaseURL      string        // public url used to build magic links
	APIToken     string        // designer api bearer token, empty disables the api
	MagicLinkTTL time.Duration // validity of issued links, 0 for no expiry
}

// Questionnaires provides the active questionnaire.
type Questionnaires interface {
	Current() *brief.Questionnaire
}

// Notifier delivers invites and phase updates. *notify.Service satisfies it, including a nil one.
type Notifier interface {
	SendInvite(ctx context.Context, inv notify.Invite)
	SendPhaseChange(ctx context.Context, pc notify.PhaseChange)
}

// Deps are the collaborators of the server.
type Deps struct {
	Store          store.Store
	Questionnaires Questionnaires
	Notifier       Notifier
	Hub            *Hub
}

// Server provides the designer api and the client portal.
type Server struct {
	cfg       ServerConfig
	store     store.Store
	questions Questionnaires
	notifier  Notifier
	hub       *Hub
	tmpl      *template.Template
	srv       *http.Server
	now       func() time.Time

	mu sync.Mutex     // serializes project mutations so before/after phases are consistent
	bg sync.WaitGroup // in-flight notifications

	stopOnce sync.Once
	stopErr  error
	stopped  chan struct{} // closed once Shutdown returned
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig, deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Questionnaires == nil {
		return nil, errors.New("questionnaire source is required")
	}
	if deps.Hub == nil {
		deps.Hub = NewHub()
	}
	if deps.Notifier == nil {
		deps.Notifier = (*notify.Service)(nil)
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"ago": humanize.Time,
	}).ParseFS(content, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	return &Server{
		cfg:       cfg,
		store:     deps.Store,
		questions: deps.Questionnaires,
		notifier:  deps.Notifier,
		hub:       deps.Hub,
		tmpl:      tmpl,
		now:       time.Now,
		stopped:   make(chan struct{}),
	}, nil
}

// Handler returns the http handler with all routes registered.
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	})

	// designer api
	api := func(pattern string, h http.HandlerFunc) { mux.Handle(pattern, s.requireToken(h)) }
	api("GET /api/phases", s.handlePhases)
	api("GET /api/projects", s.handleListProjects)
	api("POST /api/projects", s.handleCreateProject)
	api("GET /api/projects/{id}", s.handleGetProject)
	api("POST /api/projects/{id}/send", s.handleSend)
	api("POST /api/projects/{id}/status", s.handleStatus)
	api("POST /api/projects/{id}/revisions", s.handleAddRevision)
	api("POST /api/projects/{id}/revisions/{rid}/resolve", s.handleResolveRevision)
	api("POST /api/projects/{id}/deliverables", s.handleAddDeliverable)
	api("POST /api/projects/{id}/deliverables/{did}/share", s.handleShareDeliverable)
	api("POST /api/projects/{id}/summary", s.handleSummary)
	api("GET /api/projects/{id}/events", s.handleEvents)

	// client portal
	mux.HandleFunc("GET /p/{token}", s.handlePortal)
	mux.HandleFunc("POST /p/{token}", s.handleSubmitBrief)
	mux.HandleFunc("POST /p/{token}/revisions", s.handleClientRevision)

	// static files
	staticFS, err := fs.Sub(content, "static")
	if err != nil {
		return nil, fmt.Errorf("static filesystem: %w", err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	return mux, nil
}

// Start begins listening for HTTP requests.
// blocks until ctx is canceled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	if s.cfg.APIToken == "" {
		lgr.Printf("[WARN] api_token is not set, designer api is disabled")
	}

	s.srv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// start shutdown listener
	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			lgr.Printf("[WARN] %v", err)
		}
	}()

	lgr.Printf("[INFO] listening on %s", s.cfg.Listen)
	err = s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		// ListenAndServe returns as soon as shutdown begins, active requests may still run
		<-s.stopped
		s.bg.Wait()
		return nil
	}
	return fmt.Errorf("http server: %w", err)
}

// Stop gracefully shuts down the server, waiting for active requests. open event streams are closed first.
// safe to call more than once.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	s.stopOnce.Do(func() {
		defer close(s.stopped)
		s.hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(ctx); err != nil {
			s.stopErr = fmt.Errorf("shutdown server: %w", err)
		}
	})
	return s.stopErr
}

// Hub returns the server's event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
