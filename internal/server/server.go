package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/TobiSchelling/resultsdash/internal/dashboard"
	"github.com/TobiSchelling/resultsdash/internal/warehouse"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// ViewBuilder produces the dashboard view for one render pass.
type ViewBuilder interface {
	Build(ctx context.Context) (*dashboard.View, error)
}

// Server is the HTTP server for the dashboard page.
type Server struct {
	views    ViewBuilder
	gatherer prometheus.Gatherer
	logger   *zap.SugaredLogger
	pages    map[string]*template.Template
	mux      *http.ServeMux
}

// New creates a new Server. A nil gatherer disables /metrics.
func New(views ViewBuilder, gatherer prometheus.Gatherer, logger *zap.SugaredLogger) (*Server, error) {
	funcMap := template.FuncMap{
		"formatCell": dashboard.FormatCell,
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "—"
			}
			return t.Local().Format("2 Jan 2006 15:04:05")
		},
		"fixed1": func(f float64) string { return fmt.Sprintf("%.1f", f) },
		"pct":    func(f float64) string { return fmt.Sprintf("%.0f", f) },
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of the base so it can define "content" and "title".
	pageNames := []string{"index.html", "error.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		views:    views,
		gatherer: gatherer,
		logger:   logger,
		pages:    pages,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	view, err := s.views.Build(r.Context())
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.render(w, http.StatusOK, "index.html", view)
}

// errorPage is the data passed to error.html.
type errorPage struct {
	Title   string
	Summary string
	Detail  string
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	page := errorPage{Title: "Dashboard unavailable", Detail: err.Error()}

	var (
		cfgErr   *warehouse.ConfigurationError
		queryErr *warehouse.QueryExecutionError
		shapeErr *dashboard.ShapeMismatchError
	)
	switch {
	case errors.Is(err, context.Canceled):
		s.logger.Debugw("render cancelled by client", "path", r.URL.Path)
		return
	case errors.As(err, &cfgErr):
		page.Summary = fmt.Sprintf("The data connection %q is not configured correctly.", cfgErr.Name)
	case errors.As(err, &queryErr):
		page.Summary = "A warehouse query failed. Reload the page to try again."
	case errors.As(err, &shapeErr):
		page.Summary = "The indicator data does not match the KPI layout."
	default:
		page.Summary = "The dashboard could not be rendered."
	}

	s.logger.Errorw("render failed", "path", r.URL.Path, "error", err)
	s.render(w, http.StatusInternalServerError, "error.html", page)
}

// render executes the page into a buffer first so a template failure never
// leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Errorf("template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.logger.Errorf("rendering template %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Serve runs the HTTP server on addr until ctx is cancelled.
func Serve(ctx context.Context, srv *Server, addr string, logger *zap.SugaredLogger) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("server shutdown: %v", err)
		}
	}()

	logger.Infof("server listening on http://%s", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
