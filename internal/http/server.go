package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/klauspost/compress/gzhttp"

	applog "tablero/internal/log"
	"tablero/internal/middleware/ratelimit"
	"tablero/internal/middleware/security"
	"tablero/internal/middleware/trace"
	"tablero/internal/services"
	appweb "tablero/web"
)

// Options wires the services a Server renders.
type Options struct {
	Applications *services.ApplicationService
	Fairs        *services.FairService
	// Imports enables the upload routes; nil leaves them unregistered.
	Imports *services.ImportService
	// Ready reports whether the data backend is reachable.
	Ready          func(context.Context) error
	DefaultYear    int
	UploadMaxBytes int64
	RateLimit      ratelimit.Config
	Logger         *applog.Logger
}

// Server serves the dashboards, their JSON summaries and the upload routes.
type Server struct {
	http.Server
	templates      *template.Template
	apps           *services.ApplicationService
	fairs          *services.FairService
	imports        *services.ImportService
	ready          func(context.Context) error
	defaultYear    int
	uploadMaxBytes int64
	limiter        *ratelimit.Limiter
	detector       *security.Detector
	tracer         *trace.Middleware
	log            *applog.Logger
	started        time.Time
	shutdownOnce   sync.Once
}

// NewServer parses the embedded templates and builds the handler chain.
func NewServer(addr string, opts Options) (*Server, error) {
	if opts.Applications == nil || opts.Fairs == nil {
		return nil, errors.New("http server requires the application and fair services")
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if opts.UploadMaxBytes <= 0 {
		opts.UploadMaxBytes = 10 << 20
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		templates:      t,
		apps:           opts.Applications,
		fairs:          opts.Fairs,
		imports:        opts.Imports,
		ready:          opts.Ready,
		defaultYear:    opts.DefaultYear,
		uploadMaxBytes: opts.UploadMaxBytes,
		limiter:        ratelimit.NewLimiter(opts.RateLimit),
		detector:       security.NewDetector(logger),
		log:            logger.WithComponent(applog.ComponentHTTP),
		started:        time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.log, s.detector.ClientIP)

	router, err := s.routes()
	if err != nil {
		return nil, err
	}

	var handler http.Handler = gzhttp.GzipHandler(router)
	handler = s.limiter.Middleware(s.detector.ClientIP, []string{http.MethodPost}, s.handleRateLimited)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = applog.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)
	handler = s.tracer.Middleware(handler)
	handler = applog.Middleware(s.log)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() (*httprouter.Router, error) {
	router := httprouter.New()

	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	router.Handler(http.MethodGet, "/static/*filepath", security.StaticAssetMiddleware(3600)(static))

	router.HandlerFunc(http.MethodGet, "/", s.handleIndex)
	router.HandlerFunc(http.MethodGet, "/healthz", s.handleHealth)
	router.HandlerFunc(http.MethodGet, "/readyz", s.handleReady)

	router.HandlerFunc(http.MethodGet, "/pachambear", s.handleApplications)
	router.HandlerFunc(http.MethodGet, "/ferias", s.handleFairs)
	router.HandlerFunc(http.MethodGet, "/api/pachambear/summary", s.handleApplicationSummary)
	router.HandlerFunc(http.MethodGet, "/api/ferias/summary", s.handleFairSummary)

	if s.imports != nil {
		router.HandlerFunc(http.MethodGet, "/imports", s.handleImports)
		router.HandlerFunc(http.MethodPost, "/imports", s.handleUpload)
		router.GET("/api/imports/:id", s.handleImportStatus)
	}

	router.NotFound = http.HandlerFunc(s.handleNotFound)
	router.PanicHandler = s.handlePanic
	return router, nil
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
