package http

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/frontend"
	"github.com/secmon-lab/malinsight/pkg/usecase"
	"github.com/secmon-lab/malinsight/pkg/utils/safe"
)

const (
	// DefaultVirusTotalProxyTarget is where /vt-api/* is forwarded
	DefaultVirusTotalProxyTarget = "https://www.virustotal.com"
	// DefaultMaxUploadSize bounds multipart sample uploads
	DefaultMaxUploadSize = 32 << 20
)

type Server struct {
	router        *chi.Mux
	uc            *usecase.UseCases
	corsOrigins   []string
	proxyTarget   string
	maxUploadSize int64
}

type Options func(*Server)

// WithCORSOrigins enables CORS for the given origins on /api routes
func WithCORSOrigins(origins []string) Options {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithVirusTotalProxyTarget changes the upstream of /vt-api/*. An empty
// target disables the proxy.
func WithVirusTotalProxyTarget(target string) Options {
	return func(s *Server) {
		s.proxyTarget = target
	}
}

// WithMaxUploadSize bounds the size of uploaded samples
func WithMaxUploadSize(size int64) Options {
	return func(s *Server) {
		if size > 0 {
			s.maxUploadSize = size
		}
	}
}

func New(uc *usecase.UseCases, opts ...Options) (*Server, error) {
	r := chi.NewRouter()

	s := &Server{
		router:        r,
		uc:            uc,
		proxyTarget:   DefaultVirusTotalProxyTarget,
		maxUploadSize: DefaultMaxUploadSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		if len(s.corsOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: s.corsOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
				AllowedHeaders: []string{"Accept", "Content-Type"},
				MaxAge:         300,
			}))
		}

		r.Get("/providers", s.wrap(s.providersHandler))
		r.Get("/sample-report", s.wrap(s.sampleReportHandler))
		r.Post("/normalize", s.wrap(s.normalizeHandler))

		r.Post("/sessions", s.wrap(s.createSessionHandler))
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.wrap(s.getSessionHandler))
			r.Delete("/", s.wrap(s.resetSessionHandler))
			r.Post("/sample", s.wrap(s.sampleHandler))
			r.Post("/hash", s.wrap(s.hashHandler))
			r.Put("/report", s.wrap(s.reportHandler))
			r.Post("/analyze", s.wrap(s.analyzeHandler))
			r.Post("/rule", s.wrap(s.ruleHandler))
		})
	})

	if s.proxyTarget != "" {
		proxy, err := newVirusTotalProxy(s.proxyTarget)
		if err != nil {
			return nil, err
		}
		r.Handle(proxyPrefix+"/*", proxy)
	}

	// Static file serving for SPA (catch-all, must be last)
	staticFS, err := fs.Sub(frontend.StaticFiles, "dist")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to bind dist dir for static")
	}

	r.Get("/*", spaHandler(staticFS))

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	safe.Write(r.Context(), w, []byte("ok"))
}

// spaHandler handles SPA routing by serving static files and falling back to index.html
func spaHandler(staticFS fs.FS) http.HandlerFunc {
	fileServer := http.FileServer(http.FS(staticFS))

	return func(w http.ResponseWriter, r *http.Request) {
		urlPath := strings.TrimPrefix(r.URL.Path, "/")

		// If the path is empty, serve index.html
		if urlPath == "" {
			urlPath = "index.html"
		}

		if file, err := staticFS.Open(urlPath); err != nil {
			// File not found, serve index.html for SPA routing
			if indexFile, err := staticFS.Open("index.html"); err == nil {
				defer safe.Close(r.Context(), indexFile)
				w.Header().Set("Content-Type", "text/html")
				safe.Copy(r.Context(), w, indexFile)
				return
			}

			http.NotFound(w, r)
			return
		} else {
			safe.Close(r.Context(), file)
		}

		fileServer.ServeHTTP(w, r)
	}
}
