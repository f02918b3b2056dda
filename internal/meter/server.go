package meter

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/abkmadni/smart-meter-ocr/internal/ocr"
)

// Server handles HTTP requests for the meter registry
type Server struct {
	service   *Service
	session   *ocr.Session
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, session *ocr.Session, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, session, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, session *ocr.Session, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		session:   session,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Meter Reader"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
// Routes must be registered from most specific to least specific to avoid conflicts
func (s *Server) registerRoutes() {
	// Meters and per-meter summaries
	s.mux.HandleFunc("PUT /api/meters/{id}", s.requireAuth(s.handleUpdateMeter))
	s.mux.HandleFunc("DELETE /api/meters/{id}", s.requireAuth(s.handleDeleteMeter))
	s.mux.HandleFunc("GET /api/meters", s.requireAuth(s.handleListMeters))
	s.mux.HandleFunc("POST /api/meters", s.requireAuth(s.handleAddMeter))

	// Readings
	s.mux.HandleFunc("GET /api/readings/{id}/image", s.requireAuth(s.handleReadingImage))
	s.mux.HandleFunc("GET /api/readings", s.requireAuth(s.handleListReadings))
	s.mux.HandleFunc("POST /api/readings", s.requireAuth(s.handleAddReading))

	// Capture pipeline
	s.mux.HandleFunc("POST /api/scan", s.requireAuth(s.handleScan))

	// Bulk transfer
	s.mux.HandleFunc("GET /api/export", s.requireAuth(s.handleExport))
	s.mux.HandleFunc("POST /api/import", s.requireAuth(s.handleImport))

	// Settings
	s.mux.HandleFunc("GET /api/settings", s.requireAuth(s.handleGetSettings))
	s.mux.HandleFunc("PUT /api/settings", s.requireAuth(s.handleUpdateSettings))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
