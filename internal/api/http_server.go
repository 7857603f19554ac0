package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/seyone-projects/reda-backend/internal/config"
	"github.com/seyone-projects/reda-backend/internal/service"
)

// Dependencies are the collaborators the HTTP surface routes to.
type Dependencies struct {
	Users        *service.UserService
	Reservations *service.ReservationService
	Dashboard    *service.DashboardService
	// Ready reports whether the backing stores are reachable.
	Ready func(ctx context.Context) error
	// RateCounter is optional; without it limits are per instance only.
	RateCounter RateCounter
	// UploadDir is served read-only under /uploads/.
	UploadDir string
}

type HTTPServer struct {
	cfg    *config.Config
	deps   Dependencies
	server *http.Server
	logger *zerolog.Logger
}

func NewHTTPServer(cfg *config.Config, deps Dependencies, logger *zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "http").Logger()
	srv := &HTTPServer{cfg: cfg, deps: deps, logger: &l}

	perMinute := int(cfg.API.RateLimit.RPS * 60)
	handler := chain(srv.routes(),
		recoverer,
		requestID(&l),
		accessLog(&l),
		securityHeaders(cfg.App.IsProduction()),
		cors(cfg.API.CORS, cfg.App.IsDevelopment()),
		bodyLimit(cfg.API.HTTP.MaxBodyBytes),
		rateLimit(newRateLimiter(cfg.API.RateLimit), deps.RateCounter, perMinute),
	)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	users := s.deps.Users

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/v1/users/login", s.handleLogin)
	mux.HandleFunc("GET /api/v1/users/login", s.handleLogin)
	mux.HandleFunc("PUT /api/v1/users/register", requireAuth(users, requireRoles(staffRoles, s.handleRegister)))
	mux.HandleFunc("POST /api/v1/users/register", requireAuth(users, requireRoles(staffRoles, s.handleRegister)))
	mux.HandleFunc("PUT /api/v1/users/adduser", requireAuth(users, s.handleAddUser))
	mux.HandleFunc("POST /api/v1/users/adduser", requireAuth(users, s.handleAddUser))
	mux.HandleFunc("POST /api/v1/users/logout", requireAuth(users, s.handleLogout))
	mux.HandleFunc("POST /api/v1/users/import", requireAuth(users, requireRoles(staffRoles, s.handleImportUsers)))
	mux.HandleFunc("GET /api/v1/users", requireAuth(users, requireRoles(staffRoles, s.handleListUsers)))

	mux.HandleFunc("GET /api/v1/dashboard", s.handleGetDashboard)
	mux.HandleFunc("PUT /api/v1/dashboard", requireAuth(users, requireRoles(staffRoles, s.handleUpdateDashboard)))

	mux.HandleFunc("POST /api/v1/amenity-bookings/validate", requireAuth(users, s.handleValidateBooking))
	mux.HandleFunc("POST /api/v1/amenity-bookings", requireAuth(users, s.handleCreateBooking))
	mux.HandleFunc("GET /api/v1/amenity-bookings", requireAuth(users, s.handleListBookings))
	mux.HandleFunc("GET /api/v1/amenity-bookings/availability", requireAuth(users, s.handleAvailability))
	mux.HandleFunc("GET /api/v1/amenity-bookings/export", requireAuth(users, requireRoles(staffRoles, s.handleExportBookings)))
	mux.HandleFunc("PATCH /api/v1/amenity-bookings/{id}/cancel", requireAuth(users, s.handleCancelBooking))

	if s.deps.UploadDir != "" {
		files := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.deps.UploadDir)))
		mux.Handle("GET /uploads/", noDirListing(files))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, msgNotFound)
	})
	return mux
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			writeError(w, http.StatusNotFound, msgNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the full middleware stack, mostly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
