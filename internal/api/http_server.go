package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"salonbook/internal/auth"
	"salonbook/internal/availability"
	"salonbook/internal/config"
	"salonbook/internal/events"
	"salonbook/internal/export"
	"salonbook/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Deps are the services the HTTP API exposes.
type Deps struct {
	Bookings *service.BookingService
	Catalog  *service.CatalogService
	Users    *service.UserService
	Slots    *availability.Service
	Sessions *auth.Manager
	Exporter *export.Exporter
	Bus      *events.EventBus
}

// HTTPServer is the JSON API used by the web client.
type HTTPServer struct {
	cfg     config.APIConfig
	deps    Deps
	server  *http.Server
	limiter *keyLimiter
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "http").Logger()
	srv := &HTTPServer{
		cfg:     cfg,
		deps:    deps,
		limiter: newKeyLimiter(cfg.RateLimit),
		logger:  &l,
		now:     time.Now,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(s.logger))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(sessions(s.deps.Sessions, s.logger))
		r.Use(rateLimit(s.limiter))

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Get("/professionals", s.handleListProfessionals)
		r.Route("/professionals/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetProfessional)
			r.Get("/services", s.handleListServices)
			r.Get("/slots", s.handleSlots)

			r.Group(func(r chi.Router) {
				r.Use(requireSession)
				r.Patch("/", s.handleUpdateProfessional)
				r.Post("/services", s.handleCreateService)
				r.Get("/reservations", s.handleProfessionalReservations)
				r.Get("/overrides", s.handleListOverrides)
				r.Put("/overrides", s.handleSetOverride)
				r.Delete("/overrides", s.handleClearOverride)
			})
		})

		r.Post("/bookings/guest", s.handleGuestBooking)
		r.Get("/changes", s.handleChanges)

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Get("/me", s.handleMe)
			r.Post("/bookings", s.handleClientBooking)
			r.Get("/reservations/mine", s.handleMyReservations)
			r.Get("/reservations/{id}", s.handleGetReservation)
			r.Post("/reservations/{id}/{action}", s.handleTransition)
			r.Put("/services/{id}", s.handleUpdateService)
			r.Delete("/services/{id}", s.handleDeactivateService)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/professionals", s.handleCreateProfessional)
			r.Delete("/professionals/{id}", s.handleDeactivateProfessional)
			r.Get("/users", s.handleListUsers)
			r.Put("/users/{id}/role", s.handleSetRole)
			r.Get("/reservations", s.handleAdminReservations)
			r.Get("/reservations/export", s.handleExport)
			r.Post("/overrides/normalize", s.handleNormalize)
		})
	})

	return r
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}
