// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and routes.
// It decides which URL patterns map to which handler functions, which
// middleware guards which routes, and how the process stops.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Server
//	  → sqlite.DB                      (methods, progress, users)
//	  → storage.Store                  (disk or GCS, method images)
//	  → session.Bus                    (in-process or Redis pub/sub)
//	  → statscache.Stats               (in-process or Redis)
//	  → AuthService / MethodService / ProgressService
//	  → handlers → chi routes
//
// This is the "composition root" pattern: all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/pickleit/internal/auth"
	"github.com/sakif/pickleit/internal/config"
	"github.com/sakif/pickleit/internal/handler"
	"github.com/sakif/pickleit/internal/middleware"
	sqliteRepo "github.com/sakif/pickleit/internal/repository/sqlite"
	"github.com/sakif/pickleit/internal/seed"
	"github.com/sakif/pickleit/internal/service"
	"github.com/sakif/pickleit/internal/session"
	"github.com/sakif/pickleit/internal/statscache"
	"github.com/sakif/pickleit/internal/storage"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database, the session bus, the stats store, and the
// image store. Close releases all of them; Start calls it on the way out.
type Server struct {
	router *chi.Mux
	config config.Server
	logger *slog.Logger

	db      *sqliteRepo.DB
	images  storage.Store
	disk    *storage.Disk // nil unless images are served from this process
	bus     session.Bus
	stats   *statscache.Stats
	closers []func() error
}

// New opens every backing store and builds the router.
//
// IMPORT ALIAS:
// We import repository/sqlite as `sqliteRepo` to avoid confusion with
// the sqlite driver package.
func New(ctx context.Context, cfg config.Server, logger *slog.Logger) (_ *Server, err error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	// Anything opened before a failure is released again.
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	// === DATABASE ===
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	s.db, err = sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.closers = append(s.closers, s.db.Close)

	// === IMAGE STORAGE ===
	switch cfg.StorageBackend {
	case config.StorageGCS:
		g, err := storage.NewGCS(ctx, storage.GCSConfig{
			Bucket:          cfg.GCSBucket,
			CredentialsFile: cfg.GCSCredentialsFile,
			PublicBase:      cfg.MediaBase(),
		})
		if err != nil {
			return nil, err
		}
		s.images = g
	default:
		d, err := storage.NewDisk(cfg.MediaDir, cfg.MediaBase())
		if err != nil {
			return nil, err
		}
		s.images, s.disk = d, d
	}
	s.closers = append(s.closers, s.images.Close)

	// === SESSION BUS AND STATS CACHE ===
	// Redis when configured, so several server instances share session
	// events and counts; otherwise both live in this process.
	if cfg.RedisAddr != "" {
		s.bus, err = session.NewRedisBus(cfg.RedisAddr, cfg.RedisChannel, logger)
		if err != nil {
			return nil, err
		}
		store, err := statscache.NewRedis(cfg.RedisAddr, "pickleit:stats:")
		if err != nil {
			s.bus.Close()
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		s.stats = statscache.New(store, logger)
	} else {
		s.bus = session.NewMemoryBus()
		s.stats = statscache.New(statscache.NewMemory(), logger)
	}
	s.closers = append(s.closers, s.bus.Close)

	if cfg.SeedOnStart {
		if _, err := seed.Seed(ctx, s.db, logger); err != nil {
			return nil, err
		}
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures all middleware and route handlers.
//
// ROUTE GROUPS:
//
//	public          GET /api/methods..., auth endpoints, /media, /metrics
//	optional auth   /api/auth/session, /api/auth/signout
//	required auth   everything per-user, /api/me, /api/auth/stream
//	admin           POST/PUT /api/methods...
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger, Metrics: see everything below them, including CORS preflights
// 5. CORS: answers preflights for browser clients
func (s *Server) setupRoutes() error {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	} else {
		s.logger.Info("GitHub sign-in disabled (GITHUB_CLIENT_ID/SECRET not set)")
	}
	if s.config.AdminEmail == "" {
		s.logger.Warn("ADMIN_EMAIL not set; nobody can create or edit methods")
	}

	// === Services ===
	authService := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.bus, s.config.AdminEmail, s.logger)
	methodService := service.NewMethodService(s.db, s.images, s.stats, s.logger)
	progressService := service.NewProgressService(s.db, s.stats, s.logger)

	// === Handlers ===
	authHandler := handler.NewAuthHandler(authService, github, s.logger)
	methodHandler := handler.NewMethodHandler(methodService, storage.Variants{Base: s.images.PublicBase()}, s.logger)
	progressHandler := handler.NewProgressHandler(progressService, s.logger)
	streamHandler := handler.NewSessionStreamHandler(s.bus, s.logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", promhttp.Handler())

	if s.disk != nil {
		// GET /media/1700000000000-abc.jpg → serves {MediaDir}/1700000000000-abc.jpg
		fileServer := http.FileServer(http.Dir(s.disk.Dir()))
		r.Handle("/media/*", http.StripPrefix("/media/", fileServer))
	}

	if github != nil {
		r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	r.Route("/api", func(r chi.Router) {
		// === Public ===
		r.Get("/methods", methodHandler.HandleList)
		r.Get("/methods/count", methodHandler.HandleCount)
		r.Get("/methods/{id}", methodHandler.HandleGet)
		r.Post("/auth/signup", authHandler.HandleSignUp)
		r.Post("/auth/signin", authHandler.HandleSignIn)

		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(tokens))
			r.Get("/auth/session", authHandler.HandleSession)
			r.Post("/auth/signout", authHandler.HandleSignOut)
		})

		// === Signed in ===
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/me", authHandler.HandleMe)
			r.Get("/auth/stream", streamHandler.HandleStream)

			r.Get("/saved", progressHandler.HandleListSaved)
			r.Put("/saved/{methodID}", progressHandler.HandleSave)
			r.Delete("/saved/{methodID}", progressHandler.HandleUnsave)

			r.Get("/completed", progressHandler.HandleListCompleted)
			r.Get("/completed/count", progressHandler.HandleCompletedCount)
			r.Get("/completed/{methodID}", progressHandler.HandleGetCompletion)
			r.Put("/completed/{methodID}", progressHandler.HandleComplete)
			r.Delete("/completed/{methodID}", progressHandler.HandleUncomplete)

			r.Get("/achievements", progressHandler.HandleListAchievements)
			r.Post("/achievements", progressHandler.HandleAward)
			r.Get("/achievements/overview", progressHandler.HandleOverview)

			r.Get("/profile", progressHandler.HandleProfile)
			r.Post("/rpc/add_user_points", progressHandler.HandleAddPoints)
			r.Get("/rpc/get_completed_categories", progressHandler.HandleCompletedCategories)
			r.Get("/rpc/get_learned_methods_count", progressHandler.HandleLearnedMethodsCount)

			// === Admin ===
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin(authService.IsAdmin))
				r.Post("/methods", methodHandler.HandleCreate)
				r.Put("/methods/{id}", methodHandler.HandleUpdate)
				r.Put("/methods/{id}/image", methodHandler.HandleReplaceImage)
			})
		})
	})

	return nil
}

// Close releases every resource New opened, newest first.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database, bus, and stores
//
// Session streams are hijacked connections, which Shutdown does not wait
// for; closing the bus ends their subscriptions.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	// WriteTimeout stays zero: it would also cut off session streams.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("storage", s.config.StorageBackend),
			slog.Bool("redis", s.config.RedisAddr != ""),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
