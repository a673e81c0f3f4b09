package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/rainwatch/apiserver/config"
	"github.com/rainwatch/apiserver/internal/db"
	"github.com/rainwatch/apiserver/internal/forecast"
	"github.com/rainwatch/apiserver/internal/handlers"
	"github.com/rainwatch/apiserver/internal/inference"
	"github.com/rainwatch/apiserver/internal/mq"
	"github.com/rainwatch/apiserver/internal/services"
	"github.com/rainwatch/apiserver/internal/store"
	"github.com/rainwatch/apiserver/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Server wraps the HTTP server, router and the handles it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sqlx.DB
	redis      *redis.Client
	events     mq.Backend
	logger     *zap.Logger
}

// New opens every backing store once and injects the handles into the
// services. The returned Server owns and closes them.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (srv *Server, err error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	srv = &Server{logger: logger}
	defer func() {
		if err != nil {
			srv.closeHandles()
		}
	}()

	if srv.db, err = db.Open(ctx, cfg); err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if srv.redis, err = db.OpenRedis(ctx, cfg.Redis); err != nil {
		return nil, fmt.Errorf("open redis: %w", err)
	}
	if srv.events, err = mq.Open(ctx, cfg.Events); err != nil {
		return nil, err
	}

	userAuth, adminAuth, err := srv.buildAuth(cfg)
	if err != nil {
		return nil, err
	}

	advisor, err := forecast.NewLRUAdvisor(cfg.Cache.RiskSummarySize, cfg.Cache.PrecautionSize)
	if err != nil {
		return nil, fmt.Errorf("risk caches: %w", err)
	}
	var publisher services.EventPublisher
	if srv.events != nil {
		publisher = mq.NewPredictionPublisher(srv.events, cfg.Events.Channel)
	}
	predictionService := services.NewPredictionService(store.NewPredictionRepository(srv.db), advisor, publisher, logger)

	predictor, err := inference.NewClient(cfg.Inference)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger(logger),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	handlers.UserAuthRouter(router, userAuth, logger)
	handlers.PredictionRouter(router, userAuth, predictor, predictionService, logger)
	router.Route("/admin", func(r chi.Router) {
		handlers.AdminAuthRouter(r, adminAuth, logger)
		handlers.AdminRouter(r, adminAuth, userAuth, logger)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	srv.router = router
	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

// buildAuth wires one login flow per realm over a shared hasher and token
// service.
func (s *Server) buildAuth(cfg config.Config) (users, admins *services.AuthService, err error) {
	hasher, err := services.NewBcryptHasher(cfg.Auth.BcryptCost, cfg.Auth.HashConcurrency)
	if err != nil {
		return nil, nil, err
	}
	policy := services.LockoutPolicy{
		Threshold:  cfg.Auth.LockoutThreshold,
		Duration:   cfg.Auth.LockoutDuration,
		AttemptTTL: cfg.Auth.LockoutAttemptTTL,
	}

	credentials := make(map[types.Realm]*services.CredentialService, 2)
	finders := make(map[types.Realm]services.PrincipalFinder, 2)
	for _, realm := range []types.Realm{types.RealmUser, types.RealmAdmin} {
		repo, err := store.NewPrincipalRepository(s.db, realm)
		if err != nil {
			return nil, nil, err
		}
		credentials[realm] = services.NewCredentialService(realm, repo, hasher)
		finders[realm] = credentials[realm]
	}

	tokens, err := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, finders)
	if err != nil {
		return nil, nil, err
	}

	newAuth := func(realm types.Realm) *services.AuthService {
		lockout := services.NewLockoutService(store.NewRedisLockoutStore(s.redis, realm), policy)
		return services.NewAuthService(credentials[realm], lockout, tokens, s.logger)
	}
	return newAuth(types.RealmUser), newAuth(types.RealmAdmin), nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the backing stores.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeHandles()
	return err
}

func (s *Server) closeHandles() {
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.logger.Warn("closing event backend", zap.Error(err))
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
