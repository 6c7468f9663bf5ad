/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/slotkeeper/internal/api"
	"github.com/friendsincode/slotkeeper/internal/audit"
	"github.com/friendsincode/slotkeeper/internal/booking"
	"github.com/friendsincode/slotkeeper/internal/clock"
	"github.com/friendsincode/slotkeeper/internal/config"
	"github.com/friendsincode/slotkeeper/internal/db"
	"github.com/friendsincode/slotkeeper/internal/events"
	"github.com/friendsincode/slotkeeper/internal/leadership"
	"github.com/friendsincode/slotkeeper/internal/notifications"
	"github.com/friendsincode/slotkeeper/internal/reminders"
	"github.com/friendsincode/slotkeeper/internal/scheduler"
	"github.com/friendsincode/slotkeeper/internal/slots"
	"github.com/friendsincode/slotkeeper/internal/store"
	"github.com/friendsincode/slotkeeper/internal/sweeper"
	"github.com/friendsincode/slotkeeper/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db                *gorm.DB
	redis             *redis.Client
	bus               *events.Bus
	api               *api.API
	auditSvc          *audit.Service
	queue             notifications.Queue
	dispatcher        *notifications.Dispatcher
	runner            *scheduler.Runner
	leaderAwareRunner *scheduler.LeaderAwareRunner

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("slotkeeper-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      75 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if needsRedis(s.cfg) {
		client, err := NewRedisClient(context.Background(), s.cfg)
		if err != nil {
			return err
		}
		s.redis = client
		s.DeferClose(client.Close)
	}

	queue, err := OpenQueue(s.cfg, s.redis)
	if err != nil {
		return fmt.Errorf("open notification queue: %w", err)
	}
	s.queue = queue
	s.DeferClose(queue.Close)
	s.logger.Info().Str("backend", string(s.cfg.QueueBackend)).Str("queue", s.cfg.QueueName).Msg("notification queue ready")

	repo := store.NewGorm(database)
	clk := clock.System{}

	bookingSvc := booking.NewService(repo, clk, s.bus, s.logger)
	slotSvc := slots.NewService(repo, clk, s.bus, s.logger)
	s.auditSvc = audit.NewService(database, s.bus, s.logger)

	s.dispatcher = notifications.NewDispatcher(
		queue,
		NewTransport(s.cfg, s.logger),
		bookingSvc,
		notifications.NewGormDeliveryLog(database),
		DispatcherConfig(s.cfg),
		s.logger,
	)

	sweep := sweeper.New(repo, clk, s.bus, s.logger)
	reminderScan := reminders.New(repo, queue, clk, s.cfg.Location(), s.logger)
	jobs := []scheduler.Job{
		{Name: "sweep", Interval: s.cfg.SweepInterval, Run: func(ctx context.Context) error {
			_, err := sweep.Sweep(ctx)
			return err
		}},
		{Name: "reminders", Interval: s.cfg.ReminderInterval, Run: func(ctx context.Context) error {
			_, err := reminderScan.Scan(ctx)
			return err
		}},
		{Name: "db_pool_stats", Interval: 30 * time.Second, Run: func(ctx context.Context) error {
			return db.UpdateConnectionMetrics(ctx, database)
		}},
	}
	if job, ok := RequeueJob(queue, s.logger); ok {
		jobs = append(jobs, job)
	}
	s.runner = scheduler.NewRunner(s.logger, jobs...)

	if s.cfg.LeaderElectionEnabled {
		electionCfg := leadership.DefaultConfig()
		if s.cfg.InstanceID != "" {
			electionCfg.InstanceID = s.cfg.InstanceID
		}
		election := leadership.NewElection(s.redis, electionCfg, s.logger)
		s.leaderAwareRunner = scheduler.NewLeaderAware(s.runner, election, s.logger)
		s.logger.Info().Str("instance_id", election.InstanceID()).Msg("leader election enabled for periodic jobs")
	}

	s.api = api.New(api.Config{
		Bookings:  bookingSvc,
		Slots:     slotSvc,
		Users:     repo,
		JWTSecret: []byte(s.cfg.JWTSigningKey),
		JWTTTL:    s.cfg.JWTTTL,
		Ping: func(ctx context.Context) error {
			sqlDB, err := database.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}, s.logger)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the Prometheus scrape server, nil when disabled.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.auditSvc.Start(ctx, nil)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("notification dispatcher exited")
		}
	}()

	// Periodic jobs: leader-aware if configured, otherwise direct.
	if s.leaderAwareRunner != nil {
		if err := s.leaderAwareRunner.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("leader-aware scheduler failed to start")
		}
	} else {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("scheduler loop exited")
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	if s.leaderAwareRunner != nil {
		if err := s.leaderAwareRunner.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("leader-aware scheduler stop failed")
		}
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz/leader", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`
		if s.leaderAwareRunner != nil {
			if s.leaderAwareRunner.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.api.Routes(s.router)
}
