package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/itstheanurag/judge/internal/api"
	"github.com/itstheanurag/judge/internal/cleanup"
	"github.com/itstheanurag/judge/internal/config"
	"github.com/itstheanurag/judge/internal/database"
	"github.com/itstheanurag/judge/internal/hooks"
	"github.com/itstheanurag/judge/internal/languages"
	"github.com/itstheanurag/judge/internal/limiter"
	"github.com/itstheanurag/judge/internal/metrics"
	"github.com/itstheanurag/judge/internal/notify"
	"github.com/itstheanurag/judge/internal/process"
	"github.com/itstheanurag/judge/internal/proxy"
	"github.com/itstheanurag/judge/internal/queue"
	"github.com/itstheanurag/judge/internal/resources"
	"github.com/itstheanurag/judge/internal/sandbox"
	"github.com/itstheanurag/judge/internal/strategy"
	"github.com/itstheanurag/judge/internal/verdict"
	"github.com/itstheanurag/judge/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	webhookTimeout       = 10 * time.Second
	limiterCleanupPeriod = 5 * time.Minute
	hookPurgePeriod      = time.Minute
)

type Server struct {
	conf       *config.Config
	logger     *zerolog.Logger
	httpServer *http.Server

	db        *database.Database
	redis     *redis.Client
	nats      *notify.NatsPublisher
	janitor   *sandbox.Janitor
	runtime   sandbox.ContainerRuntime
	pool      *cleanup.Pool
	hooks     hooks.Store
	queue     *queue.Manager
	workers   []*worker.Worker
	limiter   *limiter.RateLimiter
	resources *resources.Resources

	cancelFunc context.CancelFunc
}

func New(
	conf *config.Config,
	logger *zerolog.Logger,
) (*Server, error) {
	s := &Server{conf: conf, logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	runner := process.NewRunner(logger)
	s.runtime = sandbox.NewDockerCLI(runner, logger, sandbox.DockerOptions{
		Binary:         conf.Judge.DockerBinary,
		BuildTimeout:   conf.Judge.BuildTimeout(),
		CommandTimeout: conf.Judge.CommandTimeout(),
	})

	active := sandbox.NewActiveImages()
	janitor, err := sandbox.NewJanitor(logger, active)
	if err != nil {
		logger.Warn().Err(err).Msg("docker engine client unavailable, stale resource sweep disabled")
	} else {
		s.janitor = janitor
	}

	s.pool = cleanup.NewPool(cleanup.Options{
		MinWorkers:  conf.Cleanup.MinWorkers,
		MaxWorkers:  conf.Cleanup.MaxWorkers,
		QueueSize:   conf.Cleanup.QueueSize,
		IdleTimeout: conf.Cleanup.IdleTimeout.Duration,
		TaskTimeout: conf.Judge.CommandTimeout(),
	}, logger, m)

	s.resources = resources.New(conf.Judge.MaxRequests, conf.Judge.MaxCPUs)
	m.NewInFlightGauge(func() float64 { return float64(s.resources.NumberOfExecutions()) })

	strat := strategy.New(
		s.runtime,
		s.resources,
		verdict.NewEngine(conf.Judge.OOMExitCode, conf.Judge.TimeoutExitCode),
		s.pool,
		active,
		m,
		logger,
		strategy.Options{ExecutionTimeout: conf.Judge.ExecutionTimeout()},
	)

	if s.hooks, err = s.openHooks(); err != nil {
		s.closeBackends()
		return nil, err
	}

	var publisher notify.Publisher = notify.NopPublisher()
	if conf.Nats.URL != "" {
		s.nats, err = notify.NewNatsPublisher(conf.Nats.URL, conf.Nats.Subject, logger, m)
		if err != nil {
			s.closeBackends()
			return nil, err
		}
		publisher = s.nats
	}

	s.queue = queue.NewManager(conf.Deferred.QueueSize, m)
	dispatcher := notify.NewDispatcher(notify.NewWebhook(webhookTimeout, logger, m), publisher, logger)

	s.workers = make([]*worker.Worker, conf.Deferred.Workers)
	for i := range s.workers {
		s.workers[i] = worker.NewWorker(i, strat, s.queue, dispatcher, s.hooks, m, logger)
	}

	gate := proxy.New(proxy.Options{
		Limits: proxy.Limits{
			MaxTestCases: conf.Judge.MaxTestCases,
			MinTime:      conf.Judge.MinTime,
			MaxTime:      conf.Judge.MaxTime,
			MinMemory:    conf.Judge.MinMemory,
			MaxMemory:    conf.Judge.MaxMemory,
		},
		DeleteImage: conf.Judge.DeleteImage,
	}, s.resources, strat, s.queue, s.hooks, publisher, m, logger)

	s.limiter = limiter.NewRateLimiter(conf.RateLimit.GlobalRPS, conf.RateLimit.IPRPS, conf.RateLimit.IPBurst, m)

	var engine api.Pinger
	if s.janitor != nil {
		engine = s.janitor
	}
	handler := api.NewHandler(languages.NewRegistry(), gate, s.hooks, s.runtime, engine, conf.Judge.Workdir, logger)

	writeTimeout := conf.HTTPWriteTimeout()
	if configured := time.Duration(conf.Server.WriteTimeout) * time.Second; writeTimeout > configured {
		logger.Info().Dur("configured", configured).Dur("write_timeout", writeTimeout).
			Msg("WRITE_TIMEOUT is shorter than a synchronous run, raised")
	}

	s.httpServer = &http.Server{
		Addr:         ":" + strconv.Itoa(conf.Server.Port),
		Handler:      NewRouter(handler, s.limiter, m.Gatherer()),
		ReadTimeout:  time.Duration(conf.Server.ReadTimeout) * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  time.Duration(conf.Server.IdleTimeout) * time.Second,
	}

	return s, nil
}

// NewRouter mounts the HTTP surface. Only /api is rate limited; health and
// metrics stay reachable for health checks.
func NewRouter(h *api.Handler, rl *limiter.RateLimiter, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(rl.Middleware)
	apiRouter.HandleFunc("/compile", h.Compile).Methods(http.MethodPost)
	apiRouter.HandleFunc("/languages", h.Languages).Methods(http.MethodGet)

	diagnostics := apiRouter.PathPrefix("/diagnostics").Subrouter()
	diagnostics.HandleFunc("/containers", h.Containers).Methods(http.MethodGet)
	diagnostics.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	diagnostics.HandleFunc("/images", h.Images).Methods(http.MethodGet)

	return r
}

func (s *Server) openHooks() (hooks.Store, error) {
	ttl := s.conf.Hooks.TTL.Duration
	ctx, cancel := context.WithTimeout(context.Background(), database.DatabasePingTimeout*time.Second)
	defer cancel()

	switch s.conf.Hooks.Backend {
	case "redis":
		client, err := hooks.DialRedis(ctx, s.conf.Redis.Addr, s.conf.Redis.Password, s.conf.Redis.DB)
		if err != nil {
			return nil, err
		}
		s.redis = client
		s.logger.Info().Str("addr", s.conf.Redis.Addr).Msg("callbacks stored in redis")
		return hooks.NewRedisStore(client, ttl), nil

	case "postgres":
		db, err := database.New(s.conf.Db, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		s.db = db
		store := hooks.NewPostgresStore(db.Pool, ttl)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		s.logger.Info().Msg("callbacks stored in postgres")
		return store, nil

	default:
		return hooks.NewMemoryStore(ttl), nil
	}
}

func (s *Server) Start() error {
	s.logger.Info().
		Int("port", s.conf.Server.Port).
		Int("max_requests", s.conf.Judge.MaxRequests).
		Msg("starting HTTP server")

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel

	if err := s.prepare(ctx); err != nil {
		return err
	}

	for _, w := range s.workers {
		go w.Start(ctx)
	}
	s.limiter.StartCleanup(ctx, limiterCleanupPeriod)
	go s.purgeHooks(ctx)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}

	return nil
}

// prepare creates the working directory and checks docker while sweeping
// whatever a previous run left behind.
func (s *Server) prepare(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := os.MkdirAll(s.conf.Judge.Workdir, 0o755); err != nil {
			return fmt.Errorf("create workdir %s: %w", s.conf.Judge.Workdir, err)
		}
		return nil
	})

	g.Go(func() error {
		if !s.runtime.IsUp(gctx) {
			s.logger.Warn().Msg("docker is not reachable, executions will fail until it is")
		}
		return nil
	})

	if s.janitor != nil {
		g.Go(func() error {
			report, err := s.janitor.Sweep(gctx, 0)
			if err != nil {
				s.logger.Warn().Err(err).Msg("startup sweep failed")
				return nil
			}
			s.logger.Info().
				Int("containers", report.Containers).
				Int("images", report.Images).
				Int("failed", report.Failed).
				Msg("startup sweep finished")
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) purgeHooks(ctx context.Context) {
	ticker := time.NewTicker(hookPurgePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			switch store := s.hooks.(type) {
			case *hooks.MemoryStore:
				if n := store.Purge(); n > 0 {
					s.logger.Debug().Int("purged", n).Msg("expired callbacks removed")
				}
			case *hooks.PostgresStore:
				if _, err := store.DeleteExpired(ctx); err != nil {
					s.logger.Warn().Err(err).Msg("failed to delete expired callbacks")
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Int("pending", s.pool.Pending()).Msg("cleanup pool did not drain")
	}

	s.closeBackends()
	return nil
}

func (s *Server) closeBackends() {
	if s.nats != nil {
		s.nats.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.janitor != nil {
		_ = s.janitor.Close()
	}
}
