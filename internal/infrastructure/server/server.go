package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	bridge "github.com/GriffinCanCode/eggprofit/internal/api/http"
	"github.com/GriffinCanCode/eggprofit/internal/api/middleware"
	"github.com/GriffinCanCode/eggprofit/internal/api/ws"
	"github.com/GriffinCanCode/eggprofit/internal/domain/attribution"
	"github.com/GriffinCanCode/eggprofit/internal/domain/connectivity"
	"github.com/GriffinCanCode/eggprofit/internal/domain/launch"
	"github.com/GriffinCanCode/eggprofit/internal/domain/notify"
	"github.com/GriffinCanCode/eggprofit/internal/domain/state"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/config"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/eggprofit/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/eggprofit/internal/providers/browser"
	"github.com/GriffinCanCode/eggprofit/internal/providers/http/client"
	"github.com/GriffinCanCode/eggprofit/internal/providers/remote"
	"github.com/GriffinCanCode/eggprofit/internal/providers/storage"
	"github.com/GriffinCanCode/eggprofit/internal/shared/types"
)

const shutdownTimeout = 5 * time.Second

// Options overrides collaborators. Zero values select the production ones.
type Options struct {
	Logger    *logging.Logger
	Backend   storage.Backend
	Prober    connectivity.Prober
	Prompter  notify.Prompter
	Factory   browser.Factory
	Opener    browser.ExternalOpener
	Container browser.Container
}

// Server wires the launcher and serves the bridge
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer

	backend   storage.Backend
	store     *state.Store
	monitor   *connectivity.Monitor
	collector *attribution.Collector
	prompt    *notify.Pending
	resolver  *launch.Resolver
	browser   *browser.Manager

	router *gin.Engine
	http   *http.Server

	mu       sync.Mutex
	listener net.Listener // Protected by mu
}

// New builds every component from cfg
func New(ctx context.Context, cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
	}

	logger.Info("Initializing launcher",
		zap.String("state_driver", cfg.Storage.Driver),
		zap.String("config_endpoint", cfg.Remote.ConfigEndpoint),
		zap.Bool("bridge", cfg.Bridge.Enabled),
	)

	metrics := monitoring.NewMetrics()

	backend := opts.Backend
	if backend == nil {
		var err error
		backend, err = storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open state backend: %w", err)
		}
	}

	store, err := state.Open(ctx, backend, logger)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("load launch state: %w", err)
	}

	installID, err := attribution.InstallID(ctx, backend, cfg.Remote.InstallID)
	if err != nil {
		backend.Close()
		return nil, err
	}
	collector := attribution.NewCollector(installID)

	httpClient, probeClient := newClients(cfg, logger)

	prober := opts.Prober
	if prober == nil {
		prober = &connectivity.HTTPProber{Client: probeClient, URL: cfg.Connectivity.ProbeURL}
	}
	monitor := connectivity.NewMonitor(prober, connectivity.Config{
		Interval: cfg.Connectivity.ProbeInterval,
		Timeout:  cfg.Connectivity.ProbeTimeout,
	}, logger)

	var prompt *notify.Pending
	prompter := opts.Prompter
	if prompter == nil && cfg.Bridge.Enabled {
		prompt = notify.NewPending(func(pending bool) {
			logger.Debug("Notification prompt", zap.Bool("pending", pending))
		})
		prompter = prompt
	}
	gate := notify.NewGate(store, prompter,
		notify.WithCooldown(cfg.Launch.PromptCooldown),
		notify.WithTimeout(cfg.Launch.PromptTimeout),
		notify.WithLogger(logger),
	)

	remoteClient := remote.New(httpClient, remote.Config{
		ConfigEndpoint:      cfg.Remote.ConfigEndpoint,
		AttributionEndpoint: cfg.Remote.AttributionEndpoint,
		DevKey:              cfg.Remote.DevKey,
		BundleID:            cfg.Remote.BundleID,
		OSTag:               cfg.Remote.OSTag,
		StoreID:             cfg.Remote.StoreID,
		Locale:              cfg.Remote.Locale,
		PushProjectID:       cfg.Remote.PushProjectID,
		OrganicTimeout:      cfg.Remote.OrganicTimeout,
		ConfigTimeout:       cfg.Remote.ConfigTimeout,
	}, metrics, logger)

	resolver := launch.New(launch.Deps{
		Store:        store,
		Connectivity: monitor,
		Attribution:  collector,
		Remote:       remoteClient,
		Gate:         gate,
		Metrics:      metrics,
		Logger:       logger,
	}, launch.Options{
		OrganicRecheckDelay: cfg.Launch.OrganicRecheckDelay,
		AttributionWait:     cfg.Launch.AttributionWait,
		DeepLinkSettle:      cfg.Launch.DeepLinkSettle,
	})

	factory := opts.Factory
	if factory == nil {
		factory = browser.HeadlessFactory(browser.HeadlessOptions{
			Timeout:   cfg.Remote.ConfigTimeout,
			UserAgent: cfg.Browser.UserAgent,
		})
	}
	opener := opts.Opener
	if opener == nil {
		opener = browser.ExternalOpenerFunc(func(ctx context.Context, address string) error {
			logger.Info("External open requested", zap.String("address", address))
			return nil
		})
	}
	sessions := browser.NewManager(browser.Deps{
		Factory:   factory,
		Store:     store,
		Container: opts.Container,
		Opener:    opener,
		Recovery:  resolver,
		Metrics:   metrics,
		Logger:    logger,
	}, browser.Options{
		RedirectLimit: cfg.Browser.RedirectLimit,
		MaxRecoveries: cfg.Browser.MaxRecoveries,
		Trust:         browser.TrustPolicy(cfg.Browser.TrustPolicy),
	})

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracing.New(logger),
		backend:   backend,
		store:     store,
		monitor:   monitor,
		collector: collector,
		prompt:    prompt,
		resolver:  resolver,
		browser:   sessions,
	}
	s.router = s.buildRouter()

	logger.Info("Launcher initialized", zap.String("install_id", installID))
	return s, nil
}

// newClients builds the outbound clients. Probes get their own client so a
// dead probe URL cannot open the breaker in front of the config request.
func newClients(cfg *config.Config, logger *logging.Logger) (remoteClient, probeClient *client.Client) {
	remoteClient = client.NewClient(client.Options{
		Name:      "remote",
		Timeout:   cfg.Remote.ConfigTimeout,
		UserAgent: cfg.Browser.UserAgent,
		Logger:    logger,
	})
	probeBreaker := client.NeverTripSettings()
	probeClient = client.NewClient(client.Options{
		Name:      "probe",
		Timeout:   cfg.Connectivity.ProbeTimeout,
		UserAgent: cfg.Browser.UserAgent,
		Breaker:   &probeBreaker,
	})
	return remoteClient, probeClient
}

func (s *Server) buildRouter() *gin.Engine {
	if !s.cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: s.cfg.Bridge.RateLimitRPS,
		Burst:             s.cfg.Bridge.RateLimitBurst,
	}))

	deps := bridge.Deps{
		Launcher:     s.resolver,
		Reachability: s.monitor,
		Attribution:  s.collector,
		Sessions:     s.browser,
		Metrics:      s.metrics,
		Logger:       s.logger,
	}
	// A nil *Pending must not become a non-nil interface
	if s.prompt != nil {
		deps.Prompt = s.prompt
	}
	bridge.NewHandlers(deps).Register(router)

	router.GET("/ws", ws.NewHandler(s.resolver, s.metrics, s.logger).HandleConnection)
	return router
}

// Router exposes the bridge routes
func (s *Server) Router() http.Handler { return s.router }

// Resolver returns the launch resolver
func (s *Server) Resolver() *launch.Resolver { return s.resolver }

// Store returns the persisted launch state
func (s *Server) Store() *state.Store { return s.store }

// Collector returns the attribution collector
func (s *Server) Collector() *attribution.Collector { return s.collector }

// Sessions returns the browsing session manager
func (s *Server) Sessions() *browser.Manager { return s.browser }

// Metrics returns the metrics collector
func (s *Server) Metrics() *monitoring.Metrics { return s.metrics }

// Addr returns the bridge listen address once Run has bound it
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run starts connectivity probing, the resolver, the session driver and,
// when enabled, the bridge. It blocks until ctx is done or the bridge fails.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.monitor.Start(ctx)

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.resolver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("resolver: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		s.driveSessions(ctx)
	}()

	if s.cfg.Bridge.Enabled {
		if err := s.listen(); err != nil {
			cancel()
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("Starting bridge", zap.String("addr", s.Addr()))
			if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("bridge: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	cancel()
	s.shutdownBridge()
	wg.Wait()
	return runErr
}

// Resolve runs a single resolution pass with connectivity probing but
// without the bridge or browsing surfaces.
func (s *Server) Resolve(ctx context.Context) (types.LaunchPhase, error) {
	s.monitor.Start(ctx)
	return s.resolver.Resolve(ctx)
}

func (s *Server) listen() error {
	addr := net.JoinHostPort(s.cfg.Bridge.Host, s.cfg.Bridge.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()
	return nil
}

func (s *Server) shutdownBridge() {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn("Bridge shutdown failed", zap.Error(err))
	}
}

// driveSessions opens the primary surface when the resolver settles on
// remote content and tears surfaces down when it leaves it.
func (s *Server) driveSessions(ctx context.Context) {
	updates, unsubscribe := s.resolver.Subscribe()
	defer unsubscribe()

	var open types.LaunchPhase
	for {
		select {
		case <-ctx.Done():
			s.browser.Close()
			return
		case u := <-updates:
			if u.Kind != launch.UpdatePhase || u.Phase == open {
				continue
			}
			switch u.Phase.Phase {
			case types.PhaseRemoteContent:
				if _, err := s.browser.OpenPrimary(ctx, u.Phase.Address); err != nil {
					s.logger.Error("Opening primary surface failed", zap.Error(err))
					continue
				}
				open = u.Phase
			case types.PhaseNativeFallback, types.PhaseConnectivityFailure:
				if open.Phase == types.PhaseRemoteContent {
					s.browser.Close()
				}
				open = u.Phase
			}
		}
	}
}

// Close releases the state backend and flushes the logger
func (s *Server) Close() error {
	s.logger.Info("Shutting down launcher")
	s.browser.Close()
	s.tracer.Close()

	var err error
	if cerr := s.backend.Close(); cerr != nil {
		s.logger.Error("Failed to close state backend", zap.Error(cerr))
		err = fmt.Errorf("close state backend: %w", cerr)
	}
	s.logger.Sync()
	return err
}
