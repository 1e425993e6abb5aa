package main

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/points/internal/app"
	"github.com/MarkoPoloResearchLab/points/internal/catalog"
	"github.com/MarkoPoloResearchLab/points/internal/chat"
	"github.com/MarkoPoloResearchLab/points/internal/config"
	"github.com/MarkoPoloResearchLab/points/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/points/internal/handlers"
	"github.com/MarkoPoloResearchLab/points/internal/hostws"
	"github.com/MarkoPoloResearchLab/points/internal/httpserver"
	"github.com/MarkoPoloResearchLab/points/internal/logging"
	"github.com/MarkoPoloResearchLab/points/internal/metrics"
	"github.com/MarkoPoloResearchLab/points/internal/twitchirc"
	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// hostObserver fans host connection events out to metrics and the health service.
type hostObserver struct {
	metrics *metrics.Metrics
	health  *grpcserver.Server
}

func (observer hostObserver) ObserveHostRequest(request string, err error) {
	observer.metrics.ObserveHostRequest(request, err)
}

func (observer hostObserver) SetHostConnected(connected bool) {
	observer.metrics.SetHostConnected(connected)
	observer.health.SetHostConnected(connected)
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	catalogs, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() {
		if closeErr := stores.Close(); closeErr != nil {
			logger.Warn("store close failed", zap.Error(closeErr))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serviceMetrics := metrics.New(registry)
	operationLogger := points.CombineOperationLoggers(logging.NewOperationLogger(logger), serviceMetrics, stores.Audit)

	resolvers, err := app.IdentityResolvers(ctx, cfg, stores.Variables, nil)
	if err != nil {
		return fmt.Errorf("identity resolvers: %w", err)
	}
	ledgers, err := app.BuildLedgers(cfg, stores.Variables, resolvers, operationLogger)
	if err != nil {
		return fmt.Errorf("ledgers: %w", err)
	}

	health := grpcserver.New(logger)
	host := hostws.New(cfg.HostURL,
		hostws.WithPassword(cfg.HostPassword),
		hostws.WithTimeout(cfg.HostTimeout),
		hostws.WithLogger(logger),
		hostws.WithObserver(hostObserver{metrics: serviceMetrics, health: health}),
	)
	defer func() { _ = host.Close() }()
	if err := host.Connect(ctx); err != nil {
		logger.Warn("streaming host not reachable yet; will retry on first request", zap.String("host_url", cfg.HostURL), zap.Error(err))
	}

	group, groupCtx := errgroup.WithContext(ctx)

	router := chat.NewRouter(host)
	if cfg.TwitchIRCEnabled() {
		twitchSender := twitchirc.NewSender(cfg.TwitchIRCUsername, cfg.TwitchIRCToken, cfg.TwitchChannel, logger)
		router.Route(points.PlatformTwitch, twitchSender)
		group.Go(func() error {
			if err := twitchSender.Run(groupCtx); err != nil {
				logger.Error("twitch irc stopped; twitch replies will fail until restart", zap.Error(err))
			}
			return nil
		})
	}

	gateway, err := points.NewGateway(router,
		points.WithMaxMessageLength(cfg.MaxMessageLength),
		points.WithMessagePause(cfg.MinMessagePause, cfg.MaxMessagePause),
		points.WithSendTimeout(cfg.HostTimeout),
	)
	if err != nil {
		return fmt.Errorf("chat gateway: %w", err)
	}
	engine, err := points.NewEngine(host, gateway,
		points.WithActionTimeout(cfg.HostTimeout),
		points.WithRedeemLogger(operationLogger),
	)
	if err != nil {
		return fmt.Errorf("redemption engine: %w", err)
	}
	service, err := handlers.New(handlers.Dependencies{
		Platforms: points.DefaultPlatforms(),
		Ledgers:   ledgers,
		Profiles:  cfg.Ledgers,
		Catalogs:  catalogs,
		Gateway:   gateway,
		Engine:    engine,
		Awarder:   points.NewAwarder(operationLogger),
		Bots:      cfg.BotAccounts,
		ChatUsers: stores.Variables,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("handlers: %w", err)
	}

	httpServer, err := httpserver.New(httpserver.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSigningKey:  cfg.JWTSigningKey,
		JWTIssuer:      cfg.JWTIssuer,
	}, service, ledgers,
		httpserver.WithObserver(serviceMetrics),
		httpserver.WithGatherer(registry),
		httpserver.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("pointsd starting",
		zap.Strings("ledgers", cfg.LedgerNames()),
		zap.Strings("catalogs", catalogs.Names()),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Bool("twitch_irc", cfg.TwitchIRCEnabled()))

	group.Go(func() error {
		return httpServer.Run(groupCtx)
	})
	group.Go(func() error {
		return health.ListenAndServe(groupCtx, cfg.GRPCListenAddr)
	})
	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
