package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shehryarbajwa/review-background/internal/action"
	"github.com/shehryarbajwa/review-background/internal/analytics"
	"github.com/shehryarbajwa/review-background/internal/api"
	"github.com/shehryarbajwa/review-background/internal/billing"
	"github.com/shehryarbajwa/review-background/internal/bridge"
	"github.com/shehryarbajwa/review-background/internal/config"
	"github.com/shehryarbajwa/review-background/internal/logging"
	"github.com/shehryarbajwa/review-background/internal/messaging"
	"github.com/shehryarbajwa/review-background/internal/ratelimit"
	"github.com/shehryarbajwa/review-background/internal/session"
	"github.com/shehryarbajwa/review-background/internal/useragent"
	"github.com/shehryarbajwa/review-background/internal/webrequest"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "review-background: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, foundEnv, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		logger = logging.NewDefault()
		logger.Warn("invalid logging configuration, falling back to defaults", zap.Error(err))
	}
	defer logger.Sync()

	if !foundEnv {
		logger.Debug("no .env file found, using system environment variables")
	}
	logger.Info("starting Re:view background service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionMgr := session.NewManager()
	overrides := useragent.NewCache(cfg.Extension.UATTL, logger.Named("useragent"))
	logger.Info("session registry and user-agent cache initialized", zap.Duration("ua_ttl", overrides.TTL()))

	hostBridge := bridge.NewServer(cfg.Extension.BaseURL, logger.Named("bridge"))

	relay := analytics.NewRelay(analytics.Config{
		Endpoint:    cfg.Analytics.URL,
		TrackingID:  cfg.Analytics.TrackingID,
		MaxInFlight: cfg.Analytics.MaxInFlight,
	}, logger.Named("analytics"))

	facade := billing.NewFacade(
		billing.NewHTTPProvider(cfg.Billing.URL, cfg.Billing.Timeout),
		billing.Options{Environment: cfg.Billing.Environment, SKU: cfg.Billing.SKU},
		messaging.NewBroadcaster(sessionMgr, hostBridge, logger.Named("broadcast")),
		logger.Named("billing"),
	)
	logger.Info("billing facade initialized",
		zap.String("env", cfg.Billing.Environment),
		zap.String("sku", cfg.Billing.SKU))

	router := messaging.NewRouter(ctx, sessionMgr, relay, facade,
		ratelimit.PerMinute(cfg.Analytics.EventsPerMinute), logger.Named("messaging"))

	controller := action.NewController(sessionMgr, hostBridge, relay, logger.Named("action"))
	controller.OnDeactivate(router.ForgetTab)

	interceptor := webrequest.NewInterceptor(cfg.Extension.ProxyPrefix(), overrides, sessionMgr, logger.Named("webrequest"))
	hostBridge.Bind(controller, interceptor, router)

	var apiLimiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		apiLimiter = ratelimit.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}
	handler := api.NewHandler(sessionMgr, facade, hostBridge)
	routes := handler.SetupRoutes(hostBridge.HandleConnection, apiLimiter, logger.Named("http"))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      routes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return overrides.Run(gctx)
	})

	g.Go(func() error {
		donated := facade.CheckDonated(gctx)
		logger.Info("donation status checked", zap.Bool("donated", donated))
		return nil
	})

	g.Go(func() error {
		logger.Info("server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("bridge", "/v1/bridge"),
			zap.String("proxy_prefix", cfg.Extension.ProxyPrefix()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		hostBridge.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	router.Wait()
	relay.Wait()
	logger.Info("server stopped cleanly")
	return nil
}
