package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fitfield/tryon-backend/api/routes"
	"github.com/fitfield/tryon-backend/internal/credits"
	"github.com/fitfield/tryon-backend/internal/garments"
	"github.com/fitfield/tryon-backend/internal/providers"
	"github.com/fitfield/tryon-backend/internal/renders"
	"github.com/fitfield/tryon-backend/internal/subscriptions"
	applewebhook "github.com/fitfield/tryon-backend/internal/webhooks/apple"
	providerwebhook "github.com/fitfield/tryon-backend/internal/webhooks/provider"
	"github.com/fitfield/tryon-backend/pkg/config"
	"github.com/fitfield/tryon-backend/pkg/db"
	"github.com/fitfield/tryon-backend/pkg/enums"
	"github.com/fitfield/tryon-backend/pkg/logger"
	"github.com/fitfield/tryon-backend/pkg/metrics"
	"github.com/fitfield/tryon-backend/pkg/migrate"
	"github.com/fitfield/tryon-backend/pkg/redis"
	"github.com/fitfield/tryon-backend/pkg/storage/local"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	storage, err := local.New(cfg.Storage.RootDir)
	if err != nil {
		logg.Error(context.Background(), "failed to open storage root", err)
		os.Exit(1)
	}

	renderMetrics := metrics.NewRenderMetrics(prometheus.DefaultRegisterer)

	registry, err := buildProviderRegistry(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build provider registry", err)
		os.Exit(1)
	}

	garmentsRepo := garments.NewRepository(dbClient.DB())
	creditsRepo := credits.NewRepository(dbClient.DB())
	rendersRepo := renders.NewRepository(dbClient.DB())
	subscriptionsRepo := subscriptions.NewRepository(dbClient.DB())

	creditsService, err := credits.NewService(creditsRepo, cfg.Credits.SignupGrant)
	if err != nil {
		logg.Error(context.Background(), "failed to create credits service", err)
		os.Exit(1)
	}

	subscriptionsService, err := subscriptions.NewService(subscriptionsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	rendersService, err := renders.NewService(renders.ServiceParams{
		Tx:            dbClient,
		Repo:          rendersRepo,
		Garments:      garmentsRepo,
		Credits:       creditsRepo,
		Subscriptions: subscriptionsService,
		Providers:     registry,
		Storage:       storage,
		Metrics:       renderMetrics,
		Logger:        logg,
		Config:        cfg.Render,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create renders service", err)
		os.Exit(1)
	}

	providerWebhookService, err := providerwebhook.NewService(providerwebhook.ServiceParams{
		Renders:       rendersService,
		Repo:          rendersRepo,
		Keys:          providerwebhook.NewKeyCache(cfg.ProviderWebhook.PublicKeysURL, cfg.ProviderWebhook.KeyCacheTTL),
		Metrics:       renderMetrics,
		Logger:        logg,
		Config:        cfg.ProviderWebhook,
		MaxAssetBytes: cfg.Render.MaxResultBytes,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create provider webhook service", err)
		os.Exit(1)
	}

	appleVerifier, err := applewebhook.NewJWSVerifier(cfg.Apple.RootCAPath)
	if err != nil {
		logg.Error(context.Background(), "failed to load apple verifier", err)
		os.Exit(1)
	}

	appleWebhookService, err := applewebhook.NewService(applewebhook.ServiceParams{
		Verifier:      appleVerifier,
		Subscriptions: subscriptionsRepo,
		Dedupe:        redisClient,
		Metrics:       renderMetrics,
		Logger:        logg,
		Config:        cfg.Apple,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create apple webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:          cfg,
			Logger:          logg,
			DB:              dbClient,
			Redis:           redisClient,
			Storage:         storage,
			Renders:         rendersService,
			RendersRepo:     rendersRepo,
			Garments:        garmentsRepo,
			Credits:         creditsService,
			Subscriptions:   subscriptionsService,
			ProviderWebhook: providerWebhookService,
			AppleWebhook:    appleWebhookService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// buildProviderRegistry wires every adapter that has credentials configured.
func buildProviderRegistry(cfg *config.Config, logg *logger.Logger) (*providers.Registry, error) {
	var adapters []providers.Provider

	if cfg.Fashn.APIKey != "" {
		fashn, err := providers.NewFashn(cfg.Fashn, logg)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, fashn)
	}
	if cfg.Kling.AccessKey != "" {
		kling, err := providers.NewKling(cfg.Kling, logg)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, kling)
	}
	if cfg.Replicate.APIToken != "" {
		replicate, err := providers.NewReplicate(cfg.Replicate, logg)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, replicate)
	}

	defaultName, err := enums.ParseProviderName(cfg.Render.DefaultProvider)
	if err != nil {
		return nil, err
	}
	return providers.NewRegistry(defaultName, adapters...)
}
