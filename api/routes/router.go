package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fitfield/tryon-backend/api/controllers"
	webhookcontrollers "github.com/fitfield/tryon-backend/api/controllers/webhooks"
	"github.com/fitfield/tryon-backend/api/middleware"
	creditsvc "github.com/fitfield/tryon-backend/internal/credits"
	"github.com/fitfield/tryon-backend/internal/garments"
	rendersvc "github.com/fitfield/tryon-backend/internal/renders"
	subscriptionsvc "github.com/fitfield/tryon-backend/internal/subscriptions"
	applewebhook "github.com/fitfield/tryon-backend/internal/webhooks/apple"
	providerwebhook "github.com/fitfield/tryon-backend/internal/webhooks/provider"
	"github.com/fitfield/tryon-backend/pkg/config"
	"github.com/fitfield/tryon-backend/pkg/db"
	"github.com/fitfield/tryon-backend/pkg/logger"
	"github.com/fitfield/tryon-backend/pkg/redis"
	"github.com/fitfield/tryon-backend/pkg/storage/local"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      db.Pinger
	Redis   redis.Pinger
	Storage *local.Storage

	Renders         rendersvc.Service
	RendersRepo     rendersvc.Repository
	Garments        garments.Repository
	Credits         creditsvc.Service
	Subscriptions   subscriptionsvc.Service
	ProviderWebhook providerwebhook.Service
	AppleWebhook    applewebhook.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Webhooks authenticate with their own signatures, not bearer tokens.
	r.Route("/api/webhooks", func(r chi.Router) {
		r.Post("/render", webhookcontrollers.ProviderWebhook(deps.ProviderWebhook, cfg.ProviderWebhook, logg))
		r.Post("/apple", webhookcontrollers.AppleWebhook(deps.AppleWebhook, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/renders", func(r chi.Router) {
			r.Post("/", controllers.RequestRender(deps.Renders, logg))
			r.Get("/{renderId}", controllers.RenderStatus(deps.Renders, logg))
		})

		r.Route("/credits", func(r chi.Router) {
			r.Post("/grant", controllers.CreditsGrant(deps.Credits, logg))
			r.Get("/balance", controllers.CreditsBalance(deps.Credits, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/status", controllers.SubscriptionStatus(deps.Subscriptions, logg))
			r.Post("/verify", controllers.SubscriptionVerify(deps.AppleWebhook, logg))
		})

		r.Route("/images", func(r chi.Router) {
			r.Get("/render/{renderId}", controllers.RenderImage(deps.RendersRepo, deps.Storage, logg))
			r.Get("/{imageId}", controllers.UserImage(deps.Garments, deps.Storage, logg))
		})
	})

	return r
}
