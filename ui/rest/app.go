package rest

import (
	"strings"
	"time"

	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
	"github.com/AzielCF/az-autopost/domains/health"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	domainTracking "github.com/AzielCF/az-autopost/domains/tracking"
	"github.com/AzielCF/az-autopost/pkg/workerpool"
	"github.com/AzielCF/az-autopost/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

type Options struct {
	BasePath       string
	AdminPassword  string
	CronHeader     string
	CookieDays     int
	Debug          bool
	TrustedProxies []string
	AllowOrigins   []string
	RateLimit      int
}

type Services struct {
	Scheduler  domainCron.IScheduler
	Posts      domainPost.IPostUsecase
	Drafts     domainGenerator.IDraftUsecase
	Tracking   domainTracking.ITrackingUsecase
	Health     health.IHealthUsecase
	NotifyPool *workerpool.Pool
}

// NewApp builds the fiber app with every route registered. Admin routes
// live under /api behind AdminAuth; /go, /api/cv and /api/health are public.
func NewApp(opts Options, services Services) *fiber.App {
	fiberConfig := fiber.Config{
		AppName:               "az-autopost",
		DisableStartupMessage: true,
		ServerHeader:          "Hidden",
	}
	if len(opts.TrustedProxies) > 0 {
		fiberConfig.EnableTrustedProxyCheck = true
		fiberConfig.TrustedProxies = opts.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedFor
	}

	app := fiber.New(fiberConfig)
	app.Use(requestid.New())
	if len(opts.AllowOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(opts.AllowOrigins, ", "),
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Admin-Password, X-Request-ID",
		}))
	}
	app.Use(middleware.Recovery())
	app.Use(helmet.New(helmet.Config{
		ReferrerPolicy: "strict-origin-when-cross-origin",
	}))
	if opts.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        opts.RateLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
		}))
	}
	if opts.Debug {
		app.Use(logger.New())
	}

	root := app.Group(opts.BasePath)
	public := root.Group("/api")
	InitRestTracking(root, public, services.Tracking, opts.CookieDays)
	InitRestHealth(public, services.Health)

	admin := root.Group("/api", middleware.AdminAuth(opts.AdminPassword, opts.CronHeader))
	InitRestCron(admin, services.Scheduler)
	InitRestPost(admin, services.Posts, services.Drafts)
	admin.Get("/workerpool/stats", workerPoolStats(services.NotifyPool))

	return app
}
