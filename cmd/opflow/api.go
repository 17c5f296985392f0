package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/opflow/pkg/persistence"
	"github.com/dukex/opflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	control     web.RunControl
	persistence persistence.Persistence
	apps        []web.AppInfo
	validate    *validator.Validate
	app         *fiber.App
}

func NewAPI(
	logger *slog.Logger,
	control web.RunControl,
	persistence persistence.Persistence,
	apps []web.AppInfo,
) *API {
	api := &API{
		logger:      logger,
		control:     control,
		persistence: persistence,
		apps:        apps,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}

	api.app = api.App()

	return api
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.control, a.persistence, a.apps, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("opflow API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	return a.app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops the server started by Start.
func (a *API) Shutdown(ctx context.Context) error {
	return a.app.ShutdownWithContext(ctx)
}
