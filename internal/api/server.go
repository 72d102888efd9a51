package api

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/fathima-sithara/tinytalk/internal/handlers"
	"github.com/fathima-sithara/tinytalk/internal/ws"
)

type Options struct {
	BodyLimit    int // bytes; must cover the upload limit plus multipart overhead
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AccessLog    bool

	// Limiter throttles mutating routes; Session guards the API when sessions
	// are required. Both are optional.
	Limiter fiber.Handler
	Session fiber.Handler

	Metrics   http.Handler
	Presenter *ws.Handler
}

// NewServer wires the HTTP surface.
func NewServer(h *handlers.Handler, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:    opts.BodyLimit,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	if opts.AccessLog {
		app.Use(logger.New())
	}

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics))
	}

	// The PIN check stays public; everything else may require a session.
	app.Get("/api/photos", func(c *fiber.Ctx) error {
		if c.Context().QueryArgs().Has("pin") || opts.Session == nil {
			return c.Next()
		}
		return opts.Session(c)
	}, h.Photos)

	session := passthrough(opts.Session)
	mutating := passthrough(opts.Limiter)

	app.Get("/api/weeks", session, h.Weeks)
	app.Get("/api/theme", session, h.GetTheme)
	app.Post("/api/theme", session, mutating, h.SetTheme)
	app.Get("/api/themes", h.Themes)
	app.Post("/api/upload", session, mutating, h.Upload)
	app.Post("/api/delete", session, mutating, h.Delete)
	app.Get("/api/thumb", session, h.Thumbnail)
	app.Get("/uploads/*", session, h.Object)

	if opts.Presenter != nil {
		app.Get("/ws/present/:room", opts.Presenter.Upgrade, opts.Presenter.Serve())
	}
	return app
}

func passthrough(h fiber.Handler) fiber.Handler {
	if h == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return h
}
