// Package server exposes the renderer over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arran4/chat2png"
	"github.com/arran4/chat2png/internal/cache"
	"github.com/arran4/chat2png/internal/config"
)

// Server wires the HTTP routes to a Renderer.
type Server struct {
	app      *fiber.App
	cfg      *config.Config
	renderer *chat2png.Renderer
	cache    cache.Cache
	log      *zap.Logger
	metrics  *metrics
	limits   chat2png.Limits
	stop     context.CancelFunc
}

// New builds the fiber app. Close releases the rate limiter.
func New(cfg *config.Config, r *chat2png.Renderer, c cache.Cache, log *zap.Logger) *Server {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		renderer: r,
		cache:    c,
		log:      log,
		metrics:  newMetrics(),
		limits: chat2png.Limits{
			MaxMessages:      cfg.Limits.MaxMessages,
			MaxMessageLength: cfg.Limits.MaxMessageLength,
		},
		stop: stop,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "chat2png",
		DisableStartupMessage: true,
		BodyLimit:             cfg.Limits.MaxBodyBytes,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          cfg.RenderTimeout + 5*time.Second,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          s.errorHandler,
	})
	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(cfg.Origins(), ","),
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept",
		ExposeHeaders: "Content-Disposition,X-Cache,X-Request-ID",
	}))
	s.app.Use(s.requestLogger())

	limiter := NewIPRateLimiter(ctx, cfg.RateLimit.Count, cfg.RateLimit.Per, log)
	limiter.onReject = s.metrics.rateLimited.Inc

	s.app.Get("/health", s.health)
	s.app.Get("/metrics", s.metrics.handler())
	s.app.Post("/generate", limiter.Handler(), s.generate)
	s.app.Post("/render", limiter.Handler(), s.generate)
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving on the configured port.
func (s *Server) Listen() error {
	addr := fmt.Sprintf(":%d", s.cfg.App.Port)
	s.log.Info("starting chat2png server", zap.String("addr", addr), zap.Stringer("rate_limit", s.cfg.RateLimit))
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight renders.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		s.log.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
			zap.String("ip", getIP(c)),
		)
		return nil
	}
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code, msg = fe.Code, fe.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}

func (s *Server) fail(c *fiber.Ctx, method chat2png.RenderMethod, format chat2png.Format, err error) error {
	var invalid *chat2png.InvalidInputError
	if errors.As(err, &invalid) {
		s.metrics.renders.WithLabelValues(string(method), string(format), "invalid").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      "invalid request",
			"violations": invalid.Violations,
		})
	}
	s.metrics.renders.WithLabelValues(string(method), string(format), "error").Inc()
	s.log.Error("failed to generate image", zap.Error(err), zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to generate image"})
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (s *Server) defaults(req *chat2png.RenderRequest) {
	if req.RenderMethod == "" {
		req.RenderMethod = s.cfg.Render.Method
	}
	if req.Theme == "" {
		req.Theme = s.cfg.Render.Theme
	}
	if req.Width == 0 {
		req.Width = s.cfg.Render.Width
	}
}

func (s *Server) generate(c *fiber.Ctx) error {
	req, err := chat2png.ParseRequest(c.Body())
	if err != nil {
		return s.fail(c, "", "", err)
	}
	if m := c.Query("method"); m != "" {
		req.RenderMethod = m
	}
	s.defaults(req)
	doc, opts, err := req.Validate(s.limits)
	if err != nil {
		return s.fail(c, chat2png.RenderMethod(req.RenderMethod), chat2png.Format(req.Format), err)
	}

	ctx := c.UserContext()
	key, err := cache.Key(struct {
		Doc  chat2png.Document
		Opts chat2png.Options
	}{doc, opts})
	if err != nil {
		return s.fail(c, opts.Method, opts.Format, err)
	}
	useCache := !truthy(c.Query("nocache"))
	if useCache {
		e, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("cache lookup failed", zap.Error(err))
		}
		if ok {
			s.metrics.cache.WithLabelValues("hit").Inc()
			s.metrics.renders.WithLabelValues(string(opts.Method), string(opts.Format), "ok").Inc()
			return s.send(c, e, "HIT")
		}
		s.metrics.cache.WithLabelValues("miss").Inc()
	}

	if s.cfg.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RenderTimeout)
		defer cancel()
	}
	start := time.Now()
	res, err := s.renderer.Render(ctx, doc, opts)
	if err != nil {
		return s.fail(c, opts.Method, opts.Format, err)
	}
	s.metrics.duration.WithLabelValues(string(opts.Method)).Observe(time.Since(start).Seconds())
	s.metrics.renders.WithLabelValues(string(opts.Method), string(opts.Format), "ok").Inc()

	e := cache.Entry{Data: res.Data, ContentType: res.ContentType, Ext: res.Format.Ext(), Width: res.Width, Height: res.Height}
	if useCache {
		if err := s.cache.Set(ctx, key, e); err != nil {
			s.log.Warn("cache store failed", zap.Error(err))
		}
	}
	return s.send(c, e, "MISS")
}

func (s *Server) send(c *fiber.Ctx, e cache.Entry, cacheState string) error {
	c.Set(fiber.HeaderContentType, e.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="discord_messages.%s"`, e.Ext))
	c.Set("X-Cache", cacheState)
	c.Set("X-Image-Width", fmt.Sprint(e.Width))
	c.Set("X-Image-Height", fmt.Sprint(e.Height))
	return c.Send(e.Data)
}
