package server

import (
	"context"
	"time"

	"github.com/rashdiman/ridepulse/internal/alert"
	"github.com/rashdiman/ridepulse/internal/auth"
	"github.com/rashdiman/ridepulse/internal/bus"
	"github.com/rashdiman/ridepulse/internal/config"
	"github.com/rashdiman/ridepulse/internal/db"
	"github.com/rashdiman/ridepulse/internal/metrics"
	"github.com/rashdiman/ridepulse/internal/replay"
	"github.com/rashdiman/ridepulse/internal/session"
	"github.com/rashdiman/ridepulse/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App   *fiber.App
	Cfg   config.Config
	DB    *pgxpool.Pool
	Redis *redis.Client

	Bus       bus.Bus
	Registry  *session.Registry
	Cache     *metrics.Cache
	Hub       *stream.Hub
	Evaluator *alert.Evaluator
	Replays   *replay.Manager

	stops []func()
}

func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	var q db.Querier
	if pg != nil {
		q = pg
	}

	// With Redis the pipeline stages talk over pub/sub and can be split
	// across processes; without it everything runs in-process.
	var b bus.Bus
	if redisClient != nil {
		b = bus.NewRedis(redisClient)
	} else {
		b = bus.NewMemory()
	}

	registry := session.NewRegistry(q)
	cache := metrics.NewCache(cfg.HistorySize)
	store := metrics.NewStore(q)
	processor := metrics.NewProcessor(cache, store, b, func(sessionID string) (string, bool) {
		s, ok := registry.Get(sessionID)
		return s.RiderName, ok
	})
	evaluator := alert.NewEvaluator(q, b)
	hub := stream.NewHub()
	authSvc := auth.NewService(cfg.JWTSecret, q)
	gateway := stream.NewGateway(hub, registry, b, authSvc)
	manager := replay.NewManager(registry, store)

	s := &Server{
		App:       app,
		Cfg:       cfg,
		DB:        pg,
		Redis:     redisClient,
		Bus:       b,
		Registry:  registry,
		Cache:     cache,
		Hub:       hub,
		Evaluator: evaluator,
		Replays:   manager,
	}

	s.stops = append(s.stops, processor.Start())
	s.stops = append(s.stops, evaluator.Start())
	s.stops = append(s.stops, hub.Bridge(b))

	if cfg.SessionIdleSeconds > 0 {
		registry.StartSweep(context.Background(),
			time.Duration(cfg.SessionIdleSeconds)*time.Second,
			gateway.NotifySessionEnd)
	}

	registerRoutes(s, authSvc, gateway, evaluator, cache, store, manager, hub)
	return s
}

func registerRoutes(s *Server, authSvc *auth.Service, gateway *stream.Gateway, evaluator *alert.Evaluator, cache *metrics.Cache, store *metrics.Store, manager *replay.Manager, hub *stream.Hub) {
	s.App.Get("/health", s.health)

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	coachMiddleware := auth.RequireRoles(auth.RoleCoach, auth.RoleAdmin)

	api := s.App.Group("/api")
	auth.RegisterRoutes(api.Group("/auth"), authSvc)
	auth.RegisterRiderRoutes(api.Group("/riders"), authSvc, jwtMiddleware)
	session.RegisterRoutes(api.Group("/sessions"), s.Registry, jwtMiddleware)
	metrics.RegisterRoutes(api.Group("/metrics"), cache, store, jwtMiddleware)
	alert.RegisterRoutes(api.Group("/alerts"), evaluator, jwtMiddleware, coachMiddleware)
	alert.RegisterThresholdRoutes(api.Group("/thresholds"), evaluator, jwtMiddleware, coachMiddleware)

	stream.RegisterRoutes(s.App, gateway)
	replay.RegisterRoutes(s.App, replay.NewHandler(manager, hub, gateway))
}

func (s *Server) health(c *fiber.Ctx) error {
	pgConnected := false
	if s.DB != nil {
		pgConnected = s.DB.Ping(c.Context()) == nil
	}
	redisConnected := false
	if s.Redis != nil {
		redisConnected = s.Redis.Ping(c.Context()).Err() == nil
	}

	return c.JSON(fiber.Map{
		"status":           "ok",
		"activeSessions":   s.Registry.Count(),
		"cachedRiders":     s.Cache.Count(),
		"activeReplays":    s.Replays.Count(),
		"connectedClients": s.Hub.Count(),
		"redisConnected":   redisConnected,
		"pgConnected":      pgConnected,
	})
}

// Close stops the pipeline subscriptions started by NewServer.
func (s *Server) Close() {
	for _, stop := range s.stops {
		stop()
	}
}
