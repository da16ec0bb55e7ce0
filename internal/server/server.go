// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"pawhaven/internal/cache"
	"pawhaven/internal/config"
	"pawhaven/internal/contentfilter"
	"pawhaven/internal/database"
	"pawhaven/internal/dmcrypto"
	"pawhaven/internal/middleware"
	"pawhaven/internal/models"
	"pawhaven/internal/notifications"
	"pawhaven/internal/permissions"
	"pawhaven/internal/presence"
	"pawhaven/internal/repository"
	"pawhaven/internal/service"
)

// promMetrics returns the process-wide Fiber Prometheus middleware. The
// collectors register against the default registry, so construction must
// happen exactly once even when tests build several servers.
var (
	promOnce     sync.Once
	promInstance *fiberprometheus.FiberPrometheus
)

func promMetrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promInstance = fiberprometheus.New("pawhaven-api")
	})
	return promInstance
}

// wireableHub is implemented by every WebSocket hub that can be wired to
// Redis pub/sub and gracefully shut down.
type wireableHub interface {
	Name() string
	StartWiring(ctx context.Context, n *notifications.Notifier) error
	Shutdown(ctx context.Context) error
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo repository.UserRepository
	chatRepo repository.ChatRepository
	modRepo  repository.ModerationRepository
	roleRepo repository.RoleRepository
	dmRepo   repository.DMRepository
	keyRepo  repository.KeyRepository
	presRepo repository.PresenceRepository

	notifier *notifications.Notifier
	chatHub  *notifications.ChatHub
	hubs     []wireableHub

	registry   *permissions.Registry
	tracker    *presence.Tracker
	roles      *service.RoleService
	moderation *service.ModerationEngine
	admission  *service.AdmissionPipeline
	chat       *service.ChatService
	dm         *service.DMService

	welcomed     welcomeOnce
	welcomeBotMu sync.Mutex
	welcomeBot   *models.User
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	keyStore, err := dmcrypto.NewFileKeyStore(cfg.DMKeyDir)
	if err != nil {
		return nil, fmt.Errorf("key store init failed: %w", err)
	}

	return NewServerWithDeps(cfg, db, redisClient, keyStore)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and
// optionally performs explicit seeding.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, keyStore dmcrypto.KeyStore) (*Server, error) {
	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: promMetrics(),
		userRepo:       repository.NewUserRepository(db),
		chatRepo:       repository.NewChatRepository(db),
		modRepo:        repository.NewModerationRepository(db),
		roleRepo:       repository.NewRoleRepository(db),
		dmRepo:         repository.NewDMRepository(db),
		keyRepo:        repository.NewKeyRepository(db),
		presRepo:       repository.NewPresenceRepository(db),
		registry:       permissions.NewRegistry(),
	}

	if redisClient != nil {
		s.notifier = notifications.NewNotifier(redisClient)
		s.chatHub = notifications.NewChatHub()
		s.hubs = []wireableHub{s.chatHub}
	}

	heartbeat := time.Duration(cfg.HeartbeatSeconds) * time.Second
	s.tracker = presence.NewTracker(redisClient, s.presRepo, presence.TrackerConfig{
		HeartbeatInterval: heartbeat,
		StaleMultiple:     cfg.PresenceStaleMultiple,
		OnPresenceChanged: s.onPresenceChanged,
		OnActivitySummary: s.onActivitySummary,
	})

	filter := contentfilter.New()
	s.roles = service.NewRoleService(s.registry, s.roleRepo, s.userRepo)
	s.moderation = service.NewModerationEngine(s.modRepo, s.userRepo, s.roles, s.tracker, s.chatHubOrNil(), s.moderationPublisherOrNil())
	s.admission = service.NewAdmissionPipeline(service.AdmissionConfig{
		RateLimit:        cfg.ChatRateLimit,
		RateWindow:       time.Duration(cfg.ChatRateWindowSeconds) * time.Second,
		MaxMessageLength: cfg.MaxMessageLength,
	}, redisClient, s.chatRepo, s.userRepo, s.moderation, filter, s.tracker, s.roomPublisherOrNil())
	s.chat = service.NewChatService(s.chatRepo, s.roles, s.roomPublisherOrNil())
	s.dm = service.NewDMService(s.dmRepo, s.keyRepo, s.userRepo, s.modRepo, keyStore, filter, s.dmPublisherOrNil(), cfg.MaxMessageLength)

	return s, nil
}

// The *OrNil helpers keep typed nils out of the services' interface fields
// when Redis (and thus the notifier and hub) is absent: a nil *ChatHub stored
// in a non-nil interface would defeat their nil checks.

func (s *Server) chatHubOrNil() service.RoomKicker {
	if s.chatHub == nil {
		return nil
	}
	return s.chatHub
}

func (s *Server) roomPublisherOrNil() service.RoomPublisher {
	if s.notifier == nil {
		return nil
	}
	return s.notifier
}

func (s *Server) moderationPublisherOrNil() service.ModerationPublisher {
	if s.notifier == nil {
		return nil
	}
	return s.notifier
}

func (s *Server) dmPublisherOrNil() service.DMPublisher {
	if s.notifier == nil {
		return nil
	}
	return s.notifier
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Context middleware propagates request ID and user ID into slog records.
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())

	// After requestid and context middleware so log lines carry both.
	app.Use(middleware.StructuredLogger())

	// CORS runs before middlewares that can short-circuit (e.g. limiter) so
	// browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they are handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Pawhaven Chat Metrics Dashboard",
	}))

	// Room routes
	rooms := api.Group("/rooms", middleware.AuthRequired)
	rooms.Get("/", s.GetRooms)
	rooms.Post("/", s.CreateRoom)
	rooms.Get("/:id/messages", s.GetRoomMessages)
	rooms.Post("/:id/messages", s.PostRoomMessage)
	rooms.Delete("/:id/messages/:messageId", s.DeleteRoomMessage)
	rooms.Get("/:id/messages/:messageId/reactions", s.GetReactions)
	rooms.Post("/:id/messages/:messageId/reactions", s.AddReaction)
	rooms.Delete("/:id/messages/:messageId/reactions", s.RemoveReaction)
	rooms.Get("/:id", s.GetRoom)

	// Presence routes
	presenceGroup := api.Group("/presence", middleware.AuthRequired)
	presenceGroup.Post("/", s.PostPresence)
	presenceGroup.Get("/", s.GetPresence)

	// Moderation routes
	moderation := api.Group("/moderation", middleware.AuthRequired)
	moderation.Post("/actions", s.ApplyModerationAction)
	moderation.Delete("/actions", s.RevokeModerationAction)
	moderation.Get("/actions", s.GetModerationActions)
	moderation.Get("/review", s.GetReviewQueue)
	moderation.Post("/review/:id", s.FinalizeReview)

	// Role routes
	roles := api.Group("/roles", middleware.AuthRequired)
	roles.Get("/", s.GetRoleCatalog)
	roles.Post("/assign", s.AssignRole)
	roles.Delete("/assign", s.RevokeRole)

	users := api.Group("/users", middleware.AuthRequired)
	users.Get("/:id/roles", s.GetUserBadges)

	// DM key directory
	keys := api.Group("/keys", middleware.AuthRequired)
	keys.Post("/enroll", s.EnrollKey)
	keys.Post("/public", s.UploadPublicKey)
	keys.Get("/public/:userId", s.GetPublicKey)

	// Conversations
	conversations := api.Group("/conversations", middleware.AuthRequired)
	conversations.Post("/", s.CreateConversation)
	conversations.Get("/", s.GetConversations)
	conversations.Get("/:id/messages", s.GetDMMessages)
	conversations.Post("/:id/messages", s.SendDMMessage)
	conversations.Post("/:id/read", s.MarkConversationRead)

	// WebSocket ticket issuance over authenticated HTTP; the upgrade itself
	// authenticates with the ticket.
	api.Post("/ws/ticket", middleware.AuthRequired, s.IssueWSTicket)
	api.Get("/ws/chat", middleware.WebSocketAuthRequired(s.redis), s.WebSocketChatHandler())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Redis carries rate limiting and fan-out; without it the node is
		// not ready to accept chat traffic.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "Pawhaven Chat API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	if s.notifier != nil {
		for _, h := range s.hubs {
			h := h
			go func() {
				if err := h.StartWiring(s.shutdownCtx, s.notifier); err != nil {
					log.Printf("failed to start %s wiring: %v", h.Name(), err)
				}
			}()
		}
	}

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	for _, h := range s.hubs {
		if err := h.Shutdown(ctx); err != nil {
			log.Printf("error shutting down %s: %v", h.Name(), err)
		}
	}

	if s.tracker != nil {
		s.tracker.Stop()
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
