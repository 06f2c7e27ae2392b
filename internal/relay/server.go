package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"matchmate-chat/config"
	"matchmate-chat/internal/events"
	"matchmate-chat/internal/middleware"
	redisbus "matchmate-chat/internal/redis"
	"matchmate-chat/internal/storage"
	"matchmate-chat/internal/transport/httpdto"
	"matchmate-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

const shutdownTimeout = 5 * time.Second

// Server is the development relay: the chat REST API, the realtime socket
// and optional Redis fan-out between instances.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	hub        *Hub
	store      *Store
	metrics    *Metrics
	bridge     *Bridge
	redis      *goredis.Client
	media      MediaStore
	files      *storage.MemoryStore
}

type Option func(*Server)

// WithRedis shares rooms and presence with other relays through client.
func WithRedis(client *goredis.Client) Option {
	return func(s *Server) {
		s.redis = client
	}
}

// WithMediaStore replaces the in-memory media store.
func WithMediaStore(m MediaStore) Option {
	return func(s *Server) {
		s.media = m
	}
}

func New(cfg *config.Config, l *logger.Logger, opts ...Option) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	if l == nil {
		l = logger.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.Relay.Port),
			Handler: engine,
		},
		engine:  engine,
		config:  cfg,
		logger:  l,
		store:   NewStore(),
		metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	log := l.Named("relay")
	hubOpts := []HubOption{WithHubMetrics(s.metrics), WithHubLogger(log)}
	if s.redis != nil {
		hubOpts = append(hubOpts, WithPresence(redisbus.NewPresenceStore(s.redis, 0)))
	}
	s.hub = NewHub(hubOpts...)
	s.metrics.WatchRooms(s.hub)

	var publisher events.Publisher = s.hub
	if s.redis != nil {
		publisher = redisbus.NewPublisher(s.redis)
		s.bridge = NewBridge(redisbus.NewSubscriber(s.redis), s.hub, log)
	}

	if s.media == nil {
		s.files = storage.NewMemoryStore(strings.TrimRight(cfg.Relay.PublicURL, "/") + "/media")
		s.media = s.files
	}

	s.setupRoutes(NewFanout(events.NewRoomChannelResolver(), publisher, s.metrics), log)
	return s
}

func (s *Server) setupRoutes(fanout *Fanout, log *zap.Logger) {
	secret := []byte(s.config.Relay.JWTSecret)
	limiters := middleware.NewLimiterPool(float64(s.config.Relay.RPS), s.config.Relay.Burst)
	chats := NewChatHandler(s.store, fanout, s.hub, s.media, log)
	tokens := NewAuthHandler(secret, s.config.Relay.TokenTTL)
	ws := NewWebSocketHandler(s.hub, secret, limiters, NewAuthorizer(), chats.DeliverPending)

	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(s.metrics.Middleware())
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if s.redis != nil {
			if err := s.redis.Ping(c.Request.Context()).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	s.engine.GET("/metrics", s.metrics.Handler())
	s.engine.GET("/ws", ws.Handle)

	if s.files != nil {
		s.engine.GET("/media/*key", func(c *gin.Context) {
			obj, err := s.files.Get(strings.TrimPrefix(c.Param("key"), "/"))
			if err != nil {
				_ = c.Error(err)
				return
			}
			c.Data(http.StatusOK, obj.ContentType, obj.Data)
		})
	}

	s.engine.POST("/api/dev/token", middleware.RateLimitMiddleware(limiters), tokens.DevToken)

	api := s.engine.Group("/api/chats", middleware.AuthMiddleware(secret), middleware.RateLimitMiddleware(limiters))
	{
		api.GET("/with/:userId", chats.GetConversation)
		api.GET("/unread-count", chats.UnreadCount)
		api.POST("/:chatId/messages", chats.SendMessage)
		api.POST("/:chatId/media", chats.UploadMedia)
		api.POST("/:chatId/seen", chats.MarkSeen)
		api.DELETE("/:chatId/messages/:messageId", chats.DeleteMessage)
		api.POST("/:chatId/messages/:messageId/reactions", chats.React)
		api.POST("/:chatId/block", chats.Block)
		api.POST("/:chatId/unblock", chats.Unblock)
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Run serves until ctx is done, then shuts the HTTP server down within
// five seconds. The hub and the Redis bridge stop with it.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.hub.Run(gctx)
	})

	if s.bridge != nil {
		g.Go(func() error {
			return s.bridge.Run(gctx)
		})
	}

	g.Go(func() error {
		s.logger.Infof("Starting the relay on port %s...", s.config.Relay.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Infof("Shutting down the relay...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorf("Error in the graceful shutdown of the relay: %s", err)
			return err
		}
		s.logger.Infof("Relay stopped gracefully")
		return nil
	})

	return g.Wait()
}
