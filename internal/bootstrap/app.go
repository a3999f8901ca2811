package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "collaborative-whiteboard/internal/handler/http"
	wsHandler "collaborative-whiteboard/internal/handler/websocket"
	"collaborative-whiteboard/internal/hub"
	gormpersistence "collaborative-whiteboard/internal/infra/persistence/gorm"
	"collaborative-whiteboard/internal/infra/setup"
	redisstate "collaborative-whiteboard/internal/infra/state/redis"
	"collaborative-whiteboard/internal/middleware"
	"collaborative-whiteboard/internal/service"
	"collaborative-whiteboard/internal/store"
	"collaborative-whiteboard/internal/tasks"
	"collaborative-whiteboard/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Scheduler   *asynq.Scheduler
	Hub         *hub.Hub
	HttpServer  *http.Server
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := newLogger(cfg)
	log.Info("Configuration loaded successfully")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DB, log.GetLevel() >= logrus.DebugLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database initialized and migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Redis and Asynq clients initialized")

	// 4. 初始化 Repositories
	actionRepo := gormpersistence.NewGormActionRepository(db)
	snapshotRepo := gormpersistence.NewGormSnapshotRepository(db)
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 5. 初始化 Services
	authService, err := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	collabService := service.NewCollaborationService(stateRepo, asynqClient,
		service.RateLimit{Max: cfg.ActionLimitMax, Window: cfg.ActionWindow})
	snapshotService := service.NewSnapshotService(snapshotRepo, stateRepo, actionRepo)
	log.Info("Services initialized")

	// 6. 初始化 Hub：每个房间一个服务端文档，经 Redis 频道与其他实例同步
	storeCfg := store.DefaultConfig()
	storeCfg.MaxHistory = cfg.MaxHistory
	hubInstance := hub.NewHub(
		hub.Config{
			Store:      storeCfg,
			IdleRooms:  cfg.IdleRooms,
			IdleTTL:    cfg.RoomIdleTTL,
			InstanceID: cfg.InstanceID,
			SeenWindow: cfg.SeenWindow,
		},
		collabService,
		hub.WithDocumentLoader(snapshotService),
		hub.WithTaskEnqueuer(asynqClient),
		hub.WithChannelFactory(redisChannelFactory(redisClient, cfg.KeyPrefix)),
	)
	log.Info("Hub initialized")

	// 7. 初始化 Worker Server 和周期任务
	workerServer := worker.NewWorkerServer(redisClientOpt, cfg.WorkerCount, worker.Handlers{
		Actions:   actionRepo,
		Snapshots: snapshotService,
		Checker:   snapshotService,
		Rooms:     hubInstance,
	}, log)
	scheduler := asynq.NewScheduler(redisClientOpt, &asynq.SchedulerOpts{Logger: log.WithField("component", "scheduler")})
	entryID, err := scheduler.Register(cfg.SnapshotEvery, tasks.NewSnapshotCheckTask())
	if err != nil {
		return nil, fmt.Errorf("could not register periodic snapshot check: %w", err)
	}
	log.Infof("Periodic snapshot check registered with schedule '%s' (EntryID: %s)", cfg.SnapshotEvery, entryID)

	// 8. 初始化 Gin Engine 和路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(cors.New(corsConfig(cfg.CORSOrigin)))
	router.Use(middleware.RateLimit(stateRepo, cfg.RateLimitMax, cfg.RateLimitWindow))

	authHandler := httpHandler.NewAuthHandler(authService)
	roomHandler := httpHandler.NewRoomHandler(hubInstance, snapshotService)
	wsConnHandler := wsHandler.NewWebSocketHandler(hubInstance, cfg.CORSOrigin)
	registerRoutes(router, authService, authHandler, roomHandler, wsConnHandler)
	log.Info("Router setup complete")

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		AsynqServer: workerServer,
		Scheduler:   scheduler,
		Hub:         hubInstance,
		HttpServer:  httpServer,
	}, nil
}

func newLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	// 各包使用 logrus 的标准 logger，保持一致
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(level)
	log.Infof("Logger initialized (Level: %s, Format: %T)", level.String(), log.Formatter)
	return log
}

func corsConfig(origin string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if origin == "*" {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = []string{origin}
	}
	return c
}

// redisChannelFactory 为房间订阅 Redis 频道
func redisChannelFactory(client *redis.Client, prefix string) hub.ChannelFactory {
	return func(ctx context.Context, roomID string) (hub.RoomChannel, error) {
		ch := redisstate.NewRoomChannel(client, prefix, roomID)
		subCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := ch.Subscribe(subCtx); err != nil {
			return nil, err
		}
		return ch, nil
	}
}

func registerRoutes(router *gin.Engine, auth middleware.TokenParser, authHandler *httpHandler.AuthHandler,
	roomHandler *httpHandler.RoomHandler, ws *wsHandler.WebSocketHandler) {
	api := router.Group("/api")
	api.POST("/auth/guest", authHandler.Guest)
	roomRoutes := api.Group("/rooms").Use(middleware.Auth(auth))
	{
		roomRoutes.GET("/:roomId/state", roomHandler.GetState)
		roomRoutes.GET("/:roomId/history", roomHandler.GetHistory)
	}
	wsRoutes := router.Group("/ws").Use(middleware.Auth(auth))
	{
		wsRoutes.GET("/room/:roomId", ws.HandleConnection)
	}
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()

	go func() {
		if err := a.AsynqServer.Start(); err != nil {
			a.Log.WithError(err).Error("Asynq worker server exited")
		}
	}()

	go func() {
		a.Log.Info("Asynq scheduler starting...")
		if err := a.Scheduler.Run(); err != nil {
			a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
		}
	}()

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用。HTTP 先关闭，Hub 关闭房间时投递的快照任务还能写入 Redis。
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.Scheduler != nil {
		a.Scheduler.Shutdown()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}
	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
			return
		}
		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
