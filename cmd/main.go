package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DarshiBhavsar/chat-app-sub000/config"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/consumer"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/handlers"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/middlewares"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/repositories"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/routers"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/services"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/storage"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/utils"
	"github.com/DarshiBhavsar/chat-app-sub000/middleware/jwt"
	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/media"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/mq"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/ws"
	"github.com/DarshiBhavsar/chat-app-sub000/utils/ratelimit"
	"github.com/DarshiBhavsar/chat-app-sub000/utils/snowflake"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	appLog, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer appLog.Close()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			appLog.Warn("sentry init failed", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化 PostgreSQL
	postgres, err := storage.InitPostgres(&cfg.Postgres, appLog.Logger, cfg.Server.Mode == gin.DebugMode)
	if err != nil {
		appLog.Fatal("postgres 初始化失败", zap.Error(err))
	}

	// 初始化 Redis
	redisClient, err := storage.InitRedis(&cfg.Redis)
	if err != nil {
		appLog.Fatal("redis 初始化失败", zap.Error(err))
	}
	defer redisClient.Close()

	// 初始化仓储层
	userRepo := repositories.NewUserRepository(postgres, redisClient)
	relationRepo := repositories.NewRelationRepository(postgres)
	statusRepo := repositories.NewStatusRepository(postgres)
	groupRepo := repositories.NewGroupRepository(postgres)
	messageRepo := repositories.NewMessageRepository(postgres)

	ids, err := snowflake.NewGenerator(cfg.Server.NodeID)
	if err != nil {
		appLog.Fatal("snowflake 初始化失败", zap.Error(err))
	}

	var store services.MediaStore
	if cloud, err := media.NewCloudinaryStore(&cfg.Media); err != nil {
		appLog.Warn("media store unavailable, uploads will fail", zap.Error(err))
		store = media.Unavailable{}
	} else {
		store = cloud
	}

	tokens := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// WebSocket Hub
	policy, err := ws.ParseDropPolicy(cfg.Presence.DropPolicy)
	if err != nil {
		appLog.Fatal("presence 配置错误", zap.Error(err))
	}
	decode := ws.TokenDecoder(jwt.DecodeUnverified)
	if cfg.Presence.VerifyToken {
		decode = tokens.ParseToken
	}
	hub := ws.NewHub(ws.Options{
		Policy:   policy,
		Decode:   decode,
		Groups:   groupRepo,
		Presence: userRepo,
		Logger:   appLog,
	})
	go hub.Run(ctx)

	// 通知：Kafka 可用时经 topic 广播到所有节点，否则直接投递到本地 Hub
	var notifier services.Notifier = hub
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			appLog.Warn("Kafka 生产者初始化失败，降级为本地投递", zap.Error(err))
		} else {
			defer producer.Close()

			group, err := consumer.StartConsumer(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic,
				consumer.NewNotificationConsumer(hub, appLog), appLog)
			if err != nil {
				appLog.Warn("Kafka 消费者初始化失败，降级为本地投递", zap.Error(err))
			} else {
				defer group.Stop()
				notifier = mq.NewNotifier(producer, hub, appLog)
			}
		}
	}

	// 初始化服务层
	authService := services.NewAuthService(userRepo, tokens, appLog)
	friendService := services.NewFriendService(relationRepo, userRepo, notifier, appLog)
	statusService := services.NewStatusService(statusRepo, relationRepo, userRepo, store, notifier, appLog, cfg.Status.TTL)
	messageService := services.NewMessageService(messageRepo, groupRepo, relationRepo, userRepo, ids, store, notifier, appLog)
	groupService := services.NewGroupService(groupRepo, userRepo, store, notifier, appLog)
	profileService := services.NewProfileService(userRepo, relationRepo, store, notifier, appLog)

	go statusService.RunReaper(ctx, cfg.Status.ReapInterval)

	// 初始化 Worker Pool (协程池)
	// 用于异步处理请求，防止高并发下 Goroutine 暴涨
	pool := utils.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appLog.Logger)
	pool.Start()
	defer pool.Stop()

	limiter := ratelimit.NewWindowLimiter(redisClient, appLog.Logger, true)
	mw := middlewares.NewMiddlewareManager(tokens, limiter, appLog, &cfg.RateLimit)

	uploads := handlers.Uploads{MaxBytes: cfg.Media.MaxSizeMB << 20}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	routers.SetupRoutes(r, cfg, mw, pool, hub, &routers.Handlers{
		Auth:    handlers.NewAuthHandler(authService),
		Friend:  handlers.NewFriendHandler(friendService),
		Status:  handlers.NewStatusHandler(statusService, uploads),
		Message: handlers.NewMessageHandler(messageService, uploads),
		Group:   handlers.NewGroupHandler(groupService, uploads),
		Profile: handlers.NewProfileHandler(profileService, uploads),
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("正在启动服务器", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("启动服务器失败", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server shutdown failed", zap.Error(err))
	}
}
