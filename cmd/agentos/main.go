package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	v1 "go_agentos/api/v1"
	"go_agentos/internal/agentversion"
	"go_agentos/internal/audit"
	"go_agentos/internal/auth"
	"go_agentos/internal/cache"
	"go_agentos/internal/config"
	"go_agentos/internal/db"
	"go_agentos/internal/evolution"
	"go_agentos/internal/logging"
	"go_agentos/internal/metrics"
	"go_agentos/internal/retry"
	"go_agentos/internal/store"
	"go_agentos/internal/vote"
	"go_agentos/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "optional INI config file; environment variables take precedence")
	flag.Parse()

	// 1. Load configuration
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromINI(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	logger.Info("✓ Configuration loaded")

	tokens, err := auth.NewTokens(cfg.JWT.TokenOptions())
	if err != nil {
		logger.Fatalf("Failed to configure tokens: %v", err)
	}

	// 2. Initialize database
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		err = db.InitSQLite(cfg.SQLite.Path)
	default:
		err = db.InitMySQL(cfg.MySQL.DSN)
	}
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.GetDB()); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		if err := db.SeedAdmin(db.GetDB(), cfg.Admin.TenantID, cfg.Admin.Username, cfg.Admin.Password); err != nil {
			logger.Fatalf("Failed to seed admin user: %v", err)
		}
	}

	st := store.WithRetry(store.NewGormStore(db.GetDB()), retry.Config{
		MaxAttempts:     cfg.StoreRetry.MaxAttempts,
		InitialInterval: time.Duration(cfg.StoreRetry.InitialMs) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.StoreRetry.MaxMs) * time.Millisecond,
	}, logging.Component(logger, "store"))

	// 3. Initialize Redis
	if cfg.Redis.Enabled {
		if err := cache.InitRedis(cfg.Redis); err != nil {
			logger.Fatalf("Failed to initialize Redis: %v", err)
		}
		defer cache.Close()
	}

	// 4. Audit recorder
	recorder := audit.NewRecorder(st, logging.Component(logger, "audit"), cfg.Audit.QueueSize)
	recorder.Start()
	defer recorder.Stop()

	// 5. Socket.IO
	var wsServer *ws.Server
	if cfg.WSEnabled {
		wsServer = ws.NewServer(st, tokens, logging.Component(logger, "ws"))
		wsServer.Serve()
		defer wsServer.Close()
	}

	// 6. Services. Optional collaborators are only assigned when present so
	// the services never see a typed nil.
	voteCfg := vote.Config{
		Store:    st,
		Recorder: recorder,
		LockTTL:  time.Duration(cfg.Vote.LockTTLSec) * time.Second,
		Logger:   logging.Component(logger, "vote"),
	}
	sweepCfg := evolution.Config{
		Store:     st,
		Recorder:  recorder,
		Threshold: cfg.Evolution.XPThreshold,
		Logger:    logging.Component(logger, "evolution"),
	}
	var sweepLocker evolution.Locker
	if cache.Client != nil {
		if cfg.Vote.LockEnabled {
			voteCfg.Locker = cache.NewLocker(cache.Client, "agentos:lock:")
		}
		if cfg.Vote.StatsCacheSec > 0 {
			voteCfg.Cache = cache.NewStatsCache(cache.Client, time.Duration(cfg.Vote.StatsCacheSec)*time.Second)
		}
		sweepLocker = cache.NewLocker(cache.Client, "agentos:lock:")
	}
	if wsServer != nil {
		publisher := wsServer.Publisher()
		voteCfg.Notifier = publisher
		sweepCfg.Notifier = publisher
	}

	versions := agentversion.NewService(st, recorder, logging.Component(logger, "agent-versions"))
	votes := vote.NewService(voteCfg)
	sweeper := evolution.NewSweeper(sweepCfg)

	// 7. Scheduled sweep
	if cfg.Evolution.WorkerEnabled {
		worker := evolution.NewWorker(&evolution.WorkerConfig{
			Sweeper:     sweeper,
			Locker:      sweepLocker,
			Logger:      logging.Component(logger, "evolution"),
			IntervalSec: cfg.Evolution.IntervalSec,
			TenantID:    cfg.Evolution.WorkerTenantID,
		})
		worker.Start()
		defer worker.Stop()
	}

	// 8. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logging.Component(logger, "http")))

	v1.SetupRouter(r, v1.Deps{
		DB:       db.GetDB(),
		Config:   cfg,
		Tokens:   tokens,
		Versions: versions,
		Votes:    votes,
		Sweeper:  sweeper,
		Logs:     st,
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if wsServer != nil {
		r.GET("/socket.io/*any", gin.WrapH(wsServer.Handler()))
		r.POST("/socket.io/*any", gin.WrapH(wsServer.Handler()))
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		logger.Infof("✓ Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
}

// requestLogger logs one line per request through logrus
func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Info("request")
	}
}
