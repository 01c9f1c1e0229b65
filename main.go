package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"leadcrm/config"
	"leadcrm/middleware"
	"leadcrm/routes"
	"leadcrm/services"
	"leadcrm/store"
	"leadcrm/store/memory"
	"leadcrm/store/mongodb"
	pgstore "leadcrm/store/postgres"
	"leadcrm/utils"
	"leadcrm/worker"
)

func main() {
	issueToken := pflag.String("issue-token", "", "print an API token for the given client name and exit")
	tokenTTL := pflag.Duration("token-ttl", 30*24*time.Hour, "lifetime of a token issued with --issue-token")
	seed := pflag.Bool("seed", false, "create the default templates and sequences on startup")
	pflag.Parse()

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.AppConfig
	utils.InitLogging(cfg.LogConfig())
	logger := utils.GetLogger("app").WithField("component", "main")

	if *issueToken != "" {
		if cfg.APIJWTSecret == "" {
			logger.Fatal("API_JWT_SECRET must be set to issue tokens")
		}
		token, err := utils.GenerateAPIToken(cfg.APIJWTSecret, *issueToken, "api", *tokenTTL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to issue token")
		}
		fmt.Println(token)
		return
	}

	if err := utils.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.WithError(err).Warn("Sentry initialization failed, continuing without it")
	}
	defer utils.FlushSentry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := st.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("Failed to close store")
		}
	}()

	mailer := utils.NewSMTPMailer(cfg.SMTPConfig())

	tasks := worker.NewTaskQueue(cfg.TaskWorkers, cfg.TaskQueueSize)
	tasks.Start(ctx)

	svc := services.New(services.Options{
		Store:            st,
		Mailer:           mailer,
		Tasks:            tasks,
		SendWelcomeEmail: cfg.SendWelcomeEmail,
		UnsubscribeURL:   cfg.UnsubscribeURL,
	})

	if *seed {
		report, err := svc.InitializeDefaults(ctx)
		if err != nil {
			logger.WithError(err).Fatal("Failed to seed defaults")
		}
		logger.WithFields(logrus.Fields{
			"templates": len(report.TemplatesCreated),
			"sequences": len(report.SequencesCreated),
		}).Info("Defaults seeded")
	}

	// Initialize and start the scheduler worker
	scheduler := worker.NewSchedulerWorker(svc.Sequences, svc.Campaigns, cfg.SequenceSweepInterval)
	go scheduler.Start(ctx)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "leadcrm",
		DisableStartupMessage: cfg.Environment == "production",
	})

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.CORSOrigins
	app.Use(middleware.CORS(corsConfig))

	routes.SetupRoutes(app, routes.Dependencies{
		Services:         svc,
		Tasks:            tasks,
		JWTSecret:        cfg.APIJWTSecret,
		SendRateLimit:    cfg.RateLimitSendMax,
		SendRateWindow:   cfg.RateLimitWindow,
		RateLimitStorage: middleware.NewRateLimitStorage(cfg.Redis),
		AccessLog:        true,
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info("Shutting down server...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.WithError(err).Warn("Server shutdown failed")
		}
	}()

	// Start server
	logger.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.WithError(err).Error("Server stopped")
	}
	tasks.Stop()
}

// openStore connects the configured store driver
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if err := config.ConnectDB(); err != nil {
			return nil, err
		}
		return pgstore.New(config.DB), nil
	case config.DriverMongo:
		if err := config.ConnectMongo(ctx); err != nil {
			return nil, err
		}
		st := mongodb.New(config.Mongo)
		if err := st.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		return st, nil
	default:
		utils.GetLogger("app").Warn("Using the in-memory store, data is lost on restart")
		return memory.New(), nil
	}
}
