package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	pgstore "leadcrm/store/postgres"
	"leadcrm/utils"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

var (
	DB        *gorm.DB
	Mongo     *mongo.Database
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `env:"ENABLED" envDefault:"false"`
	Address  string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	ServerPort  string `env:"SERVER_PORT" envDefault:"8001"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`

	DBHost         string `env:"DB_HOST" envDefault:"localhost"`
	DBPort         string `env:"DB_PORT" envDefault:"5432"`
	DBUser         string `env:"DB_USER" envDefault:"postgres"`
	DBPassword     string `env:"DB_PASSWORD"`
	DBName         string `env:"DB_NAME" envDefault:"leadcrm"`
	DBSSLMode      string `env:"DB_SSL_MODE" envDefault:"disable"`
	DBMaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"100"`

	MongoURL    string `env:"MONGO_URL" envDefault:"mongodb://localhost:27017"`
	MongoDBName string `env:"MONGO_DB_NAME" envDefault:"leadcrm"`

	SMTPHost       string `env:"SMTP_HOST"`
	SMTPPort       int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername   string `env:"SMTP_USERNAME"`
	SMTPPassword   string `env:"SMTP_PASSWORD"`
	FromEmail      string `env:"FROM_EMAIL" envDefault:"noreply@opsvantage.com"`
	FromName       string `env:"FROM_NAME" envDefault:"OpsVantage Digital"`
	UnsubscribeURL string `env:"UNSUBSCRIBE_URL"`

	EmailBatchSize   int           `env:"EMAIL_BATCH_SIZE" envDefault:"10"`
	EmailBatchPause  time.Duration `env:"EMAIL_BATCH_PAUSE" envDefault:"1s"`
	SendWelcomeEmail bool          `env:"SEND_WELCOME_EMAIL" envDefault:"true"`

	Redis            RedisConfig   `envPrefix:"REDIS_"`
	RateLimitSendMax int           `env:"RATE_LIMIT_SEND_MAX" envDefault:"5"`
	RateLimitWindow  time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	APIJWTSecret string   `env:"API_JWT_SECRET"`
	CORSOrigins  []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	SentryDSN    string   `env:"SENTRY_DSN"`

	SequenceSweepInterval time.Duration `env:"SEQUENCE_SWEEP_INTERVAL" envDefault:"10m"`
	TaskWorkers           int           `env:"TASK_WORKERS" envDefault:"4"`
	TaskQueueSize         int           `env:"TASK_QUEUE_SIZE" envDefault:"100"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

// Parse reads the environment into a Config and validates it.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required for the postgres store")
		}
	case DriverMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("MONGO_URL is required for the mongo store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of postgres, mongo, memory (got %q)", c.StoreDriver)
	}
	if c.SequenceSweepInterval <= 0 {
		return fmt.Errorf("SEQUENCE_SWEEP_INTERVAL must be positive")
	}
	if c.TaskWorkers <= 0 {
		return fmt.Errorf("TASK_WORKERS must be positive")
	}
	if c.EmailBatchSize <= 0 {
		return fmt.Errorf("EMAIL_BATCH_SIZE must be positive")
	}
	if c.Environment == "production" && c.APIJWTSecret == "" {
		return fmt.Errorf("API_JWT_SECRET is required in production")
	}
	return nil
}

// LogConfig maps the logging options for utils.InitLogging
func (c Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
	}
}

func (c Config) SMTPConfig() utils.SMTPConfig {
	return utils.SMTPConfig{
		Host:       c.SMTPHost,
		Port:       c.SMTPPort,
		Username:   c.SMTPUsername,
		Password:   c.SMTPPassword,
		FromEmail:  c.FromEmail,
		FromName:   c.FromName,
		BatchSize:  c.EmailBatchSize,
		BatchPause: c.EmailBatchPause,
	}
}

func LoadConfig() error {
	cfg, err := Parse()
	if err != nil {
		return err
	}
	AppConfig = cfg
	logConfig()
	return nil
}

func ConnectDB() error {
	log := utils.GetLogger("app").WithField("component", "postgres")
	log.Info("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Info("Using connection string: ", maskPassword(dsn))

	logLevel := gormlogger.Warn
	if AppConfig.Environment == "development" {
		logLevel = gormlogger.Info
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("Successfully connected to the database")

	if err := DB.AutoMigrate(pgstore.Models()...); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Info("Database migration completed")
	return nil
}

func ConnectMongo(ctx context.Context) error {
	log := utils.GetLogger("app").WithField("component", "mongo")

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(AppConfig.MongoURL))
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("mongo ping failed: %w", err)
	}

	Mongo = client.Database(AppConfig.MongoDBName)
	log.WithField("database", AppConfig.MongoDBName).Info("Successfully connected to mongo")
	return nil
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	utils.GetLogger("app").WithFields(map[string]interface{}{
		"environment":    AppConfig.Environment,
		"server_port":    AppConfig.ServerPort,
		"store_driver":   AppConfig.StoreDriver,
		"smtp_enabled":   AppConfig.SMTPHost != "",
		"redis_enabled":  AppConfig.Redis.Enabled,
		"auth_enabled":   AppConfig.APIJWTSecret != "",
		"sweep_interval": AppConfig.SequenceSweepInterval.String(),
	}).Info("Loaded configuration")
}
