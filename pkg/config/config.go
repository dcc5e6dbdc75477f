package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Stripe       StripeConfig
	Supabase     SupabaseConfig
	Cron         CronConfig
	Credits      CreditsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PIXELBOOST_APP_ENV" required:"true"`
	Port         string `envconfig:"PIXELBOOST_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PIXELBOOST_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PIXELBOOST_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PIXELBOOST_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PIXELBOOST_DB_DSN"`
	Driver string `envconfig:"PIXELBOOST_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PIXELBOOST_DB_HOST"`
	LegacyPort     int    `envconfig:"PIXELBOOST_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PIXELBOOST_DB_USER"`
	LegacyPassword string `envconfig:"PIXELBOOST_DB_PASSWORD"`
	LegacyName     string `envconfig:"PIXELBOOST_DB_NAME"`
	LegacySSLMode  string `envconfig:"PIXELBOOST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PIXELBOOST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PIXELBOOST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PIXELBOOST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PIXELBOOST_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PIXELBOOST_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PIXELBOOST_REDIS_ADDR"`
	Password     string        `envconfig:"PIXELBOOST_REDIS_PASSWORD"`
	DB           int           `envconfig:"PIXELBOOST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PIXELBOOST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PIXELBOOST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PIXELBOOST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PIXELBOOST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PIXELBOOST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"PIXELBOOST_STRIPE_API_KEY" required:"true"`
	WebhookSecret string `envconfig:"PIXELBOOST_STRIPE_WEBHOOK_SECRET" required:"true"`
	Env           string `envconfig:"PIXELBOOST_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SupabaseConfig struct {
	JWTSecret  string `envconfig:"PIXELBOOST_SUPABASE_JWT_SECRET" required:"true"`
	HookSecret string `envconfig:"PIXELBOOST_SUPABASE_HOOK_SECRET" required:"true"`
}

type CronConfig struct {
	Secret string `envconfig:"PIXELBOOST_CRON_SECRET" required:"true"`

	ExpirationInterval time.Duration `envconfig:"PIXELBOOST_CRON_EXPIRATION_INTERVAL" default:"1h"`
	ReconcileInterval  time.Duration `envconfig:"PIXELBOOST_CRON_RECONCILE_INTERVAL" default:"24h"`
	RecoveryInterval   time.Duration `envconfig:"PIXELBOOST_CRON_RECOVERY_INTERVAL" default:"15m"`

	BatchLimit           int           `envconfig:"PIXELBOOST_CRON_BATCH_LIMIT" default:"100"`
	ReconcileLookback    time.Duration `envconfig:"PIXELBOOST_CRON_RECONCILE_LOOKBACK" default:"720h"`
	StaleProcessingAfter time.Duration `envconfig:"PIXELBOOST_CRON_STALE_PROCESSING_AFTER" default:"30m"`
	MaxAttempts          int           `envconfig:"PIXELBOOST_CRON_MAX_ATTEMPTS" default:"5"`

	TriggerBaseURL string        `envconfig:"PIXELBOOST_CRON_TRIGGER_BASE_URL" default:"http://localhost:8080"`
	TriggerTimeout time.Duration `envconfig:"PIXELBOOST_CRON_TRIGGER_TIMEOUT" default:"5m"`
}

type CreditsConfig struct {
	LogOverflow bool   `envconfig:"PIXELBOOST_CREDITS_LOG_OVERFLOW" default:"false"`
	DefaultPlan string `envconfig:"PIXELBOOST_CREDITS_DEFAULT_PLAN" default:"Free"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PIXELBOOST_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PIXELBOOST_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
