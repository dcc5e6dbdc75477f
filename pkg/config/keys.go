package config

const EnvPrefix = "pixelboost"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

// Environment variable names shared between Load, ensureDSN, and tests.
const (
	EnvAppEnv   = "PIXELBOOST_APP_ENV"
	EnvPort     = "PIXELBOOST_APP_PORT"
	EnvLogLevel = "PIXELBOOST_LOG_LEVEL"

	EnvDBDSN    = "PIXELBOOST_DB_DSN"
	EnvDBHost   = "PIXELBOOST_DB_HOST"
	EnvDBPort   = "PIXELBOOST_DB_PORT"
	EnvDBUser   = "PIXELBOOST_DB_USER"
	EnvDBPass   = "PIXELBOOST_DB_PASSWORD"
	EnvDBName   = "PIXELBOOST_DB_NAME"
	EnvRedisURL = "PIXELBOOST_REDIS_URL"

	EnvStripeAPIKey        = "PIXELBOOST_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "PIXELBOOST_STRIPE_WEBHOOK_SECRET"

	EnvSupabaseJWTSecret  = "PIXELBOOST_SUPABASE_JWT_SECRET"
	EnvSupabaseHookSecret = "PIXELBOOST_SUPABASE_HOOK_SECRET"

	EnvCronSecret = "PIXELBOOST_CRON_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
