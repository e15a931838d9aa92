package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "STOREFRONT_APP_ENV"
	EnvPort      = "STOREFRONT_APP_PORT"
	EnvDBDSN     = "STOREFRONT_DB_DSN"
	EnvDBHost    = "STOREFRONT_DB_HOST"
	EnvDBUser    = "STOREFRONT_DB_USER"
	EnvDBName    = "STOREFRONT_DB_NAME"
	EnvRedisURL  = "STOREFRONT_REDIS_URL"
	EnvMongoURI  = "STOREFRONT_MONGO_URI"
	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvRazorpayKeyID  = "STOREFRONT_PUBLIC_RAZORPAY_KEY_ID"
	EnvRazorpaySecret = "STOREFRONT_PRIVATE_RAZORPAY_KEY_SECRET"
)

var hostDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
