package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

const (
	EnvPrefix = "MARKETPLACE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "MARKETPLACE_APP_ENV"
	EnvPort     = "MARKETPLACE_APP_PORT"
	EnvLogLevel = "MARKETPLACE_LOG_LEVEL"

	EnvDBDSN  = "MARKETPLACE_DB_DSN"
	EnvDBHost = "MARKETPLACE_DB_HOST"
	EnvDBUser = "MARKETPLACE_DB_USER"
	EnvDBName = "MARKETPLACE_DB_NAME"

	EnvRedisURL  = "MARKETPLACE_REDIS_URL"
	EnvJWTSecret = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer = "MARKETPLACE_JWT_ISSUER"
	EnvJWTExpMin = "MARKETPLACE_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID       = "MARKETPLACE_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic  = "MARKETPLACE_PUBSUB_ORDERS_TOPIC"
	EnvPubSubPayoutsTopic = "MARKETPLACE_PUBSUB_PAYOUTS_TOPIC"
	EnvCurrency           = "MARKETPLACE_CURRENCY"
	EnvReturnableDays     = "MARKETPLACE_RETURNABLE_DAYS"
	EnvIDMaxAttempts      = "MARKETPLACE_ID_MAX_ATTEMPTS"
	EnvUseSQLite          = "MARKETPLACE_USE_SQLITE"
	EnvIdempotencyEnabled = "MARKETPLACE_IDEMPOTENCY_ENABLED"
	EnvRegistrationBonus  = "MARKETPLACE_REGISTRATION_BONUS"
	EnvShippingPerStore   = "MARKETPLACE_SHIPPING_PER_STORE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Marketplace  MarketplaceConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Marketplace.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETPLACE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"MARKETPLACE_LOG_FORMAT" default:"json"`

	// CORSOrigins is a comma separated allow list.
	CORSOrigins []string `envconfig:"MARKETPLACE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETPLACE_DB_DSN"`
	Driver string `envconfig:"MARKETPLACE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETPLACE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETPLACE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETPLACE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"MARKETPLACE_SQLITE_PATH" default:"file:marketplace?mode=memory&cache=shared"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"MARKETPLACE_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETPLACE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETPLACE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETPLACE_JWT_EXPIRATION_MINUTES" default:"60"`

	// Leeway tolerates clock skew between the issuer and this service.
	Leeway time.Duration `envconfig:"MARKETPLACE_JWT_LEEWAY" default:"30s"`
}

// AccessTokenTTL returns the default access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite          bool `envconfig:"MARKETPLACE_USE_SQLITE" default:"false"`
	AutoMigrate        bool `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
	IdempotencyEnabled bool `envconfig:"MARKETPLACE_IDEMPOTENCY_ENABLED" default:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MARKETPLACE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MARKETPLACE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MARKETPLACE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic  string `envconfig:"MARKETPLACE_PUBSUB_ORDERS_TOPIC" default:"marketplace-order-events"`
	PayoutsTopic string `envconfig:"MARKETPLACE_PUBSUB_PAYOUTS_TOPIC" default:"marketplace-payout-events"`

	// OrderingEnabled publishes with the aggregate id as ordering key.
	OrderingEnabled bool `envconfig:"MARKETPLACE_PUBSUB_ORDERING_ENABLED" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// RateLimitConfig throttles money-moving routes per user. A zero limit
// disables the policy.
type RateLimitConfig struct {
	Window       time.Duration `envconfig:"MARKETPLACE_RATE_LIMIT_WINDOW" default:"1m"`
	PaymentLimit int           `envconfig:"MARKETPLACE_RATE_LIMIT_PAYMENTS" default:"20"`
	WalletLimit  int           `envconfig:"MARKETPLACE_RATE_LIMIT_WALLET" default:"10"`
}

// MarketplaceConfig holds the business knobs of the order pipeline.
type MarketplaceConfig struct {
	ReturnableDays    int             `envconfig:"MARKETPLACE_RETURNABLE_DAYS" default:"7"`
	IDMaxAttempts     int             `envconfig:"MARKETPLACE_ID_MAX_ATTEMPTS" default:"5"`
	Currency          enums.Currency  `envconfig:"MARKETPLACE_CURRENCY" default:"NGN"`
	RegistrationBonus decimal.Decimal `envconfig:"MARKETPLACE_REGISTRATION_BONUS" default:"0"`
	ShippingPerStore  decimal.Decimal `envconfig:"MARKETPLACE_SHIPPING_PER_STORE" default:"0"`
}

// GuaranteePeriod is the window after delivery during which refunds are allowed
// and settlements are not.
func (m MarketplaceConfig) GuaranteePeriod() time.Duration {
	return time.Duration(m.ReturnableDays) * 24 * time.Hour
}

func (m *MarketplaceConfig) validate() error {
	if m.ReturnableDays < 0 {
		return fmt.Errorf("%s must be >= 0", EnvReturnableDays)
	}
	if m.IDMaxAttempts < 1 {
		return fmt.Errorf("%s must be >= 1", EnvIDMaxAttempts)
	}
	currency, err := enums.ParseCurrency(string(m.Currency))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvCurrency, err)
	}
	m.Currency = currency
	if m.RegistrationBonus.IsNegative() {
		return fmt.Errorf("%s must be >= 0", EnvRegistrationBonus)
	}
	if m.ShippingPerStore.IsNegative() {
		return fmt.Errorf("%s must be >= 0", EnvShippingPerStore)
	}
	return nil
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
