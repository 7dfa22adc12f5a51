package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App             AppConfig
	DB              DBConfig
	Redis           RedisConfig
	JWT             JWTConfig
	Storage         StorageConfig
	Render          RenderConfig
	Credits         CreditsConfig
	Fashn           FashnConfig
	Kling           KlingConfig
	Replicate       ReplicateConfig
	ProviderWebhook ProviderWebhookConfig
	Apple           AppleConfig
	FeatureFlags    FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRYON_APP_ENV" required:"true"`
	Port         string `envconfig:"TRYON_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TRYON_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRYON_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"TRYON_DB_DSN" required:"true"`

	MaxOpenConns    int           `envconfig:"TRYON_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRYON_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRYON_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRYON_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TRYON_REDIS_URL"`
	Address      string        `envconfig:"TRYON_REDIS_ADDR"`
	Password     string        `envconfig:"TRYON_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRYON_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRYON_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRYON_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRYON_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRYON_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRYON_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"TRYON_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"TRYON_JWT_ISSUER" required:"true"`
}

type StorageConfig struct {
	RootDir string `envconfig:"TRYON_STORAGE_ROOT" required:"true"`
}

type RenderConfig struct {
	// DefaultProvider picks which adapter serves new render requests.
	DefaultProvider string        `envconfig:"TRYON_RENDER_PROVIDER" default:"fashn"`
	JobTimeout      time.Duration `envconfig:"TRYON_RENDER_JOB_TIMEOUT" default:"30s"`
	MaxResultBytes  int64         `envconfig:"TRYON_RENDER_MAX_RESULT_BYTES" default:"20971520"`
	CallbackURL     string        `envconfig:"TRYON_RENDER_CALLBACK_URL" required:"true"`
}

type CreditsConfig struct {
	SignupGrant int `envconfig:"TRYON_CREDITS_SIGNUP_GRANT" default:"3"`
}

type FashnConfig struct {
	APIKey  string `envconfig:"TRYON_FASHN_API_KEY"`
	BaseURL string `envconfig:"TRYON_FASHN_BASE_URL" default:"https://api.fashn.ai"`
	ModelID string `envconfig:"TRYON_FASHN_MODEL_ID" default:"tryon-v1.6"`
}

type KlingConfig struct {
	AccessKey string `envconfig:"TRYON_KLING_ACCESS_KEY"`
	SecretKey string `envconfig:"TRYON_KLING_SECRET_KEY"`
	BaseURL   string `envconfig:"TRYON_KLING_BASE_URL" default:"https://api.klingai.com"`
	ModelID   string `envconfig:"TRYON_KLING_MODEL_ID" default:"kolors-virtual-try-on-v1-5"`
}

type ReplicateConfig struct {
	APIToken string        `envconfig:"TRYON_REPLICATE_API_TOKEN"`
	BaseURL  string        `envconfig:"TRYON_REPLICATE_BASE_URL" default:"https://api.replicate.com"`
	Version  string        `envconfig:"TRYON_REPLICATE_VERSION"`
	CacheTTL time.Duration `envconfig:"TRYON_REPLICATE_CACHE_TTL" default:"10m"`
}

type ProviderWebhookConfig struct {
	PublicKeysURL      string        `envconfig:"TRYON_PROVIDER_WEBHOOK_KEYS_URL" required:"true"`
	KeyCacheTTL        time.Duration `envconfig:"TRYON_PROVIDER_WEBHOOK_KEY_CACHE_TTL" default:"24h"`
	TimestampTolerance time.Duration `envconfig:"TRYON_PROVIDER_WEBHOOK_TS_TOLERANCE" default:"300s"`
	MaxBodyBytes       int64         `envconfig:"TRYON_PROVIDER_WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
	// MediaDomain is the only host suffix result assets may be fetched from.
	MediaDomain string `envconfig:"TRYON_PROVIDER_MEDIA_DOMAIN" required:"true"`
}

type AppleConfig struct {
	BundleID    string        `envconfig:"TRYON_APPLE_BUNDLE_ID" required:"true"`
	Environment string        `envconfig:"TRYON_APPLE_ENVIRONMENT" default:"Production"`
	RootCAPath  string        `envconfig:"TRYON_APPLE_ROOT_CA_PATH"`
	DedupeTTL   time.Duration `envconfig:"TRYON_APPLE_WEBHOOK_DEDUPE_TTL" default:"720h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TRYON_AUTO_MIGRATE" default:"false"`
}
