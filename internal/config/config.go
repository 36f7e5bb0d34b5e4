// Package config loads the service configuration from the environment, after an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env         string `env:"ENV" env-default:"development"`
	ServiceName string `env:"SERVICE_NAME" env-default:"role-gateway"`
	Version     string `env:"SERVICE_VERSION" env-default:"1.0.0"`

	ListenAddr        string        `env:"LISTEN_ADDR" env-default:":8080"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	CORSOrigins       []string      `env:"CORS_ORIGINS" env-separator:"," env-default:"*"`
	RateLimit         int           `env:"RATE_LIMIT" env-default:"100"`
	RateWindow        time.Duration `env:"RATE_WINDOW" env-default:"1m"`
	PageTokenHashKey  string        `env:"PAGE_TOKEN_SECRET"`
	PageTokenBlockKey string        `env:"PAGE_TOKEN_BLOCK_KEY"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"json"`

	// Token verification
	AuthVerifier        string `env:"AUTH_VERIFIER" env-default:"oidc"`
	OIDCIssuer          string `env:"OIDC_ISSUER"`
	OIDCClientID        string `env:"OIDC_CLIENT_ID"`
	Auth0Domain         string `env:"AUTH0_DOMAIN"`
	Auth0Audience       string `env:"AUTH0_AUDIENCE"`
	Auth0ClaimNamespace string `env:"AUTH0_CLAIM_NAMESPACE"`
	JWTSecret           string `env:"JWT_SECRET"`
	JWTIssuer           string `env:"JWT_ISSUER" env-default:"role-gateway"`
	CheckRevoked        bool   `env:"AUTH_CHECK_REVOKED" env-default:"false"`

	// User directory
	UserDirectory     string `env:"USER_DIRECTORY" env-default:"static"`
	UserDataPath      string `env:"USER_DATA_PATH" env-default:"infra/sample-users.json"`
	Auth0ClientID     string `env:"AUTH0_CLIENT_ID"`
	Auth0ClientSecret string `env:"AUTH0_CLIENT_SECRET"`

	// Role store
	RoleStore     string `env:"ROLE_STORE" env-default:"memory"`
	RoleDataPath  string `env:"ROLE_DATA_PATH" env-default:"infra/sample-roles.json"`
	RedisAddr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" env-default:"roles:"`
	DatabaseURL   string `env:"DATABASE_URL"`

	DynamoRegion          string `env:"DYNAMODB_REGION" env-default:"us-east-1"`
	DynamoEndpoint        string `env:"DYNAMODB_ENDPOINT"`
	DynamoAccessKeyID     string `env:"DYNAMODB_ACCESS_KEY_ID"`
	DynamoSecretAccessKey string `env:"DYNAMODB_SECRET_ACCESS_KEY"`
	DynamoSupplierTable   string `env:"DYNAMODB_SUPPLIER_TABLE" env-default:"role_suppliers"`
	DynamoAdminTable      string `env:"DYNAMODB_ADMIN_TABLE" env-default:"role_admins"`
}

// Load reads envFile when present and then the process environment.
func Load(envFile string) (Config, error) {
	loadEnvFile(envFile)

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("config: read env: %w", err)
	}
	return cfg, cfg.Validate()
}

func loadEnvFile(path string) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	slog.Debug("loading .env file", "path", path)
	if err := godotenv.Load(path); err != nil {
		slog.Warn("failed to load .env file", "path", path, "error", err)
	}
}

func (c Config) IsProduction() bool { return c.Env == "production" }

// Validate checks that every backend selected has what it needs.
func (c Config) Validate() error {
	var errs []error

	switch c.AuthVerifier {
	case "oidc":
		if c.OIDCIssuer == "" {
			errs = append(errs, errors.New("OIDC_ISSUER is required for AUTH_VERIFIER=oidc"))
		}
		if c.OIDCClientID == "" {
			errs = append(errs, errors.New("OIDC_CLIENT_ID is required for AUTH_VERIFIER=oidc"))
		}
	case "auth0":
		if c.Auth0Domain == "" {
			errs = append(errs, errors.New("AUTH0_DOMAIN is required for AUTH_VERIFIER=auth0"))
		}
		if c.Auth0Audience == "" {
			errs = append(errs, errors.New("AUTH0_AUDIENCE is required for AUTH_VERIFIER=auth0"))
		}
	case "hmac":
		if len(c.JWTSecret) < 16 {
			errs = append(errs, errors.New("JWT_SECRET of at least 16 bytes is required for AUTH_VERIFIER=hmac"))
		}
		if c.IsProduction() {
			errs = append(errs, errors.New("AUTH_VERIFIER=hmac is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_VERIFIER %q", c.AuthVerifier))
	}

	switch c.UserDirectory {
	case "static":
	case "auth0":
		if c.Auth0Domain == "" || c.Auth0ClientID == "" || c.Auth0ClientSecret == "" {
			errs = append(errs, errors.New("AUTH0_DOMAIN, AUTH0_CLIENT_ID and AUTH0_CLIENT_SECRET are required for USER_DIRECTORY=auth0"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown USER_DIRECTORY %q", c.UserDirectory))
	}

	switch c.RoleStore {
	case "memory", "redis":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for ROLE_STORE=postgres"))
		}
	case "dynamodb":
		if c.DynamoRegion == "" {
			errs = append(errs, errors.New("DYNAMODB_REGION is required for ROLE_STORE=dynamodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ROLE_STORE %q", c.RoleStore))
	}

	if c.RateLimit < 0 {
		errs = append(errs, errors.New("RATE_LIMIT must not be negative"))
	}
	if k := len(c.PageTokenBlockKey); k != 0 && k != 16 && k != 24 && k != 32 {
		errs = append(errs, errors.New("PAGE_TOKEN_BLOCK_KEY must be 16, 24 or 32 bytes"))
	}
	if c.IsProduction() && c.PageTokenHashKey == "" {
		errs = append(errs, errors.New("PAGE_TOKEN_SECRET is required in production"))
	}

	return errors.Join(errs...)
}
