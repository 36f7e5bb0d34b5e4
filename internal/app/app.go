// Package app builds the process-wide handles from configuration. Everything is constructed
// once at startup and handed to the HTTP layer; nothing here is global.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tailscale-portfolio/role-gateway/internal/auth0"
	"github.com/tailscale-portfolio/role-gateway/internal/config"
	"github.com/tailscale-portfolio/role-gateway/internal/identity"
	"github.com/tailscale-portfolio/role-gateway/internal/roles"
	"github.com/tailscale-portfolio/role-gateway/internal/rolestore/dynamo"
	"github.com/tailscale-portfolio/role-gateway/internal/rolestore/memory"
	"github.com/tailscale-portfolio/role-gateway/internal/rolestore/postgres"
	"github.com/tailscale-portfolio/role-gateway/internal/rolestore/redis"
)

type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Verifier  identity.Verifier
	Directory identity.Directory
	Store     roles.Store
	Resolver  *roles.Resolver

	closers []func() error
}

// New wires directory, verifier, role store and resolver. Close releases whatever was opened.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	dir, err := NewDirectory(cfg)
	if err != nil {
		return nil, err
	}
	a.Directory = dir

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	verifier, err := NewVerifier(initCtx, cfg, dir)
	if err != nil {
		return nil, err
	}
	a.Verifier = verifier

	store, closeStore, err := OpenStore(initCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, closeStore)

	a.Resolver = roles.NewResolver(store, logger)

	logger.Info("application wired",
		"verifier", cfg.AuthVerifier,
		"directory", cfg.UserDirectory,
		"role_store", store.Name(),
		"check_revoked", cfg.CheckRevoked,
	)
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewDirectory returns the user directory selected by USER_DIRECTORY.
func NewDirectory(cfg config.Config) (identity.Directory, error) {
	switch cfg.UserDirectory {
	case "static":
		data, err := os.ReadFile(cfg.UserDataPath)
		if err != nil {
			return nil, fmt.Errorf("app: read user data %s: %w", cfg.UserDataPath, err)
		}
		return identity.NewStaticDirectory(data)
	case "auth0":
		return auth0.NewManagement(auth0.ManagementConfig{
			Domain:       tenantURL(cfg.Auth0Domain),
			ClientID:     cfg.Auth0ClientID,
			ClientSecret: cfg.Auth0ClientSecret,
		})
	default:
		return nil, fmt.Errorf("app: unknown user directory %q", cfg.UserDirectory)
	}
}

// NewVerifier returns the token verifier selected by AUTH_VERIFIER, wrapped in a revocation
// check when AUTH_CHECK_REVOKED is set.
func NewVerifier(ctx context.Context, cfg config.Config, dir identity.Directory) (identity.Verifier, error) {
	var (
		v   identity.Verifier
		err error
	)
	switch cfg.AuthVerifier {
	case "oidc":
		v, err = identity.DiscoverOIDC(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
	case "auth0":
		v, err = auth0.NewValidator(ctx, tenantURL(cfg.Auth0Domain), cfg.Auth0Audience,
			auth0.WithClaimNamespace(cfg.Auth0ClaimNamespace))
	case "hmac":
		v, err = identity.NewHMACVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	default:
		err = fmt.Errorf("app: unknown verifier %q", cfg.AuthVerifier)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CheckRevoked {
		v = identity.RevocationCheck{Next: v, Directory: dir}
	}
	return v, nil
}

// OpenStore connects the role store selected by ROLE_STORE. The returned func closes it.
func OpenStore(ctx context.Context, cfg config.Config) (roles.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.RoleStore {
	case "memory":
		data, err := os.ReadFile(cfg.RoleDataPath)
		if err != nil {
			return nil, nil, fmt.Errorf("app: read role data %s: %w", cfg.RoleDataPath, err)
		}
		s, err := memory.NewFromJSON(data)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case "redis":
		s := redis.Dial(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		return s, s.Close, nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "dynamodb":
		s, err := dynamo.Open(ctx, dynamo.Options{
			Region:          cfg.DynamoRegion,
			Endpoint:        cfg.DynamoEndpoint,
			AccessKeyID:     cfg.DynamoAccessKeyID,
			SecretAccessKey: cfg.DynamoSecretAccessKey,
			SupplierTable:   cfg.DynamoSupplierTable,
			AdminTable:      cfg.DynamoAdminTable,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown role store %q", cfg.RoleStore)
	}
}

// tenantURL accepts either "tenant.auth0.com" or a full URL.
func tenantURL(domain string) string {
	if domain == "" || strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}
