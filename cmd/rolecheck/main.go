// Command rolecheck obtains a bearer token, waits for the roles API to come up and prints
// what the API reports for that caller.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tailscale-portfolio/role-gateway/internal/identity"
)

var checks = map[string]string{
	"roles":    "/api/check-roles",
	"supplier": "/api/check-supplier",
	"admin":    "/api/check-admin",
	"profile":  "/api/user/profile",
	"users":    "/api/admin/users",
	"me":       "/api/supplier/me",
}

type options struct {
	APIURL    string
	Token     string
	DevUID    string
	DevEmail  string
	DevSecret string
	DevIssuer string

	Auth0Domain   string
	Auth0Audience string
	Auth0ClientID string
	Auth0Secret   string
}

func main() {
	var (
		apiURL   = flag.String("api", envOrDefault("ROLES_API_URL", "http://localhost:8080"), "Base URL of the roles API")
		check    = flag.String("check", "roles", "What to ask: roles, supplier, admin, profile, users, me")
		rawToken = flag.String("token", os.Getenv("ROLECHECK_TOKEN"), "Bearer token to send as-is")
		devUID   = flag.String("dev-uid", "", "Sign a development HS256 token for this uid (needs JWT_SECRET)")
		devEmail = flag.String("dev-email", "", "Email claim for the development token")
		timeout  = flag.Duration("timeout", 20*time.Second, "Overall timeout")
		retries  = flag.Int("retries", 8, "Number of times to retry the health check on startup")
	)
	flag.Parse()

	path, ok := checks[*check]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -check %q\n", *check)
		os.Exit(2)
	}

	opts := options{
		APIURL:        strings.TrimSpace(*apiURL),
		Token:         strings.TrimSpace(*rawToken),
		DevUID:        strings.TrimSpace(*devUID),
		DevEmail:      strings.TrimSpace(*devEmail),
		DevSecret:     os.Getenv("JWT_SECRET"),
		DevIssuer:     envOrDefault("JWT_ISSUER", "role-gateway"),
		Auth0Domain:   strings.TrimSpace(os.Getenv("AUTH0_DOMAIN")),
		Auth0Audience: strings.TrimSpace(os.Getenv("AUTH0_AUDIENCE")),
		Auth0ClientID: strings.TrimSpace(os.Getenv("AUTH0_CLIENT_ID")),
		Auth0Secret:   strings.TrimSpace(os.Getenv("AUTH0_CLIENT_SECRET")),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	client := &http.Client{Timeout: *timeout}

	token, err := obtainToken(ctx, client, opts)
	if err != nil {
		logger.Error("failed to obtain token", "error", err)
		os.Exit(1)
	}

	if err := waitForAPI(ctx, client, opts.APIURL, *retries, 2*time.Second); err != nil {
		logger.Error("api readiness check failed", "error", err)
		os.Exit(1)
	}

	status, body, err := call(ctx, client, opts.APIURL, path, token)
	if err != nil {
		logger.Error("request failed", "error", err)
		os.Exit(1)
	}
	fmt.Println(body)
	if status >= 300 {
		os.Exit(1)
	}
}

// obtainToken prefers an explicit token, then a locally signed development token, then an
// Auth0 client-credentials grant.
func obtainToken(ctx context.Context, client *http.Client, opts options) (string, error) {
	switch {
	case opts.Token != "":
		return opts.Token, nil
	case opts.DevUID != "":
		if opts.DevSecret == "" {
			return "", errors.New("JWT_SECRET is required with -dev-uid")
		}
		return identity.SignHMAC(opts.DevSecret, opts.DevIssuer,
			identity.Identity{UID: opts.DevUID, Email: opts.DevEmail, EmailVerified: opts.DevEmail != ""}, 15*time.Minute)
	case opts.Auth0Domain != "" && opts.Auth0ClientID != "" && opts.Auth0Secret != "":
		domain := strings.TrimSuffix(opts.Auth0Domain, "/")
		if !strings.HasPrefix(domain, "http") {
			domain = "https://" + domain
		}
		cc := clientcredentials.Config{
			ClientID:       opts.Auth0ClientID,
			ClientSecret:   opts.Auth0Secret,
			TokenURL:       domain + "/oauth/token",
			EndpointParams: url.Values{"audience": {opts.Auth0Audience}},
			AuthStyle:      oauth2.AuthStyleInParams,
		}
		tok, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, client))
		if err != nil {
			return "", fmt.Errorf("rolecheck: client credentials: %w", err)
		}
		return tok.AccessToken, nil
	default:
		return "", errors.New("provide -token, -dev-uid or AUTH0_DOMAIN/AUTH0_CLIENT_ID/AUTH0_CLIENT_SECRET")
	}
}

func call(ctx context.Context, client *http.Client, baseURL, path, token string) (int, string, error) {
	u, err := endpointURL(baseURL, path)
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, "", fmt.Errorf("rolecheck: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("rolecheck: call api: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, "", fmt.Errorf("rolecheck: read response: %w", err)
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") != nil {
		return res.StatusCode, string(raw), nil
	}
	return res.StatusCode, pretty.String(), nil
}

func waitForAPI(ctx context.Context, client *http.Client, baseURL string, attempts int, backoff time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	healthURL, err := endpointURL(baseURL, "/api/health")
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err != nil {
			return fmt.Errorf("rolecheck: build health request: %w", err)
		}
		res, err := client.Do(req)
		if err == nil && res.StatusCode < 500 {
			res.Body.Close()
			return nil
		}
		if err == nil {
			res.Body.Close()
			err = fmt.Errorf("health returned %d", res.StatusCode)
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("rolecheck: api not ready: %w", lastErr)
}

func endpointURL(base, path string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return "", fmt.Errorf("rolecheck: parse api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("rolecheck: api url %q needs scheme and host", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = ""
	return u.String(), nil
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
