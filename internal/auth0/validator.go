package auth0

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tailscale-portfolio/role-gateway/internal/identity"
)

// Claims is the subset of an Auth0 access token the gateway reads after verification.
type Claims struct {
	Issuer        string
	Subject       string
	Scope         string
	Permissions   []string
	Email         string
	EmailVerified bool
	Name          string
	IssuedAt      time.Time
}

// HasScopes returns true when every scope in required is present in scope or permissions.
func (c *Claims) HasScopes(required []string) bool {
	if len(required) == 0 {
		return true
	}

	available := map[string]struct{}{}
	for _, scope := range strings.Fields(c.Scope) {
		available[scope] = struct{}{}
	}
	for _, perm := range c.Permissions {
		available[perm] = struct{}{}
	}

	for _, s := range required {
		if _, ok := available[s]; !ok {
			return false
		}
	}
	return true
}

// Option configures the Validator.
type Option func(v *Validator)

// WithClaimNamespace reads email, email_verified and name from namespaced custom claims
// (Auth0 access tokens only carry profile data under a namespace added by an Action).
func WithClaimNamespace(ns string) Option {
	return func(v *Validator) {
		v.namespace = ns
	}
}

// WithRequiredScopes makes Verify reject tokens lacking any of scopes.
func WithRequiredScopes(scopes ...string) Option {
	return func(v *Validator) {
		v.requiredScopes = scopes
	}
}

// WithHTTPClient configures a custom HTTP client used for JWKS retrieval.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Validator) {
		v.httpClient = c
	}
}

// WithCacheTTL adjusts how long JWKS keys are cached locally.
func WithCacheTTL(ttl time.Duration) Option {
	return func(v *Validator) {
		v.cacheTTL = ttl
	}
}

// WithMinRefreshInterval sets how soon after a JWKS fetch an unknown kid may trigger another.
// Within the interval such tokens are rejected without a fetch.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(v *Validator) {
		v.minRefresh = d
	}
}

// Validator verifies Auth0-issued RS256 access tokens against the tenant JWKS.
type Validator struct {
	audience string
	issuer   string
	jwksURL  string

	httpClient     *http.Client
	namespace      string
	requiredScopes []string
	cacheTTL       time.Duration
	minRefresh     time.Duration
	parser         *jwt.Parser

	mu         sync.RWMutex
	refreshMu  sync.Mutex
	keys       map[string]*rsa.PublicKey
	lastReload time.Time
}

// NewValidator instantiates a Validator and primes a JWKS cache. Domain must be the Auth0 tenant
// base URL (e.g. https://tenant.region.auth0.com).
func NewValidator(ctx context.Context, domain, audience string, opts ...Option) (*Validator, error) {
	domain = strings.TrimSuffix(domain, "/")
	if domain == "" || !strings.HasPrefix(domain, "http") {
		return nil, fmt.Errorf("auth0: invalid domain %q", domain)
	}
	if audience == "" {
		return nil, errors.New("auth0: audience is required")
	}

	val := &Validator{
		audience:   audience,
		issuer:     domain + "/",
		jwksURL:    domain + "/.well-known/jwks.json",
		cacheTTL:   15 * time.Minute,
		minRefresh: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(val)
	}
	if val.httpClient == nil {
		val.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	val.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(val.issuer),
		jwt.WithAudience(val.audience),
		jwt.WithLeeway(30*time.Second),
	)

	if err := val.refreshKeys(ctx); err != nil {
		return nil, err
	}
	return val, nil
}

// Verify implements identity.Verifier.
func (v *Validator) Verify(ctx context.Context, token string) (*identity.Identity, error) {
	claims, err := v.ValidateToken(ctx, token, v.requiredScopes)
	if err != nil {
		return nil, err
	}
	return &identity.Identity{
		UID:           claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		DisplayName:   claims.Name,
		IssuedAt:      claims.IssuedAt,
	}, nil
}

// ValidateToken verifies signature, issuer, audience, expiry and scopes.
// Token problems wrap identity.ErrTokenInvalid or identity.ErrTokenExpired; JWKS transport
// failures are returned unwrapped.
func (v *Validator) ValidateToken(ctx context.Context, token string, requiredScopes []string) (*Claims, error) {
	if token == "" {
		return nil, identity.ErrTokenMissing
	}

	var fetchErr error
	mc := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, mc, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("header missing kid")
		}
		key, err := v.lookupKey(ctx, kid)
		if err != nil && !errors.Is(err, identity.ErrTokenInvalid) {
			fetchErr = err
		}
		return key, err
	})
	switch {
	case fetchErr != nil:
		return nil, fetchErr
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: auth0 token expired", identity.ErrTokenExpired)
	case err != nil:
		return nil, fmt.Errorf("%w: auth0: %v", identity.ErrTokenInvalid, err)
	}

	claims := v.claimsFrom(mc)
	if claims.Subject == "" {
		return nil, invalid("missing sub")
	}
	if !claims.HasScopes(requiredScopes) {
		return nil, invalid("missing required scope(s) %v", requiredScopes)
	}
	return claims, nil
}

func (v *Validator) claimsFrom(mc jwt.MapClaims) *Claims {
	c := &Claims{}
	c.Issuer, _ = mc.GetIssuer()
	c.Subject, _ = mc.GetSubject()
	if iat, _ := mc.GetIssuedAt(); iat != nil {
		c.IssuedAt = iat.UTC()
	}
	c.Scope, _ = mc["scope"].(string)
	if perms, ok := mc["permissions"].([]any); ok {
		for _, p := range perms {
			if s, ok := p.(string); ok {
				c.Permissions = append(c.Permissions, s)
			}
		}
	}

	prefix := ""
	if v.namespace != "" {
		prefix = strings.TrimSuffix(v.namespace, "/") + "/"
	}
	c.Email, _ = mc[prefix+"email"].(string)
	c.EmailVerified, _ = mc[prefix+"email_verified"].(bool)
	c.Name, _ = mc[prefix+"name"].(string)
	return c
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: auth0: "+format, append([]any{identity.ErrTokenInvalid}, args...)...)
}

// lookupKey serves kid from cache, refetching the JWKS when the cache is stale or the kid is
// unknown and the last fetch is older than the minimum refresh interval.
func (v *Validator) lookupKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	seen := v.lastReload
	v.mu.RUnlock()

	age := time.Since(seen)
	switch {
	case ok && age < v.cacheTTL:
		return key, nil
	case !ok && age < v.minRefresh:
		return nil, invalid("jwk %q not found", kid)
	}

	v.refreshMu.Lock()
	v.mu.RLock()
	stale := v.lastReload.Equal(seen)
	v.mu.RUnlock()
	var err error
	if stale {
		err = v.refreshKeys(ctx)
	}
	v.refreshMu.Unlock()
	if err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	key, ok = v.keys[kid]
	if !ok {
		return nil, invalid("jwk %q not found", kid)
	}
	return key, nil
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (v *Validator) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("auth0: build jwks request: %w", err)
	}
	res, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth0: fetch jwks: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("auth0: jwks returned status %d", res.StatusCode)
	}

	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(res.Body).Decode(&set); err != nil {
		return fmt.Errorf("auth0: decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Alg != "" && k.Alg != "RS256") || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.rsaKey()
		if err != nil {
			return fmt.Errorf("auth0: jwk %q: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}

	v.mu.Lock()
	v.keys = keys
	v.lastReload = time.Now()
	v.mu.Unlock()
	return nil
}

func (k jwk) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil || len(n) == 0 {
		return nil, errors.New("bad modulus")
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil || len(e) == 0 || len(e) > 4 {
		return nil, errors.New("bad exponent")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(new(big.Int).SetBytes(e).Int64()),
	}, nil
}
