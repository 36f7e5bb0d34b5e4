package auth0

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailscale-portfolio/role-gateway/internal/identity"
)

type jwksFixture struct {
	key     *rsa.PrivateKey
	server  *httptest.Server
	fetches atomic.Int32
}

func newJWKS(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &jwksFixture{key: key}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		f.fetches.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kid": "k1",
				"kty": "RSA",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   "AQAB",
			}},
		})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	return f.signKid(t, "k1", claims)
}

func (f *jwksFixture) signKid(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func (f *jwksFixture) claims(extra jwt.MapClaims) jwt.MapClaims {
	now := time.Now()
	c := jwt.MapClaims{
		"iss":   f.server.URL + "/",
		"aud":   []string{"https://roles.example.com", f.server.URL + "/userinfo"},
		"sub":   "auth0|123",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"scope": "openid roles:read",
	}
	for k, v := range extra {
		c[k] = v
	}
	return c
}

func TestValidatorVerify(t *testing.T) {
	f := newJWKS(t)
	v, err := NewValidator(context.Background(), f.server.URL, "https://roles.example.com",
		WithClaimNamespace("https://roles.example.com"),
		WithRequiredScopes("roles:read"),
	)
	require.NoError(t, err)

	token := f.sign(t, f.claims(jwt.MapClaims{
		"https://roles.example.com/email":          "s@x.com",
		"https://roles.example.com/email_verified": true,
	}))

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "auth0|123", id.UID)
	assert.Equal(t, "s@x.com", id.Email)
	assert.True(t, id.EmailVerified)
	assert.False(t, id.IssuedAt.IsZero())
}

func TestValidatorRejections(t *testing.T) {
	f := newJWKS(t)
	v, err := NewValidator(context.Background(), f.server.URL, "https://roles.example.com", WithRequiredScopes("roles:read"))
	require.NoError(t, err)
	ctx := context.Background()

	expired := f.sign(t, f.claims(jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()}))
	_, err = v.Verify(ctx, expired)
	assert.ErrorIs(t, err, identity.ErrTokenExpired)

	wrongAudience := f.sign(t, f.claims(jwt.MapClaims{"aud": "https://other.example.com"}))
	_, err = v.Verify(ctx, wrongAudience)
	assert.ErrorIs(t, err, identity.ErrTokenInvalid)

	missingScope := f.sign(t, f.claims(jwt.MapClaims{"scope": "openid"}))
	_, err = v.Verify(ctx, missingScope)
	assert.ErrorIs(t, err, identity.ErrTokenInvalid)

	_, err = v.Verify(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, identity.ErrTokenInvalid)

	_, err = v.Verify(ctx, "")
	assert.ErrorIs(t, err, identity.ErrTokenMissing)
}

func TestValidatorRequiresExpiry(t *testing.T) {
	f := newJWKS(t)
	v, err := NewValidator(context.Background(), f.server.URL, "https://roles.example.com")
	require.NoError(t, err)

	c := f.claims(nil)
	delete(c, "exp")
	_, err = v.Verify(context.Background(), f.sign(t, c))
	assert.ErrorIs(t, err, identity.ErrTokenInvalid)
}

func TestValidatorIssuerMustMatchExactly(t *testing.T) {
	f := newJWKS(t)
	v, err := NewValidator(context.Background(), f.server.URL, "https://roles.example.com")
	require.NoError(t, err)

	for _, iss := range []string{f.server.URL + "/someone-else/", f.server.URL, "https://evil.example/"} {
		_, err = v.Verify(context.Background(), f.sign(t, f.claims(jwt.MapClaims{"iss": iss})))
		assert.ErrorIs(t, err, identity.ErrTokenInvalid, iss)
	}
}

func TestValidatorRejectsOtherAlgorithms(t *testing.T) {
	f := newJWKS(t)
	v, err := NewValidator(context.Background(), f.server.URL, "https://roles.example.com")
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, f.claims(nil))
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signed)
	assert.ErrorIs(t, err, identity.ErrTokenInvalid)
}

func TestValidatorUnknownKidDoesNotRefetch(t *testing.T) {
	f := newJWKS(t)
	v, err := NewValidator(context.Background(), f.server.URL, "https://roles.example.com")
	require.NoError(t, err)
	require.EqualValues(t, 1, f.fetches.Load())

	for i := 0; i < 20; i++ {
		_, err = v.Verify(context.Background(), f.signKid(t, "rotated", f.claims(nil)))
		assert.ErrorIs(t, err, identity.ErrTokenInvalid)
	}
	assert.EqualValues(t, 1, f.fetches.Load())

	_, err = v.Verify(context.Background(), f.sign(t, f.claims(nil)))
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.fetches.Load())
}

func TestValidatorUnknownKidRefetchesAfterInterval(t *testing.T) {
	f := newJWKS(t)
	v, err := NewValidator(context.Background(), f.server.URL, "https://roles.example.com",
		WithMinRefreshInterval(0))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), f.signKid(t, "rotated", f.claims(nil)))
	assert.ErrorIs(t, err, identity.ErrTokenInvalid)
	assert.EqualValues(t, 2, f.fetches.Load())
}

func TestValidatorJWKSOutageIsNotATokenError(t *testing.T) {
	f := newJWKS(t)
	v, err := NewValidator(context.Background(), f.server.URL, "https://roles.example.com",
		WithMinRefreshInterval(0))
	require.NoError(t, err)
	f.server.Close()

	_, err = v.Verify(context.Background(), f.signKid(t, "rotated", f.claims(nil)))
	require.Error(t, err)
	assert.NotErrorIs(t, err, identity.ErrTokenInvalid)
}

func TestValidatorTamperedSignature(t *testing.T) {
	f := newJWKS(t)
	v, err := NewValidator(context.Background(), f.server.URL, "https://roles.example.com")
	require.NoError(t, err)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, f.claims(nil))
	tok.Header["kid"] = "k1"
	forged, err := tok.SignedString(other)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), forged)
	assert.ErrorIs(t, err, identity.ErrTokenInvalid)
}

func TestNewValidatorConfig(t *testing.T) {
	_, err := NewValidator(context.Background(), "tenant.auth0.com", "aud")
	assert.Error(t, err)

	_, err = NewValidator(context.Background(), "https://tenant.auth0.com", "")
	assert.Error(t, err)
}

func TestRSAKeyFromJWK(t *testing.T) {
	_, err := jwk{N: "", E: "AQAB"}.rsaKey()
	assert.Error(t, err)
	_, err = jwk{N: "AQAB", E: "AQABAQAB"}.rsaKey()
	assert.Error(t, err)

	key, err := jwk{N: "AQAB", E: "AQAB"}.rsaKey()
	require.NoError(t, err)
	assert.Equal(t, 65537, key.E)
}

func TestHasScopes(t *testing.T) {
	c := &Claims{Scope: "a  b", Permissions: []string{"c"}}
	assert.True(t, c.HasScopes(nil))
	assert.True(t, c.HasScopes([]string{"a", "c"}))
	assert.False(t, c.HasScopes([]string{"d"}))
}
