package auth0

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tailscale-portfolio/role-gateway/internal/identity"
)

// maxPerPage is the Management API page size ceiling.
const maxPerPage = 100

// Management is an identity.Directory backed by the Auth0 Management API v2. Requests are
// authorised with a client-credentials token that is cached and refreshed by oauth2.
type Management struct {
	baseURL    string
	httpClient *http.Client
}

// ManagementConfig holds the machine-to-machine application used to call the Management API.
type ManagementConfig struct {
	Domain       string
	ClientID     string
	ClientSecret string
	// Audience defaults to <Domain>/api/v2/.
	Audience   string
	HTTPClient *http.Client
}

// NewManagement builds a Management client. No network call happens until first use.
func NewManagement(cfg ManagementConfig) (*Management, error) {
	domain := strings.TrimSuffix(cfg.Domain, "/")
	if domain == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("auth0: management config incomplete")
	}
	audience := cfg.Audience
	if audience == "" {
		audience = domain + "/api/v2/"
	}

	cc := &clientcredentials.Config{
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		TokenURL:       domain + "/oauth/token",
		EndpointParams: url.Values{"audience": {audience}},
		AuthStyle:      oauth2.AuthStyleInParams,
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 10 * time.Second}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = base.Timeout

	return &Management{baseURL: domain, httpClient: client}, nil
}

type mgmtUser struct {
	UserID        string     `json:"user_id"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"email_verified"`
	Name          string     `json:"name"`
	Picture       string     `json:"picture"`
	Blocked       bool       `json:"blocked"`
	CreatedAt     *time.Time `json:"created_at"`
	LastLogin     *time.Time `json:"last_login"`
}

func (u mgmtUser) toUser() identity.User {
	return identity.User{
		UID:           u.UserID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		DisplayName:   u.Name,
		PhotoURL:      u.Picture,
		Disabled:      u.Blocked,
		CreatedAt:     u.CreatedAt,
		LastSignInAt:  u.LastLogin,
	}
}

// GetUser fetches a single user by Auth0 user id.
func (m *Management) GetUser(ctx context.Context, uid string) (*identity.User, error) {
	var out mgmtUser
	if err := m.do(ctx, http.MethodGet, "/api/v2/users/"+url.PathEscape(uid), nil, &out); err != nil {
		return nil, err
	}
	user := out.toUser()
	return &user, nil
}

// UpdateUser patches name and picture.
func (m *Management) UpdateUser(ctx context.Context, uid string, update identity.ProfileUpdate) (*identity.User, error) {
	body := map[string]string{}
	if update.DisplayName != nil {
		body["name"] = *update.DisplayName
	}
	if update.PhotoURL != nil {
		body["picture"] = *update.PhotoURL
	}
	var out mgmtUser
	if err := m.do(ctx, http.MethodPatch, "/api/v2/users/"+url.PathEscape(uid), body, &out); err != nil {
		return nil, err
	}
	user := out.toUser()
	return &user, nil
}

// ListUsers pages through the tenant's users. Offsets are rounded down to a page boundary
// because the Management API pages by index.
func (m *Management) ListUsers(ctx context.Context, offset, limit int) (identity.UserPage, error) {
	if limit <= 0 || limit > maxPerPage {
		limit = maxPerPage
	}
	if offset < 0 {
		offset = 0
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(offset/limit))
	q.Set("per_page", strconv.Itoa(limit))
	q.Set("include_totals", "true")

	var out struct {
		Start  int        `json:"start"`
		Length int        `json:"length"`
		Total  int        `json:"total"`
		Users  []mgmtUser `json:"users"`
	}
	if err := m.do(ctx, http.MethodGet, "/api/v2/users?"+q.Encode(), nil, &out); err != nil {
		return identity.UserPage{}, err
	}

	users := make([]identity.User, 0, len(out.Users))
	for _, u := range out.Users {
		users = append(users, u.toUser())
	}
	next := out.Start + len(out.Users)
	return identity.UserPage{
		Users:      users,
		NextOffset: next,
		HasMore:    next < out.Total,
	}, nil
}

func (m *Management) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("auth0: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("auth0: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth0: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return identity.ErrNotFound
	}
	if res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("auth0: %s %s unexpected status %d: %s", method, path, res.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("auth0: decode response: %w", err)
	}
	return nil
}
