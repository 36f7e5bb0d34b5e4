package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/tailscale-portfolio/role-gateway/internal/apperr"
	"github.com/tailscale-portfolio/role-gateway/internal/identity"
	"github.com/tailscale-portfolio/role-gateway/internal/roles"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	render.Status(r, status)
	render.JSON(w, r, payload)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

var errorTitles = map[apperr.Kind]string{
	apperr.KindValidation: "Bad Request",
	apperr.KindAuth:       "Unauthorized",
	apperr.KindForbidden:  "Forbidden",
	apperr.KindNotFound:   "Not Found",
	apperr.KindStore:      "Internal Server Error",
	apperr.KindInternal:   "Internal Server Error",
}

// writeError renders err as {error, message, code, timestamp, ...details}. Causes are never
// rendered; in non-production mode internal errors carry a detail field.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := classify(err)
	status := ae.Status()

	body := map[string]any{
		"error":     errorTitles[ae.Kind],
		"message":   ae.Message,
		"code":      ae.Code,
		"timestamp": timestamp(),
	}
	for k, v := range ae.Details {
		if _, reserved := body[k]; reserved {
			continue
		}
		body[k] = v
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"kind", ae.Kind,
			"code", ae.Code,
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
		if !s.production && ae.Cause != nil {
			body["detail"] = ae.Cause.Error()
		}
	}
	writeJSON(w, r, status, body)
}

// classify maps sentinel errors from the identity and roles packages onto the taxonomy.
func classify(err error) *apperr.Error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	var se *roles.StoreError
	switch {
	case errors.Is(err, identity.ErrTokenMissing):
		return apperr.Unauthenticated("token_missing", "No token provided", err)
	case errors.Is(err, identity.ErrTokenExpired):
		return apperr.Unauthenticated("token_expired", "Token expired", err)
	case errors.Is(err, identity.ErrTokenRevoked):
		return apperr.Unauthenticated("token_revoked", "Token revoked", err)
	case errors.Is(err, identity.ErrTokenInvalid):
		return apperr.Unauthenticated("token_invalid", "Invalid token", err)
	case errors.Is(err, identity.ErrNotFound):
		return apperr.NotFound("user_not_found", "User not found")
	case errors.As(err, &se):
		return apperr.Store(err)
	default:
		return apperr.Internal(err)
	}
}

func isTokenError(err error) bool {
	return errors.Is(err, identity.ErrTokenMissing) ||
		errors.Is(err, identity.ErrTokenInvalid) ||
		errors.Is(err, identity.ErrTokenExpired) ||
		errors.Is(err, identity.ErrTokenRevoked)
}

func (s *server) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusNotFound, map[string]any{
		"error":     "Route not found",
		"path":      r.URL.Path,
		"method":    r.Method,
		"timestamp": timestamp(),
	})
}

func (s *server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusMethodNotAllowed, map[string]any{
		"error":     "Method not allowed",
		"path":      r.URL.Path,
		"method":    r.Method,
		"timestamp": timestamp(),
	})
}

func (s *server) rateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusTooManyRequests, map[string]any{
		"error":     "Too Many Requests",
		"message":   "rate limit exceeded",
		"code":      "rate_limited",
		"timestamp": timestamp(),
	})
}
