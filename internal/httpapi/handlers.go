package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tailscale-portfolio/role-gateway/internal/apperr"
	"github.com/tailscale-portfolio/role-gateway/internal/identity"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
	maxBodyBytes    = 64 << 10
)

var allowedUpdates = []string{"displayName", "photoURL"}

func userView(id *identity.Identity) map[string]any {
	v := map[string]any{
		"uid":           id.UID,
		"email":         id.Email,
		"emailVerified": id.EmailVerified,
	}
	if id.DisplayName != "" {
		v["displayName"] = id.DisplayName
	}
	return v
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	start := time.Now()
	err := s.store.Ping(ctx)
	latency := time.Since(start)

	store := map[string]any{
		"backend":   s.store.Name(),
		"connected": err == nil,
		"latencyMs": latency.Milliseconds(),
	}
	status := "OK"
	if err != nil {
		status = "DEGRADED"
		s.logger.Warn("role store unreachable", "backend", s.store.Name(), "error", err)
		if s.production {
			store["error"] = "unreachable"
		} else {
			store["error"] = err.Error()
		}
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    status,
		"uptime":    time.Since(s.startedAt).Seconds(),
		"timestamp": timestamp(),
		"version":   s.info.Version,
		"store":     store,
	})
}

func (s *server) serviceInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":        s.info.Name,
		"version":     s.info.Version,
		"description": s.info.Description,
		"environment": s.info.Environment,
		"endpoints":   endpoints,
	})
}

func (s *server) checkRoles(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	res, err := s.resolver.ResolveRoles(r.Context(), *id)
	if err != nil {
		observeResolution("all", false, err)
		s.writeError(w, r, err)
		return
	}
	observeResolution("supplier", res.IsSupplier, nil)
	observeResolution("admin", res.IsAdmin, nil)

	writeJSON(w, r, http.StatusOK, map[string]any{
		"user": userView(id),
		"roles": map[string]bool{
			"isSupplier":      res.IsSupplier,
			"isAdmin":         res.IsAdmin,
			"isAuthenticated": true,
		},
		"supplier": res.Supplier,
	})
}

func (s *server) checkSupplier(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	ok, rec, err := s.resolver.ResolveSupplier(r.Context(), *id)
	observeResolution("supplier", ok, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"isSupplier": ok,
		"supplier":   rec,
		"user":       userView(id),
	})
}

func (s *server) checkAdmin(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	ok, rec, err := s.resolver.ResolveAdmin(r.Context(), *id)
	observeResolution("admin", ok, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"isAdmin": ok,
		"admin":   rec,
		"user":    userView(id),
	})
}

func (s *server) profile(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	user, err := s.directory.GetUser(r.Context(), id.UID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"profile": user})
}

// updateProfile applies the whitelisted fields of a JSON body. Unknown fields are dropped
// silently; a body with no whitelisted field is rejected.
func (s *server) updateProfile(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())

	var body map[string]json.RawMessage
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, r, apperr.Validation("invalid_json", "Request body must be a JSON object"))
		return
	}

	update, applied, err := parseUpdate(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if update.Empty() {
		s.writeError(w, r, apperr.Validation("no_valid_fields", "No valid fields to update").
			WithDetail("allowedUpdates", allowedUpdates))
		return
	}
	if err := s.validate.Struct(update); err != nil {
		s.writeError(w, r, validationError(err))
		return
	}

	user, err := s.directory.UpdateUser(r.Context(), id.UID, update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("profile updated", "uid", id.UID, "fields", len(applied))

	writeJSON(w, r, http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"updates": applied,
		"profile": user,
	})
}

func parseUpdate(body map[string]json.RawMessage) (identity.ProfileUpdate, map[string]string, error) {
	var update identity.ProfileUpdate
	applied := map[string]string{}
	for _, field := range allowedUpdates {
		raw, ok := body[field]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return update, nil, apperr.Validation("invalid_field", field+" must be a string").
				WithDetail("field", field)
		}
		applied[field] = v
		switch field {
		case "displayName":
			update.DisplayName = &v
		case "photoURL":
			update.PhotoURL = &v
		}
	}
	return update, applied, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("invalid_update", err.Error())
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		switch name {
		case "DisplayName":
			name = "displayName"
		case "PhotoURL":
			name = "photoURL"
		}
		fields[name] = fe.Tag()
	}
	return apperr.Validation("invalid_update", "Update failed validation").WithDetail("fields", fields)
}

func (s *server) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	size := defaultPageSize
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			s.writeError(w, r, apperr.Validation("invalid_page_size", "pageSize must be between 1 and 1000"))
			return
		}
		size = n
	}

	offset := 0
	if tok := q.Get("pageToken"); tok != "" {
		n, err := s.cursor.Decode(tok)
		if err != nil {
			s.writeError(w, r, apperr.Validation("invalid_page_token", "pageToken is invalid or expired"))
			return
		}
		offset = n
	}

	page, err := s.directory.ListUsers(r.Context(), offset, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"users": page.Users,
		"count": len(page.Users),
	}
	if admin := AdminFromContext(r.Context()); admin != nil {
		resp["requestedBy"] = map[string]any{
			"recordId":    admin.RecordID,
			"email":       admin.Email,
			"permissions": admin.Permissions,
		}
	}
	if page.HasMore {
		tok, err := s.cursor.Encode(page.NextOffset)
		if err != nil {
			s.writeError(w, r, apperr.Internal(err))
			return
		}
		resp["nextPageToken"] = tok
	}
	if page.Users == nil {
		resp["users"] = []identity.User{}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *server) supplierMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"supplier": SupplierFromContext(r.Context()),
		"user":     userView(IdentityFromContext(r.Context())),
	})
}
