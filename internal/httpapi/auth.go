package httpapi

import (
	"context"
	"net/http"

	"github.com/tailscale-portfolio/role-gateway/internal/apperr"
	"github.com/tailscale-portfolio/role-gateway/internal/identity"
	"github.com/tailscale-portfolio/role-gateway/internal/roles"
)

// authenticate verifies the bearer token and stores the Identity in the request context.
// Token problems are 401; a verifier that cannot reach its key source is a 500.
func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := identity.ParseBearer(r.Header.Get("Authorization"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		id, err := s.verifier.Verify(r.Context(), raw)
		if err != nil {
			if isTokenError(err) {
				s.logger.Debug("token rejected", "error", err, "request_id", RequestIDFromContext(r.Context()))
			}
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the verified caller, or nil on unauthenticated routes.
func IdentityFromContext(ctx context.Context) *identity.Identity {
	id, _ := ctx.Value(identityKey).(*identity.Identity)
	return id
}

// SupplierFromContext returns the record matched by the supplier guard.
func SupplierFromContext(ctx context.Context) *roles.SupplierRecord {
	rec, _ := ctx.Value(supplierKey).(*roles.SupplierRecord)
	return rec
}

// AdminFromContext returns the record matched by the admin guard.
func AdminFromContext(ctx context.Context) *roles.AdminRecord {
	rec, _ := ctx.Value(adminKey).(*roles.AdminRecord)
	return rec
}

func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.gate.RequireAdmin(r.Context(), IdentityFromContext(r.Context()))
		observeResolution("admin", err == nil, storeFailure(err))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), adminKey, rec)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) requireSupplier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.gate.RequireSupplier(r.Context(), IdentityFromContext(r.Context()))
		observeResolution("supplier", err == nil, storeFailure(err))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), supplierKey, rec)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// storeFailure keeps only indeterminate outcomes; forbidden is a normal denial.
func storeFailure(err error) error {
	if apperr.KindOf(err) == apperr.KindStore {
		return err
	}
	return nil
}
