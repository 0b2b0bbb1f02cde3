package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"finledger/internal/domain/tenant"
)

// Identity headers set by the gateway in front of the API.
const (
	CompanyIDHeader = "X-Company-ID"
	UserIDHeader    = "X-User-ID"
	UserRoleHeader  = "X-User-Role"
)

// IdempotencyKeyHeader lets clients retry purchases without duplicating them.
const IdempotencyKeyHeader = "Idempotency-Key"

type identityKey struct{}

// Identity builds the caller's tenant.RequestContext from the identity
// headers. Requests without a complete, valid identity get 401.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, ok := parseIdentity(r.Header)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, rc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func parseIdentity(h http.Header) (tenant.RequestContext, bool) {
	companyID, err := strconv.ParseInt(strings.TrimSpace(h.Get(CompanyIDHeader)), 10, 64)
	if err != nil {
		return tenant.RequestContext{}, false
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(h.Get(UserIDHeader)), 10, 64)
	if err != nil {
		return tenant.RequestContext{}, false
	}

	role := tenant.Role(strings.ToUpper(strings.TrimSpace(h.Get(UserRoleHeader))))
	if role == "" {
		role = tenant.RoleMember
	}
	// background-job identity is never accepted from the wire
	if role == tenant.RoleSystem {
		return tenant.RequestContext{}, false
	}

	rc, err := tenant.New(companyID, userID, role)
	if err != nil {
		return tenant.RequestContext{}, false
	}
	return rc, true
}

// GetRequestContext returns the identity stored by Identity.
func GetRequestContext(ctx context.Context) (tenant.RequestContext, bool) {
	rc, ok := ctx.Value(identityKey{}).(tenant.RequestContext)
	return rc, ok
}

// WithRequestContext stores rc the way Identity does.
func WithRequestContext(ctx context.Context, rc tenant.RequestContext) context.Context {
	return context.WithValue(ctx, identityKey{}, rc)
}
