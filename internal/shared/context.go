package shared

import (
	"context"
	"net/http"
	"strings"
)

// Actor identifies who triggered an operation. Authentication happens
// upstream; the engine only records what it is given.
type Actor struct {
	ID   string
	Name string
}

type actorContextKey struct{}

type tenantContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}

// ContextWithTenant stores the resolved tenant id in context.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the tenant id from context.
func TenantFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantContextKey{}).(string)
	return tenant
}

// Identity headers set by the gateway in front of the engine.
const (
	TenantHeader    = "X-Tenant-ID"
	ActorIDHeader   = "X-Actor-ID"
	ActorNameHeader = "X-Actor-Name"
)

// IdentityMiddleware copies tenant and actor headers into the request context.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if tenant := strings.TrimSpace(r.Header.Get(TenantHeader)); tenant != "" {
			ctx = ContextWithTenant(ctx, tenant)
		}
		if id := strings.TrimSpace(r.Header.Get(ActorIDHeader)); id != "" {
			ctx = ContextWithActor(ctx, Actor{ID: id, Name: strings.TrimSpace(r.Header.Get(ActorNameHeader))})
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
