package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextActorAndTenant(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, Actor{}, ActorFromContext(ctx))
	assert.Empty(t, TenantFromContext(ctx))

	ctx = ContextWithActor(ctx, Actor{ID: "u1", Name: "Ana"})
	ctx = ContextWithTenant(ctx, "acme")
	assert.Equal(t, "u1", ActorFromContext(ctx).ID)
	assert.Equal(t, "acme", TenantFromContext(ctx))
}

func TestIdentityMiddleware(t *testing.T) {
	var tenant string
	var actor Actor
	h := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant = TenantFromContext(r.Context())
		actor = ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TenantHeader, " acme ")
	req.Header.Set(ActorIDHeader, "u-7")
	req.Header.Set(ActorNameHeader, "Bruno")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "acme", tenant)
	assert.Equal(t, Actor{ID: "u-7", Name: "Bruno"}, actor)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, tenant)
	assert.Equal(t, Actor{}, actor)
}
