package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/yourorg/qualityhub/internal/domain"
	"github.com/yourorg/qualityhub/internal/reliability/circuitbreaker"
)

func unreachableClient() *Client {
	return newClientNoPing(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	}, nil)
}

func TestTenantCacheFailureIsAMiss(t *testing.T) {
	c := NewTenantCache(unreachableClient(), time.Minute, nil)
	defer c.client.Close()

	got, ok := c.Get(context.Background(), "acme")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestTenantCacheOpensBreaker(t *testing.T) {
	c := NewTenantCache(unreachableClient(), time.Minute, nil)
	defer c.client.Close()
	ctx := context.Background()
	acme := &domain.Tenant{ID: 7, Subdomain: "acme", Modules: domain.NewModuleSet(domain.ModuleChecklists), IsActive: true}

	for i := 0; i < 5; i++ {
		c.Set(ctx, acme)
	}
	assert.Equal(t, circuitbreaker.StateOpen, c.State())

	// Open circuit: calls return immediately as misses.
	start := time.Now()
	_, ok := c.Get(ctx, "acme")
	assert.False(t, ok)
	c.Invalidate(ctx, acme)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestTenantKey(t *testing.T) {
	assert.Equal(t, "qualityhub:tenant:acme", tenantKey("acme"))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not a url", nil)
	assert.Error(t, err)
}
