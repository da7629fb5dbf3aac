package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/domain"
)

func setupSessionRepo(t *testing.T) (TierStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionRepo(client, 10*time.Minute), mr
}

func TestSessionRepo_WriteReadDelete(t *testing.T) {
	r, mr := setupSessionRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Write(ctx, "cart:session:s1", []byte(`{"items":[]}`)))
	assert.True(t, mr.Exists("cart:session:s1"))

	ttl := mr.TTL("cart:session:s1")
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.Less(t, ttl, 15*time.Minute)

	got, err := r.Read(ctx, "cart:session:s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(got))

	require.NoError(t, r.Delete(ctx, "cart:session:s1"))
	_, err = r.Read(ctx, "cart:session:s1")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestSessionRepo_Expires(t *testing.T) {
	r, mr := setupSessionRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Write(ctx, "k", []byte("{}")))
	mr.FastForward(20 * time.Minute)

	_, err := r.Read(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestSessionRepo_ConnectionError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	r := NewSessionRepo(client, time.Minute)

	err := r.Write(context.Background(), "k", []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis set failed")

	_, err = r.Read(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRecordNotFound)
}
