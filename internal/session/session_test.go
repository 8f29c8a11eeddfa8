package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextTransitions(t *testing.T) {
	c := New(42)
	assert.False(t, c.Business.IsSet())
	assert.False(t, c.Product.IsSet())
	assert.Equal(t, PendingNone, c.Pending)

	c.SetBusiness(1, "Dia")
	c.SetProduct(2, "Milk")
	c.SetPendingAction(PendingRename)
	c.SetPendingAction(PendingPrice)

	assert.Equal(t, Ref{ID: 1, Name: "Dia"}, c.Business)
	assert.Equal(t, Ref{ID: 2, Name: "Milk"}, c.Product)
	assert.Equal(t, PendingPrice, c.Pending, "only one pending action at a time")

	c.Clear(FieldProduct)
	assert.False(t, c.Product.IsSet())
	assert.True(t, c.Business.IsSet())

	c.Clear(FieldPending)
	assert.Equal(t, PendingNone, c.Pending)

	c.Clear(FieldBusiness)
	assert.False(t, c.Business.IsSet())
}

func TestPendingActionString(t *testing.T) {
	assert.Equal(t, "none", PendingNone.String())
	assert.Equal(t, "awaiting_rename_text", PendingRename.String())
	assert.Equal(t, "awaiting_price_text", PendingPrice.String())
}

// storeFactories lets the same behavioural tests run against every backend.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"redis": func() Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisStore(client, RedisOptions{TTL: time.Hour})
		},
	}
}

func TestStore_LazyCreationAndIsolation(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory()

			alice, err := store.Load(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, New(1), alice)

			alice.SetBusiness(10, "Dia")
			alice.SetPendingAction(PendingPrice)
			require.NoError(t, store.Save(ctx, alice))

			bob, err := store.Load(ctx, 2)
			require.NoError(t, err)
			assert.False(t, bob.Business.IsSet(), "users must not share state")
			assert.Equal(t, PendingNone, bob.Pending)

			reloaded, err := store.Load(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, Ref{ID: 10, Name: "Dia"}, reloaded.Business)
			assert.Equal(t, PendingPrice, reloaded.Pending)

			require.NoError(t, store.Reset(ctx, 1))
			reset, err := store.Load(ctx, 1)
			require.NoError(t, err)
			assert.False(t, reset.Business.IsSet())
		})
	}
}

func TestStore_LoadedValueIsACopy(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory()

			c, err := store.Load(ctx, 7)
			require.NoError(t, err)
			c.SetProduct(3, "Milk")
			require.NoError(t, store.Save(ctx, c))

			// Mutating without saving leaves the stored context alone.
			loaded, err := store.Load(ctx, 7)
			require.NoError(t, err)
			loaded.Clear(FieldProduct)

			again, err := store.Load(ctx, 7)
			require.NoError(t, err)
			assert.Equal(t, Ref{ID: 3, Name: "Milk"}, again.Product)
		})
	}
}

func TestStore_RejectsMissingUser(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			_, err := store.Load(context.Background(), 0)
			assert.Error(t, err)
			assert.Error(t, store.Save(context.Background(), Context{}))
		})
	}
}

func TestMemoryStore_ConcurrentUsers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			c, err := store.Load(ctx, userID)
			if err != nil {
				t.Errorf("Load(%d) error = %v", userID, err)
				return
			}
			c.SetBusiness(userID, "Shop")
			if err := store.Save(ctx, c); err != nil {
				t.Errorf("Save(%d) error = %v", userID, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, store.Len())
	for i := int64(1); i <= 50; i++ {
		c, err := store.Load(ctx, i)
		require.NoError(t, err)
		assert.Equal(t, i, c.Business.ID)
	}
}

func TestRedisStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	store := NewRedisStore(client, RedisOptions{TTL: 30 * time.Minute, KeyPrefix: "test:"})
	ctx := context.Background()

	c := New(5)
	c.SetProduct(9, "Bread")
	require.NoError(t, store.Save(ctx, c))

	assert.True(t, mr.Exists("test:5"))
	assert.Equal(t, 30*time.Minute, mr.TTL("test:5"))

	mr.FastForward(31 * time.Minute)
	expired, err := store.Load(ctx, 5)
	require.NoError(t, err)
	assert.False(t, expired.Product.IsSet())
}

func TestRedisStore_Errors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, RedisOptions{})
	ctx := context.Background()

	mock.ExpectGet("pricebot:session:42").SetErr(errors.New("connection reset"))
	_, err := store.Load(ctx, 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load session 42")

	mock.ExpectGet("pricebot:session:42").SetVal("{not json")
	_, err = store.Load(ctx, 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode session 42")

	mock.ExpectGet("pricebot:session:43").RedisNil()
	c, err := store.Load(ctx, 43)
	require.NoError(t, err)
	assert.Equal(t, New(43), c)

	mock.Regexp().ExpectSet("pricebot:session:43", `.*"user_id":43.*`, 0).SetErr(errors.New("READONLY"))
	err = store.Save(ctx, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save session 43")

	mock.ExpectDel("pricebot:session:43").SetVal(1)
	require.NoError(t, store.Reset(ctx, 43))

	assert.NoError(t, mock.ExpectationsWereMet())
}
