package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	"github.com/allisson/asherah/internal/crypto/repository"
	cryptoService "github.com/allisson/asherah/internal/crypto/service"
)

func newTestFactory(t *testing.T, config SessionFactoryConfig) (*SessionFactory, *testClock) {
	t.Helper()
	ctx := context.Background()

	config.ServiceName = "service"
	config.ProductID = "product"

	masterKey, err := cryptoDomain.NewStaticMasterKey("")
	require.NoError(t, err)
	kms, err := cryptoService.NewStaticKMS(ctx, cryptoService.NewKMSService(), masterKey)
	require.NoError(t, err)

	factory, err := NewSessionFactory(
		config,
		repository.NewMemoryMetastore(),
		kms,
		cryptoService.NewKeyManager(cryptoService.NewAEADManager(), cryptoDomain.AESGCM),
		nil,
		nil,
	)
	require.NoError(t, err)

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	factory.now = clock.Now

	t.Cleanup(func() {
		factory.Close()
		assert.NoError(t, kms.Close())
	})
	return factory, clock
}

func assertEngineClosed(t *testing.T, entry *sessionEntry) {
	t.Helper()
	_, err := entry.engine.Encrypt(context.Background(), []byte("data"))
	assert.ErrorIs(t, err, cryptoDomain.ErrCacheClosed)
}

func TestSessionFactory_GetSession(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_SharedWhileCached", func(t *testing.T) {
		factory, _ := newTestFactory(t, SessionFactoryConfig{CacheSessions: true})

		first, err := factory.GetSession(ctx, "user-1")
		require.NoError(t, err)
		defer first.Close()
		second, err := factory.GetSession(ctx, "user-1")
		require.NoError(t, err)
		defer second.Close()

		assert.Same(t, first.entry, second.entry)
		assert.NotEqual(t, first.ID(), second.ID())
		assert.Equal(t, 2, first.entry.refs)
		assert.Equal(t, 1, factory.Len())
		assert.Equal(t, "user-1", first.PartitionID())

		drr, err := first.Encrypt(ctx, []byte("secret"))
		require.NoError(t, err)
		plaintext, err := second.Decrypt(ctx, drr)
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), plaintext)
	})

	t.Run("Success_ReleasedSessionStaysCached", func(t *testing.T) {
		factory, _ := newTestFactory(t, SessionFactoryConfig{CacheSessions: true})

		first, err := factory.GetSession(ctx, "user-1")
		require.NoError(t, err)
		first.Close()

		second, err := factory.GetSession(ctx, "user-1")
		require.NoError(t, err)
		defer second.Close()

		assert.Same(t, first.entry, second.entry)
		assert.Equal(t, 1, second.entry.refs)
	})

	t.Run("Success_IdleSessionExpires", func(t *testing.T) {
		factory, clock := newTestFactory(t, SessionFactoryConfig{
			CacheSessions:        true,
			SessionCacheDuration: time.Minute,
		})

		first, err := factory.GetSession(ctx, "user-1")
		require.NoError(t, err)
		first.Close()

		clock.Advance(2 * time.Minute)

		second, err := factory.GetSession(ctx, "user-1")
		require.NoError(t, err)
		defer second.Close()

		assert.NotSame(t, first.entry, second.entry)
		assertEngineClosed(t, first.entry)
	})

	t.Run("Success_LRUEvictsLeastRecentlyUsed", func(t *testing.T) {
		factory, _ := newTestFactory(t, SessionFactoryConfig{
			CacheSessions:       true,
			SessionCacheMaxSize: 2,
		})

		var entries []*sessionEntry
		for _, id := range []string{"user-1", "user-2", "user-3"} {
			session, err := factory.GetSession(ctx, id)
			require.NoError(t, err)
			entries = append(entries, session.entry)
			session.Close()
		}

		assert.Equal(t, 2, factory.Len())
		assert.True(t, entries[0].evicted)
		assertEngineClosed(t, entries[0])
		assert.False(t, entries[2].evicted)
	})

	t.Run("Success_EvictedSessionClosedOnLastRelease", func(t *testing.T) {
		factory, _ := newTestFactory(t, SessionFactoryConfig{
			CacheSessions:       true,
			SessionCacheMaxSize: 1,
		})

		held, err := factory.GetSession(ctx, "user-1")
		require.NoError(t, err)

		other, err := factory.GetSession(ctx, "user-2")
		require.NoError(t, err)
		defer other.Close()

		assert.True(t, held.entry.evicted)

		drr, err := held.Encrypt(ctx, []byte("still usable"))
		require.NoError(t, err)
		plaintext, err := held.Decrypt(ctx, drr)
		require.NoError(t, err)
		assert.Equal(t, []byte("still usable"), plaintext)

		held.Close()
		assertEngineClosed(t, held.entry)
	})

	t.Run("Success_CachingDisabled", func(t *testing.T) {
		factory, _ := newTestFactory(t, SessionFactoryConfig{CacheSessions: false})

		first, err := factory.GetSession(ctx, "user-1")
		require.NoError(t, err)
		second, err := factory.GetSession(ctx, "user-1")
		require.NoError(t, err)

		assert.NotSame(t, first.entry, second.entry)
		assert.Equal(t, 0, factory.Len())

		drr, err := first.Encrypt(ctx, []byte("secret"))
		require.NoError(t, err)
		plaintext, err := second.Decrypt(ctx, drr)
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), plaintext)

		first.Close()
		assertEngineClosed(t, first.entry)
		second.Close()
		assertEngineClosed(t, second.entry)
	})

	t.Run("Error_InvalidPartitionID", func(t *testing.T) {
		factory, _ := newTestFactory(t, SessionFactoryConfig{CacheSessions: true})

		_, err := factory.GetSession(ctx, "")
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidPartitionID)

		_, err = factory.GetSession(ctx, strings.Repeat("p", cryptoDomain.MaxPartitionIDLength+1))
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidPartitionID)

		session, err := factory.GetSession(ctx, strings.Repeat("p", cryptoDomain.MaxPartitionIDLength))
		require.NoError(t, err)
		session.Close()
	})
	t.Run("Error_RegionSuffixedExtendingPartition", func(t *testing.T) {
		factory, _ := newTestFactory(t, SessionFactoryConfig{
			CacheSessions: true,
			RegionSuffix:  "us-west-2",
		})

		owner, err := factory.GetSession(ctx, "alice_service_product")
		require.NoError(t, err)
		defer owner.Close()

		drr, err := owner.Encrypt(ctx, []byte("alice's secret"))
		require.NoError(t, err)
		assert.Equal(t, "_IK_alice_service_product_service_product_us-west-2", drr.Key.ParentKeyMeta.ID)

		other, err := factory.GetSession(ctx, "alice")
		require.NoError(t, err)
		defer other.Close()

		plaintext, err := other.Decrypt(ctx, drr)
		assert.Nil(t, plaintext)
		assert.ErrorIs(t, err, cryptoDomain.ErrPartitionMismatch)

		plaintext, err = owner.Decrypt(ctx, drr)
		require.NoError(t, err)
		assert.Equal(t, []byte("alice's secret"), plaintext)
	})
}

func TestSession_Close(t *testing.T) {
	ctx := context.Background()
	factory, _ := newTestFactory(t, SessionFactoryConfig{CacheSessions: true})

	session, err := factory.GetSession(ctx, "user-1")
	require.NoError(t, err)
	keep, err := factory.GetSession(ctx, "user-1")
	require.NoError(t, err)
	defer keep.Close()

	session.Close()
	session.Close()

	assert.Equal(t, 1, keep.entry.refs)

	_, err = session.Encrypt(ctx, []byte("data"))
	assert.ErrorIs(t, err, cryptoDomain.ErrSessionClosed)
	_, err = session.Decrypt(ctx, &cryptoDomain.DataRowRecord{})
	assert.ErrorIs(t, err, cryptoDomain.ErrSessionClosed)
}

func TestSessionFactory_Close(t *testing.T) {
	ctx := context.Background()
	factory, _ := newTestFactory(t, SessionFactoryConfig{CacheSessions: true})

	idle, err := factory.GetSession(ctx, "user-1")
	require.NoError(t, err)
	idle.Close()

	held, err := factory.GetSession(ctx, "user-2")
	require.NoError(t, err)

	factory.Close()
	factory.Close()

	assertEngineClosed(t, idle.entry)

	_, err = factory.GetSession(ctx, "user-3")
	assert.ErrorIs(t, err, cryptoDomain.ErrSessionFactoryClosed)

	held.Close()
	assertEngineClosed(t, held.entry)
}

func TestSessionFactory_Concurrent(t *testing.T) {
	ctx := context.Background()
	factory, _ := newTestFactory(t, SessionFactoryConfig{
		CacheSessions:       true,
		SessionCacheMaxSize: 3,
	})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			partitionID := fmt.Sprintf("user-%d", i%5)

			session, err := factory.GetSession(ctx, partitionID)
			if !assert.NoError(t, err) {
				return
			}
			defer session.Close()

			payload := []byte(fmt.Sprintf("payload-%d", i))
			drr, err := session.Encrypt(ctx, payload)
			if !assert.NoError(t, err) {
				return
			}
			plaintext, err := session.Decrypt(ctx, drr)
			assert.NoError(t, err)
			assert.Equal(t, payload, plaintext)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, factory.Len(), 3)
}
