package credentials_test

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-utility-portal/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return hex.EncodeToString(key)
}

func exerciseBackend(t *testing.T, backend credentials.Backend) {
	t.Helper()
	ctx := context.Background()

	values, err := backend.Load(ctx, testContextID)
	require.NoError(t, err)
	require.Empty(t, values)

	require.NoError(t, backend.Save(ctx, testContextID, map[credentials.Key]string{
		credentials.KeyToken:        "access",
		credentials.KeyRefreshToken: "refresh",
	}))

	values, err = backend.Load(ctx, testContextID)
	require.NoError(t, err)
	require.Equal(t, "access", values[credentials.KeyToken])
	require.Equal(t, "refresh", values[credentials.KeyRefreshToken])

	values[credentials.KeyToken] = "mutated"
	again, err := backend.Load(ctx, testContextID)
	require.NoError(t, err)
	require.Equal(t, "access", again[credentials.KeyToken])

	require.NoError(t, backend.Delete(ctx, testContextID))
	values, err = backend.Load(ctx, testContextID)
	require.NoError(t, err)
	require.Empty(t, values)

	require.NoError(t, backend.Delete(ctx, "never-saved"))
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, credentials.NewMemoryBackend())
}

func TestMemoryBackend_RequiresContextID(t *testing.T) {
	_, err := credentials.NewMemoryBackend().Load(context.Background(), "")
	require.Error(t, err)
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sealer, err := credentials.NewSealer(newTestKey(t))
	require.NoError(t, err)
	backend, err := credentials.NewRedisBackend(client, credentials.WithTTL(time.Hour), credentials.WithRedisSealer(sealer))
	require.NoError(t, err)

	exerciseBackend(t, backend)

	ctx := context.Background()
	require.NoError(t, backend.Save(ctx, testContextID, map[credentials.Key]string{credentials.KeyToken: "secret-access"}))

	stored, err := mr.Get("portal:credentials:" + testContextID)
	require.NoError(t, err)
	require.NotContains(t, stored, "secret-access")
	require.Equal(t, time.Hour, mr.TTL("portal:credentials:"+testContextID))

	mr.FastForward(2 * time.Hour)
	values, err := backend.Load(ctx, testContextID)
	require.NoError(t, err)
	require.Empty(t, values)
}

func TestRedisBackend_UpdateRetriesOnConcurrentWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		_ = other.Close()
	})

	backend, err := credentials.NewRedisBackend(client)
	require.NoError(t, err)
	replica, err := credentials.NewRedisBackend(other)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, backend.Save(ctx, testContextID, map[credentials.Key]string{credentials.KeyToken: "access"}))

	runs := 0
	err = backend.Update(ctx, testContextID, func(values map[credentials.Key]string) error {
		runs++
		if runs == 1 {
			// Another replica clears the session between our read and write.
			require.NoError(t, replica.Delete(ctx, testContextID))
		}
		values[credentials.KeyRefreshToken] = "refresh"
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, runs)

	values, err := backend.Load(ctx, testContextID)
	require.NoError(t, err)
	require.Equal(t, map[credentials.Key]string{credentials.KeyRefreshToken: "refresh"}, values)
}

func TestRedisBackend_UpdateDeletesEmptyContext(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	backend, err := credentials.NewRedisBackend(client, credentials.WithTTL(time.Hour))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, backend.Update(ctx, testContextID, func(values map[credentials.Key]string) error {
		values[credentials.KeyCurrentLogin] = "0700000001"
		return nil
	}))
	require.Equal(t, time.Hour, mr.TTL("portal:credentials:"+testContextID))

	require.NoError(t, backend.Update(ctx, testContextID, func(values map[credentials.Key]string) error {
		delete(values, credentials.KeyCurrentLogin)
		return nil
	}))
	require.False(t, mr.Exists("portal:credentials:"+testContextID))
}

func TestRedisBackend_StoresOnTwoReplicasKeepBothWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	openReplica := func() *credentials.Store {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		backend, err := credentials.NewRedisBackend(client)
		require.NoError(t, err)
		return credentials.NewVault(backend).Open(testContextID)
	}
	first, second := openReplica(), openReplica()
	ctx := context.Background()

	const rounds = 25
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range rounds {
			assert.NoError(t, first.SetCurrentLogin(ctx, fmt.Sprintf("07000000%02d", i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := range rounds {
			assert.NoError(t, second.SetValue(ctx, credentials.KeySocialState, fmt.Sprintf("state-%d", i)))
		}
	}()
	wg.Wait()

	login, err := first.CurrentLogin(ctx)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("07000000%02d", rounds-1), login)
	state, err := second.Value(ctx, credentials.KeySocialState)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("state-%d", rounds-1), state)
}

func TestRedisBackend_RequiresClient(t *testing.T) {
	_, err := credentials.NewRedisBackend(nil)
	require.Error(t, err)
}

func TestFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	backend, err := credentials.NewFileBackend(path, nil)
	require.NoError(t, err)

	exerciseBackend(t, backend)

	ctx := context.Background()
	require.NoError(t, backend.Save(ctx, "a", map[credentials.Key]string{credentials.KeyCurrentLogin: "0700000001"}))
	require.NoError(t, backend.Save(ctx, "b", map[credentials.Key]string{credentials.KeyCurrentLogin: "0700000002"}))

	reopened, err := credentials.NewFileBackend(path, nil)
	require.NoError(t, err)
	values, err := reopened.Load(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, "0700000002", values[credentials.KeyCurrentLogin])

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileBackend_Sealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	key := newTestKey(t)
	sealer, err := credentials.NewSealer(key)
	require.NoError(t, err)
	backend, err := credentials.NewFileBackend(path, sealer)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, backend.Save(ctx, testContextID, map[credentials.Key]string{credentials.KeyRefreshToken: "very-secret"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.False(t, strings.Contains(string(data), "very-secret"))

	otherSealer, err := credentials.NewSealer(newTestKey(t))
	require.NoError(t, err)
	wrongKey, err := credentials.NewFileBackend(path, otherSealer)
	require.NoError(t, err)
	_, err = wrongKey.Load(ctx, testContextID)
	require.Error(t, err)

	values, err := backend.Load(ctx, testContextID)
	require.NoError(t, err)
	require.Equal(t, "very-secret", values[credentials.KeyRefreshToken])
}

func TestNewSealer(t *testing.T) {
	sealer, err := credentials.NewSealer("")
	require.NoError(t, err)
	require.IsType(t, credentials.PlainSealer{}, sealer)

	_, err = credentials.NewSealer("zz")
	require.Error(t, err)

	_, err = credentials.NewSealer("abcd")
	require.Error(t, err)

	sealer, err = credentials.NewSealer(newTestKey(t))
	require.NoError(t, err)
	sealed, err := sealer.Seal([]byte("hello"))
	require.NoError(t, err)
	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "hello", string(opened))

	sealed[len(sealed)-1] ^= 0xff
	_, err = sealer.Open(sealed)
	require.Error(t, err)
}
