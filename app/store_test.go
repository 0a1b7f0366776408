package huddle

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/putto11262002/huddle/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func storeConfig(t *testing.T, driver string) *Config {
	t.Helper()
	config := testConfig(t)
	config.Store.Driver = driver
	return config
}

func TestOpenStoreFallsBackToMemory(t *testing.T) {
	tcs := []struct {
		name   string
		config func(*Config)
	}{
		{"mysql unreachable", func(c *Config) {
			c.Store.Driver = StoreMySQL
			c.MySQL.Host = "127.0.0.1"
			c.MySQL.Port = 1
		}},
		{"redis unreachable", func(c *Config) {
			c.Store.Driver = StoreRedis
			c.Redis.Address = "127.0.0.1:1"
		}},
		{"sqlite path not writable", func(c *Config) {
			c.Store.Driver = StoreSQLite
			c.SQLite.File = filepath.Join(t.TempDir(), "missing", "dir", "chat.db")
		}},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			config := testConfig(t)
			tc.config(config)

			obsCore, logs := observer.New(zapcore.WarnLevel)
			store := OpenStore(config, zap.New(obsCore))
			t.Cleanup(func() { store.Close() })

			assert.Equal(t, "memory", store.Name())
			assert.False(t, store.Persistent())
			require.Equal(t, 2, logs.Len())
			assert.Equal(t, config.Store.Driver, logs.All()[0].ContextMap()["driver"])
		})
	}
}

func TestOpenStoreSQLitePersists(t *testing.T) {
	config := storeConfig(t, StoreSQLite)
	config.SQLite.File = filepath.Join(t.TempDir(), "chat.db")
	ctx := context.Background()

	store := OpenStore(config, zap.NewNop())
	require.Equal(t, "sqlite", store.Name())
	require.True(t, store.Persistent())

	_, err := store.AppendMessage(ctx, core.MessageCreateInput{GroupID: "g", DisplayName: "alice", Body: "hi"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := OpenStore(config, zap.NewNop())
	t.Cleanup(func() { reopened.Close() })

	messages, err := reopened.ListMessages(ctx, "g")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "alice", messages[0].UserName)
	assert.Equal(t, "hi", messages[0].Body)
	require.NotNil(t, messages[0].ID)
}

func TestOpenStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	config := storeConfig(t, StoreRedis)
	config.Redis.Address = mr.Addr()

	store := OpenStore(config, zap.NewNop())
	t.Cleanup(func() { store.Close() })
	require.Equal(t, "redis", store.Name())

	ctx := context.Background()
	require.NoError(t, store.JoinGroup(ctx, "g", "alice"))
	assert.True(t, mr.Exists("huddle:group:g:members"))
}

func TestOpenStoreMemory(t *testing.T) {
	store := OpenStore(storeConfig(t, StoreMemory), zap.NewNop())
	assert.Equal(t, "memory", store.Name())
}
