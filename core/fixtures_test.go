package core

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/putto11262002/huddle/migrations"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestSQLiteDB opens a private in-memory sqlite database with every migration applied.
func newTestSQLiteDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewSQLiteDB(uuid.NewString(), &SQLiteDBOption{Mode: "memory", Cache: "shared"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(migrations.FS, migrations.Dir(db.Dialect()), zap.NewNop()))
	return db
}

func newTestSQLStore(t *testing.T) *SQLMessageStore {
	t.Helper()
	return NewSQLMessageStore(newTestSQLiteDB(t))
}

func newTestRedisStore(t *testing.T) *RedisMessageStore {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisMessageStore(RedisOption{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type storeFactory func(t *testing.T) MessageStore

var storeFactories = map[string]storeFactory{
	"memory": func(t *testing.T) MessageStore { return NewMemoryMessageStore() },
	"sqlite": func(t *testing.T) MessageStore { return newTestSQLStore(t) },
	"redis":  func(t *testing.T) MessageStore { return newTestRedisStore(t) },
}
