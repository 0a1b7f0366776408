package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/putto11262002/huddle/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMessageStoreRoundTrip(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			inputs := []MessageCreateInput{
				{GroupID: "g1", DisplayName: "alice", Body: "first"},
				{GroupID: "g2", DisplayName: "carol", Body: "elsewhere"},
				{GroupID: "g1", DisplayName: AnonymousName, IsAnonymous: true, Body: "second"},
			}
			created := make([]*Message, 0, len(inputs))
			for _, in := range inputs {
				m, err := s.AppendMessage(ctx, in)
				require.NoError(t, err)
				assert.Equal(t, in.GroupID, m.GroupID)
				assert.Equal(t, in.DisplayName, m.UserName)
				assert.Equal(t, in.IsAnonymous, m.IsAnon)
				assert.Equal(t, in.Body, m.Body)
				assert.False(t, m.CreatedAt.IsZero())
				if s.Persistent() {
					require.NotNil(t, m.ID)
				} else {
					assert.Nil(t, m.ID)
				}
				created = append(created, m)
			}

			got, err := s.ListMessages(ctx, "g1")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assertSameMessage(t, created[0], got[0])
			assertSameMessage(t, created[2], got[1])

			got, err = s.ListMessages(ctx, "g2")
			require.NoError(t, err)
			require.Len(t, got, 1)
			assertSameMessage(t, created[1], got[0])

			got, err = s.ListMessages(ctx, "unknown")
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func assertSameMessage(t *testing.T, expected *Message, got Message) {
	t.Helper()
	assert.Equal(t, expected.ID, got.ID)
	assert.Equal(t, expected.GroupID, got.GroupID)
	assert.Equal(t, expected.UserName, got.UserName)
	assert.Equal(t, expected.IsAnon, got.IsAnon)
	assert.Equal(t, expected.Body, got.Body)
	assert.True(t, expected.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", expected.CreatedAt, got.CreatedAt)
}

func TestMessageStoreRejectsInvalidInput(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			_, err := s.AppendMessage(context.Background(), MessageCreateInput{DisplayName: "alice", Body: "no group"})
			assert.ErrorIs(t, err, ErrInvalidMessage)

			got, err := s.ListMessages(context.Background(), "")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestMessageStoreAcceptsEmptyDisplayName(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			m, err := s.AppendMessage(ctx, MessageCreateInput{GroupID: "g", Body: "who am i"})
			require.NoError(t, err)
			assert.Equal(t, "", m.UserName)

			got, err := s.ListMessages(ctx, "g")
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "who am i", got[0].Body)
		})
	}
}

func TestMessageStoreJoinGroup(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			require.NoError(t, s.JoinGroup(ctx, "g", "alice"))
			require.NoError(t, s.JoinGroup(ctx, "g", "alice"))
		})
	}
}

func TestPersistentStoresRecordMembers(t *testing.T) {
	type memberStore interface {
		MessageStore
		IsMember(ctx context.Context, groupID, userName string) (bool, error)
	}
	stores := map[string]memberStore{
		"sqlite": newTestSQLStore(t),
		"redis":  newTestRedisStore(t),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := s.IsMember(ctx, "g", "alice")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.JoinGroup(ctx, "g", "alice"))
			require.NoError(t, s.JoinGroup(ctx, "g", "alice"))

			ok, err = s.IsMember(ctx, "g", "alice")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.IsMember(ctx, "other", "alice")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestSQLStoreOrdersTiesByID(t *testing.T) {
	s := newTestSQLStore(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	for _, body := range []string{"a", "b", "c"} {
		_, err := s.AppendMessage(ctx, MessageCreateInput{GroupID: "g", DisplayName: "alice", Body: body})
		require.NoError(t, err)
	}
	s.now = func() time.Time { return fixed.Add(-time.Minute) }
	_, err := s.AppendMessage(ctx, MessageCreateInput{GroupID: "g", DisplayName: "alice", Body: "earlier"})
	require.NoError(t, err)

	got, err := s.ListMessages(ctx, "g")
	require.NoError(t, err)
	bodies := make([]string, 0, len(got))
	for _, m := range got {
		bodies = append(bodies, m.Body)
	}
	assert.Equal(t, []string{"earlier", "a", "b", "c"}, bodies)
	assert.Less(t, *got[1].ID, *got[2].ID)
	assert.Less(t, *got[2].ID, *got[3].ID)
}

func TestSQLiteDSN(t *testing.T) {
	var nilOpt *SQLiteDBOption
	assert.Equal(t, "file:chat.db", nilOpt.DSN("chat.db"))
	assert.Equal(t, "file:chat.db?_journal_mode=WAL", (&SQLiteDBOption{JournalMode: "WAL"}).DSN("chat.db"))
	assert.Equal(t, "file:x?mode=memory&cache=shared",
		(&SQLiteDBOption{Mode: "memory", Cache: "shared"}).DSN("x"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestSQLiteDB(t)
	s := NewSQLMessageStore(db)
	_, err := s.AppendMessage(context.Background(), MessageCreateInput{GroupID: "g", DisplayName: "alice", Body: "kept"})
	require.NoError(t, err)

	require.NoError(t, db.Migrate(migrations.FS, migrations.Dir(db.Dialect()), zap.NewNop()))

	got, err := s.ListMessages(context.Background(), "g")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRedisConcurrentAppendsKeepOrder(t *testing.T) {
	s := newTestRedisStore(t)
	base := time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	s.now = func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Millisecond)
	}

	const writers, perWriter = 8, 10
	ctx := context.Background()
	errs := make(chan error, writers*perWriter)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := s.AppendMessage(ctx, MessageCreateInput{GroupID: "g", DisplayName: "alice", Body: "hi"})
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.ListMessages(ctx, "g")
	require.NoError(t, err)
	require.Len(t, got, writers*perWriter)
	for i, m := range got {
		require.NotNil(t, m.ID)
		assert.EqualValues(t, i+1, *m.ID)
		if i > 0 {
			assert.True(t, got[i-1].CreatedAt.Before(m.CreatedAt), "message %d created before its predecessor", i)
		}
	}
}
