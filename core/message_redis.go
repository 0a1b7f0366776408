package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisOption struct {
	Address  string
	Password string
	DB       int
	// Prefix namespaces every key written by the store. The default is "huddle".
	Prefix string
}

// RedisMessageStore keeps each group's messages in a redis list of JSON documents
// and its members in a hash of user name to join time.
type RedisMessageStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisMessageStore connects to redis and verifies the server answers.
func NewRedisMessageStore(option RedisOption) (*RedisMessageStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     option.Address,
		Password: option.Password,
		DB:       option.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	prefix := option.Prefix
	if prefix == "" {
		prefix = "huddle"
	}
	return &RedisMessageStore{client: client, prefix: prefix, now: time.Now}, nil
}

func (s *RedisMessageStore) messagesKey(groupID string) string {
	return fmt.Sprintf("%s:group:%s:messages", s.prefix, groupID)
}

func (s *RedisMessageStore) membersKey(groupID string) string {
	return fmt.Sprintf("%s:group:%s:members", s.prefix, groupID)
}

func (s *RedisMessageStore) seqKey() string {
	return s.prefix + ":messages:seq"
}

// maxAppendAttempts bounds the retries of an append that keeps losing the race for the sequence key.
const maxAppendAttempts = 1000

// AppendMessage assigns the next id and pushes the message in a single transaction watched on the
// sequence key, so the list order of a group always matches id and creation time order.
func (s *RedisMessageStore) AppendMessage(ctx context.Context, input MessageCreateInput) (*Message, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var m Message
	appendTx := func(tx *redis.Tx) error {
		seq, err := tx.Get(ctx, s.seqKey()).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("Get: %w", err)
		}
		id := seq + 1
		m = input.message(s.now())
		m.ID = &id

		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("json.Marshal: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.seqKey(), id, 0)
			pipe.RPush(ctx, s.messagesKey(m.GroupID), b)
			return nil
		})
		return err
	}

	for i := 0; i < maxAppendAttempts; i++ {
		err := s.client.Watch(ctx, appendTx, s.seqKey())
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("append: %w", err)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("append: %w after %d attempts", redis.TxFailedErr, maxAppendAttempts)
}

// ListMessages returns the messages in append order, which is creation order.
func (s *RedisMessageStore) ListMessages(ctx context.Context, groupID string) ([]Message, error) {
	raw, err := s.client.LRange(ctx, s.messagesKey(groupID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("LRange: %w", err)
	}
	messages := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("json.Unmarshal: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (s *RedisMessageStore) JoinGroup(ctx context.Context, groupID, userName string) error {
	joinedAt := s.now().UTC().Format(time.RFC3339Nano)
	if err := s.client.HSet(ctx, s.membersKey(groupID), userName, joinedAt).Err(); err != nil {
		return fmt.Errorf("HSet: %w", err)
	}
	return nil
}

// IsMember reports whether userName has joined the group through JoinGroup.
func (s *RedisMessageStore) IsMember(ctx context.Context, groupID, userName string) (bool, error) {
	ok, err := s.client.HExists(ctx, s.membersKey(groupID), userName).Result()
	if err != nil {
		return false, fmt.Errorf("HExists: %w", err)
	}
	return ok, nil
}

func (s *RedisMessageStore) Persistent() bool { return true }

func (s *RedisMessageStore) Name() string { return "redis" }

func (s *RedisMessageStore) Close() error {
	return s.client.Close()
}
