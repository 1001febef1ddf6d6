package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/livegpt/internal/domain"
	"github.com/davidbz/livegpt/internal/observability"
)

const keyPrefix = "conversation:"

// Config contains Redis connection settings. An empty Addr disables Redis.
type Config struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB"               envDefault:"0"`
	TTL      time.Duration `env:"REDIS_CONVERSATION_TTL" envDefault:"24h"`
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	//nolint:exhaustruct // go-redis options have many optional fields
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// ConversationStore persists conversations as Redis lists of JSON messages.
type ConversationStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewConversationStore creates a Redis-backed store. A zero ttl keeps keys forever.
func NewConversationStore(client *redis.Client, ttl time.Duration) *ConversationStore {
	return &ConversationStore{
		client: client,
		ttl:    ttl,
	}
}

// Load returns the stored messages in conversation order.
func (s *ConversationStore) Load(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if conversationID == "" {
		return nil, errors.New("conversation ID cannot be empty")
	}

	raw, err := s.client.LRange(ctx, key(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	messages := make([]domain.Message, 0, len(raw))
	for i, item := range raw {
		var m domain.Message
		if unmarshalErr := json.Unmarshal([]byte(item), &m); unmarshalErr != nil {
			observability.FromContext(ctx).Warn("skipping unreadable stored message",
				observability.String("conversation_id", conversationID),
				observability.Int("index", i),
				observability.Error(unmarshalErr))
			continue
		}
		messages = append(messages, m)
	}

	return messages, nil
}

// Append adds messages to the end of the conversation and refreshes its TTL.
func (s *ConversationStore) Append(ctx context.Context, conversationID string, messages ...domain.Message) error {
	if conversationID == "" {
		return errors.New("conversation ID cannot be empty")
	}
	if len(messages) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
		values = append(values, string(data))
	}

	k := key(conversationID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, k, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append conversation: %w", err)
	}

	return nil
}

func key(conversationID string) string {
	return keyPrefix + conversationID
}
