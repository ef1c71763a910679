package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/expenseflow/internal/roles"
)

// RedisLedger stores one hash per record with a field per role.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLedger builds a ledger. A positive ttl expires records that never reach a terminal state.
func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl}
}

// LedgerKey is the Redis key holding a record's tracked messages.
func LedgerKey(recordID int64) string {
	return fmt.Sprintf("expense:%d:messages", recordID)
}

func (l *RedisLedger) Get(ctx context.Context, recordID int64, role roles.Role) ([]Delivery, error) {
	raw, err := l.client.HGet(ctx, LedgerKey(recordID), string(role)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notify: ledger get: %w", err)
	}
	var deliveries []Delivery
	if err := json.Unmarshal(raw, &deliveries); err != nil {
		return nil, fmt.Errorf("notify: ledger decode: %w", err)
	}
	return deliveries, nil
}

func (l *RedisLedger) Put(ctx context.Context, recordID int64, role roles.Role, deliveries []Delivery) error {
	key := LedgerKey(recordID)
	if len(deliveries) == 0 {
		if err := l.client.HDel(ctx, key, string(role)).Err(); err != nil {
			return fmt.Errorf("notify: ledger delete: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(deliveries)
	if err != nil {
		return err
	}
	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, key, string(role), raw)
	if l.ttl > 0 {
		pipe.Expire(ctx, key, l.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("notify: ledger put: %w", err)
	}
	return nil
}

func (l *RedisLedger) Purge(ctx context.Context, recordID int64) error {
	if err := l.client.Del(ctx, LedgerKey(recordID)).Err(); err != nil {
		return fmt.Errorf("notify: ledger purge: %w", err)
	}
	return nil
}
