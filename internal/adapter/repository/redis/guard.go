// Package redis holds the redis-backed adapters: the transaction
// frame duplicate guard used by the authoritative endpoint.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TxnGuard implements proxy.TxnGuard on Redis. SetNX claims a frame
// key atomically across every endpoint instance sharing the store;
// the TTL releases claims orphaned by a crash mid-transaction.
type TxnGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewTxnGuard creates a new TxnGuard.
func NewTxnGuard(client *redis.Client, ttl time.Duration) *TxnGuard {
	return &TxnGuard{
		client: client,
		prefix: "txnguard:",
		ttl:    ttl,
	}
}

// Begin claims a frame key. It reports false when another delivery of
// the same frame already holds the claim.
func (g *TxnGuard) Begin(ctx context.Context, key string) (bool, error) {
	return g.client.SetNX(ctx, g.prefix+key, "in-flight", g.ttl).Result()
}

// End releases a claim once the frame's response is on the wire.
func (g *TxnGuard) End(ctx context.Context, key string) error {
	return g.client.Del(ctx, g.prefix+key).Err()
}
