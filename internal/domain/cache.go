package domain

import (
	"context"
	"time"
)

// OrderCache provides fast order lookups in front of the store.
type OrderCache interface {
	Set(ctx context.Context, order Order) error
	Get(ctx context.Context, id string) (Order, error)
	Invalidate(ctx context.Context, id string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub fan-out of marketplace events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
