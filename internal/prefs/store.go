package prefs

import (
	"context"
	"time"
)

// Store is a byte-oriented key/value store. A ttl of zero means no expiry.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
