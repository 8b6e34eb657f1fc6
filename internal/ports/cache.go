package ports

import (
	"context"
	"time"
)

// Cache is a small key-value capability for per-user preferences such as a
// technician's saved list filter. A zero ttl keeps the value until deleted.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
