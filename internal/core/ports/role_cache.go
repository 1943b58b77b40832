package ports

import "context"

// RoleCache is the durable client-side string cache. It survives a
// reconnect of the same client but is not shared across clients.
type RoleCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
