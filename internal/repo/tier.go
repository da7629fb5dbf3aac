package repo

import "context"

// TierStore is one durable storage tier for serialized carts. Read returns
// domain.ErrRecordNotFound when key holds nothing.
type TierStore interface {
	Write(ctx context.Context, key string, blob []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
