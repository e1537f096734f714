package nonces

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, nonce string, expiresAt time.Time) error
	Consume(ctx context.Context, nonce string, now time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
