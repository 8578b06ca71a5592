package store

import (
	"context"
	"time"
)

// Per spec §5's suspension-point contract: every store call has a bounded
// timeout. These are fixed upper bounds: a caller's context deadline can
// only shorten them, and there is no setting that lengthens them.
const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
)

func withReadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, readTimeout)
}

func withWriteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, writeTimeout)
}
