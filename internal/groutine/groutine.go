// Package groutine starts goroutines with pprof labels so event dispatchers
// and monitors show up by name in profiles and goroutine dumps.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts a named goroutine. The name is attached as a pprof label and is
// retrievable from the context via GetName. If parentCtx is nil,
// context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from a context created by Go.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
