package contxt

import (
	"context"
	"time"
)

// NewContext returns a context that keeps the values of parent but not its
// cancellation, for remote calls that must finish after the caller returned.
func NewContext(parent context.Context, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ctx
}
