package commands

import "context"

type callerKey struct{}

// Caller is what the dispatcher learned about the sender before invoking
// the handler.
type Caller struct {
	Privileged bool
	Name       string // resolved display name
}

// WithCaller attaches c to ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller attached by the dispatcher, or the zero Caller.
func CallerFrom(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	return c
}
