package relay

import "context"

// Token is a trippable, awaitable, one-way boolean. It backs both the
// process-wide ShutdownToken and the per-connection cancellation token
// described in spec.md §3/§5: tripping is idempotent and never reset, so
// no mutex is needed to guard the trip itself (context.CancelFunc is
// already safe for concurrent, repeated calls).
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewToken returns a fresh, untripped Token.
func NewToken() *Token {
	ctx, cancel := context.WithCancel(context.Background())
	return &Token{ctx: ctx, cancel: cancel}
}

// Trip marks the token as tripped. Safe to call more than once or
// concurrently; only the first call has any effect.
func (t *Token) Trip() {
	t.cancel()
}

// Tripped returns a channel that is closed once the token has tripped.
func (t *Token) Tripped() <-chan struct{} {
	return t.ctx.Done()
}

// IsTripped reports whether the token has already tripped.
func (t *Token) IsTripped() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}
