package client

import (
	"context"
	"sync"
)

// CancelToken cancels a single in-flight request. Tokens are single-use:
// once cancelled (or once its request finishes) a token must not be reused,
// so callers obtain a fresh one from NewCancelToken per request.
type CancelToken struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool
}

// NewCancelToken creates a fresh token derived from parent.
func NewCancelToken(parent context.Context) *CancelToken {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &CancelToken{ctx: ctx, cancel: cancel}
}

// Context returns the request context carried by this token.
func (t *CancelToken) Context() context.Context {
	return t.ctx
}

// Cancel aborts the request bound to this token. Idempotent.
func (t *CancelToken) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
	t.cancel()
}

// Cancelled reports whether Cancel was invoked. Distinguishes an
// abort-induced request failure from a genuine transfer error.
func (t *CancelToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Release frees the token's resources without marking it cancelled. Called
// after the request completes normally.
func (t *CancelToken) Release() {
	t.cancel()
}
