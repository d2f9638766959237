// Package cancel implements the process-wide cancellation token registry.
//
// A token is created lazily the first time a task id is seen and is
// replaced, not reused, if a retry arrives for a task id whose stored
// token already fired. Abort is idempotent.
package cancel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrAborted is returned (wrapped with a reason) when an operation loses a
// race against its cancellation token. Callers match it with errors.Is, and
// its message always satisfies the "abort|cancel" regex the cancellation
// contract tests for.
var ErrAborted = errors.New("aborted")

// Token is a single task's cancellation handle. It wraps a context so that
// callers who need a context.Context for I/O (HTTP calls, tool execution,
// sleeps) can derive one directly from the token.
type Token struct {
	taskID string
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu      sync.Mutex
	aborted bool
	reason  string
}

// Context returns the context backing this token. Cancelling it fires Done()
// and causes Context().Err() to report context.Canceled.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Done returns the channel closed when the token is aborted.
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Aborted reports whether the token has fired.
func (t *Token) Aborted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aborted
}

// Reason returns the abort reason, if any.
func (t *Token) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

func (t *Token) fire(reason string) {
	t.mu.Lock()
	if t.aborted {
		t.mu.Unlock()
		return
	}
	t.aborted = true
	t.reason = reason
	t.mu.Unlock()
	t.cancel(fmt.Errorf("%w: %s", ErrAborted, reason))
}

// Registry maps task ids to cancellation tokens. It is an explicit
// collaborator (constructed and passed around), never an ambient global,
// per the runtime's shared-registry policy.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tokens: make(map[string]*Token)}
}

// GetOrCreate returns the current token for id, creating one if absent. If
// the stored token has already fired (a retry reusing a terminal task id),
// a fresh token replaces it — a retry must never inherit a dead token.
func (r *Registry) GetOrCreate(id string) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tok, ok := r.tokens[id]; ok && !tok.Aborted() {
		return tok
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	tok := &Token{taskID: id, ctx: ctx, cancel: cancel}
	r.tokens[id] = tok
	return tok
}

// Get returns the token for id, if one exists.
func (r *Registry) Get(id string) (*Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[id]
	return tok, ok
}

// Abort fires the token for id with reason. Idempotent: a second call is a
// no-op. Returns false if no token existed for id.
func (r *Registry) Abort(id, reason string) bool {
	r.mu.Lock()
	tok, ok := r.tokens[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	tok.fire(reason)
	return true
}

// Cleanup removes the token for id once the task has reached a terminal
// state. Safe to call even if no token exists.
func (r *Registry) Cleanup(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, id)
}

// RaceWithAbort runs op and races it against the token firing. The
// underlying op is not itself interrupted — it is cooperative — so op must
// accept tok.Context() for any I/O it starts and return promptly when that
// context is done.
func RaceWithAbort[T any](ctx context.Context, tok *Token, op func(ctx context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := op(tok.Context())
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-tok.Done():
		var zero T
		reason := tok.Reason()
		if reason == "" {
			reason = "cancelled"
		}
		return zero, fmt.Errorf("%w: %s", ErrAborted, reason)
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrAborted, ctx.Err())
	}
}

// ThrowIfAborted returns ErrAborted (wrapped with the recorded reason) if
// tok has already fired, else nil. Cheap guard used between execution
// steps that don't otherwise suspend.
func ThrowIfAborted(tok *Token) error {
	if tok == nil {
		return nil
	}
	if tok.Aborted() {
		reason := tok.Reason()
		if reason == "" {
			reason = "cancelled"
		}
		return fmt.Errorf("%w: %s", ErrAborted, reason)
	}
	return nil
}
