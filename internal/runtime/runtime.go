// Package runtime implements the Background Runtime described in
// spec.md §4.A: a process-wide scheduling context that owns every I/O
// task the driver spawns, and lets callers block until a future
// completes without caring whether they are themselves a runtime
// goroutine.
package runtime

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/redbco/typedriver/internal/logger"
)

// Runtime owns a cancellable root context and a goroutine group that
// all spawned tasks join. Closing the Runtime cancels the context and
// waits for every spawned task to observe it, mirroring the "teardown
// stops the event loop and aborts outstanding tasks" requirement.
type Runtime struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	log    *logger.Logger

	mu     sync.Mutex
	closed bool
}

// New constructs a Runtime bound to log, which every component spawned
// on this runtime shares. There is deliberately no process-wide
// singleton here (unlike the spec's "lazily initialised" language) —
// each Driver owns one Runtime so that closing one driver never
// disturbs another's in-flight tasks in the same process.
func New(log *logger.Logger) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	return &Runtime{ctx: ctx, cancel: cancel, group: group, log: log}
}

// Context returns the runtime's root context. It is cancelled when
// Close is called.
func (r *Runtime) Context() context.Context { return r.ctx }

// Logger returns the logger shared by every component spawned on this
// runtime.
func (r *Runtime) Logger() *logger.Logger { return r.log }

// Spawn enqueues fn to run on the runtime. fn should return promptly
// after r.Context() is cancelled.
func (r *Runtime) Spawn(fn func(ctx context.Context) error) {
	r.group.Go(func() error {
		return fn(r.ctx)
	})
}

// RunBlocking runs fn on the calling goroutine with the runtime's
// context and returns fn's result; it returns only once fn does, and fn
// sees that context cancelled when the runtime is closed. Per spec.md
// §4.A, calling this from a goroutine that the runtime itself spawned
// would deadlock if fn never returns independently of the runtime context;
// callers are responsible for making fn context-aware.
func (r *Runtime) RunBlocking(fn func(ctx context.Context) error) error {
	return fn(r.ctx)
}

// Close cancels every outstanding task and waits for them to exit.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	return r.group.Wait()
}

// Closed reports whether Close has been called.
func (r *Runtime) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
