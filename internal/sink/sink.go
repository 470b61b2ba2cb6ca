// Package sink implements the ResponseSink union from spec.md §4.E: a
// single completion primitive with four variants — Immediate,
// AsyncOneShot, BlockingOneShot, and Streamed — used uniformly by
// every transmitter to deliver exactly one terminal event (or, for
// Streamed, many data events followed by one terminal event) to a
// caller.
//
// Go has no sync/async function coloring, so AsyncOneShot and
// BlockingOneShot share the same channel-based plumbing; they differ
// in whether waiting for the result honours a context (AsyncOneShot)
// or blocks unconditionally (BlockingOneShot), which is the only
// behavioural difference the original design relies on (spec.md §9,
// "a single internal async core ... sync facade adapts via
// block_on").
package sink

import (
	"context"

	"github.com/redbco/typedriver/internal/wire"
)

// Result is the outcome of one exchange: exactly one of Value/Err is
// meaningful, following the usual Go convention.
type Result[T any] struct {
	Value T
	Err   error
}

// Sink is the sealed ResponseSink union. The unexported marker method
// prevents variants from being added outside this package, the Go
// equivalent of a compiler-checked exhaustive enum.
type Sink[T any] interface {
	isSink()
}

// Immediate invokes a callback synchronously with the terminal
// result.
type Immediate[T any] struct {
	Handler func(Result[T])
}

func (*Immediate[T]) isSink() {}

// Finish invokes the handler with the terminal result.
func (s *Immediate[T]) Finish(r Result[T]) {
	s.Handler(r)
}

// AsyncOneShot resolves via a buffered channel; Await respects ctx
// cancellation while waiting.
type AsyncOneShot[T any] struct {
	ch chan Result[T]
}

func (*AsyncOneShot[T]) isSink() {}

// NewAsyncOneShot constructs an unresolved AsyncOneShot sink.
func NewAsyncOneShot[T any]() *AsyncOneShot[T] {
	return &AsyncOneShot[T]{ch: make(chan Result[T], 1)}
}

// Finish delivers the terminal result exactly once.
func (s *AsyncOneShot[T]) Finish(r Result[T]) {
	s.ch <- r
}

// Await blocks until Finish is called or ctx is cancelled, whichever
// comes first.
func (s *AsyncOneShot[T]) Await(ctx context.Context) (T, error) {
	select {
	case r := <-s.ch:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// BlockingOneShot resolves via a buffered channel with unconditional,
// non-cancellable receive.
type BlockingOneShot[T any] struct {
	ch chan Result[T]
}

func (*BlockingOneShot[T]) isSink() {}

// NewBlockingOneShot constructs an unresolved BlockingOneShot sink.
func NewBlockingOneShot[T any]() *BlockingOneShot[T] {
	return &BlockingOneShot[T]{ch: make(chan Result[T], 1)}
}

// Finish delivers the terminal result exactly once.
func (s *BlockingOneShot[T]) Finish(r Result[T]) {
	s.ch <- r
}

// Recv blocks unconditionally for the terminal result.
func (s *BlockingOneShot[T]) Recv() (T, error) {
	r := <-s.ch
	return r.Value, r.Err
}

// StreamItem is one element of a Streamed sink's queue: either a data
// result or a flow-control continuation token (spec.md §4.G,
// "Continue marker").
type StreamItem[T any] struct {
	Result   *Result[T]
	Continue *wire.RequestID
}

// Streamed carries a bounded, buffered queue of StreamItems, ended
// either by Close or by Finish with a Result carrying the last value or
// a terminal error. A send blocks while the queue is full.
type Streamed[T any] struct {
	ch chan StreamItem[T]
}

func (*Streamed[T]) isSink() {}

// NewStreamed constructs a Streamed sink whose queue holds capacity
// items (64 when capacity is not positive). A sender blocks while the
// queue is full, until the consumer receives.
func NewStreamed[T any](capacity int) *Streamed[T] {
	if capacity <= 0 {
		capacity = 64
	}
	return &Streamed[T]{ch: make(chan StreamItem[T], capacity)}
}

// Items exposes the receive side for iteration.
func (s *Streamed[T]) Items() <-chan StreamItem[T] {
	return s.ch
}

// Finish delivers a terminal result and closes the queue: callers
// must not send further items after calling Finish, and a ranging
// consumer exits cleanly once it has drained the terminal item.
func (s *Streamed[T]) Finish(r Result[T]) {
	s.ch <- StreamItem[T]{Result: &r}
	close(s.ch)
}

// SendResult enqueues a data part. Valid only on Streamed; misuse
// elsewhere is a program fault by construction since other variants
// don't expose this method.
func (s *Streamed[T]) SendResult(r Result[T]) {
	s.ch <- StreamItem[T]{Result: &r}
}

// SendContinuable enqueues a flow-control continuation token.
func (s *Streamed[T]) SendContinuable(id wire.RequestID) {
	s.ch <- StreamItem[T]{Continue: &id}
}

// Close signals end-of-stream with no error (a clean Done marker).
func (s *Streamed[T]) Close() {
	close(s.ch)
}

// Error delivers a terminal error. On Streamed it enqueues the error
// as the final item; callers should not send further items
// afterwards.
func Error[T any](s Sink[T], err error) {
	switch v := s.(type) {
	case *Immediate[T]:
		v.Finish(Result[T]{Err: err})
	case *AsyncOneShot[T]:
		v.Finish(Result[T]{Err: err})
	case *BlockingOneShot[T]:
		v.Finish(Result[T]{Err: err})
	case *Streamed[T]:
		v.Finish(Result[T]{Err: err})
	}
}

// Finish delivers a terminal value to any sink variant, dispatching
// on its concrete type. This is the uniform completion path every
// transmitter uses so it need not type-switch at every call site.
func Finish[T any](s Sink[T], r Result[T]) {
	switch v := s.(type) {
	case *Immediate[T]:
		v.Finish(r)
	case *AsyncOneShot[T]:
		v.Finish(r)
	case *BlockingOneShot[T]:
		v.Finish(r)
	case *Streamed[T]:
		v.Finish(r)
	}
}
