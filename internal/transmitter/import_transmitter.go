package transmitter

import (
	"context"

	"github.com/redbco/typedriver/errors"
	"github.com/redbco/typedriver/internal/runtime"
	"github.com/redbco/typedriver/internal/wire"
)

// ImportTransmitter drains a client-streaming DatabaseImport RPC
// (spec.md §4.H): each batch passed to Single goes out as one message,
// in submission order, with no batching window of its own (callers
// size the batches), and it surfaces exactly one
// terminal result once the server closes the stream. Callers must call
// Done once every item has been submitted, then WaitUntilDone.
type ImportTransmitter struct {
	items  chan wire.ImportItems
	result chan error
	closed chan struct{}
}

// importStream is the subset of grpc.ClientStream a client-streaming
// RPC needs.
type importStream interface {
	SendMsg(m any) error
	CloseSend() error
	RecvMsg(m any) error
}

// StartImport sends the initial database name/schema message, then
// starts the background batching and completion-listening loops.
func StartImport(rt *runtime.Runtime, stream importStream, initial wire.ImportInitial) (*ImportTransmitter, error) {
	if err := stream.SendMsg(&initial); err != nil {
		return nil, errors.Wrap(errors.SendError, err, "failed to send import initial message")
	}

	t := &ImportTransmitter{
		items:  make(chan wire.ImportItems, 64),
		result: make(chan error, 1),
		closed: make(chan struct{}),
	}
	rt.Spawn(func(ctx context.Context) error {
		importDispatchLoop(ctx, stream, t.items, t.closed)
		return nil
	})
	rt.Spawn(func(ctx context.Context) error {
		importListenLoop(stream, t.result)
		return nil
	})
	return t, nil
}

// Single submits a batch of encoded items for import, blocking while
// the dispatch loop's buffer is full rather than reporting a healthy,
// merely backpressured import as a closed connection.
func (t *ImportTransmitter) Single(items wire.ImportItems) error {
	select {
	case t.items <- items:
		return nil
	case <-t.closed:
		return errors.New(errors.ConnectionClosed, "database import channel is closed")
	}
}

// Done signals that no further items will be submitted, the terminal
// Done sentinel (spec.md §4.H) that lets the dispatch loop CloseSend
// once its buffer drains. Call once, before WaitUntilDone.
func (t *ImportTransmitter) Done() {
	close(t.items)
}

// WaitUntilDone blocks for the server's completion acknowledgement
// (or the first error).
func (t *ImportTransmitter) WaitUntilDone() error {
	return <-t.result
}

func importDispatchLoop(ctx context.Context, stream importStream, items <-chan wire.ImportItems, closed chan<- struct{}) {
	defer close(closed)
	for {
		select {
		case <-ctx.Done():
			stream.CloseSend()
			return
		case batch, ok := <-items:
			if !ok {
				stream.CloseSend()
				return
			}
			if err := stream.SendMsg(&batch); err != nil {
				return
			}
		}
	}
}

func importListenLoop(stream importStream, result chan<- error) {
	var done wire.ImportCompletion
	err := stream.RecvMsg(&done)
	if err != nil {
		result <- errors.Wrap(errors.RecvError, err, "database import stream closed before completion")
		return
	}
	result <- nil
}
