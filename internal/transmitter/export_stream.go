package transmitter

import (
	"context"

	"github.com/redbco/typedriver/errors"
	"github.com/redbco/typedriver/internal/runtime"
	"github.com/redbco/typedriver/internal/wire"
)

// ExportPart is one decoded item off a DatabaseExport server stream:
// either a schema/type-schema part or a batch of encoded data items,
// never both.
type ExportPart struct {
	Schema *wire.ExportSchemaPart
	Items  *wire.ExportItemsPart
	Err    error
}

// exportStream is the subset of grpc.ClientStream a server-streaming
// RPC needs.
type exportStream interface {
	RecvMsg(m any) error
}

// ExportTransmitter relays a DatabaseExport server stream into a
// buffered Go channel, so callers can range over it like any other
// iterator without touching gRPC directly (spec.md §4.I).
type ExportTransmitter struct {
	parts chan ExportPart
}

// StartExport begins relaying stream into the returned transmitter's
// channel.
func StartExport(rt *runtime.Runtime, stream exportStream) *ExportTransmitter {
	t := &ExportTransmitter{parts: make(chan ExportPart, 16)}
	rt.Spawn(func(ctx context.Context) error {
		exportListenLoop(ctx, stream, t.parts)
		return nil
	})
	return t
}

// Parts exposes the receive side for iteration.
func (t *ExportTransmitter) Parts() <-chan ExportPart {
	return t.parts
}

func exportListenLoop(ctx context.Context, stream exportStream, parts chan<- ExportPart) {
	defer close(parts)
	for {
		var envelope struct {
			Schema *wire.ExportSchemaPart `json:"schema,omitempty"`
			Items  *wire.ExportItemsPart  `json:"items,omitempty"`
			Done   *wire.ExportDone       `json:"done,omitempty"`
		}
		if err := stream.RecvMsg(&envelope); err != nil {
			select {
			case parts <- ExportPart{Err: errors.Wrap(errors.RecvError, err, "database export stream closed unexpectedly")}:
			case <-ctx.Done():
			}
			return
		}
		if envelope.Done != nil {
			return
		}
		select {
		case parts <- ExportPart{Schema: envelope.Schema, Items: envelope.Items}:
		case <-ctx.Done():
			return
		}
	}
}
