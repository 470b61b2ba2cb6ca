// Package transmitter implements the three multiplexers that sit on
// top of internal/rpc: the plain request/response RPC transmitter
// (spec.md §4.F), the transaction transmitter that multiplexes many
// concurrent exchanges over one bidirectional stream (spec.md §4.G),
// and the import/export helpers for schema and data migration (spec.md
// §4.H, §4.I).
package transmitter

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/redbco/typedriver/errors"
	"github.com/redbco/typedriver/internal/logger"
	"github.com/redbco/typedriver/internal/runtime"
	"github.com/redbco/typedriver/internal/sink"
	"github.com/redbco/typedriver/internal/wire"
)

const (
	maxBatchBytes    = 1_000_000
	dispatchInterval = 3 * time.Millisecond
)

// responseSink abstracts over the two shapes an outstanding exchange's
// completion target can take: a single terminal TransactionRes, or a
// Streamed queue of QueryResPart fed until a Done/error terminates it.
// This mirrors the original design's single ResponseSink<TransactionResponse>
// type, split in Go because Streamed and one-shot sinks carry distinct
// payload types.
type responseSink interface {
	finishRes(res wire.TransactionRes)
	finishErr(err error)
	sendPart(part wire.QueryResPart)
	// finishStream closes the Streamed leg cleanly on a server Done
	// marker, with no error and no further item. A no-op for sinks
	// with no Streamed leg.
	finishStream()
}

type singleSink struct{ s sink.Sink[wire.TransactionRes] }

func (r singleSink) finishRes(res wire.TransactionRes) {
	sink.Finish(r.s, sink.Result[wire.TransactionRes]{Value: res})
}
func (r singleSink) finishErr(err error) { sink.Error(r.s, err) }
func (r singleSink) sendPart(wire.QueryResPart) {
	// A one-shot exchange never receives streamed parts; a server that
	// sends one anyway is a protocol violation the caller never sees
	// since there is nowhere to deliver it.
}
func (r singleSink) finishStream() {}

// querySink serves a Query exchange, which is unlike every other
// exchange in carrying both a one-shot leg (the QueryInitialRes naming
// the answer's shape) and, for row/document answers, a subsequent
// streamed leg multiplexed under the same RequestID. The once guard
// keeps a late error from double-delivering to the already-resolved
// initial leg.
type querySink struct {
	initial *sink.AsyncOneShot[wire.TransactionRes]
	parts   *sink.Streamed[wire.QueryResPart]
	once    *sync.Once
}

func (q querySink) finishRes(res wire.TransactionRes) {
	q.once.Do(func() { q.initial.Finish(sink.Result[wire.TransactionRes]{Value: res}) })
}
func (q querySink) finishErr(err error) {
	q.once.Do(func() { q.initial.Finish(sink.Result[wire.TransactionRes]{Err: err}) })
	q.parts.Finish(sink.Result[wire.QueryResPart]{Err: err})
}
func (q querySink) sendPart(part wire.QueryResPart) {
	q.parts.SendResult(sink.Result[wire.QueryResPart]{Value: part})
}
func (q querySink) finishStream() { q.parts.Close() }

// pendingOutbound is one request awaiting a slot in the outbound
// batch, paired with the callback to register once it is sent (nil
// for the special ReqStream continuation message).
type pendingOutbound struct {
	req      wire.TransactionReq
	callback responseSink
}

// transactionStream is the grpc.ClientStream Stub.Transaction returns;
// named locally so call sites read in domain terms.
type transactionStream = grpc.ClientStream

// TransactionTransmitter multiplexes every exchange of one logical
// transaction over a single bidirectional RPC (spec.md §4.G).
type TransactionTransmitter struct {
	requests chan pendingOutbound
	cancel   context.CancelFunc

	log *logger.Logger

	mu        sync.RWMutex
	open      bool
	closed    chan struct{}
	closeErr  error
	onClosers []func(error)
}

// New starts the dispatch and listen loops for an already-opened
// transaction stream and returns a transmitter ready for Single and
// Query calls. rt supplies the goroutines their lifetime; cancel aborts the
// underlying stream so ForceClose can unblock the listener's pending
// receive (spec.md §4.G "Cancellation").
func New(rt *runtime.Runtime, stream transactionStream, cancel context.CancelFunc) *TransactionTransmitter {
	t := &TransactionTransmitter{
		requests: make(chan pendingOutbound, 256),
		cancel:   cancel,
		open:     true,
		closed:   make(chan struct{}),
		log:      rt.Logger(),
	}
	collector := &responseCollector{callbacks: make(map[wire.RequestID]responseSink), requests: t.requests}
	rt.Spawn(func(ctx context.Context) error {
		dispatchLoop(ctx, stream, t.requests, collector, t.log)
		return nil
	})
	rt.Spawn(func(ctx context.Context) error {
		listenLoop(stream, collector, t)
		return nil
	})
	return t
}

// IsOpen reports whether the transaction stream is still accepting
// exchanges.
func (t *TransactionTransmitter) IsOpen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.open
}

// OnClose registers a callback invoked exactly once with the terminal
// error when the transaction closes (spec.md §4.G "on_close"). If the
// transaction has already closed, the callback fires immediately with
// the error that closed it.
func (t *TransactionTransmitter) OnClose(cb func(error)) {
	t.mu.Lock()
	if !t.open {
		err := t.closeErr
		t.mu.Unlock()
		cb(err)
		return
	}
	t.onClosers = append(t.onClosers, cb)
	t.mu.Unlock()
}

func (t *TransactionTransmitter) markClosed(closeErr error) {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return
	}
	t.open = false
	t.closeErr = closeErr
	close(t.closed)
	onClosers := t.onClosers
	t.onClosers = nil
	t.mu.Unlock()

	for _, cb := range onClosers {
		cb(closeErr)
	}
}

// Single submits req and returns its single terminal response, or
// ctx's error if it is cancelled first.
func (t *TransactionTransmitter) Single(ctx context.Context, req wire.TransactionReq) (wire.TransactionRes, error) {
	if !t.IsOpen() {
		return wire.TransactionRes{}, errors.New(errors.SessionClosed, "transaction stream is closed")
	}
	s := sink.NewAsyncOneShot[wire.TransactionRes]()
	t.requests <- pendingOutbound{req: req, callback: singleSink{s: s}}
	return s.Await(ctx)
}

// Query submits a Query (or Analyze-shaped query) request and returns
// its initial acknowledgement alongside the Streamed queue that will
// carry row or document parts if the acknowledgement names a stream
// answer (spec.md §4.L "query resolves once the server has
// acknowledged the query type; the stream itself is lazily consumed").
// The Streamed queue is registered up front so no part racing ahead of
// the caller reading the acknowledgement is ever lost.
func (t *TransactionTransmitter) Query(ctx context.Context, req wire.TransactionReq) (wire.TransactionRes, *sink.Streamed[wire.QueryResPart], error) {
	if !t.IsOpen() {
		return wire.TransactionRes{}, nil, errors.New(errors.SessionClosed, "transaction stream is closed")
	}
	qs := querySink{
		initial: sink.NewAsyncOneShot[wire.TransactionRes](),
		parts:   sink.NewStreamed[wire.QueryResPart](64),
		once:    &sync.Once{},
	}
	t.requests <- pendingOutbound{req: req, callback: qs}
	res, err := qs.initial.Await(ctx)
	if err != nil {
		return wire.TransactionRes{}, nil, err
	}
	return res, qs.parts, nil
}

// ForceClose aborts the underlying stream and fails every outstanding
// callback with TransactionIsClosed. Idempotent.
func (t *TransactionTransmitter) ForceClose() {
	closeErr := errors.New(errors.TransactionIsClosed, "transaction force-closed")
	t.markClosed(closeErr)
	t.cancel()
	if t.log != nil {
		t.log.Info("transaction force-closed")
	}
}

// requestBuffer accumulates TransactionReqs until a dispatch tick or
// the 1MB size threshold, mirroring the batching window from
// original_source/.../transmitter/transaction.rs.
type requestBuffer struct {
	reqs []wire.TransactionReq
	size int
}

func (b *requestBuffer) empty() bool { return len(b.reqs) == 0 }

func (b *requestBuffer) push(req wire.TransactionReq) {
	b.reqs = append(b.reqs, req)
	b.size += estimateSize(req)
}

func (b *requestBuffer) take() wire.TransactionClientMsg {
	msg := wire.TransactionClientMsg{Reqs: b.reqs}
	b.reqs = nil
	b.size = 0
	return msg
}

// estimateSize is a rough per-request byte estimate used only to
// decide when to flush early; the JSON codec re-serializes at send
// time regardless, so precision here only affects batching cadence.
func estimateSize(req wire.TransactionReq) int {
	size := 64
	if req.Query != nil {
		size += len(req.Query.Query)
	}
	if req.Analyze != nil {
		size += len(req.Analyze.Query)
	}
	return size
}

func dispatchLoop(ctx context.Context, stream transactionStream, requests <-chan pendingOutbound, collector *responseCollector, log *logger.Logger) {
	buf := &requestBuffer{}
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	flush := func() {
		if buf.empty() {
			return
		}
		msg := buf.take()
		if err := stream.SendMsg(&msg); err != nil {
			if log != nil {
				log.Error("transaction send failed: %v", err)
			}
			collector.close(errors.Wrap(errors.TransactionIsClosedWithErrors, err, "transaction send failed"))
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		case p, ok := <-requests:
			if !ok {
				flush()
				return
			}
			if p.callback != nil {
				collector.register(p.req.RequestID, p.callback)
			}
			if buf.size+estimateSize(p.req) > maxBatchBytes {
				flush()
			}
			buf.push(p.req)
		}
	}
}

func listenLoop(stream transactionStream, collector *responseCollector, t *TransactionTransmitter) {
	closeWith := func(err error) {
		// After ForceClose the receive error only reflects the aborted
		// stream; outstanding callbacks get the recorded terminal error.
		t.mu.RLock()
		if !t.open {
			err = t.closeErr
		}
		t.mu.RUnlock()
		collector.close(err)
		t.markClosed(err)
	}
	for {
		var msg wire.TransactionServerMsg
		if err := stream.RecvMsg(&msg); err != nil {
			if stderrors.Is(err, io.EOF) {
				if t.log != nil {
					t.log.Debug("transaction stream closed cleanly")
				}
				closeWith(errors.New(errors.TransactionIsClosed, "transaction is closed"))
			} else {
				if t.log != nil {
					t.log.Warn("transaction stream closed with error: %v", err)
				}
				closeWith(errors.Wrap(errors.TransactionIsClosedWithErrors, err, "transaction stream closed"))
			}
			return
		}
		switch {
		case msg.Res != nil:
			collector.collectRes(*msg.Res)
		case msg.ResPart != nil:
			collector.collectResPart(*msg.ResPart)
		default:
			closeWith(errors.New(errors.MissingResponseField, "transaction server message carried neither res nor res_part"))
			return
		}
	}
}

// responseCollector demultiplexes inbound messages by RequestID and
// dispatches them to the registered callback (spec.md §4.G).
type responseCollector struct {
	requests chan<- pendingOutbound

	mu        sync.RWMutex
	callbacks map[wire.RequestID]responseSink
}

func (c *responseCollector) register(id wire.RequestID, s responseSink) {
	c.mu.Lock()
	c.callbacks[id] = s
	c.mu.Unlock()
}

func (c *responseCollector) collectRes(res wire.TransactionRes) {
	if res.Kind == wire.ResOpen {
		// Transaction::Open responses are consumed synchronously by
		// the RPC transmitter that opened the stream and never
		// registered here.
		return
	}
	// A query that resolves to a row or document stream keeps its
	// callback registered past this one-shot delivery: the subsequent
	// ResPart messages carrying that stream's data arrive under the
	// same RequestID and need the same callback to land on.
	keepRegistered := res.Kind == wire.ResQueryInitial &&
		res.QueryInitial != nil &&
		res.QueryInitial.QueryType != wire.QueryTypeOk

	c.mu.Lock()
	s, ok := c.callbacks[res.RequestID]
	if ok && !keepRegistered {
		delete(c.callbacks, res.RequestID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	if res.Kind == wire.ResErrorKind && res.Error != nil {
		s.finishErr(errors.New(errors.ServerError, "%s: %s", res.Error.Code, res.Error.Message))
		return
	}
	s.finishRes(res)
}

func (c *responseCollector) collectResPart(part wire.TransactionResPart) {
	switch part.State {
	case wire.StreamDone:
		c.mu.Lock()
		s, ok := c.callbacks[part.RequestID]
		if ok {
			delete(c.callbacks, part.RequestID)
		}
		c.mu.Unlock()
		if !ok {
			return
		}
		if part.Part != nil {
			s.sendPart(*part.Part)
		}
		s.finishStream()
		return
	case wire.StreamContinue:
		select {
		case c.requests <- pendingOutbound{req: wire.TransactionReq{RequestID: part.RequestID, Kind: wire.ReqStream}}:
		default:
			// The outbound queue is full (or no longer drained because
			// the dispatcher has exited): the continuation cannot be
			// queued, so the exchange is removed and failed here.
			c.mu.Lock()
			s, ok := c.callbacks[part.RequestID]
			if ok {
				delete(c.callbacks, part.RequestID)
			}
			c.mu.Unlock()
			if ok {
				s.finishErr(errors.New(errors.TransactionIsClosed, "transaction stream closed while awaiting continuation"))
			}
		}
	}

	if part.Part == nil {
		return
	}
	c.mu.RLock()
	s, ok := c.callbacks[part.RequestID]
	c.mu.RUnlock()
	if !ok {
		return
	}
	s.sendPart(*part.Part)
}

func (c *responseCollector) close(err error) {
	c.mu.Lock()
	callbacks := c.callbacks
	c.callbacks = make(map[wire.RequestID]responseSink)
	c.mu.Unlock()

	for _, s := range callbacks {
		s.finishErr(err)
	}
}
