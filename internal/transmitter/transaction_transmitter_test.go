package transmitter

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"github.com/redbco/typedriver/errors"
	"github.com/redbco/typedriver/internal/logger"
	"github.com/redbco/typedriver/internal/runtime"
	"github.com/redbco/typedriver/internal/wire"
)

// fakeStream stands in for the bidirectional gRPC stream a real
// transaction multiplexes over, letting tests drive both directions
// directly without a network or codec.
type fakeStream struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	sent []wire.TransactionClientMsg

	toRecv chan wire.TransactionServerMsg
}

func newFakeStream() *fakeStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeStream{ctx: ctx, cancel: cancel, toRecv: make(chan wire.TransactionServerMsg, 16)}
}

func (f *fakeStream) Header() (metadata.MD, error) { return nil, nil }
func (f *fakeStream) Trailer() metadata.MD         { return nil }
func (f *fakeStream) CloseSend() error             { return nil }
func (f *fakeStream) Context() context.Context     { return f.ctx }

func (f *fakeStream) SendMsg(m any) error {
	msg, ok := m.(*wire.TransactionClientMsg)
	if !ok {
		return fmt.Errorf("fakeStream.SendMsg: unexpected type %T", m)
	}
	f.mu.Lock()
	f.sent = append(f.sent, *msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) RecvMsg(m any) error {
	select {
	case msg, ok := <-f.toRecv:
		if !ok {
			return io.EOF
		}
		out, ok := m.(*wire.TransactionServerMsg)
		if !ok {
			return fmt.Errorf("fakeStream.RecvMsg: unexpected type %T", m)
		}
		*out = msg
		return nil
	case <-f.ctx.Done():
		return f.ctx.Err()
	}
}

func (f *fakeStream) lastSent() wire.TransactionReq {
	f.mu.Lock()
	defer f.mu.Unlock()
	last := f.sent[len(f.sent)-1]
	return last.Reqs[len(last.Reqs)-1]
}

func newTestTransmitter(t *testing.T) (*TransactionTransmitter, *fakeStream, *runtime.Runtime) {
	t.Helper()
	rt := runtime.New(logger.New("test"))
	t.Cleanup(func() { _ = rt.Close() })
	stream := newFakeStream()
	tt := New(rt, stream, stream.cancel)
	return tt, stream, rt
}

func waitForSend(t *testing.T, stream *fakeStream) wire.TransactionReq {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		stream.mu.Lock()
		n := len(stream.sent)
		stream.mu.Unlock()
		if n > 0 {
			return stream.lastSent()
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a request to be dispatched")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSingleResolvesOnMatchingResponse(t *testing.T) {
	tt, stream, _ := newTestTransmitter(t)

	var resultCh = make(chan wire.TransactionRes, 1)
	var errCh = make(chan error, 1)
	go func() {
		req := wire.TransactionReq{Kind: wire.ReqCommit, Commit: &wire.CommitReq{}}
		res, err := tt.Single(context.Background(), req)
		resultCh <- res
		errCh <- err
	}()

	sent := waitForSend(t, stream)
	stream.toRecv <- wire.TransactionServerMsg{Res: &wire.TransactionRes{
		RequestID: sent.RequestID,
		Kind:      wire.ResCommit,
	}}

	require.NoError(t, <-errCh)
	res := <-resultCh
	assert.Equal(t, wire.ResCommit, res.Kind)
}

func TestSingleSurfacesServerError(t *testing.T) {
	tt, stream, _ := newTestTransmitter(t)

	resultCh := make(chan error, 1)
	go func() {
		req := wire.TransactionReq{Kind: wire.ReqCommit, Commit: &wire.CommitReq{}}
		_, err := tt.Single(context.Background(), req)
		resultCh <- err
	}()

	sent := waitForSend(t, stream)
	stream.toRecv <- wire.TransactionServerMsg{Res: &wire.TransactionRes{
		RequestID: sent.RequestID,
		Kind:      wire.ResErrorKind,
		Error:     &wire.ServerErrorInfo{Code: "TQL01", Message: "boom"},
	}}

	err := <-resultCh
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ServerError))
}

func TestQueryOkNeverExpectsFurtherParts(t *testing.T) {
	tt, stream, _ := newTestTransmitter(t)

	resCh := make(chan wire.TransactionRes, 1)
	errCh := make(chan error, 1)
	go func() {
		req := wire.TransactionReq{Kind: wire.ReqQuery, Query: &wire.QueryReq{Query: "insert $x isa person;"}}
		res, _, err := tt.Query(context.Background(), req)
		resCh <- res
		errCh <- err
	}()

	sent := waitForSend(t, stream)
	stream.toRecv <- wire.TransactionServerMsg{Res: &wire.TransactionRes{
		RequestID:    sent.RequestID,
		Kind:         wire.ResQueryInitial,
		QueryInitial: &wire.QueryInitialRes{QueryType: wire.QueryTypeOk},
	}}

	require.NoError(t, <-errCh)
	res := <-resCh
	assert.Equal(t, wire.QueryTypeOk, res.QueryInitial.QueryType)
}

func TestQueryRowStreamDeliversPartsUnderSameRequestID(t *testing.T) {
	tt, stream, _ := newTestTransmitter(t)

	type queryOutcome struct {
		res  wire.TransactionRes
		err  error
	}
	outcomeCh := make(chan queryOutcome, 1)
	go func() {
		req := wire.TransactionReq{Kind: wire.ReqQuery, Query: &wire.QueryReq{Query: "match $x isa person;"}}
		res, parts, err := tt.Query(context.Background(), req)
		outcomeCh <- queryOutcome{res: res, err: err}
		if err == nil {
			item := <-parts.Items()
			require.NotNil(t, item.Result)
			require.NoError(t, item.Result.Err)
			assert.Len(t, item.Result.Value.Rows, 1)
		}
	}()

	sent := waitForSend(t, stream)
	stream.toRecv <- wire.TransactionServerMsg{Res: &wire.TransactionRes{
		RequestID:    sent.RequestID,
		Kind:         wire.ResQueryInitial,
		QueryInitial: &wire.QueryInitialRes{QueryType: wire.QueryTypeRowStream, ColumnNames: []string{"x"}},
	}}
	stream.toRecv <- wire.TransactionServerMsg{ResPart: &wire.TransactionResPart{
		RequestID: sent.RequestID,
		State:     wire.StreamDone,
		Part:      &wire.QueryResPart{Rows: [][][]byte{{[]byte("concept-1")}}},
	}}

	outcome := <-outcomeCh
	require.NoError(t, outcome.err)
	assert.Equal(t, wire.QueryTypeRowStream, outcome.res.QueryInitial.QueryType)
}

func TestStreamContinueResubmitsWithoutASink(t *testing.T) {
	tt, stream, _ := newTestTransmitter(t)

	resCh := make(chan wire.TransactionRes, 1)
	go func() {
		req := wire.TransactionReq{Kind: wire.ReqQuery, Query: &wire.QueryReq{Query: "match $x isa person;"}}
		res, _, err := tt.Query(context.Background(), req)
		require.NoError(t, err)
		resCh <- res
	}()

	sent := waitForSend(t, stream)
	stream.toRecv <- wire.TransactionServerMsg{Res: &wire.TransactionRes{
		RequestID:    sent.RequestID,
		Kind:         wire.ResQueryInitial,
		QueryInitial: &wire.QueryInitialRes{QueryType: wire.QueryTypeRowStream},
	}}
	<-resCh

	stream.toRecv <- wire.TransactionServerMsg{ResPart: &wire.TransactionResPart{
		RequestID: sent.RequestID,
		State:     wire.StreamContinue,
	}}

	deadline := time.After(time.Second)
	for {
		stream.mu.Lock()
		for _, msg := range stream.sent {
			for _, r := range msg.Reqs {
				if r.Kind == wire.ReqStream && r.RequestID == sent.RequestID {
					stream.mu.Unlock()
					return
				}
			}
		}
		stream.mu.Unlock()
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the Stream continuation to be resubmitted")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestForceCloseFailsOutstandingExchanges(t *testing.T) {
	tt, _, _ := newTestTransmitter(t)

	errCh := make(chan error, 1)
	go func() {
		req := wire.TransactionReq{Kind: wire.ReqCommit, Commit: &wire.CommitReq{}}
		_, err := tt.Single(context.Background(), req)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	tt.ForceClose()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("ForceClose did not unblock the outstanding Single call")
	}
	assert.False(t, tt.IsOpen())
}

func TestOnCloseFiresExactlyOnceWithTerminalError(t *testing.T) {
	tt, _, _ := newTestTransmitter(t)

	var calls int
	var lastErr error
	var mu sync.Mutex
	done := make(chan struct{})
	tt.OnClose(func(err error) {
		mu.Lock()
		calls++
		lastErr = err
		mu.Unlock()
		close(done)
	})

	tt.ForceClose()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnClose callback never fired")
	}

	// A second registration after close fires immediately with the
	// same terminal error rather than hanging.
	secondCh := make(chan error, 1)
	tt.OnClose(func(err error) { secondCh <- err })
	select {
	case err := <-secondCh:
		mu.Lock()
		assert.Equal(t, lastErr, err)
		assert.Equal(t, 1, calls)
		mu.Unlock()
	case <-time.After(time.Second):
		t.Fatal("late OnClose registration never fired")
	}
}
