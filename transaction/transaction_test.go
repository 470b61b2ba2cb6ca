package transaction

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

	"github.com/redbco/typedriver/answer"
	"github.com/redbco/typedriver/internal/logger"
	"github.com/redbco/typedriver/internal/runtime"
	"github.com/redbco/typedriver/internal/transmitter"
	"github.com/redbco/typedriver/internal/wire"
)

// fakeStream is a minimal grpc.ClientStream double driving the
// transaction multiplexer directly, the same shape the
// internal/transmitter tests use but duplicated here since the real
// one is unexported.
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

func (f *fakeStream) waitForLastRequestID(t *testing.T) wire.RequestID {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		f.mu.Lock()
		if len(f.sent) > 0 {
			last := f.sent[len(f.sent)-1]
			f.mu.Unlock()
			return last.Reqs[len(last.Reqs)-1].RequestID
		}
		f.mu.Unlock()
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a request to be dispatched")
		case <-time.After(time.Millisecond):
		}
	}
}

func newTestTransaction(t *testing.T, transactionType Type) (*Transaction, *fakeStream) {
	t.Helper()
	rt := runtime.New(logger.New("test"))
	t.Cleanup(func() { _ = rt.Close() })
	stream := newFakeStream()
	tt := transmitter.New(rt, stream, stream.cancel)
	open := transmitter.OpenedTransaction{Transmitter: tt}
	return New(open, transactionType), stream
}

func TestQueryOkAnswer(t *testing.T) {
	tx, stream := newTestTransaction(t, Write)

	answerCh := make(chan answerOutcome, 1)
	go func() {
		a, err := tx.Query(context.Background(), "insert $x isa person;")
		answerCh <- answerOutcome{a, err}
	}()

	id := stream.waitForLastRequestID(t)
	stream.toRecv <- wire.TransactionServerMsg{Res: &wire.TransactionRes{
		RequestID:    id,
		Kind:         wire.ResQueryInitial,
		QueryInitial: &wire.QueryInitialRes{QueryType: wire.QueryTypeOk},
	}}

	outcome := <-answerCh
	require.NoError(t, outcome.err)
	assert.True(t, outcome.a.IsOk())
}

type answerOutcome struct {
	a   answer.QueryAnswer
	err error
}

func TestQueryRowStreamAnswerYieldsRows(t *testing.T) {
	tx, stream := newTestTransaction(t, Read)

	type result struct {
		columnNames []string
		rowCount    int
		err         error
	}
	resultCh := make(chan result, 1)
	go func() {
		a, err := tx.Query(context.Background(), "match $x isa person; select $x;")
		if err != nil {
			resultCh <- result{err: err}
			return
		}
		rows, ok := a.Rows()
		if !ok {
			resultCh <- result{err: fmt.Errorf("expected a row stream answer")}
			return
		}
		n := 0
		var names []string
		for r := range rows {
			require.NoError(t, r.Err)
			names = r.Row.ColumnNames()
			n++
		}
		resultCh <- result{columnNames: names, rowCount: n}
	}()

	id := stream.waitForLastRequestID(t)
	stream.toRecv <- wire.TransactionServerMsg{Res: &wire.TransactionRes{
		RequestID:    id,
		Kind:         wire.ResQueryInitial,
		QueryInitial: &wire.QueryInitialRes{QueryType: wire.QueryTypeRowStream, ColumnNames: []string{"x"}},
	}}
	stream.toRecv <- wire.TransactionServerMsg{ResPart: &wire.TransactionResPart{
		RequestID: id,
		State:     wire.StreamContinue,
		Part:      &wire.QueryResPart{Rows: [][][]byte{{[]byte("p1")}, {[]byte("p2")}}},
	}}
	stream.toRecv <- wire.TransactionServerMsg{ResPart: &wire.TransactionResPart{
		RequestID: id,
		State:     wire.StreamDone,
	}}

	res := <-resultCh
	require.NoError(t, res.err)
	assert.Equal(t, 2, res.rowCount)
	assert.Equal(t, []string{"x"}, res.columnNames)
}

func TestCommit(t *testing.T) {
	tx, stream := newTestTransaction(t, Write)

	errCh := make(chan error, 1)
	go func() { errCh <- tx.Commit(context.Background()) }()

	id := stream.waitForLastRequestID(t)
	stream.toRecv <- wire.TransactionServerMsg{Res: &wire.TransactionRes{RequestID: id, Kind: wire.ResCommit}}

	require.NoError(t, <-errCh)
}

func TestRollback(t *testing.T) {
	tx, stream := newTestTransaction(t, Write)

	errCh := make(chan error, 1)
	go func() { errCh <- tx.Rollback(context.Background()) }()

	id := stream.waitForLastRequestID(t)
	stream.toRecv <- wire.TransactionServerMsg{Res: &wire.TransactionRes{RequestID: id, Kind: wire.ResRollback}}

	require.NoError(t, <-errCh)
}

func TestAnalyze(t *testing.T) {
	tx, stream := newTestTransaction(t, Read)

	type result struct {
		parsed ParsedQuery
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		p, err := tx.Analyze(context.Background(), "match $x isa person;")
		resultCh <- result{p, err}
	}()

	id := stream.waitForLastRequestID(t)
	stream.toRecv <- wire.TransactionServerMsg{Res: &wire.TransactionRes{
		RequestID: id,
		Kind:      wire.ResAnalyze,
		Analyze:   &wire.AnalyzeRes{ParsedQuery: "Match[x:person]"},
	}}

	res := <-resultCh
	require.NoError(t, res.err)
	assert.Equal(t, "Match[x:person]", res.parsed.Text)
}

func TestOnCloseFiresOnForceClose(t *testing.T) {
	tx, _ := newTestTransaction(t, Read)

	done := make(chan error, 1)
	tx.OnClose(func(err error) { done <- err })
	tx.ForceClose()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("OnClose callback never fired")
	}
	assert.False(t, tx.IsOpen())
}
