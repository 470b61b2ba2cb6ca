package transmitter

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/typedriver/internal/logger"
	"github.com/redbco/typedriver/internal/runtime"
	"github.com/redbco/typedriver/internal/wire"
)

// fakeImportStream is a minimal importStream double: SendMsg records
// every batch, CloseSend flips a flag, and RecvMsg blocks until the
// test delivers a completion (or closes completion, reported as io.EOF).
type fakeImportStream struct {
	mu        sync.Mutex
	sent      []wire.ImportItems
	initial   *wire.ImportInitial
	closeSent bool

	completion chan wire.ImportCompletion
}

func newFakeImportStream() *fakeImportStream {
	return &fakeImportStream{completion: make(chan wire.ImportCompletion, 1)}
}

func (f *fakeImportStream) SendMsg(m any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := m.(type) {
	case *wire.ImportInitial:
		initial := *v
		f.initial = &initial
	case *wire.ImportItems:
		f.sent = append(f.sent, *v)
	}
	return nil
}

func (f *fakeImportStream) CloseSend() error {
	f.mu.Lock()
	f.closeSent = true
	f.mu.Unlock()
	return nil
}

func (f *fakeImportStream) RecvMsg(m any) error {
	c, ok := <-f.completion
	if !ok {
		return io.EOF
	}
	out := m.(*wire.ImportCompletion)
	*out = c
	return nil
}

func (f *fakeImportStream) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeImportStream) didCloseSend() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeSent
}

func TestImportDoneClosesSendAndCompletes(t *testing.T) {
	rt := runtime.New(logger.New("test"))
	t.Cleanup(func() { _ = rt.Close() })
	stream := newFakeImportStream()

	imp, err := StartImport(rt, stream, wire.ImportInitial{Name: "people"})
	require.NoError(t, err)

	require.NoError(t, imp.Single(wire.ImportItems{Items: [][]byte{[]byte("a")}}))
	imp.Done()

	stream.completion <- wire.ImportCompletion{}

	require.NoError(t, imp.WaitUntilDone())
	assert.Eventually(t, stream.didCloseSend, time.Second, time.Millisecond,
		"Done must drain the buffered batch and CloseSend the stream")
	assert.Equal(t, 1, stream.batchCount())
}

func TestImportSingleBlocksOnFullBufferInsteadOfErroring(t *testing.T) {
	rt := runtime.New(logger.New("test"))
	t.Cleanup(func() { _ = rt.Close() })
	stream := newFakeImportStream()

	imp, err := StartImport(rt, stream, wire.ImportInitial{Name: "people"})
	require.NoError(t, err)

	for i := 0; i < 64; i++ {
		require.NoError(t, imp.Single(wire.ImportItems{Items: [][]byte{[]byte("x")}}))
	}

	done := make(chan error, 1)
	go func() { done <- imp.Single(wire.ImportItems{Items: [][]byte{[]byte("y")}}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Single blocked on a merely full buffer instead of draining once the dispatch loop caught up")
	}

	imp.Done()
	stream.completion <- wire.ImportCompletion{}
	require.NoError(t, imp.WaitUntilDone())
}

func TestImportSingleUnblocksOnShutdown(t *testing.T) {
	rt := runtime.New(logger.New("test"))
	stream := newFakeImportStream()

	imp, err := StartImport(rt, stream, wire.ImportInitial{Name: "people"})
	require.NoError(t, err)

	// Release the listener's pending RecvMsg so Close can join it.
	close(stream.completion)
	require.NoError(t, rt.Close())

	deadline := time.After(time.Second)
	for {
		err := imp.Single(wire.ImportItems{Items: [][]byte{[]byte("z")}})
		if err != nil {
			return
		}
		select {
		case <-deadline:
			t.Fatal("Single never reported the import stream as closed after shutdown")
		default:
		}
	}
}

var _ = context.Background
