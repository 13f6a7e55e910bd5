package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDispatcherProcessesInOrder(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer backend.Close()

	handle := newFakeHandle()
	d := NewDispatcher(testPipeline(backend.URL, handle), 16, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Enqueue(textEvent("d1", "one"))
	d.Enqueue(textEvent("d2", "two"))
	d.Enqueue(textEvent("d3", "three"))

	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, time.Millisecond)

	msgs := handle.messages()
	require.Len(t, msgs, 3)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer backend.Close()

	handle := newFakeHandle()
	d := NewDispatcher(testPipeline(backend.URL, handle), 1, zerolog.Nop())

	// No consumer running: second enqueue must drop, not block.
	done := make(chan struct{})
	go func() {
		d.Enqueue(textEvent("f1", "one"))
		d.Enqueue(textEvent("f2", "two"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
}
