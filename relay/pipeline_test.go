package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"whatsapp-relay-bot/types"
	"whatsapp-relay-bot/utils"
	"whatsapp-relay-bot/whatsapp"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type sentItem struct {
	kind string // "text" or "document"
	to   string
	text string
	data []byte
}

type fakeHandle struct {
	mu      sync.Mutex
	sent    []sentItem
	sendErr error
	ready   chan struct{}
}

func newFakeHandle() *fakeHandle {
	h := &fakeHandle{ready: make(chan struct{})}
	close(h.ready)
	return h
}

func (h *fakeHandle) State(ctx context.Context) (whatsapp.ConnectionState, error) {
	return whatsapp.StateReady, nil
}

func (h *fakeHandle) SendText(ctx context.Context, to, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	h.sent = append(h.sent, sentItem{kind: "text", to: to, text: text})
	return nil
}

func (h *fakeHandle) SendDocument(ctx context.Context, to string, data []byte, filename string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sentItem{kind: "document", to: to, data: data})
	return nil
}

func (h *fakeHandle) Destroy(ctx context.Context) error { return nil }
func (h *fakeHandle) Ready() <-chan struct{}            { return h.ready }

func (h *fakeHandle) messages() []sentItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]sentItem, len(h.sent))
	copy(out, h.sent)
	return out
}

func testPipeline(backendURL string, handle *fakeHandle) *Pipeline {
	p := NewPipeline(backendURL, func() (whatsapp.Handle, bool) { return handle, true }, zerolog.Nop())
	p.limiter = NewRateLimiter(rate.Inf, 1)
	p.mediaRetry = &utils.RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxElapsedTime:  5 * time.Millisecond,
	}
	return p
}

func textEvent(id, body string) types.InboundEvent {
	return types.InboundEvent{
		ID:        id,
		SenderJID: "5511999998888@s.whatsapp.net",
		ChatJID:   "5511999998888@s.whatsapp.net",
		Kind:      types.TextMessage,
		Body:      body,
	}
}

func TestTextMessageRoundTrip(t *testing.T) {
	var got types.InboundPayload
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{"message":"hi there"}}`))
	}))
	defer backend.Close()

	handle := newFakeHandle()
	p := testPipeline(backend.URL, handle)
	p.Process(context.Background(), textEvent("m1", "hello"))

	assert.Equal(t, "5511999998888", got.Sender)
	assert.Equal(t, "hello", got.RawMsg)
	assert.Equal(t, "text", got.MsgType)

	msgs := handle.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi there", msgs[0].text)
	assert.Equal(t, "5511999998888@s.whatsapp.net", msgs[0].to)
}

func TestReplyPrecedence(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "structured message wins", body: `{"data":{"message":"A"},"message":"B"}`, want: "A"},
		{name: "top-level message", body: `{"message":"B"}`, want: "B"},
		{name: "fallback", body: `{}`, want: fallbackReply},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer backend.Close()

			handle := newFakeHandle()
			p := testPipeline(backend.URL, handle)
			p.Process(context.Background(), textEvent("m-"+tc.name, "hello"))

			msgs := handle.messages()
			require.Len(t, msgs, 1)
			assert.Equal(t, tc.want, msgs[0].text)
		})
	}
}

func TestAudioMessagePayload(t *testing.T) {
	var got types.InboundPayload
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":"transcribed"}`))
	}))
	defer backend.Close()

	handle := newFakeHandle()
	p := testPipeline(backend.URL, handle)

	evt := textEvent("a1", "")
	evt.Kind = types.AudioMessage
	evt.Download = func(ctx context.Context) ([]byte, error) { return []byte("ABC"), nil }
	p.Process(context.Background(), evt)

	assert.Equal(t, "audio", got.MsgType)
	assert.Equal(t, "QUJD", got.RawMsg)
	require.Len(t, handle.messages(), 1)
}

func TestAudioDownloadFailureProceedsEmpty(t *testing.T) {
	var got types.InboundPayload
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer backend.Close()

	handle := newFakeHandle()
	p := testPipeline(backend.URL, handle)

	evt := textEvent("a2", "")
	evt.Kind = types.AudioMessage
	evt.Download = func(ctx context.Context) ([]byte, error) { return nil, errors.New("stream broke") }
	p.Process(context.Background(), evt)

	assert.Equal(t, "audio", got.MsgType)
	assert.Equal(t, "", got.RawMsg)
	msgs := handle.messages()
	require.Len(t, msgs, 1, "pipeline must still answer the sender")
	assert.Equal(t, "ok", msgs[0].text)
}

func TestVCardMessagePayload(t *testing.T) {
	var got types.InboundPayload
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":"saved"}`))
	}))
	defer backend.Close()

	handle := newFakeHandle()
	p := testPipeline(backend.URL, handle)

	evt := textEvent("v1", "Alice Example")
	evt.Kind = types.VCardMessage
	evt.VCard = "BEGIN:VCARD\nVERSION:3.0\nFN:Alice Example\nEND:VCARD"
	p.Process(context.Background(), evt)

	assert.Equal(t, "vcard", got.MsgType)
	assert.Contains(t, got.RawMsg, "Alice Example")
	assert.Contains(t, got.RawMsg, "BEGIN:VCARD")
}

func TestBackendErrorStatus(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Body must not be parsed on an error status.
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`this is not json`))
	}))
	defer backend.Close()

	handle := newFakeHandle()
	p := testPipeline(backend.URL, handle)
	p.Process(context.Background(), textEvent("e1", "hello"))

	msgs := handle.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, serverErrorReply, msgs[0].text)
}

func TestBackendUnreachable(t *testing.T) {
	handle := newFakeHandle()
	p := testPipeline("http://127.0.0.1:1/nothing-here", handle)
	p.Process(context.Background(), textEvent("e2", "hello"))

	msgs := handle.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, systemErrorReply, msgs[0].text)
}

func TestTranscriptAttachmentPrecedesReply(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"message":"here is your transcript","transcript_file":"data:text/plain;base64,QUJD"}}`))
	}))
	defer backend.Close()

	handle := newFakeHandle()
	p := testPipeline(backend.URL, handle)
	p.Process(context.Background(), textEvent("t1", "hello"))

	msgs := handle.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "document", msgs[0].kind)
	assert.Equal(t, []byte("ABC"), msgs[0].data)
	assert.Equal(t, "text", msgs[1].kind)
	assert.Equal(t, "here is your transcript", msgs[1].text)
}

func TestDuplicateMessageSkipped(t *testing.T) {
	var calls int
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer backend.Close()

	handle := newFakeHandle()
	p := testPipeline(backend.URL, handle)
	evt := textEvent("dup", "hello")
	p.Process(context.Background(), evt)
	p.Process(context.Background(), evt)

	assert.Equal(t, 1, calls)
	assert.Len(t, handle.messages(), 1)
}

func TestFailedReplyDoesNotPanic(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer backend.Close()

	handle := newFakeHandle()
	handle.sendErr = errors.New("send blew up")
	p := testPipeline(backend.URL, handle)

	assert.NotPanics(t, func() {
		p.Process(context.Background(), textEvent("s1", "hello"))
	})
}
