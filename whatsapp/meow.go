package whatsapp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"whatsapp-relay-bot/utils"

	"go.mau.fi/whatsmeow"
	wtypes "go.mau.fi/whatsmeow/types"
)

// meowHandle wraps one whatsmeow client generation behind the Handle
// interface. The lifecycle manager flips the state flags from event
// callbacks; the monitor only ever reads them through State.
type meowHandle struct {
	client *whatsmeow.Client

	ready     chan struct{}
	readyOnce sync.Once

	launched   atomic.Bool
	conflict   atomic.Bool
	authFailed atomic.Bool
	destroyed  atomic.Bool
}

func newMeowHandle(client *whatsmeow.Client) *meowHandle {
	return &meowHandle{
		client: client,
		ready:  make(chan struct{}),
	}
}

func (h *meowHandle) Ready() <-chan struct{} {
	return h.ready
}

func (h *meowHandle) markReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

func (h *meowHandle) State(ctx context.Context) (ConnectionState, error) {
	if err := ctx.Err(); err != nil {
		return StateUnknown, err
	}
	switch {
	case h.destroyed.Load():
		return StateUnknown, fmt.Errorf("state query on destroyed client")
	case h.conflict.Load():
		return StateConflict, nil
	case h.authFailed.Load():
		return StateAuthFailed, nil
	case !h.launched.Load():
		return StateUnlaunched, nil
	case !h.client.IsConnected():
		return StateDisconnected, nil
	case h.client.IsLoggedIn():
		return StateReady, nil
	default:
		return StateStarting, nil
	}
}

func (h *meowHandle) SendText(ctx context.Context, to string, text string) error {
	jid, err := wtypes.ParseJID(to)
	if err != nil {
		return fmt.Errorf("invalid destination %q: %w", to, err)
	}
	_, err = h.client.SendMessage(ctx, jid, utils.CreateTextMessage(text))
	return err
}

func (h *meowHandle) SendDocument(ctx context.Context, to string, data []byte, filename string) error {
	jid, err := wtypes.ParseJID(to)
	if err != nil {
		return fmt.Errorf("invalid destination %q: %w", to, err)
	}
	uploaded, err := h.client.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return fmt.Errorf("failed to upload document: %w", err)
	}
	_, err = h.client.SendMessage(ctx, jid, utils.CreateDocumentMessage(filename, uploaded, data))
	return err
}

func (h *meowHandle) Destroy(ctx context.Context) error {
	h.destroyed.Store(true)
	h.client.RemoveEventHandlers()
	h.client.Disconnect()
	return nil
}
