package whatsapp

import (
	"context"
	"fmt"
	"sync/atomic"

	"whatsapp-relay-bot/types"

	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Lifecycle builds fully wired client generations and owns the published
// handle. It is the single writer of the active handle; everything else
// reads it through Current.
type Lifecycle struct {
	container *sqlstore.Container
	clientLog waLog.Logger
	log       zerolog.Logger

	active atomic.Pointer[activeHandle]

	// requestRestart is fire-and-forget into the coordinator. Bound after
	// construction because the coordinator needs the lifecycle first.
	requestRestart func(reason string)
	// onMessage hands an inbound event to the relay dispatcher.
	onMessage func(evt types.InboundEvent)
}

type activeHandle struct {
	handle Handle
}

func NewLifecycle(container *sqlstore.Container, clientLog waLog.Logger, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		container:      container,
		clientLog:      clientLog,
		log:            log.With().Str("component", "lifecycle").Logger(),
		requestRestart: func(string) {},
		onMessage:      func(types.InboundEvent) {},
	}
}

// BindRestart wires the restart sink. Must be called before Build.
func (l *Lifecycle) BindRestart(fn func(reason string)) {
	l.requestRestart = fn
}

// BindMessages wires the inbound message sink. Must be called before Build.
func (l *Lifecycle) BindMessages(fn func(evt types.InboundEvent)) {
	l.onMessage = fn
}

// Current returns the published handle, if any. Callers must re-read after
// any wait that could span a restart.
func (l *Lifecycle) Current() (Handle, bool) {
	if a := l.active.Load(); a != nil {
		return a.handle, true
	}
	return nil, false
}

// Publish swaps in a new handle as the active one.
func (l *Lifecycle) Publish(h Handle) {
	l.active.Store(&activeHandle{handle: h})
}

// Clear unpublishes the active handle for the duration of a restart window.
func (l *Lifecycle) Clear() {
	l.active.Store(nil)
}

// Build constructs a new client generation, wires its event reactions and
// starts its connection. The returned handle's Ready channel closes once the
// client has connected; the coordinator bounds that wait.
func (l *Lifecycle) Build(ctx context.Context) (Handle, error) {
	device, err := l.container.GetFirstDevice(ctx)
	if err != nil {
		l.log.Warn().Err(err).Msg("Failed to load stored device, starting a fresh session")
		device = l.container.NewDevice()
	}

	client := whatsmeow.NewClient(device, l.clientLog)
	// Recovery is owned by the coordinator; the library must not race it
	// with its own reconnect loop.
	client.EnableAutoReconnect = false

	handle := newMeowHandle(client)
	client.AddEventHandler(func(evt interface{}) {
		l.handleEvent(handle, evt)
	})

	if err := client.Connect(); err != nil {
		_ = handle.Destroy(ctx)
		l.Clear()
		return nil, fmt.Errorf("failed to start client connection: %w", err)
	}
	handle.launched.Store(true)

	return handle, nil
}

func (l *Lifecycle) handleEvent(h *meowHandle, evt interface{}) {
	switch v := evt.(type) {
	case *events.QR:
		l.renderQR(v.Codes[0])
	case *events.Connected:
		l.log.Info().Msg("WhatsApp connection established")
		h.markReady()
	case *events.StreamReplaced:
		// Another session took over; the keep-alive tick will see the
		// conflict state and restart.
		l.log.Warn().Msg("Stream replaced by another session")
		h.conflict.Store(true)
	case *events.LoggedOut:
		l.log.Warn().Stringer("reason", v.Reason).Msg("Logged out by server")
		h.authFailed.Store(true)
		l.requestRestart("auth-failure")
	case *events.Disconnected:
		if h.destroyed.Load() {
			return
		}
		l.log.Warn().Msg("Client disconnected")
		l.requestRestart("disconnected")
	case *events.Message:
		l.dispatchMessage(h, v)
	}
}

func (l *Lifecycle) renderQR(code string) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		l.log.Error().Err(err).Msg("Failed to encode pairing QR")
		return
	}
	fmt.Printf("\nScan this QR code with the WhatsApp mobile app:\n%s\n", qr.ToSmallString(false))
}

// dispatchMessage converts a raw message event into an InboundEvent and
// hands it to the relay. Classification of the payload kind happens here
// because this is the last place with access to the protobuf.
func (l *Lifecycle) dispatchMessage(h *meowHandle, msg *events.Message) {
	if msg.Info.IsFromMe || msg.Info.IsGroup {
		return
	}

	evt := types.InboundEvent{
		ID:        msg.Info.ID,
		SenderJID: msg.Info.Sender.ToNonAD().String(),
		ChatJID:   msg.Info.Chat.String(),
	}

	switch {
	case msg.Message.GetAudioMessage() != nil:
		audio := msg.Message.GetAudioMessage()
		evt.Kind = types.AudioMessage
		evt.Download = func(ctx context.Context) ([]byte, error) {
			return h.client.Download(ctx, audio)
		}
	case msg.Message.GetContactMessage() != nil:
		contact := msg.Message.GetContactMessage()
		evt.Kind = types.VCardMessage
		evt.Body = contact.GetDisplayName()
		evt.VCard = contact.GetVcard()
	case msg.Message.GetConversation() != "":
		evt.Kind = types.TextMessage
		evt.Body = msg.Message.GetConversation()
	case msg.Message.GetExtendedTextMessage().GetText() != "":
		evt.Kind = types.TextMessage
		evt.Body = msg.Message.GetExtendedTextMessage().GetText()
	default:
		evt.Kind = types.OtherMessage
	}

	l.onMessage(evt)
}
