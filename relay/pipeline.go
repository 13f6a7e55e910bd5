package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"whatsapp-relay-bot/types"
	"whatsapp-relay-bot/utils"
	"whatsapp-relay-bot/whatsapp"

	"github.com/rs/zerolog"
)

// Sentinel replies. Users never see raw internal error text.
const (
	serverErrorReply = "Server error, please try again later."
	systemErrorReply = "System error, please try again."
	fallbackReply    = "Sorry, I couldn't process that. Please try again."
	throttleReply    = "You are sending messages too fast. Please wait a moment."
)

const transcriptFilename = "transcript.txt"

// Pipeline turns one inbound event into a backend call and a reply. All
// failures are terminal for the single message only; the sender always gets
// an answer and nothing propagates to the process.
type Pipeline struct {
	backendURL string
	httpc      *http.Client
	current    func() (whatsapp.Handle, bool)
	limiter    *RateLimiter
	seen       *Dedupe
	mediaRetry *utils.RetryConfig
	log        zerolog.Logger
}

func NewPipeline(backendURL string, current func() (whatsapp.Handle, bool), log zerolog.Logger) *Pipeline {
	return &Pipeline{
		backendURL: backendURL,
		httpc:      &http.Client{Timeout: 2 * time.Minute},
		current:    current,
		limiter:    NewRateLimiter(0.5, 1), // one message every two seconds per sender
		seen:       NewDedupe(1000, 10*time.Minute),
		mediaRetry: &utils.RetryConfig{
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     time.Second,
			MaxElapsedTime:  2 * time.Second,
		},
		log: log.With().Str("component", "relay").Logger(),
	}
}

func (p *Pipeline) Process(ctx context.Context, evt types.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("id", evt.ID).Msg("Pipeline panicked")
			utils.MessagesFailed.Inc()
			p.safeSend(ctx, evt.ChatJID, systemErrorReply)
		}
	}()

	if evt.ID != "" && !p.seen.FirstSeen(evt.ID) {
		p.log.Debug().Str("id", evt.ID).Msg("Duplicate message, skipping")
		return
	}
	if !p.limiter.Allow(evt.SenderJID) {
		p.safeSend(ctx, evt.ChatJID, throttleReply)
		return
	}

	payload := p.buildPayload(ctx, evt)

	reply, status, err := p.forward(ctx, payload)
	if err != nil {
		p.log.Error().Err(err).Str("id", evt.ID).Msg("Backend call failed")
		utils.MessagesFailed.Inc()
		p.safeSend(ctx, evt.ChatJID, systemErrorReply)
		return
	}
	if status < 200 || status > 299 {
		p.log.Warn().Int("status", status).Str("id", evt.ID).Msg("Backend returned error status")
		utils.MessagesFailed.Inc()
		p.safeSend(ctx, evt.ChatJID, serverErrorReply)
		return
	}

	if file := p.transcriptBytes(reply); file != nil {
		// Re-read the handle: the backend call may have spanned a restart.
		if handle, ok := p.current(); ok {
			if err := handle.SendDocument(ctx, evt.ChatJID, file, transcriptFilename); err != nil {
				p.log.Warn().Err(err).Msg("Failed to send transcript attachment")
			}
		}
	}

	p.safeSend(ctx, evt.ChatJID, reply.ReplyText(fallbackReply))
	utils.MessagesProcessed.Inc()
}

// buildPayload normalizes the event into the canonical backend form. Audio
// download failures degrade to empty content instead of aborting.
func (p *Pipeline) buildPayload(ctx context.Context, evt types.InboundEvent) types.InboundPayload {
	payload := types.InboundPayload{
		Sender:  whatsapp.SenderID(evt.SenderJID),
		MsgType: string(evt.Kind),
	}

	switch evt.Kind {
	case types.AudioMessage:
		var data []byte
		err := utils.WithRetry(func() error {
			var derr error
			data, derr = evt.Download(ctx)
			return derr
		}, p.mediaRetry)
		if err != nil {
			p.log.Warn().Err(err).Str("id", evt.ID).Msg("Audio download failed, forwarding empty content")
			break
		}
		payload.RawMsg = base64.StdEncoding.EncodeToString(data)
	case types.VCardMessage:
		payload.RawMsg = contactText(evt)
	default:
		payload.RawMsg = evt.Body
	}

	return payload
}

func contactText(evt types.InboundEvent) string {
	if evt.Body != "" && evt.VCard != "" {
		return evt.Body + "\n" + evt.VCard
	}
	if evt.VCard != "" {
		return evt.VCard
	}
	return evt.Body
}

// forward POSTs the payload. A non-2xx status is not an error here; the
// caller answers the sender differently for the two cases and the body of
// an error response is never parsed.
func (p *Pipeline) forward(ctx context.Context, payload types.InboundPayload) (*types.BackendReply, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.backendURL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, nil
	}

	var reply types.BackendReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode backend reply: %w", err)
	}
	return &reply, resp.StatusCode, nil
}

// transcriptBytes decodes the optional transcript attachment, tolerating a
// data-URL prefix around the base64 body.
func (p *Pipeline) transcriptBytes(reply *types.BackendReply) []byte {
	if reply.Data == nil || reply.Data.TranscriptFile == "" {
		return nil
	}
	raw := reply.Data.TranscriptFile
	if i := strings.Index(raw, "base64,"); i >= 0 {
		raw = raw[i+len("base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		p.log.Warn().Err(err).Msg("Transcript attachment is not valid base64, skipping")
		return nil
	}
	return data
}

// safeSend delivers a reply best effort. A failed reply must never raise
// further, so errors stop here.
func (p *Pipeline) safeSend(ctx context.Context, to, text string) {
	handle, ok := p.current()
	if !ok {
		p.log.Warn().Str("to", to).Msg("No active client, dropping reply")
		return
	}
	if err := handle.SendText(ctx, to, text); err != nil {
		p.log.Warn().Err(err).Str("to", to).Msg("Failed to send reply")
	}
}
