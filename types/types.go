package types

import "context"

// MessageType classifies an inbound message for the backend.
type MessageType string

const (
	// TextMessage is a plain text message
	TextMessage MessageType = "text"
	// AudioMessage is a voice note or audio message
	AudioMessage MessageType = "audio"
	// VCardMessage is a shared contact card
	VCardMessage MessageType = "vcard"
	// OtherMessage is anything the relay does not understand
	OtherMessage MessageType = "other"
)

// InboundEvent is the raw material handed from the client event handler to
// the relay dispatcher. Media bytes are not downloaded at this point; the
// pipeline decides whether the Download closure needs to run.
type InboundEvent struct {
	ID        string
	SenderJID string
	ChatJID   string
	Kind      MessageType
	Body      string
	VCard     string
	Download  func(ctx context.Context) ([]byte, error)
}

// InboundPayload is the canonical form forwarded to the backend.
type InboundPayload struct {
	Sender  string `json:"sender"`
	RawMsg  string `json:"raw_msg"`
	MsgType string `json:"msg_type"`
}

// BackendReply is the backend's response envelope.
type BackendReply struct {
	Data *struct {
		Message        string `json:"message"`
		TranscriptFile string `json:"transcript_file"`
	} `json:"data"`
	Message string `json:"message"`
}

// ReplyText resolves the text to send back to the user: the structured
// message wins, then the top-level message, then the given fallback.
func (r *BackendReply) ReplyText(fallback string) string {
	if r.Data != nil && r.Data.Message != "" {
		return r.Data.Message
	}
	if r.Message != "" {
		return r.Message
	}
	return fallback
}
