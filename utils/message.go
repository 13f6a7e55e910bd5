package utils

import (
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"google.golang.org/protobuf/proto"
)

// CreateTextMessage creates a WhatsApp text message
func CreateTextMessage(text string) *waProto.Message {
	return &waProto.Message{
		Conversation: &text,
	}
}

// CreateDocumentMessage creates a WhatsApp document message from an upload
func CreateDocumentMessage(filename string, uploaded whatsmeow.UploadResponse, data []byte) *waProto.Message {
	return &waProto.Message{
		DocumentMessage: &waProto.DocumentMessage{
			Title:         proto.String(filename),
			FileName:      proto.String(filename),
			Mimetype:      proto.String("text/plain"),
			URL:           &uploaded.URL,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uint64(len(data))),
		},
	}
}
