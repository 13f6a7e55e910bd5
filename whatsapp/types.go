package whatsapp

import (
	"context"
	"errors"
)

// ConnectionState is the client state as seen by the health monitor.
type ConnectionState string

const (
	StateStarting     ConnectionState = "starting"
	StateReady        ConnectionState = "ready"
	StateConflict     ConnectionState = "conflict"
	StateUnlaunched   ConnectionState = "unlaunched"
	StateDisconnected ConnectionState = "disconnected"
	StateAuthFailed   ConnectionState = "auth-failed"
	StateUnknown      ConnectionState = "unknown"
)

// Handle is the live reference to one client generation. Exactly one handle
// is published at a time; a restart destroys the old handle before the new
// one becomes visible.
type Handle interface {
	// State reports the current connection state. The query itself may fail,
	// which the monitor classifies separately from a bad state.
	State(ctx context.Context) (ConnectionState, error)
	// SendText sends a text message to a canonical address.
	SendText(ctx context.Context, to string, text string) error
	// SendDocument sends raw bytes as a file attachment.
	SendDocument(ctx context.Context, to string, data []byte, filename string) error
	// Destroy tears the client down. Best effort; errors are informational.
	Destroy(ctx context.Context) error
	// Ready is closed once the client has connected and authenticated.
	Ready() <-chan struct{}
}

// ErrNotReady is returned by operations that need a published, ready handle.
var ErrNotReady = errors.New("whatsapp client is not ready")
