package whatsapp

import "whatsapp-branch-bot/types"

// CloseReason says why a transport connection ended.
type CloseReason string

const (
	ReasonLoggedOut      CloseReason = "logged-out"
	ReasonConnectionLost CloseReason = "connection-lost"
	ReasonStreamReplaced CloseReason = "stream-replaced"
	ReasonConnectFailure CloseReason = "connect-failure"
	ReasonQRTimeout      CloseReason = "qr-timeout"
)

// Event is one of QREvent, OpenEvent, CloseEvent, CredsUpdateEvent or
// MessageEvent. Transports translate their native events into these once.
type Event interface {
	isEvent()
}

// QREvent carries a pairing code to be rendered as a QR.
type QREvent struct {
	Code string
}

// OpenEvent means the session is authenticated and live.
type OpenEvent struct{}

// CloseEvent ends the current transport handle.
type CloseEvent struct {
	Reason CloseReason
	Err    error
}

// CredsUpdateEvent asks for the credential state to be persisted.
type CredsUpdateEvent struct{}

// MessageEvent is an inbound chat message.
type MessageEvent struct {
	Message types.Message
}

func (QREvent) isEvent() {}
func (OpenEvent) isEvent() {}
func (CloseEvent) isEvent() {}
func (CredsUpdateEvent) isEvent() {}
func (MessageEvent) isEvent() {}
