package types

import "time"

// Branch is one independently operated WhatsApp line.
type Branch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DisplayName returns the branch name, falling back to its id.
func (b Branch) DisplayName() string {
	if b.Name != "" {
		return b.Name
	}
	return b.ID
}

// Status is the lifecycle state of a branch session
type Status string

const (
	// StatusInitializing is set while credentials load and the transport opens
	StatusInitializing Status = "initializing"
	// StatusAwaitingScan means a QR was issued or the session dropped
	StatusAwaitingScan Status = "awaiting-scan"
	// StatusConnected is an authenticated, live session
	StatusConnected Status = "connected"
	// StatusResetting is set while persisted credentials are being wiped
	StatusResetting Status = "resetting"
)

// SessionSnapshot is a read-only copy of a branch session record.
type SessionSnapshot struct {
	Branch     string    `json:"branch"`
	Name       string    `json:"name"`
	Status     Status    `json:"status"`
	QR         string    `json:"qr,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	Reconnects int       `json:"reconnects"`
}

// Message is an inbound WhatsApp message after translation from the transport.
type Message struct {
	ID        string
	Chat      string
	Sender    string
	PushName  string
	Text      string
	Timestamp time.Time
	FromMe    bool
}

// FeedMessage is pushed to dashboards as a "mensaje" event.
type FeedMessage struct {
	Branch string `json:"branch"`
	Text   string `json:"text"`
	Sender string `json:"sender,omitempty"`
	Time   string `json:"time,omitempty"`
}
