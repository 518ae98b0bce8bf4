package whatsapp

import (
	"context"

	"whatsapp-branch-bot/queue"
	"whatsapp-branch-bot/types"

	"github.com/rs/zerolog"
)

// Transport is one live connection handle for a branch. A controller owns
// exactly one at a time and closes it before opening the next.
type Transport interface {
	// Events delivers translated transport events. The channel is never closed;
	// stop reading after Close.
	Events() <-chan Event
	Connect(ctx context.Context) error
	// SendText sends a plain text message to the chat identified by to.
	SendText(ctx context.Context, to, text string) error
	// SaveCredentials persists the current credential state.
	SaveCredentials(ctx context.Context) error
	// Close detaches every listener from the handle and disconnects it.
	Close() error
}

// TransportFactory loads the credential state stored in dir and returns a
// transport for branch that is ready to connect.
type TransportFactory func(ctx context.Context, branch types.Branch, dir string, log zerolog.Logger) (Transport, error)

// Broadcaster fans session state out to dashboards.
type Broadcaster interface {
	Status(branch string, status types.Status)
	QR(branch, code string)
	Message(msg types.FeedMessage)
}

// Dispatcher runs outbound sends off the controller loop.
type Dispatcher interface {
	Enqueue(job queue.Job) error
}
