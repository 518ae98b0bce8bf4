package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"whatsapp-branch-bot/types"
	"whatsapp-branch-bot/utils"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "modernc.org/sqlite"
)

const eventBuffer = 64

var _ Transport = (*Client)(nil)

var storeRetry = &utils.RetryConfig{
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	MaxElapsedTime:  10 * time.Second,
}

// Client adapts one whatsmeow connection to the Transport interface. It is
// the only place whatsmeow events are looked at.
type Client struct {
	cli       *whatsmeow.Client
	container *sqlstore.Container
	log       zerolog.Logger

	events    chan Event
	done      chan struct{}
	handlerID uint32
	qrCancel  context.CancelFunc
	closeOnce sync.Once
}

// NewTransport is the TransportFactory backed by whatsmeow.
func NewTransport(ctx context.Context, branch types.Branch, dir string, log zerolog.Logger) (Transport, error) {
	return OpenClient(ctx, dir, log.With().Str("name", branch.DisplayName()).Logger())
}

// OpenClient loads the device stored in dir/session.db, creating an empty one
// when the branch has never been paired.
func OpenClient(ctx context.Context, dir string, log zerolog.Logger) (*Client, error) {
	store := &CredentialStore{Dir: dir}
	dsn := "file:" + store.DBPath() + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	dbLog := waLog.Zerolog(log.With().Str("module", "store").Logger().Level(zerolog.WarnLevel))
	// sqlite can report the file busy while a previous handle is still closing
	var container *sqlstore.Container
	err := utils.WithRetry(ctx, func() error {
		var err error
		container, err = sqlstore.New(ctx, "sqlite", dsn, dbLog)
		return err
	}, storeRetry)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	c := &Client{
		cli:       whatsmeow.NewClient(device, waLog.Zerolog(log.With().Str("module", "client").Logger())),
		container: container,
		log:       log,
		events:    make(chan Event, eventBuffer),
		done:      make(chan struct{}),
	}
	c.cli.EnableAutoReconnect = false
	c.handlerID = c.cli.AddEventHandler(c.handleEvent)
	return c, nil
}

func (c *Client) Events() <-chan Event {
	return c.events
}

// Connect dials WhatsApp. Unpaired devices get a QR channel first, whose
// codes arrive as QREvents.
func (c *Client) Connect(ctx context.Context) error {
	if c.cli.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(context.Background())
		qrChan, err := c.cli.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("get qr channel: %w", err)
		}
		c.qrCancel = cancel
		go c.watchQR(qrChan)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.cli.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (c *Client) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.emit(QREvent{Code: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			c.log.Info().Msg("pairing succeeded")
		case whatsmeow.QRChannelTimeout.Event:
			c.emit(CloseEvent{Reason: ReasonQRTimeout})
		case whatsmeow.QRChannelEventError:
			c.emit(CloseEvent{Reason: ReasonConnectFailure, Err: item.Error})
		default:
			c.emit(CloseEvent{Reason: ReasonConnectFailure, Err: fmt.Errorf("pairing: %s", item.Event)})
		}
	}
}

func (c *Client) handleEvent(evt interface{}) {
	if e, ok := translate(evt); ok {
		c.emit(e)
	}
}

// translate maps a whatsmeow event to an Event. Events with no meaning for
// the session lifecycle report false.
func translate(evt interface{}) (Event, bool) {
	switch v := evt.(type) {
	case *events.Connected:
		return OpenEvent{}, true
	case *events.PairSuccess, *events.PushNameSetting:
		return CredsUpdateEvent{}, true
	case *events.LoggedOut:
		return CloseEvent{Reason: ReasonLoggedOut, Err: fmt.Errorf("logged out: %v", v.Reason)}, true
	case *events.ConnectFailure:
		err := fmt.Errorf("connect failure %d: %s", int(v.Reason), v.Message)
		if v.Reason.IsLoggedOut() {
			return CloseEvent{Reason: ReasonLoggedOut, Err: err}, true
		}
		return CloseEvent{Reason: ReasonConnectFailure, Err: err}, true
	case *events.TemporaryBan:
		return CloseEvent{Reason: ReasonConnectFailure, Err: errors.New(v.String())}, true
	case *events.ClientOutdated:
		return CloseEvent{Reason: ReasonConnectFailure, Err: errors.New("client outdated")}, true
	case *events.StreamReplaced:
		return CloseEvent{Reason: ReasonStreamReplaced}, true
	case *events.Disconnected:
		return CloseEvent{Reason: ReasonConnectionLost}, true
	case *events.Message:
		if v.Info.Chat == waTypes.StatusBroadcastJID {
			return nil, false
		}
		return MessageEvent{Message: types.Message{
			ID:        string(v.Info.ID),
			Chat:      v.Info.Chat.String(),
			Sender:    v.Info.Sender.String(),
			PushName:  v.Info.PushName,
			Text:      utils.MessageText(v.Message),
			Timestamp: v.Info.Timestamp,
			FromMe:    v.Info.IsFromMe,
		}}, true
	}
	return nil, false
}

func (c *Client) emit(e Event) {
	select {
	case c.events <- e:
	case <-c.done:
	}
}

func (c *Client) SendText(ctx context.Context, to, text string) error {
	jid, err := waTypes.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse recipient %q: %w", to, err)
	}
	if _, err := c.cli.SendMessage(ctx, jid, utils.CreateTextMessage(text)); err != nil {
		return fmt.Errorf("send to %s: %w", jid, err)
	}
	return nil
}

// SaveCredentials writes the device keys and identity through to sqlite.
func (c *Client) SaveCredentials(ctx context.Context) error {
	if c.cli.Store.ID == nil {
		return nil
	}
	if err := c.cli.Store.Save(ctx); err != nil {
		return fmt.Errorf("save device: %w", err)
	}
	return nil
}

// Close removes the event handler, stops the QR watcher, disconnects and
// closes the credential database. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cli.RemoveEventHandler(c.handlerID)
		if c.qrCancel != nil {
			c.qrCancel()
		}
		close(c.done)
		c.cli.Disconnect()
		err = c.container.Close()
	})
	return err
}
