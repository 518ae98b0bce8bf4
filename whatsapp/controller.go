package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"whatsapp-branch-bot/cache"
	"whatsapp-branch-bot/inquiry"
	"whatsapp-branch-bot/queue"
	"whatsapp-branch-bot/types"
	"whatsapp-branch-bot/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrCredentialWipe stops a controller whose credentials were revoked but
// could not be deleted. The branch stays in awaiting-scan until an operator
// clears the directory and restarts the process.
var ErrCredentialWipe = errors.New("credential wipe failed")

// Options are shared by every controller of a Manager.
type Options struct {
	AuthDir string
	Config  ControllerConfig
	Hub     Broadcaster
	Replies Dispatcher
	Factory TransportFactory
	Logger  zerolog.Logger
}

// Controller drives the session lifecycle of one branch. All transport events
// are consumed on the Run goroutine, one at a time.
type Controller struct {
	branch   types.Branch
	cfg      ControllerConfig
	store    *CredentialStore
	registry *Registry
	hub      Broadcaster
	replies  Dispatcher
	factory  TransportFactory
	limiter  *RateLimiter
	seen     *cache.Cache
	backoff  *backoff.ExponentialBackOff
	log      zerolog.Logger
	qrOut    io.Writer

	transport Transport
}

func NewController(branch types.Branch, registry *Registry, opts Options) *Controller {
	cfg := opts.Config
	if cfg.Retry == nil {
		cfg.Retry = utils.DefaultRetryConfig()
	}
	factory := opts.Factory
	if factory == nil {
		factory = NewTransport
	}
	return &Controller{
		branch:   branch,
		cfg:      cfg,
		store:    NewCredentialStore(opts.AuthDir, branch.ID),
		registry: registry,
		hub:      opts.Hub,
		replies:  opts.Replies,
		factory:  factory,
		limiter:  NewRateLimiter(rate.Limit(cfg.ReplyRate), cfg.ReplyBurst),
		seen:     cache.New("inbound_"+branch.ID, cfg.DedupeSize, cfg.DedupeTTL),
		backoff:  utils.NewBackOff(cfg.Retry),
		log:      opts.Logger.With().Str("branch", branch.ID).Logger(),
		qrOut:    os.Stdout,
	}
}

// Branch is the branch this controller serves.
func (c *Controller) Branch() types.Branch {
	return c.branch
}

// Start enters initializing and loads the branch credentials. It returns once
// the transport handle exists; connecting happens in Run.
func (c *Controller) Start(ctx context.Context) error {
	return c.load(ctx)
}

// Run connects the loaded transport and serves its events until ctx is done,
// reopening the session after every close. It returns nil on shutdown and
// ErrCredentialWipe when a revoked session cannot be reset.
func (c *Controller) Run(ctx context.Context) error {
	c.limiter.StartCleanup(ctx)
	defer c.seen.Stop()
	defer c.closeTransport()

	for {
		if c.transport == nil {
			if err := c.load(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if !c.retry(ctx, CloseEvent{Reason: ReasonConnectFailure, Err: err}) {
					return nil
				}
				continue
			}
		}

		if err := c.transport.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !c.retry(ctx, CloseEvent{Reason: ReasonConnectFailure, Err: err}) {
				return nil
			}
			continue
		}

		closed, ok := c.serve(ctx)
		if !ok {
			return nil
		}
		if closed.Reason == ReasonLoggedOut {
			if err := c.reset(closed); err != nil {
				return err
			}
			continue
		}
		if !c.retry(ctx, closed) {
			return nil
		}
	}
}

// load replaces the session record with a fresh one and opens a transport on
// the branch credential directory.
func (c *Controller) load(ctx context.Context) error {
	c.closeTransport()
	c.registry.Reset(c.branch)
	c.publishStatus(types.StatusInitializing)

	paired := c.store.Exists()
	if err := c.store.Ensure(); err != nil {
		return err
	}
	t, err := c.factory(ctx, c.branch, c.store.Dir, c.log)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	c.transport = t
	c.log.Debug().Str("dir", c.store.Dir).Bool("existing", paired).Msg("credentials loaded")
	return nil
}

// serve handles events until the transport closes. It reports false when ctx
// ended first.
func (c *Controller) serve(ctx context.Context) (CloseEvent, bool) {
	events := c.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return CloseEvent{}, false
		case evt := <-events:
			switch e := evt.(type) {
			case QREvent:
				c.handleQR(e.Code)
			case OpenEvent:
				c.handleOpen()
			case CredsUpdateEvent:
				if err := c.transport.SaveCredentials(ctx); err != nil {
					c.log.Error().Err(err).Msg("failed to persist credentials")
				}
			case MessageEvent:
				c.handleMessage(e.Message)
			case CloseEvent:
				return e, true
			}
		}
	}
}

func (c *Controller) handleQR(code string) {
	var changed bool
	c.registry.Update(c.branch.ID, func(r *Record) {
		r.QR = code
		if r.Status != types.StatusAwaitingScan {
			r.Status = types.StatusAwaitingScan
			changed = true
		}
	})
	if changed {
		c.publishStatus(types.StatusAwaitingScan)
	}
	c.hub.QR(c.branch.ID, code)
	c.log.Info().Msg("QR issued, waiting for scan")

	if c.cfg.PrintQR {
		if err := printQR(c.qrOut, c.branch.DisplayName(), code); err != nil {
			c.log.Warn().Err(err).Msg("failed to print QR")
		}
	}
}

func (c *Controller) handleOpen() {
	c.setStatus(types.StatusConnected)
	c.backoff.Reset()
	c.log.Info().Str("name", c.branch.DisplayName()).Msg("session connected")
}

// retry closes the handle after a transient failure and waits the next
// backoff delay. Credentials are left alone. It reports false if ctx ended
// while waiting.
func (c *Controller) retry(ctx context.Context, closed CloseEvent) bool {
	c.closeTransport()
	c.countReconnect(closed.Reason)
	c.setStatus(types.StatusAwaitingScan)

	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = c.cfg.Retry.MaxInterval
	}
	c.log.Warn().Err(closed.Err).
		Str("reason", string(closed.Reason)).
		Dur("retry_in", delay).
		Msg("session closed, reconnecting")
	return utils.Sleep(ctx, delay)
}

// reset handles a logout: the credential directory is deleted before the
// next cycle so that pairing starts over with a new QR.
func (c *Controller) reset(closed CloseEvent) error {
	c.closeTransport()
	c.countReconnect(closed.Reason)
	c.setStatus(types.StatusAwaitingScan)
	c.log.Warn().Err(closed.Err).Msg("session logged out, wiping credentials")

	c.setStatus(types.StatusResetting)
	if err := c.store.Wipe(); err != nil {
		c.log.Error().Err(err).Msg("failed to wipe credentials, branch needs manual reset")
		c.setStatus(types.StatusAwaitingScan)
		return fmt.Errorf("%w: %w", ErrCredentialWipe, err)
	}
	c.seen.Clear()
	c.backoff.Reset()
	return nil
}

func (c *Controller) handleMessage(msg types.Message) {
	if msg.FromMe {
		return
	}
	if msg.ID != "" && c.seen.Seen(msg.Chat+"/"+msg.ID) {
		return
	}
	if msg.Text == "" {
		return
	}
	utils.RecordInbound(c.branch.ID)

	if c.cfg.MessageFeed {
		sender := msg.PushName
		if sender == "" {
			sender = msg.Sender
		}
		feed := types.FeedMessage{Branch: c.branch.ID, Text: msg.Text, Sender: sender}
		if !msg.Timestamp.IsZero() {
			feed.Time = msg.Timestamp.Format(feedTimeLayout)
		}
		c.hub.Message(feed)
	}

	if !inquiry.IsInquiry(msg.Text) {
		return
	}
	utils.RecordInquiry(c.branch.ID)

	if !c.limiter.Allow(msg.Chat) {
		utils.RecordReply(c.branch.ID, "limited")
		c.log.Debug().Str("chat", msg.Chat).Msg("redirect suppressed by rate limit")
		return
	}

	t := c.transport
	to := msg.Chat
	text := c.cfg.redirectText(c.branch.DisplayName())
	log := c.log.With().Str("chat", to).Str("msg_id", msg.ID).Logger()
	job := queue.Job{
		Branch: c.branch.ID,
		Run: func(ctx context.Context) error {
			return t.SendText(ctx, to, text)
		},
		Done: func(err error) {
			if err != nil {
				utils.RecordReply(c.branch.ID, "failed")
				log.Error().Err(err).Msg("failed to send redirect")
				return
			}
			utils.RecordReply(c.branch.ID, "sent")
			log.Info().Msg("redirect sent")
		},
	}
	if err := c.replies.Enqueue(job); err != nil {
		utils.RecordReply(c.branch.ID, "dropped")
		log.Warn().Err(err).Msg("redirect dropped")
	}
}

// setStatus moves to status and drops any pending QR, which only handleQR sets.
func (c *Controller) setStatus(status types.Status) {
	c.registry.Update(c.branch.ID, func(r *Record) {
		r.Status = status
		r.QR = ""
	})
	c.publishStatus(status)
}

func (c *Controller) publishStatus(status types.Status) {
	utils.SetSessionStatus(c.branch.ID, status)
	c.hub.Status(c.branch.ID, status)
}

func (c *Controller) countReconnect(reason CloseReason) {
	c.registry.Update(c.branch.ID, func(r *Record) { r.Reconnects++ })
	utils.RecordReconnect(c.branch.ID, string(reason))
}

// closeTransport drops the current handle. After Close returns the handle
// delivers no further events.
func (c *Controller) closeTransport() {
	if c.transport == nil {
		return
	}
	if err := c.transport.Close(); err != nil {
		c.log.Warn().Err(err).Msg("error closing transport")
	}
	c.transport = nil
}
