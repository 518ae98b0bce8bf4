package whatsapp

import (
	"context"
	"errors"
	"sync"

	"whatsapp-branch-bot/types"

	"github.com/rs/zerolog"
)

// Manager owns the session registry and one controller per branch.
type Manager struct {
	registry    *Registry
	controllers []*Controller
	log         zerolog.Logger
	wg          sync.WaitGroup
}

func NewManager(branches []types.Branch, opts Options) *Manager {
	m := &Manager{
		registry: NewRegistry(),
		log:      opts.Logger,
	}
	for _, b := range branches {
		m.controllers = append(m.controllers, NewController(b, m.registry, opts))
	}
	return m
}

// Start initiates every branch in order. Each branch's credentials are loaded
// before the next branch begins; the connection itself is driven by the
// controller's own goroutine. Load failures are retried by the controller.
func (m *Manager) Start(ctx context.Context) {
	for _, c := range m.controllers {
		log := m.log.With().Str("branch", c.Branch().ID).Logger()
		if err := c.Start(ctx); err != nil {
			log.Error().Err(err).Msg("failed to load session, will retry")
		}

		m.wg.Add(1)
		go func(c *Controller) {
			defer m.wg.Done()
			if err := c.Run(ctx); err != nil {
				if errors.Is(err, ErrCredentialWipe) {
					log.Error().Err(err).Msg("session stopped")
					return
				}
				log.Error().Err(err).Msg("session controller exited")
			}
		}(c)
	}
	m.log.Info().Int("branches", len(m.controllers)).Msg("all branch sessions initiated")
}

// Wait blocks until every controller has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) Registry() *Registry {
	return m.registry
}
