package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"whatsapp-branch-bot/types"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Sessions supplies the current branch session state.
type Sessions interface {
	Snapshot() []types.SessionSnapshot
}

// Server serves the dashboard UI, the branch list, session state and the
// realtime channel.
type Server struct {
	addr      string
	staticDir string
	branches  []types.Branch
	sessions  Sessions
	socket    http.Handler
	log       zerolog.Logger
	srv       *http.Server
}

type Config struct {
	Addr      string
	StaticDir string
	Branches  []types.Branch
	Sessions  Sessions
	// Socket handles /socket, usually broadcast.Hub.ServeWS.
	Socket http.Handler
	Logger zerolog.Logger
}

func New(cfg Config) *Server {
	s := &Server{
		addr:      cfg.Addr,
		staticDir: cfg.StaticDir,
		branches:  cfg.Branches,
		sessions:  cfg.Sessions,
		socket:    cfg.Socket,
		log:       cfg.Logger.With().Str("component", "dashboard").Logger(),
	}
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with request logging and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/config/branches.json", s.handleBranches)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	if s.socket != nil {
		mux.Handle("/socket", s.socket)
	}
	mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	return s.instrument(mux)
}

func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.branches)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := []types.SessionSnapshot{}
	if s.sessions != nil {
		snap = s.sessions.Snapshot()
	}
	s.writeJSON(w, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("failed to write response")
	}
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("dashboard listening")
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
