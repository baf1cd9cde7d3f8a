// Package session runs conversations server-side: each session owns a
// goroutine that ticks its interpreter, applies signals delivered over
// channels, broadcasts progress, and persists snapshots for reconnects.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mitchellwinn/pioneer-online-sub002/internal/services"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/services/events"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/storage"
	"github.com/mitchellwinn/pioneer-online-sub002/pkg/conversation"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session already ended")
)

// DefaultTickInterval is the server-side reveal cadence
const DefaultTickInterval = 50 * time.Millisecond

// View is a read-only snapshot of a session's presentation state
type View struct {
	ID       uuid.UUID          `json:"id"`
	PlayerID string             `json:"player_id,omitempty"`
	Document string             `json:"document"`
	Language string             `json:"language,omitempty"`
	State    conversation.State `json:"state"`
	LineID   string             `json:"line_id,omitempty"`
	Nametag  string             `json:"nametag,omitempty"`
	Text     string             `json:"text,omitempty"`
	Revealed int                `json:"revealed"`
	Choices  []string           `json:"choices,omitempty"`
}

// Config wires a Manager's collaborators
type Config struct {
	Library      *storage.Library
	Store        storage.Storage
	Broadcaster  *events.Broadcaster
	Logger       *slog.Logger
	TickInterval time.Duration       // zero means DefaultTickInterval
	Pacing       conversation.Pacing // zero value means engine defaults
	Roll         func() int          // die override for checks; nil is a fair d20
}

// Manager tracks running sessions. A player has at most one: starting a
// new conversation replaces the running one.
type Manager struct {
	lib    *storage.Library
	store  storage.Storage
	bus    *events.Broadcaster
	logger *slog.Logger
	tick   time.Duration
	pacing conversation.Pacing
	roll   func() int
	base   *conversation.Registry // session-independent command handlers

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	byPlayer map[string]uuid.UUID
}

func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	base := conversation.NewRegistry(cfg.Logger)
	base.Register("Speaker", services.SpeakerHandler())
	return &Manager{
		lib:      cfg.Library,
		store:    cfg.Store,
		bus:      cfg.Broadcaster,
		logger:   cfg.Logger,
		tick:     cfg.TickInterval,
		pacing:   cfg.Pacing,
		roll:     cfg.Roll,
		base:     base,
		sessions: make(map[uuid.UUID]*Session),
		byPlayer: make(map[string]uuid.UUID),
	}
}

// Start begins a conversation and returns its opening view. The errors the
// interpreter can return here are recoverable and map cleanly to request
// failures: a missing document, or no starter passing its conditions.
func (m *Manager) Start(ctx context.Context, playerID, document, language string) (View, error) {
	// Last start wins: replace the player's running session, if any.
	if playerID != "" {
		m.mu.Lock()
		prevID, ok := m.byPlayer[playerID]
		prev := m.sessions[prevID]
		m.mu.Unlock()
		if ok && prev != nil {
			m.logger.Info("Replacing running session",
				"player_id", playerID, "session_id", prevID.String())
			prev.halt()
		}
	}

	mirror := make(map[string]string)
	if playerID != "" {
		flags, err := m.store.GetFlags(ctx, playerID)
		if err != nil {
			return View{}, fmt.Errorf("failed to load player flags: %w", err)
		}
		mirror = flags
	}

	id := uuid.New()
	sessCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		playerID: playerID,
		document: document,
		language: language,
		cancel:   cancel,
		signals:  make(chan signal),
		done:     make(chan struct{}),
	}

	logger := m.logger.With("session_id", id.String())
	flags := &sessionFlags{store: m.store, playerID: playerID, mirror: mirror}
	proc := &publishingProcessor{
		inner: m.buildRegistry(flags, logger),
		bus:   m.bus,
		id:    id,
	}
	it := conversation.New(conversation.Config{
		Source:    m.lib.Source(language),
		Flags:     flags.lookup,
		Events:    proc,
		Presenter: &busPresenter{bus: m.bus, id: id, ctx: sessCtx},
		Pacing:    m.pacing,
		Logger:    logger,
	})
	proc.it = it

	if err := it.Start(sessCtx, document); err != nil {
		cancel()
		return View{}, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	if playerID != "" {
		m.byPlayer[playerID] = id
	}
	m.mu.Unlock()

	if err := m.bus.PublishConversationStarted(sessCtx, id, document, language, playerID); err != nil {
		logger.Warn("Failed to publish session start", "error", err)
	}

	view := s.syncView(it)
	s.persist(sessCtx, m.store, logger)

	go s.run(sessCtx, it, m, logger)

	logger.Info("Session started",
		"player_id", playerID, "document", document, "language", language)
	return view, nil
}

// View returns the live view of a running session
func (m *Manager) View(id uuid.UUID) (View, bool) {
	m.mu.Lock()
	s := m.sessions[id]
	m.mu.Unlock()
	if s == nil {
		return View{}, false
	}
	return s.View(), true
}

// Advance delivers the confirm signal to a running session
func (m *Manager) Advance(id uuid.UUID) error {
	return m.deliver(id, signal{kind: signalAdvance})
}

// Choose delivers a choice selection to a running session
func (m *Manager) Choose(id uuid.UUID, index int) error {
	return m.deliver(id, signal{kind: signalChoose, index: index})
}

// FastForward cuts a running session's reveal short
func (m *Manager) FastForward(id uuid.UUID) error {
	return m.deliver(id, signal{kind: signalFastForward})
}

// Stop discards a session and its stored snapshot
func (m *Manager) Stop(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	s := m.sessions[id]
	m.mu.Unlock()
	if s != nil {
		s.halt()
	}
	return m.store.DeleteSession(ctx, id)
}

// Close winds down every running session; used during shutdown
func (m *Manager) Close() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		s.halt()
	}
	if len(open) > 0 {
		m.logger.Info("Sessions stopped", "count", len(open))
	}
}

func (m *Manager) deliver(id uuid.UUID, sig signal) error {
	m.mu.Lock()
	s := m.sessions[id]
	m.mu.Unlock()
	if s == nil {
		return ErrSessionNotFound
	}
	return s.deliver(sig)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	if s.playerID != "" && m.byPlayer[s.playerID] == s.id {
		delete(m.byPlayer, s.playerID)
	}
	m.mu.Unlock()
}

// buildRegistry layers the session's flag-bound handlers over the shared
// command table.
func (m *Manager) buildRegistry(flags *sessionFlags, logger *slog.Logger) *conversation.Registry {
	return m.base.
		With("set_flag", services.SetFlagHandler(flags, flags.playerID)).
		With("flag", services.FlagHandler(flags, flags.playerID)).
		With("check", services.CheckHandler(flags, flags.playerID, m.roll, logger))
}

// sessionFlags is the session's view of the flag store: a write-through
// mirror loaded at start. The mirror is touched only from the session
// goroutine, so condition lookups during branching need no locking and
// always see the effects of earlier inline events on the same line.
// Anonymous sessions keep flags in memory only.
type sessionFlags struct {
	store    storage.Storage
	playerID string
	mirror   map[string]string
}

func (f *sessionFlags) lookup(key string) (string, bool) {
	v, ok := f.mirror[key]
	return v, ok
}

func (f *sessionFlags) GetFlags(ctx context.Context, _ string) (map[string]string, error) {
	out := make(map[string]string, len(f.mirror))
	for k, v := range f.mirror {
		out[k] = v
	}
	return out, nil
}

func (f *sessionFlags) SetFlag(ctx context.Context, _ string, key, value string) error {
	f.mirror[key] = value
	if f.playerID == "" {
		return nil
	}
	return f.store.SetFlag(ctx, f.playerID, key, value)
}
