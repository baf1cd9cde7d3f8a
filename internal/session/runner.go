package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mitchellwinn/pioneer-online-sub002/internal/services/events"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/storage"
	"github.com/mitchellwinn/pioneer-online-sub002/pkg/conversation"
	"github.com/mitchellwinn/pioneer-online-sub002/pkg/dialogue"
)

type signalKind int

const (
	signalAdvance signalKind = iota
	signalChoose
	signalFastForward
)

type signal struct {
	kind  signalKind
	index int
	err   error
	reply chan error
}

// Session is one running conversation. Its interpreter lives on a single
// goroutine; everything else talks to it through signals and the view.
type Session struct {
	id       uuid.UUID
	playerID string
	document string
	language string

	cancel  context.CancelFunc
	signals chan signal
	done    chan struct{}

	mu   sync.RWMutex
	view View
}

// View returns a copy of the session's current presentation state
func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// deliver hands a signal to the session goroutine and waits for its result
func (s *Session) deliver(sig signal) error {
	sig.reply = make(chan error, 1)
	select {
	case s.signals <- sig:
		return <-sig.reply
	case <-s.done:
		return ErrSessionEnded
	}
}

// halt cancels the session and waits for its goroutine to finish
func (s *Session) halt() {
	s.cancel()
	<-s.done
}

// run drives the interpreter until the conversation ends or the session is
// cancelled. It owns the interpreter completely: ticks, signals, view
// updates and persistence all happen here.
func (s *Session) run(ctx context.Context, it *conversation.Interpreter, m *Manager, logger *slog.Logger) {
	defer m.remove(s)
	defer close(s.done)

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	prev := s.View()
	last := time.Now()

	for {
		var pending *signal
		select {
		case <-ctx.Done():
			it.Abort()
			s.persistEnded(m.store, logger)
			logger.Debug("Session cancelled")
			return

		case now := <-ticker.C:
			if err := it.Tick(now.Sub(last)); err != nil {
				// Recoverable: the conversation already ended safely.
				logger.Warn("Conversation ended with error", "error", err)
			}
			last = now

		case sig := <-s.signals:
			pending = &sig
			switch sig.kind {
			case signalAdvance:
				pending.err = it.Advance()
			case signalChoose:
				pending.err = it.Choose(sig.index)
			case signalFastForward:
				pending.err = it.FastForward()
			}
		}

		// Sync the view, and the terminal snapshot when this step ended the
		// conversation, before acknowledging a signal: a caller's next read
		// must see the signal's effect.
		prev = s.afterStep(ctx, it, m, prev, logger)
		ended := it.State() == conversation.StateIdle
		if ended {
			s.persistEnded(m.store, logger)
		}
		if pending != nil {
			pending.reply <- pending.err
		}
		if ended {
			logger.Debug("Session finished")
			return
		}
	}
}

// afterStep reconciles the public view with the interpreter and emits the
// deltas: coalesced reveal progress, the awaiting cue, and a snapshot write
// on every line or state transition.
func (s *Session) afterStep(ctx context.Context, it *conversation.Interpreter, m *Manager, prev View, logger *slog.Logger) View {
	cur := s.syncView(it)

	if cur.Revealed != prev.Revealed && cur.LineID == prev.LineID {
		if err := m.bus.PublishRevealProgress(ctx, s.id, cur.Revealed, len([]rune(cur.Text))); err != nil {
			logger.Debug("Failed to publish reveal progress", "error", err)
		}
	}
	if cur.State != prev.State && cur.State == conversation.StateAwaitingAdvance {
		if err := m.bus.PublishLineAwaiting(ctx, s.id, cur.LineID); err != nil {
			logger.Debug("Failed to publish awaiting cue", "error", err)
		}
	}
	if cur.State != prev.State || cur.LineID != prev.LineID {
		s.persist(ctx, m.store, logger)
	}
	return cur
}

// syncView refreshes the view from the interpreter's accessors
func (s *Session) syncView(it *conversation.Interpreter) View {
	var choices []string
	for _, c := range it.Choices() {
		choices = append(choices, c.Text)
	}

	s.mu.Lock()
	s.view = View{
		ID:       s.id,
		PlayerID: s.playerID,
		Document: s.document,
		Language: s.language,
		State:    it.State(),
		LineID:   it.LineID(),
		Nametag:  it.Nametag(),
		Text:     it.Text(),
		Revealed: it.Revealed(),
		Choices:  choices,
	}
	view := s.view
	s.mu.Unlock()
	return view
}

func (s *Session) persist(ctx context.Context, store storage.Storage, logger *slog.Logger) {
	v := s.View()
	snap := &storage.Snapshot{
		ID:       s.id.String(),
		PlayerID: s.playerID,
		Document: s.document,
		Language: s.language,
		State:    string(v.State),
		LineID:   v.LineID,
		Nametag:  v.Nametag,
		Text:     v.Text,
		Revealed: v.Revealed,
		Choices:  v.Choices,
	}
	if err := store.SaveSession(ctx, s.id, snap); err != nil {
		logger.Debug("Failed to persist session snapshot", "error", err)
	}
}

// persistEnded leaves a terminal snapshot behind so late GETs see a clean
// ending rather than nothing. Storage errors here are shutdown noise.
func (s *Session) persistEnded(store storage.Storage, logger *slog.Logger) {
	v := s.View()
	snap := &storage.Snapshot{
		ID:       s.id.String(),
		PlayerID: s.playerID,
		Document: s.document,
		Language: s.language,
		State:    "ended",
		LineID:   v.LineID,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.SaveSession(ctx, s.id, snap); err != nil {
		logger.Debug("Failed to persist terminal snapshot", "error", err)
	}
}

// busPresenter forwards presentation callbacks to the broadcaster. Reveal
// progress is deliberately absent: the runner coalesces it per step.
type busPresenter struct {
	bus *events.Broadcaster
	id  uuid.UUID
	ctx context.Context
}

var _ conversation.Presenter = (*busPresenter)(nil)

func (p *busPresenter) LineStarted(lineID, nametag, text string) {
	_ = p.bus.PublishLineStarted(p.ctx, p.id, lineID, nametag, text)
}

func (p *busPresenter) Revealed(visible int, text string) {}

func (p *busPresenter) ChoicesPresented(choices []dialogue.Choice) {
	texts := make([]string, len(choices))
	for i, c := range choices {
		texts[i] = c.Text
	}
	_ = p.bus.PublishChoicesPresented(p.ctx, p.id, texts)
}

func (p *busPresenter) Ended(err error) {
	if err != nil {
		_ = p.bus.PublishConversationError(p.ctx, p.id, err.Error())
	}
	_ = p.bus.PublishConversationEnded(p.ctx, p.id)
}

// publishingProcessor decorates the command registry so every executed
// command also lands on the event stream.
type publishingProcessor struct {
	inner conversation.Processor
	bus   *events.Broadcaster
	id    uuid.UUID
	it    *conversation.Interpreter
}

var _ conversation.Processor = (*publishingProcessor)(nil)

func (p *publishingProcessor) Execute(ctx context.Context, command string) (string, error) {
	value, err := p.inner.Execute(ctx, command)
	if err == nil {
		_ = p.bus.PublishEventExecuted(ctx, p.id, p.it.LineID(), command)
	}
	return value, err
}
