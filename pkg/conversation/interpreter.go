// Package conversation plays compiled dialogue graphs: a tick-driven
// typewriter that reveals text, fires inline events at their character
// offsets, and suspends for advance and choice signals.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mitchellwinn/pioneer-online-sub002/pkg/dialogue"
)

// SpeakerCommand is the substitution resolved at line start whose value
// becomes the session nametag as well as spliced visible text.
const SpeakerCommand = "Speaker"

// ErrNoEntry reports that no starter passed its conditions, so the
// conversation had nothing to present.
var ErrNoEntry = errors.New("no valid entry into conversation")

// State names the interpreter's suspension points.
type State string

const (
	StateIdle            State = "idle"
	StatePresenting      State = "presenting"       // typewriter revealing characters
	StateAwaitingAdvance State = "awaiting_advance" // revealed text waiting for confirm
	StateAwaitingChoice  State = "awaiting_choice"  // waiting for a choice-selection result
	StateHalted          State = "halted"           // an event-only line ran; its event owns what happens next
)

// Config wires an Interpreter's collaborators. Source is required; the
// rest default to safe no-ops.
type Config struct {
	Source    GraphSource
	Flags     dialogue.Lookup // condition lookup; nil fails every condition
	Events    Processor       // inline event and substitution executor
	Presenter Presenter
	Pacing    Pacing // zero value falls back to DefaultPacing
	Logger    *slog.Logger
}

// session is one active conversation.
type session struct {
	ctx      context.Context
	document string
	graph    *dialogue.Graph

	line     *dialogue.Line
	nametag  string
	text     string // prepared visible text, substitutions applied
	runes    []rune
	events   []dialogue.InlineEvent
	nextEv   int
	revealed int
	wait     time.Duration // countdown until the next reveal step
}

// Interpreter drives conversations through their graphs one revealed
// character at a time.
//
// It is a cooperative state machine: one scheduling context calls Tick
// and delivers signals, and there is no internal locking. An Interpreter
// serves a single presentation surface, so it holds at most one session;
// Start while a session is active discards the prior one rather than
// queuing. Signals arriving outside their suspension point are ignored.
type Interpreter struct {
	source    GraphSource
	flags     dialogue.Lookup
	events    Processor
	presenter Presenter
	pacing    Pacing
	logger    *slog.Logger

	state State
	sess  *session
}

func New(cfg Config) *Interpreter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Presenter == nil {
		cfg.Presenter = nopPresenter{}
	}
	if cfg.Events == nil {
		cfg.Events = NewRegistry(cfg.Logger)
	}
	return &Interpreter{
		source:    cfg.Source,
		flags:     cfg.Flags,
		events:    cfg.Events,
		presenter: cfg.Presenter,
		pacing:    cfg.Pacing.orDefault(),
		logger:    cfg.Logger,
		state:     StateIdle,
	}
}

// Start begins presenting document, discarding any active session first.
// The starter whose conditions pass names the first line; when none
// passes the conversation ends immediately with ErrNoEntry. ctx is the
// session's invalidation signal: once it is done, the session winds down
// as a normal exit at its next suspension point.
func (it *Interpreter) Start(ctx context.Context, document string) error {
	if it.sess != nil {
		it.logger.Debug("Discarding active session", "document", it.sess.document)
		it.end(nil)
	}

	graph, ok := it.source.Graph(document)
	if !ok {
		return fmt.Errorf("%w: %s", dialogue.ErrDocumentNotFound, document)
	}
	starterID := dialogue.Select(graph.Starters, it.flags, "")
	if starterID == "" {
		it.logger.Debug("No starter passed", "document", document)
		return fmt.Errorf("%w: %s", ErrNoEntry, document)
	}

	it.sess = &session{ctx: ctx, document: document, graph: graph}
	return it.present(starterID)
}

// Tick advances the reveal by dt. States other than Presenting ignore
// time. A non-nil error is recoverable: the conversation has already
// ended safely and the caller only needs to report it.
func (it *Interpreter) Tick(dt time.Duration) error {
	if it.state != StatePresenting {
		return nil
	}
	sess := it.sess
	if sess.ctx.Err() != nil {
		it.invalidated()
		return nil
	}

	sess.wait -= dt
	for sess.wait <= 0 {
		if !it.runDueEvents() {
			return nil
		}
		if it.state != StatePresenting {
			// An event handler tore the session down.
			return nil
		}
		if sess.revealed >= len(sess.runes) {
			return it.finishLine()
		}
		sess.revealed++
		it.presenter.Revealed(sess.revealed, sess.text)
		sess.wait += it.pacing.stepAfter(sess.runes, sess.revealed-1)
	}
	return nil
}

// Advance delivers the confirm signal. Outside AwaitingAdvance it is
// ignored, so stray inputs are harmless.
func (it *Interpreter) Advance() error {
	if it.state != StateAwaitingAdvance {
		return nil
	}
	if it.sess.ctx.Err() != nil {
		it.invalidated()
		return nil
	}
	return it.resolveNext()
}

// Choose delivers a choice-selection result. Outside AwaitingChoice it is
// ignored; an out-of-range index is an error and leaves the suspension in
// place.
func (it *Interpreter) Choose(index int) error {
	if it.state != StateAwaitingChoice {
		return nil
	}
	sess := it.sess
	if sess.ctx.Err() != nil {
		it.invalidated()
		return nil
	}
	if index < 0 || index >= len(sess.line.Choices) {
		return fmt.Errorf("choice index %d out of range: line %s has %d choices",
			index, sess.line.ID, len(sess.line.Choices))
	}
	return it.follow(sess.line.Choices[index].Next)
}

// FastForward cuts the reveal short: outstanding inline events run in
// recorded order, the full text shows, and the machine moves on.
func (it *Interpreter) FastForward() error {
	if it.state != StatePresenting {
		return nil
	}
	sess := it.sess
	for sess.nextEv < len(sess.events) {
		if sess.ctx.Err() != nil {
			it.invalidated()
			return nil
		}
		ev := sess.events[sess.nextEv]
		sess.nextEv++
		it.runEvent(ev)
	}
	if it.state != StatePresenting {
		return nil
	}
	sess.revealed = len(sess.runes)
	sess.wait = 0
	it.presenter.Revealed(sess.revealed, sess.text)
	return it.finishLine()
}

// Abort discards the session. Scene teardown calls this; it is a normal
// exit, not an error.
func (it *Interpreter) Abort() {
	if it.sess == nil {
		return
	}
	it.end(nil)
}

// present prepares a line and starts its reveal. The referenced line must
// exist and carry something to do; either failure ends the conversation
// with a recoverable error.
func (it *Interpreter) present(id string) error {
	sess := it.sess
	line := sess.graph.Line(id)
	if line == nil {
		err := fmt.Errorf("%w: %q in %s", dialogue.ErrUnknownLineReference, id, sess.document)
		it.logger.Error("Conversation ended on bad reference", "error", err)
		it.end(err)
		return err
	}
	if line.Text == "" && line.Next == "" && len(line.Choices) == 0 && len(line.Branches) == 0 {
		err := fmt.Errorf("%w: %q in %s", dialogue.ErrMissingLineText, id, sess.document)
		it.logger.Error("Conversation ended on contentless line", "error", err)
		it.end(err)
		return err
	}

	sess.line = line
	prepared := it.substitute(line.Text)
	sess.text = dialogue.VisibleText(prepared)
	sess.runes = []rune(sess.text)
	sess.events = dialogue.ScanEvents(prepared)
	sess.nextEv = 0
	sess.revealed = 0
	sess.wait = 0
	it.state = StatePresenting
	it.presenter.LineStarted(line.ID, sess.nametag, sess.text)
	return nil
}

// substitute resolves %command% segments through the event processor,
// splicing results as plain text. The Speaker command also updates the
// session nametag. A failed substitution logs and splices nothing.
func (it *Interpreter) substitute(text string) string {
	if !strings.Contains(text, dialogue.SubstitutionMarker) {
		return text
	}
	var b strings.Builder
	for i, seg := range strings.Split(text, dialogue.SubstitutionMarker) {
		if i%2 == 0 {
			b.WriteString(seg)
			continue
		}
		value, err := it.events.Execute(it.sess.ctx, seg)
		if err != nil {
			it.logger.Warn("Substitution failed", "command", seg, "error", err)
			continue
		}
		if dialogue.ParseCommand(seg).Name == SpeakerCommand {
			it.sess.nametag = value
		}
		b.WriteString(value)
	}
	return b.String()
}

// runDueEvents executes every pending event at or before the current
// reveal offset, in source order. It reports false when the session was
// invalidated mid-run.
func (it *Interpreter) runDueEvents() bool {
	sess := it.sess
	for sess.nextEv < len(sess.events) && sess.events[sess.nextEv].Offset <= sess.revealed {
		if sess.ctx.Err() != nil {
			it.invalidated()
			return false
		}
		ev := sess.events[sess.nextEv]
		sess.nextEv++
		it.runEvent(ev)
	}
	return true
}

// runEvent fires one inline event. Handler failures are diagnostics, not
// conversation faults.
func (it *Interpreter) runEvent(ev dialogue.InlineEvent) {
	if _, err := it.events.Execute(it.sess.ctx, ev.Body); err != nil {
		it.logger.Warn("Inline event failed",
			"command", ev.Body, "line", it.sess.line.ID, "error", err)
	}
}

// finishLine runs once everything is revealed. Lines that showed text
// suspend for a confirm; lines that showed nothing resolve straight away.
func (it *Interpreter) finishLine() error {
	if len(it.sess.runes) > 0 {
		it.state = StateAwaitingAdvance
		return nil
	}
	return it.resolveNext()
}

// resolveNext picks the line's successor once its text has been seen:
// choices first, then conditional branches, then the plain next id.
func (it *Interpreter) resolveNext() error {
	sess := it.sess
	line := sess.line
	if len(line.Choices) > 0 {
		it.state = StateAwaitingChoice
		it.presenter.ChoicesPresented(line.Choices)
		return nil
	}
	if len(line.Branches) > 0 {
		return it.follow(dialogue.Select(line.Branches, it.flags, line.Next))
	}
	if len(sess.events) > 0 && len(sess.runes) == 0 {
		// An event-only line hands sequencing to whatever it ran;
		// following next here would fight it. A line with no events and
		// no text has nothing that could ever resume it, so that one
		// does follow next.
		it.state = StateHalted
		return nil
	}
	return it.follow(line.Next)
}

func (it *Interpreter) follow(next string) error {
	if next == "" {
		it.end(nil)
		return nil
	}
	return it.present(next)
}

// invalidated winds down a session whose context was cancelled: a normal
// exit, indistinguishable from an abort.
func (it *Interpreter) invalidated() {
	it.logger.Debug("Session invalidated", "document", it.sess.document)
	it.end(nil)
}

func (it *Interpreter) end(err error) {
	it.state = StateIdle
	it.sess = nil
	it.presenter.Ended(err)
}

// State reports the current suspension point.
func (it *Interpreter) State() State { return it.state }

// Document returns the active document id, or "" when idle.
func (it *Interpreter) Document() string {
	if it.sess == nil {
		return ""
	}
	return it.sess.document
}

// LineID returns the current line's id, or "" when idle.
func (it *Interpreter) LineID() string {
	if it.sess == nil || it.sess.line == nil {
		return ""
	}
	return it.sess.line.ID
}

// Nametag returns the current speaker tag.
func (it *Interpreter) Nametag() string {
	if it.sess == nil {
		return ""
	}
	return it.sess.nametag
}

// Text returns the full visible text of the current line.
func (it *Interpreter) Text() string {
	if it.sess == nil {
		return ""
	}
	return it.sess.text
}

// Visible returns the revealed prefix of the current line.
func (it *Interpreter) Visible() string {
	if it.sess == nil {
		return ""
	}
	return string(it.sess.runes[:it.sess.revealed])
}

// Revealed returns how many characters are showing.
func (it *Interpreter) Revealed() int {
	if it.sess == nil {
		return 0
	}
	return it.sess.revealed
}

// Choices returns the options on offer while suspended for a choice.
func (it *Interpreter) Choices() []dialogue.Choice {
	if it.state != StateAwaitingChoice {
		return nil
	}
	return it.sess.line.Choices
}
