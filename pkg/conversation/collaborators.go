package conversation

import (
	"context"

	"github.com/mitchellwinn/pioneer-online-sub002/pkg/dialogue"
)

// Processor executes inline event and substitution commands. Synchronous
// implementations return at once; suspending ones may block until they
// finish or ctx ends. The returned string is the substitution value, empty
// for pure side effects.
type Processor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// GraphSource resolves document ids to compiled graphs.
type GraphSource interface {
	Graph(document string) (*dialogue.Graph, bool)
}

// GraphSourceFunc adapts a function to GraphSource.
type GraphSourceFunc func(document string) (*dialogue.Graph, bool)

func (f GraphSourceFunc) Graph(document string) (*dialogue.Graph, bool) { return f(document) }

// Presenter consumes presentation output: the line cue (which doubles as
// the voice-over hook), reveal progress, choice lists, and the
// conversation-end signal. Ended receives nil for normal exits, including
// aborts.
type Presenter interface {
	LineStarted(lineID, nametag, text string)
	Revealed(visible int, text string)
	ChoicesPresented(choices []dialogue.Choice)
	Ended(err error)
}

type nopPresenter struct{}

func (nopPresenter) LineStarted(string, string, string) {}
func (nopPresenter) Revealed(int, string)               {}
func (nopPresenter) ChoicesPresented([]dialogue.Choice) {}
func (nopPresenter) Ended(error)                        {}
