package conversation

import (
	"context"
	"log/slog"

	"github.com/mitchellwinn/pioneer-online-sub002/pkg/dialogue"
)

// HandlerFunc executes one named command with its pipe-split arguments.
type HandlerFunc func(ctx context.Context, args []string) (string, error)

// Registry dispatches pipe-delimited command strings to named handlers.
// The table is explicit and populated at startup: a command with no entry
// is a logged diagnostic and a no-op, never a crash.
type Registry struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

var _ Processor = (*Registry)(nil)

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{handlers: make(map[string]HandlerFunc), logger: logger}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, h HandlerFunc) {
	r.handlers[name] = h
}

// With returns a copy of the registry extended with one handler, leaving
// the receiver untouched. Sessions layer their flag-bound handlers on a
// shared base this way.
func (r *Registry) With(name string, h HandlerFunc) *Registry {
	next := NewRegistry(r.logger)
	for n, f := range r.handlers {
		next.handlers[n] = f
	}
	next.handlers[name] = h
	return next
}

// Execute parses command and runs its handler.
func (r *Registry) Execute(ctx context.Context, command string) (string, error) {
	cmd := dialogue.ParseCommand(command)
	h, ok := r.handlers[cmd.Name]
	if !ok {
		r.logger.Warn("Unknown command", "command", cmd.Name)
		return "", nil
	}
	return h(ctx, cmd.Args)
}
