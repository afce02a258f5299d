package termcli

import (
	"strings"
	"sync"
)

// HandlerFunc is a built-in command implementation. ctx is opaque to
// termcli; internal/world supplies the concrete execution context and
// type-asserts it back out, keeping this package ignorant of world
// types.
type HandlerFunc func(ctx interface{}, cmd *Command) Result

// Handler is a registered command: its verb, help text, and callback.
type Handler struct {
	Verb      string
	HelpShort string
	HelpLong  string
	Call      HandlerFunc
}

// Registry is a case-insensitive verb-to-handler table. Each world keeps
// its own Registry instance so multiple independent simulations never
// share mutable dispatch state.
type Registry struct {
	mu       sync.Mutex
	handlers map[string]*Handler

	history       []string
	historyLen    int
	firstTruncate bool
}

// DefaultHistoryLen bounds recorded command history unless overridden.
const DefaultHistoryLen = 10000

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers:      make(map[string]*Handler),
		historyLen:    DefaultHistoryLen,
		firstTruncate: true,
	}
}

// Register adds a handler under its verb (case-insensitive). A later
// registration for the same verb replaces the earlier one.
func (r *Registry) Register(h *Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.ToLower(h.Verb)] = h
}

// Lookup returns the handler for a verb, if registered.
func (r *Registry) Lookup(verb string) (*Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[strings.ToLower(verb)]
	return h, ok
}

// Verbs returns every registered verb, for `known`/tab-completion style
// listing.
func (r *Registry) Verbs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.handlers))
	for v := range r.handlers {
		out = append(out, v)
	}
	return out
}

// Compile tokenizes input and resolves it against the registry, returning
// a ready-to-dispatch Command. An empty line compiles to (nil, nil).
func (r *Registry) Compile(input string) (*Command, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, nil
	}

	toks, err := Tokenize(trimmed)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, nil
	}

	return &Command{
		Verb:     toks[0],
		Args:     toks[1:],
		Original: trimmed,
	}, nil
}

// Dispatch compiles and executes input against ctx, recording it in
// history. Returns CodeUnknownCommand if the verb has no handler.
func (r *Registry) Dispatch(ctx interface{}, input string) Result {
	cmd, err := r.Compile(input)
	if err != nil {
		return Err(CodeInvalidArgs, err.Error())
	}
	if cmd == nil {
		return Ok()
	}

	r.record(cmd.Original)

	h, ok := r.Lookup(cmd.Verb)
	if !ok {
		return Err(CodeUnknownCommand, "unknown command: "+cmd.Verb)
	}

	return h.Call(ctx, cmd)
}

func (r *Registry) record(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, line)
	if r.historyLen > 0 && len(r.history) > r.historyLen {
		r.history = r.history[len(r.history)-r.historyLen:]
	}
}

// History returns the recorded command history, oldest first.
func (r *Registry) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.history))
	copy(out, r.history)
	return out
}

// ClearHistory empties the command history.
func (r *Registry) ClearHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}

// SetHistoryLen overrides the history retention length; <= 0 means
// unbounded.
func (r *Registry) SetHistoryLen(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.historyLen = n
}
