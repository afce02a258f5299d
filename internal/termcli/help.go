package termcli

import (
	"fmt"
	"sort"
	"strings"
)

// Help returns the help text for verb, or a sorted short-help listing of
// every registered verb when verb is empty.
func (r *Registry) Help(verb string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if verb == "" {
		verbs := make([]string, 0, len(r.handlers))
		for v := range r.handlers {
			verbs = append(verbs, v)
		}
		sort.Strings(verbs)

		var b strings.Builder
		for _, v := range verbs {
			fmt.Fprintf(&b, "%-12s %s\n", v, r.handlers[v].HelpShort)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	h, ok := r.handlers[strings.ToLower(verb)]
	if !ok {
		return fmt.Sprintf("no help entry for `%s`", verb)
	}
	if h.HelpLong != "" {
		return h.HelpLong
	}
	return h.HelpShort
}
