package pipeline

import (
	"fmt"
	"strings"
)

// Walk calls fn for h and every handler nested under it, depth first.
func Walk(h Handler, fn func(Handler)) {
	if h == nil {
		return
	}
	fn(h)
	switch c := h.(type) {
	case interface{ Children() []Handler }:
		for _, child := range c.Children() {
			Walk(child, fn)
		}
	case interface{ Unwrap() Handler }:
		Walk(c.Unwrap(), fn)
	}
}

// Describe renders the shape of a handler tree on one line, for startup logs
// and tests. Example: "fingers_crossed(ERROR) > dedup(WARNING) > group[discord, email]".
func Describe(h Handler) string {
	switch v := h.(type) {
	case nil:
		return "none"
	case *Group:
		names := make([]string, 0, len(v.handlers))
		for _, child := range v.handlers {
			names = append(names, Describe(child))
		}
		return "group[" + strings.Join(names, ", ") + "]"
	case *Deduplication:
		return fmt.Sprintf("dedup(%s) > %s", v.level, Describe(v.next))
	case *FingersCrossed:
		return fmt.Sprintf("fingers_crossed(%s) > %s", v.trigger, Describe(v.next))
	case *LevelFilter:
		return fmt.Sprintf("min(%s) > %s", v.Min, Describe(v.Next))
	case interface{ Name() string }:
		return v.Name()
	default:
		return fmt.Sprintf("%T", h)
	}
}
