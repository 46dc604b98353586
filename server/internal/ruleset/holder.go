package ruleset

import (
	"log/slog"
	"sync/atomic"

	"github.com/cardiosense/cardiosense/pkg/risk"
)

// Holder owns the active rule set. Readers call Current on every request;
// Swap replaces the set atomically so in-flight assessments finish against
// the set they started with.
type Holder struct {
	cur      atomic.Pointer[risk.RuleSet]
	onReload func(ok bool)
}

// New returns a Holder serving rs. onReload, if non-nil, is called after
// every Reload attempt with its outcome.
func New(rs *risk.RuleSet, onReload func(ok bool)) *Holder {
	h := &Holder{onReload: onReload}
	h.cur.Store(rs)
	return h
}

// Current returns the active rule set.
func (h *Holder) Current() *risk.RuleSet {
	return h.cur.Load()
}

// Swap makes rs the active rule set and returns the previous one.
func (h *Holder) Swap(rs *risk.RuleSet) *risk.RuleSet {
	return h.cur.Swap(rs)
}

// Reload calls load and swaps in its result. On error the active set is left
// unchanged and the error is returned.
func (h *Holder) Reload(load func() (*risk.RuleSet, error)) error {
	rs, err := load()
	if h.onReload != nil {
		h.onReload(err == nil)
	}
	if err != nil {
		return err
	}
	prev := h.Swap(rs)
	slog.Info("ruleset: swapped", "from", prev.ID(), "to", rs.ID(), "rules", rs.Len())
	return nil
}
