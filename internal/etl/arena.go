package etl

import (
	"fmt"
	"strings"

	"github.com/characterforge/compendium/internal/filter"
	"github.com/characterforge/compendium/internal/storage"
)

// Priority ranks provenance codes. Lower rank wins; codes not listed share
// the lowest precedence. The zero value ranks everything equally.
type Priority struct {
	rank map[string]int
}

// NewPriority ranks codes in the order given, highest precedence first.
// Repeated codes keep their first position.
func NewPriority(codes []string) Priority {
	p := Priority{rank: make(map[string]int, len(codes))}
	for i, code := range codes {
		if _, dup := p.rank[code]; !dup {
			p.rank[code] = i
		}
	}
	return p
}

// Enabled reports whether any codes are ranked.
func (p Priority) Enabled() bool {
	return len(p.rank) > 0
}

// Rank is the position of code in the list, or the list length for
// unlisted codes.
func (p Priority) Rank(code string) int {
	if r, ok := p.rank[code]; ok {
		return r
	}
	return len(p.rank)
}

// Outranks reports whether a strictly precedes b.
func (p Priority) Outranks(a, b string) bool {
	return p.Rank(a) < p.Rank(b)
}

type candidate struct {
	key    storage.Key
	entity Entity
	ref    string
}

func (c *candidate) source() string {
	if s := c.entity.String("source"); s != "" {
		return s
	}
	return filter.UnknownSource
}

// arena holds the best candidate per natural key for one importer pass, in
// first-seen key order.
type arena struct {
	priority Priority
	byKey    map[string]*candidate
	order    []string
}

func newArena(priority Priority) *arena {
	return &arena{priority: priority, byKey: map[string]*candidate{}}
}

// offer adds c and returns the candidate that lost, if any. Without a
// priority list the newest candidate wins. With one the higher ranked wins
// and equal ranks fall back to newest.
func (a *arena) offer(c *candidate) (loser *candidate) {
	k := arenaKey(c.key)
	current, ok := a.byKey[k]
	if !ok {
		a.byKey[k] = c
		a.order = append(a.order, k)
		return nil
	}
	if a.priority.Enabled() && a.priority.Outranks(current.source(), c.source()) {
		return c
	}
	a.byKey[k] = c
	return current
}

func (a *arena) candidates() []*candidate {
	out := make([]*candidate, len(a.order))
	for i, k := range a.order {
		out[i] = a.byKey[k]
	}
	return out
}

func arenaKey(key storage.Key) string {
	parts := make([]string, len(key.Values))
	for i, v := range key.Values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x00")
}
