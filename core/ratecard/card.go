// Package ratecard builds the per-run table of unit prices.
package ratecard

import (
	"sort"

	"usage-cost/core/types"
)

// Card maps a resource identifier to its rate. The first entry seen for a
// resource wins for the lifetime of the card.
type Card struct {
	entries map[string]types.RateCardEntry
}

// NewCard creates an empty rate card.
func NewCard() *Card {
	return &Card{entries: make(map[string]types.RateCardEntry)}
}

// InsertIfAbsent adds entry unless its resource is already present. It
// reports whether the entry was added.
func (c *Card) InsertIfAbsent(entry types.RateCardEntry) bool {
	if _, ok := c.entries[entry.Resource]; ok {
		return false
	}
	c.entries[entry.Resource] = entry
	return true
}

// Get returns the rate for a resource.
func (c *Card) Get(resource string) (types.RateCardEntry, bool) {
	e, ok := c.entries[resource]
	return e, ok
}

// Len returns the number of resources on the card.
func (c *Card) Len() int {
	return len(c.entries)
}

// Entries returns the card sorted by resource.
func (c *Card) Entries() []types.RateCardEntry {
	out := make([]types.RateCardEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Resource < out[j].Resource
	})
	return out
}
