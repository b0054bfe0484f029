package memory

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/hylla/tikk/internal/domain"
)

// chainLog is an append-only log of versions with a per-id index.
type chainLog[ID cmp.Ordered, T domain.Versioned] struct {
	idOf       func(T) ID
	setVersion func(T, int64) T

	rows       []T
	byID       map[ID][]int
	latest     map[ID]int
	maxVersion map[ID]int64
}

func newChainLog[ID cmp.Ordered, T domain.Versioned](idOf func(T) ID, setVersion func(T, int64) T) *chainLog[ID, T] {
	c := &chainLog[ID, T]{idOf: idOf, setVersion: setVersion}
	c.reset()
	return c
}

func (c *chainLog[ID, T]) reset() {
	c.byID = map[ID][]int{}
	c.latest = map[ID]int{}
	c.maxVersion = map[ID]int64{}
}

// append assigns the next version number for the record's id and stores it.
func (c *chainLog[ID, T]) append(rec T) T {
	id := c.idOf(rec)
	rec = c.setVersion(rec, c.maxVersion[id]+1)
	c.index(rec, len(c.rows))
	c.rows = append(c.rows, rec)
	return rec
}

func (c *chainLog[ID, T]) index(rec T, pos int) {
	id := c.idOf(rec)
	c.byID[id] = append(c.byID[id], pos)
	c.maxVersion[id] = max(c.maxVersion[id], rec.VersionNumber())
	cur, ok := c.latest[id]
	if !ok {
		c.latest[id] = pos
		return
	}
	if best, _ := domain.CurrentVersion([]T{c.rows[cur], rec}); best.VersionNumber() == rec.VersionNumber() {
		c.latest[id] = pos
	}
}

// truncate drops every row appended after n rows and rebuilds the indexes.
func (c *chainLog[ID, T]) truncate(n int) {
	if n >= len(c.rows) {
		return
	}
	c.rows = c.rows[:n]
	c.reset()
	rows := c.rows
	c.rows = make([]T, 0, len(rows))
	for i, rec := range rows {
		c.rows = append(c.rows, rec)
		c.index(rec, i)
	}
}

func (c *chainLog[ID, T]) current(id ID) (T, bool) {
	pos, ok := c.latest[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.rows[pos], true
}

func (c *chainLog[ID, T]) history(id ID) []T {
	out := make([]T, 0, len(c.byID[id]))
	for _, pos := range c.byID[id] {
		out = append(out, c.rows[pos])
	}
	domain.SortHistory(out)
	return out
}

func (c *chainLog[ID, T]) at(id ID, at time.Time) (T, bool) {
	return domain.VersionAt(c.history(id), at)
}

func (c *chainLog[ID, T]) exists(id ID) bool {
	_, ok := c.latest[id]
	return ok
}

// currentAll returns the current version of every id, ordered by id, filtered by keep.
func (c *chainLog[ID, T]) currentAll(keep func(T) bool) []T {
	ids := make([]ID, 0, len(c.latest))
	for id := range c.latest {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		rec := c.rows[c.latest[id]]
		if keep == nil || keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func hasPrefix(name, prefix string) bool {
	return strings.HasPrefix(name, prefix)
}
