package sessionstate

import "time"

// CooldownTable tracks the last emission time of each violation kind, so
// the fusion layer can rate-limit repeated emissions of the same kind.
type CooldownTable struct {
	lastEmit map[ViolationKind]time.Time
}

// NewCooldownTable returns an empty CooldownTable.
func NewCooldownTable() *CooldownTable {
	return &CooldownTable{lastEmit: make(map[ViolationKind]time.Time)}
}

// Elapsed reports whether at least delta has passed since kind was last
// emitted. A kind with no prior emission has always elapsed.
func (c *CooldownTable) Elapsed(kind ViolationKind, now time.Time, delta time.Duration) bool {
	last, ok := c.lastEmit[kind]
	if !ok {
		return true
	}
	return now.Sub(last) >= delta
}

// NoteEmit records now as the last emission time for kind.
func (c *CooldownTable) NoteEmit(kind ViolationKind, now time.Time) {
	c.lastEmit[kind] = now
}

// LastEmit returns the last recorded emission time for kind, and whether
// one has ever been recorded.
func (c *CooldownTable) LastEmit(kind ViolationKind) (time.Time, bool) {
	t, ok := c.lastEmit[kind]
	return t, ok
}
