package celebrate

import (
	"maps"
	"time"
)

// Record remembers when each user was last celebrated, keyed by handle.
// It holds at most one entry per user.
type Record struct {
	entries map[string]time.Time
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{entries: make(map[string]time.Time)}
}

// RecordFrom builds a record from persisted entries. The map is copied.
func RecordFrom(entries map[string]time.Time) *Record {
	r := NewRecord()
	maps.Copy(r.entries, entries)
	return r
}

// Mark stores the celebration time for handle, replacing any older entry.
func (r *Record) Mark(handle string, at time.Time) {
	r.entries[handle] = at
}

// Has reports whether handle has any entry.
func (r *Record) Has(handle string) bool {
	_, ok := r.entries[handle]
	return ok
}

// Last returns the last celebration time for handle.
func (r *Record) Last(handle string) (time.Time, bool) {
	t, ok := r.entries[handle]
	return t, ok
}

// CelebratedOn reports whether handle was celebrated on the civil day of day in loc.
func (r *Record) CelebratedOn(handle string, day time.Time, loc *time.Location) bool {
	t, ok := r.entries[handle]
	if !ok {
		return false
	}
	ty, tm, td := t.In(loc).Date()
	dy, dm, dd := day.In(loc).Date()
	return ty == dy && tm == dm && td == dd
}

// Purge removes entries older than maxAge and returns how many were removed.
func (r *Record) Purge(now time.Time, maxAge time.Duration) int {
	removed := 0
	for handle, t := range r.entries {
		if now.Sub(t) > maxAge {
			delete(r.entries, handle)
			removed++
		}
	}
	return removed
}

// Len returns the number of users on record.
func (r *Record) Len() int {
	return len(r.entries)
}

// Entries returns a copy of the record for persistence.
func (r *Record) Entries() map[string]time.Time {
	return maps.Clone(r.entries)
}
