// Package datekey provides the canonical YYYY-MM-DD day identity used for every
// day-granularity comparison in the planner.
package datekey

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Layout is the time layout of a Key.
const Layout = "2006-01-02"

// Key is a calendar day in local time, formatted as YYYY-MM-DD.
type Key string

// Of returns the key of t in t's own location.
func Of(t time.Time) Key {
	return Key(t.Format(Layout))
}

// Midnight truncates t to 00:00 of the same calendar day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Parse reads a key in loc. Surrounding whitespace is ignored.
func Parse(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(Layout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date key %q: %w", s, err)
	}
	return t, nil
}

// Valid reports whether k is a well-formed key.
func (k Key) Valid() bool {
	_, err := time.Parse(Layout, string(k))
	return err == nil
}

// Time returns local midnight of k in loc.
func (k Key) Time(loc *time.Location) (time.Time, error) {
	return Parse(string(k), loc)
}

func (k Key) String() string { return string(k) }

// AddDays shifts t by n calendar days, keeping wall-clock midnight across DST changes.
func AddDays(t time.Time, n int) time.Time {
	return Midnight(t).AddDate(0, 0, n)
}

// DaysBetween returns the number of calendar days from a to b (b - a). Both are
// read in b's location.
func DaysBetween(a, b time.Time) int {
	a = Midnight(a.In(b.Location()))
	b = Midnight(b)
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	// UTC dates avoid DST hours leaking into the division.
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// Set is an ordered, duplicate-free list of keys. It is persisted as a JSON array.
type Set []Key

// Contains reports whether k is in s.
func (s Set) Contains(k Key) bool {
	return slices.Contains(s, k)
}

// With returns s ∪ {k}, sorted. s itself is not modified.
func (s Set) With(k Key) Set {
	if s.Contains(k) {
		return s
	}
	out := make(Set, 0, len(s)+1)
	out = append(out, s...)
	out = append(out, k)
	slices.Sort(out)
	return out
}

// Union merges other into s and returns the sorted result.
func (s Set) Union(other Set) Set {
	out := s
	for _, k := range other {
		out = out.With(k)
	}
	return out
}
