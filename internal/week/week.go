// Package week maps instants to the Sunday-start week buckets that every
// stored media path is keyed by.
package week

import (
	"fmt"
	"time"
)

// KeyLayout is the canonical week key format.
const KeyLayout = "2006-01-02"

const labelLayout = "Jan 2"

// Calendar computes week keys and labels in a fixed location.
type Calendar struct {
	loc *time.Location
}

// NewCalendar returns a calendar evaluating dates in loc. A nil loc means
// the process-local zone.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{loc: loc}
}

func (c Calendar) location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// Location reports the zone week boundaries are evaluated in.
func (c Calendar) Location() *time.Location { return c.location() }

// Start returns midnight of the Sunday on or before t.
func (c Calendar) Start(t time.Time) time.Time {
	t = t.In(c.location())
	y, m, d := t.Date()
	return time.Date(y, m, d-int(t.Weekday()), 0, 0, 0, 0, c.location())
}

// Key returns the week key of t.
func (c Calendar) Key(t time.Time) string {
	return c.Start(t).Format(KeyLayout)
}

// Parse reads a week key back into its start instant.
func (c Calendar) Parse(key string) (time.Time, error) {
	t, err := time.ParseInLocation(KeyLayout, key, c.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse week key %q: %w", key, err)
	}
	return t, nil
}

// Valid reports whether key is a well-formed week key.
func (c Calendar) Valid(key string) bool {
	_, err := c.Parse(key)
	return err == nil
}

// Label renders "Week of {start} – {end}" for key. Keys that do not parse
// are echoed back rather than rejected.
func (c Calendar) Label(key string) string {
	start, err := c.Parse(key)
	if err != nil {
		return "Week of " + key
	}
	end := start.AddDate(0, 0, 6)
	return fmt.Sprintf("Week of %s – %s", start.Format(labelLayout), end.Format(labelLayout))
}
