package engine

import (
	"fmt"
	"strings"
	"time"
)

// DateKind tags a resolved date as a point in time or a whole day.
type DateKind int

const (
	// DateInstant schedules a fixed-duration timed event.
	DateInstant DateKind = iota
	// DateDay schedules an all-day event.
	DateDay
)

// ResolvedDate is the single date chosen to schedule an item. For DateDay,
// Time holds midnight UTC of that day and only the civil date is meaningful.
type ResolvedDate struct {
	Kind  DateKind
	Time  time.Time
	Field string // source field that supplied the value, for diagnostics
}

// WindowCenter returns the point the correlation search window is centered
// on. Day dates use midday UTC so the window tolerates timezone shifts in
// how the store files all-day events.
func (r *ResolvedDate) WindowCenter() time.Time {
	if r.Kind == DateDay {
		return r.Time.Add(12 * time.Hour)
	}
	return r.Time
}

// ParseError reports a date-bearing field that is present but lexically
// invalid. It fails the single item carrying it, never the run.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s value %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Resolve picks the date that governs an item's scheduling, walking the
// date-bearing fields in fixed priority order and returning the first one
// populated. Returns (nil, nil) when no field is set; the caller skips the
// item without treating that as an error.
func Resolve(item Item) (*ResolvedDate, error) {
	candidates := []struct {
		field string
		value string
	}{
		{"dueDate", item.DueDate},
		{"containerTargetDate", item.ContainerTargetDate},
		{"completedAt", item.CompletedAt},
		{"startedAt", item.StartedAt},
		{"createdAt", item.CreatedAt},
	}

	for _, c := range candidates {
		if c.value == "" {
			continue
		}
		return parseDate(c.field, c.value)
	}
	return nil, nil
}

// parseDate distinguishes the two accepted lexical forms: a value containing
// a time-of-day separator is an instant, anything else a calendar day.
func parseDate(field, value string) (*ResolvedDate, error) {
	if strings.Contains(value, "T") {
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, &ParseError{Field: field, Value: value, Err: err}
		}
		return &ResolvedDate{Kind: DateInstant, Time: t, Field: field}, nil
	}

	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, &ParseError{Field: field, Value: value, Err: err}
	}
	return &ResolvedDate{Kind: DateDay, Time: d, Field: field}, nil
}
