package daterange

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRange is returned for malformed custom ranges
var ErrInvalidRange = errors.New("invalid date range")

// Selection identifies a relative preset or a custom interval
type Selection string

const (
	SelectionDay         Selection = "1d"
	SelectionWeek        Selection = "7d"
	SelectionMonth       Selection = "1m"
	SelectionThreeMonths Selection = "3m"
	SelectionAll         Selection = "all"
	SelectionCustom      Selection = "custom"
)

// Range is a concrete [From, To] interval, inclusive on both ends
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range.
// Both boundaries are inclusive.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// Resolve converts a relative preset selection into a concrete range
// ending at now. The "all" selection starts at the Unix epoch: the lower
// bound is independent of store contents, so "all" means the same thing
// for an empty tracker and a full one.
//
// Custom selections must go through ResolveCustom; passing
// SelectionCustom here fails with ErrInvalidRange because the bounds
// are missing.
func Resolve(sel Selection, now time.Time) (Range, error) {
	switch sel {
	case SelectionDay:
		return Range{From: now.AddDate(0, 0, -1), To: now}, nil
	case SelectionWeek:
		return Range{From: now.AddDate(0, 0, -7), To: now}, nil
	case SelectionMonth:
		return Range{From: now.AddDate(0, -1, 0), To: now}, nil
	case SelectionThreeMonths:
		return Range{From: now.AddDate(0, -3, 0), To: now}, nil
	case SelectionAll:
		return Range{From: time.Unix(0, 0).UTC(), To: now}, nil
	case SelectionCustom:
		return Range{}, fmt.Errorf("%w: custom selection requires explicit bounds", ErrInvalidRange)
	default:
		return Range{}, fmt.Errorf("%w: unknown selection %q", ErrInvalidRange, sel)
	}
}

// ResolveCustom builds a range from explicit bounds.
func ResolveCustom(from, to time.Time) (Range, error) {
	if from.IsZero() || to.IsZero() {
		return Range{}, fmt.Errorf("%w: both from and to are required", ErrInvalidRange)
	}
	if from.After(to) {
		return Range{}, fmt.Errorf("%w: from %s is after to %s",
			ErrInvalidRange, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return Range{From: from, To: to}, nil
}
