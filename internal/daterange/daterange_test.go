package daterange

import (
	"errors"
	"testing"
	"time"
)

func TestResolvePresets(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		sel  Selection
		from time.Time
	}{
		{SelectionDay, now.AddDate(0, 0, -1)},
		{SelectionWeek, now.AddDate(0, 0, -7)},
		{SelectionMonth, now.AddDate(0, -1, 0)},
		{SelectionThreeMonths, now.AddDate(0, -3, 0)},
		{SelectionAll, time.Unix(0, 0).UTC()},
	}

	for _, tt := range tests {
		t.Run(string(tt.sel), func(t *testing.T) {
			r, err := Resolve(tt.sel, now)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.sel, err)
			}
			if !r.From.Equal(tt.from) {
				t.Errorf("Resolve(%q).From = %v, want %v", tt.sel, r.From, tt.from)
			}
			if !r.To.Equal(now) {
				t.Errorf("Resolve(%q).To = %v, want %v", tt.sel, r.To, now)
			}
		})
	}
}

func TestResolveUnknownSelection(t *testing.T) {
	_, err := Resolve(Selection("2w"), time.Now())
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Resolve() error = %v, want ErrInvalidRange", err)
	}
}

func TestResolveCustomWithoutBounds(t *testing.T) {
	_, err := Resolve(SelectionCustom, time.Now())
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("Resolve(custom) error = %v, want ErrInvalidRange", err)
	}
}

func TestResolveCustom(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	r, err := ResolveCustom(from, to)
	if err != nil {
		t.Fatalf("ResolveCustom() error = %v", err)
	}
	if !r.From.Equal(from) || !r.To.Equal(to) {
		t.Errorf("ResolveCustom() = %+v, want [%v, %v]", r, from, to)
	}
}

func TestResolveCustomInverted(t *testing.T) {
	from := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := ResolveCustom(from, to)
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("ResolveCustom() error = %v, want ErrInvalidRange", err)
	}
}

func TestResolveCustomMissingBound(t *testing.T) {
	_, err := ResolveCustom(time.Time{}, time.Now())
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("ResolveCustom() error = %v, want ErrInvalidRange", err)
	}
}

func TestRangeContainsInclusive(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	r := Range{From: from, To: to}

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"exactly from", from, true},
		{"exactly to", to, true},
		{"inside", from.AddDate(0, 0, 5), true},
		{"before", from.Add(-time.Second), false},
		{"after", to.Add(time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Contains(tt.t); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}
