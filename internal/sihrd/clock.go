package sihrd

import (
	"fmt"
	"time"
)

// ReferenceTimezone is the zone in which the processing date is taken.
const ReferenceTimezone = "America/Sao_Paulo"

// Clock supplies the instant a run is processed at.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.At }

// ProcessingDate returns the calendar day of clock.Now() in loc.
func ProcessingDate(clock Clock, loc *time.Location) Date {
	now := clock.Now().In(loc)
	return NewDate(now.Year(), now.Month(), now.Day())
}

// LoadReferenceLocation loads name, or ReferenceTimezone when name is empty.
func LoadReferenceLocation(name string) (*time.Location, error) {
	if name == "" {
		name = ReferenceTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("sihrd: unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// ParseProcessingDate parses a "YYYY-MM-DD" override as midnight of that day in loc.
func ParseProcessingDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("sihrd: invalid processing date %q, expected YYYY-MM-DD: %w", value, err)
	}
	return t, nil
}
