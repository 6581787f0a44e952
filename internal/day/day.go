package day

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Day is a UTC calendar date. The zero value is not a valid day.
type Day struct {
	date civil.Date
}

// Of returns the UTC calendar day containing t.
func Of(t time.Time) Day {
	return Day{date: civil.DateOf(t.UTC())}
}

// New builds a day from its parts. Out-of-range parts are rejected.
func New(year int, month time.Month, dom int) (Day, error) {
	d := civil.Date{Year: year, Month: month, Day: dom}
	if !d.IsValid() {
		return Day{}, fmt.Errorf("invalid calendar day %04d-%02d-%02d", year, int(month), dom)
	}
	return Day{date: d}, nil
}

// MustNew is New for constant inputs in tests and defaults.
func MustNew(year int, month time.Month, dom int) Day {
	d, err := New(year, month, dom)
	if err != nil {
		panic(err)
	}
	return d
}

// Parse reads an ISO YYYY-MM-DD string.
func Parse(s string) (Day, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return Day{date: d}, nil
}

func (d Day) String() string { return d.date.String() }

func (d Day) Year() int           { return d.date.Year }
func (d Day) Month() time.Month   { return d.date.Month }
func (d Day) DayOfMonth() int     { return d.date.Day }
func (d Day) IsZero() bool        { return d.date == civil.Date{} }
func (d Day) Before(o Day) bool   { return d.date.Before(o.date) }
func (d Day) After(o Day) bool    { return d.date.After(o.date) }
func (d Day) AddDays(n int) Day   { return Day{date: d.date.AddDays(n)} }
func (d Day) Midnight() time.Time { return d.date.In(time.UTC) }

// Noon is 12:00:00 UTC of the day. Every sample for a day carries this instant
// so re-importing a day overwrites instead of duplicating.
func (d Day) Noon() time.Time {
	return d.Midnight().Add(12 * time.Hour)
}

// NoonMillis is Noon as epoch milliseconds.
func (d Day) NoonMillis() int64 {
	return d.Noon().UnixMilli()
}

// Trailing returns the n days before today, oldest first.
func Trailing(today Day, n int) []Day {
	if n <= 0 {
		return nil
	}
	days := make([]Day, 0, n)
	for i := n; i >= 1; i-- {
		days = append(days, today.AddDays(-i))
	}
	return days
}

// Request is the wire date record expected by the rewards canister.
type Request struct {
	Year  uint32 `ic:"year" json:"year"`
	Month uint32 `ic:"month" json:"month"`
	Day   uint32 `ic:"day" json:"day"`
}

// Request renders the day as the canister's date record.
func (d Day) Request() Request {
	return Request{Year: uint32(d.date.Year), Month: uint32(d.date.Month), Day: uint32(d.date.Day)}
}

// MarshalText implements encoding.TextMarshaler.
func (d Day) MarshalText() ([]byte, error) {
	return d.date.MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Day) UnmarshalText(data []byte) error {
	return d.date.UnmarshalText(data)
}
