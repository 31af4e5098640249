package shared

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the ISO 8601 calendar date layout used on the wire.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date at UTC midnight.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrValidation, value)
	}
	return t, nil
}

// ParseOptionalDate parses value when it is non-empty.
func ParseOptionalDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := ParseDate(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CalendarDay truncates t to its calendar date in loc, expressed at UTC midnight.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date is a calendar date. The zero value means "not set" and is stored as
// NULL and rendered as JSON null.
type Date struct {
	time.Time
}

// NewDate truncates t to its UTC calendar date.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// MustDate parses a YYYY-MM-DD literal and panics on failure.
func MustDate(value string) Date {
	t, err := ParseDate(value)
	if err != nil {
		panic(err)
	}
	return Date{Time: t}
}

// String renders the date as YYYY-MM-DD, or "" when unset.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// DaysSince returns the whole calendar days from other to d.
func (d Date) DaysSince(other Date) int {
	return int(d.Sub(other.Time).Hours() / 24)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: date must be a YYYY-MM-DD string", ErrValidation)
	}
	if raw == "" {
		*d = Date{}
		return nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
	case time.Time:
		*d = NewDate(v)
	case string:
		t, err := time.Parse(DateLayout, v)
		if err != nil {
			return err
		}
		d.Time = t
	default:
		return fmt.Errorf("shared: cannot scan %T into Date", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Time, nil
}

// Clock returns the current instant. Services take one so "today" is testable.
type Clock func() time.Time

// Today returns the current calendar date in loc.
func (c Clock) Today(loc *time.Location) Date {
	now := time.Now
	if c != nil {
		now = c
	}
	return Date{Time: CalendarDay(now(), loc)}
}
