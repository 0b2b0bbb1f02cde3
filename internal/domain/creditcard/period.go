package creditcard

import (
	"fmt"
	"time"
)

// Period is an invoice reference month.
type Period struct {
	Year  int
	Month time.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Valid reports whether p names a real month.
func (p Period) Valid() bool {
	return p.Year >= 1970 && p.Year <= 9999 && p.Month >= time.January && p.Month <= time.December
}

// Add moves p by n months.
func (p Period) Add(n int) Period {
	t := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) Next() Period { return p.Add(1) }
func (p Period) Prev() Period { return p.Add(-1) }

// Before reports whether p is an earlier month than o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// ClosingDate is the configured closing day clamped to the month's last day.
func (p Period) ClosingDate(closingDay int) time.Time {
	return ClampedDate(p.Year, p.Month, closingDay)
}

// DueDate is closing + dueDaysAfterClosing when configured, otherwise the
// first DueDay after closing (clamped to that month's last day).
func (p Period) DueDate(c *Config) time.Time {
	closing := p.ClosingDate(c.ClosingDay)
	if c.DueDaysAfterClosing > 0 {
		return closing.AddDate(0, 0, c.DueDaysAfterClosing)
	}
	if c.DueDay > closing.Day() {
		return ClampedDate(p.Year, p.Month, c.DueDay)
	}
	next := p.Next()
	return ClampedDate(next.Year, next.Month, c.DueDay)
}

// PeriodFor returns the invoice period a purchase on date falls into: the
// date's own month while on or before that month's closing date, the next
// month afterwards.
func PeriodFor(date time.Time, closingDay int) Period {
	p := Period{Year: date.Year(), Month: date.Month()}
	if date.Day() > p.ClosingDate(closingDay).Day() {
		return p.Next()
	}
	return p
}

// Clamp moves date into the billing window of p, the days after the
// previous closing date up to p's closing date. The time of day is kept.
func (p Period) Clamp(date time.Time, closingDay int) time.Time {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	first := p.Prev().ClosingDate(closingDay).AddDate(0, 0, 1)
	last := p.ClosingDate(closingDay)
	switch {
	case day.Before(first):
		day = first
	case day.After(last):
		day = last
	default:
		return date
	}
	return time.Date(day.Year(), day.Month(), day.Day(), date.Hour(), date.Minute(), date.Second(), date.Nanosecond(), date.Location())
}

// ClampedDate builds a UTC date, moving day back to the month's last day
// when the month is shorter.
func ClampedDate(year int, month time.Month, day int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AddMonthsClamped moves date by n months keeping the day where possible.
func AddMonthsClamped(date time.Time, n int) time.Time {
	target := Period{Year: date.Year(), Month: date.Month()}.Add(n)
	d := ClampedDate(target.Year, target.Month, date.Day())
	return time.Date(d.Year(), d.Month(), d.Day(), date.Hour(), date.Minute(), date.Second(), date.Nanosecond(), date.Location())
}
