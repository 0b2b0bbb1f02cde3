package creditcard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriod_Add(t *testing.T) {
	p := Period{Year: 2024, Month: time.November}

	assert.Equal(t, Period{Year: 2024, Month: time.December}, p.Next())
	assert.Equal(t, Period{Year: 2025, Month: time.January}, p.Add(2))
	assert.Equal(t, Period{Year: 2023, Month: time.November}, p.Add(-12))
	assert.Equal(t, "2024-11", p.String())
	assert.True(t, p.Prev().Before(p))
	assert.False(t, p.Before(p))
}

func TestPeriod_ClosingDateClampsToMonthEnd(t *testing.T) {
	assert.Equal(t, date(2024, time.February, 29), Period{2024, time.February}.ClosingDate(31))
	assert.Equal(t, date(2023, time.February, 28), Period{2023, time.February}.ClosingDate(30))
	assert.Equal(t, date(2024, time.April, 30), Period{2024, time.April}.ClosingDate(31))
	assert.Equal(t, date(2024, time.May, 10), Period{2024, time.May}.ClosingDate(10))
}

func TestPeriod_DueDate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		p    Period
		want time.Time
	}{
		{"Days after closing", Config{ClosingDay: 25, DueDaysAfterClosing: 10}, Period{2024, time.January}, date(2024, time.February, 4)},
		{"Due day later in month", Config{ClosingDay: 5, DueDay: 15}, Period{2024, time.March}, date(2024, time.March, 15)},
		{"Due day next month", Config{ClosingDay: 25, DueDay: 5}, Period{2024, time.March}, date(2024, time.April, 5)},
		{"Due day clamped", Config{ClosingDay: 28, DueDay: 31}, Period{2024, time.January}, date(2024, time.January, 31)},
		{"Next month clamped", Config{ClosingDay: 31, DueDay: 30}, Period{2024, time.January}, date(2024, time.February, 29)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.DueDate(&tt.cfg))
		})
	}
}

func TestPeriodFor(t *testing.T) {
	tests := []struct {
		name       string
		date       time.Time
		closingDay int
		want       Period
	}{
		{"Before closing", date(2024, time.March, 3), 10, Period{2024, time.March}},
		{"On closing day", date(2024, time.March, 10), 10, Period{2024, time.March}},
		{"After closing", date(2024, time.March, 11), 10, Period{2024, time.April}},
		{"After closing in December", date(2024, time.December, 20), 10, Period{2025, time.January}},
		{"Clamped closing day", date(2024, time.February, 29), 31, Period{2024, time.February}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PeriodFor(tt.date, tt.closingDay))
		})
	}
}

func TestAddMonthsClamped(t *testing.T) {
	start := date(2024, time.January, 31)

	assert.Equal(t, date(2024, time.February, 29), AddMonthsClamped(start, 1))
	assert.Equal(t, date(2024, time.March, 31), AddMonthsClamped(start, 2))
	assert.Equal(t, date(2024, time.April, 30), AddMonthsClamped(start, 3))
	assert.Equal(t, date(2025, time.January, 31), AddMonthsClamped(start, 12))
}

func TestPeriod_Clamp(t *testing.T) {
	march := Period{2024, time.March}
	at := func(d time.Time) time.Time { return d.Add(10 * time.Hour) }

	assert.Equal(t, at(date(2024, time.March, 16)), Period{2024, time.April}.Clamp(at(date(2024, time.March, 10)), 15))
	assert.Equal(t, at(date(2024, time.March, 15)), march.Clamp(at(date(2024, time.March, 20)), 15))
	assert.Equal(t, at(date(2024, time.March, 1)), march.Clamp(at(date(2024, time.March, 1)), 15))
	assert.Equal(t, at(date(2024, time.February, 16)), march.Clamp(at(date(2024, time.February, 16)), 15))
	// February closes on the 29th when the closing day is 30
	assert.Equal(t, at(date(2024, time.March, 1)), march.Clamp(at(date(2024, time.February, 29)), 30))
}
