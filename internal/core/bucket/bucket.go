// Package bucket assigns readings to calendar buckets and orders bucket labels.
package bucket

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Granularity is the calendar unit readings are grouped by.
type Granularity string

const (
	Hour  Granularity = "hour"
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
	Year  Granularity = "year"
)

// ParseGranularity is case-insensitive. Empty or unknown input yields Day.
func ParseGranularity(s string) Granularity {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Hour, Day, Week, Month, Year:
		return g
	default:
		return Day
	}
}

// WeekConvention selects how week buckets are numbered.
type WeekConvention string

const (
	// WeekSunday numbers weeks like strftime %U: weeks start on Sunday and
	// days before the first Sunday of the year fall in week 00. Label YYYY-WW.
	WeekSunday WeekConvention = "sunday"
	// WeekOrdinal numbers weeks as ceil(elapsed since Jan 1 / 7 days). Label YYYY-Www.
	WeekOrdinal WeekConvention = "ordinal"
)

// ParseWeekConvention returns def for empty input.
func ParseWeekConvention(s string, def WeekConvention) (WeekConvention, error) {
	switch w := WeekConvention(strings.ToLower(strings.TrimSpace(s))); w {
	case "":
		return def, nil
	case WeekSunday, WeekOrdinal:
		return w, nil
	default:
		return "", fmt.Errorf("invalid week convention %q (must be sunday or ordinal)", s)
	}
}

const (
	hourLayout  = "2006-01-02 15:00:00"
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
	yearLayout  = "2006"

	week = 7 * 24 * time.Hour
)

// Bucketer labels instants for one granularity and week convention.
// All labels are computed in UTC.
type Bucketer struct {
	Granularity Granularity
	Week        WeekConvention
}

func New(g Granularity, w WeekConvention) Bucketer {
	if w == "" {
		w = WeekSunday
	}
	return Bucketer{Granularity: g, Week: w}
}

// Label returns the bucket label of t.
func (b Bucketer) Label(t time.Time) string {
	t = t.UTC()
	switch b.Granularity {
	case Hour:
		return t.Format(hourLayout)
	case Week:
		if b.Week == WeekOrdinal {
			return fmt.Sprintf("%04d-W%02d", t.Year(), ordinalWeek(t))
		}
		return fmt.Sprintf("%04d-%02d", t.Year(), sundayWeek(t))
	case Month:
		return t.Format(monthLayout)
	case Year:
		return t.Format(yearLayout)
	default:
		return t.Format(dayLayout)
	}
}

func sundayWeek(t time.Time) int {
	return (t.YearDay() - 1 + 7 - int(t.Weekday())) / 7
}

func ordinalWeek(t time.Time) int {
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(float64(t.Sub(jan1)) / float64(week)))
}

// Start parses a label produced by Label back into an instant that orders
// the same way the buckets do.
func (b Bucketer) Start(label string) (time.Time, bool) {
	var (
		t   time.Time
		err error
	)
	switch b.Granularity {
	case Hour:
		t, err = time.Parse("2006-01-02 15:04:05", label)
	case Week:
		var year, n int
		format := "%04d-%02d"
		if b.Week == WeekOrdinal {
			format = "%04d-W%02d"
		}
		if _, scanErr := fmt.Sscanf(label, format, &year, &n); scanErr != nil {
			return time.Time{}, false
		}
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * week), true
	case Month:
		t, err = time.Parse(monthLayout, label)
	case Year:
		t, err = time.Parse(yearLayout, label)
	default:
		t, err = time.Parse(dayLayout, label)
	}
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Less orders labels chronologically, falling back to lexical order when a
// label does not parse.
func (b Bucketer) Less(x, y string) bool {
	tx, okx := b.Start(x)
	ty, oky := b.Start(y)
	if okx && oky && !tx.Equal(ty) {
		return tx.Before(ty)
	}
	return x < y
}
