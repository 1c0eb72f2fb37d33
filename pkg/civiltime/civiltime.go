// Package civiltime is the single conversion boundary between absolute
// instants and the fixed UTC+9 civil time used for scheduled_at and slot ids.
package civiltime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
	"github.com/sirupsen/logrus"
)

const (
	Layout     = "2006/01/02 15:04:05"
	DateLayout = "2006/01/02"
	slotLayout = "20060102-15"
)

// Location is the fixed civil zone (UTC+9, no DST).
var Location = time.FixedZone("JST", 9*60*60)

// Epoch is returned for unparseable civil strings. It sorts before every
// real instant so due filters skip it.
var Epoch = time.Unix(0, 0).UTC()

var civilPattern = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})[/-](\d{1,2})\s+(\d{1,2}):(\d{1,2})(?::(\d{1,2}))?$`)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always reports the same instant. Tests move it with Set/Advance.
type FixedClock struct {
	T time.Time
}

func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{T: t.UTC()} }

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) Set(t time.Time) { c.T = t.UTC() }

func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// ParseCivil reads "YYYY/MM/DD HH:mm[:ss]" as civil time. Fields may be
// unpadded and "-" is accepted as the date separator. Invalid input yields
// Epoch and a warning.
func ParseCivil(s string) time.Time {
	t, err := parse(s)
	if err != nil {
		logrus.WithError(err).Warnf("[CIVILTIME] invalid scheduled_at %q", s)
		return Epoch
	}
	return t
}

// TryParseCivil is ParseCivil without the logging and sentinel.
func TryParseCivil(s string) (time.Time, bool) {
	t, err := parse(s)
	return t, err == nil
}

func parse(s string) (time.Time, error) {
	m := civilPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, fmt.Errorf("unrecognized civil timestamp")
	}
	f := make([]int, 6)
	for i := 1; i <= 6; i++ {
		if m[i] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i])
		if err != nil {
			return time.Time{}, err
		}
		f[i-1] = n
	}
	t := time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], 0, Location)
	// time.Date normalizes overflow (month 13, hour 25); reject it instead.
	if t.Year() != f[0] || int(t.Month()) != f[1] || t.Day() != f[2] ||
		t.Hour() != f[3] || t.Minute() != f[4] || t.Second() != f[5] {
		return time.Time{}, fmt.Errorf("field out of range")
	}
	return t.UTC(), nil
}

func FormatCivil(t time.Time) string {
	return t.In(Location).Format(Layout)
}

// CivilDate returns the "YYYY/MM/DD" civil date of t.
func CivilDate(t time.Time) string {
	return t.In(Location).Format(DateLayout)
}

// DeriveSlotID maps a civil timestamp to its "YYYYMMDD-HH" slot. Minutes and
// seconds are dropped, so 08:05 and 08:38 share a slot. Returns "" for
// unparseable input.
func DeriveSlotID(civil string) string {
	t, err := parse(civil)
	if err != nil {
		return ""
	}
	return SlotIDAt(t)
}

func SlotIDAt(t time.Time) string {
	return t.In(Location).Format(slotLayout)
}

// StartOfDay returns civil midnight of the day containing t, as a UTC instant.
func StartOfDay(t time.Time) time.Time {
	return now.With(t.In(Location)).BeginningOfDay().UTC()
}

// EndOfDay returns the last nanosecond of t's civil day.
func EndOfDay(t time.Time) time.Time {
	return now.With(t.In(Location)).EndOfDay().UTC()
}

// At returns the instant for hour:minute on the civil day containing day.
func At(day time.Time, hour, minute int) time.Time {
	d := day.In(Location)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, Location).UTC()
}

// Hour returns the civil hour of t.
func Hour(t time.Time) int {
	return t.In(Location).Hour()
}

// Weekday returns the civil weekday of t.
func Weekday(t time.Time) time.Weekday {
	return t.In(Location).Weekday()
}

// ParseDate reads a civil "YYYY/MM/DD" or "YYYY-MM-DD" date and returns its midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "-", "/")
	t, err := time.ParseInLocation(DateLayout, s, Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Season names the meteorological season of t's civil month.
func Season(t time.Time) string {
	switch m := t.In(Location).Month(); {
	case m >= time.March && m <= time.May:
		return "Spring"
	case m >= time.June && m <= time.August:
		return "Summer"
	case m >= time.September && m <= time.November:
		return "Autumn"
	default:
		return "Winter"
	}
}
