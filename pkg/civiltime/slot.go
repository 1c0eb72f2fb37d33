package civiltime

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SlotTime is a nominal posting time of day.
type SlotTime struct {
	Hour   int
	Minute int
}

func (s SlotTime) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// On returns the instant of s on the civil day containing day.
func (s SlotTime) On(day time.Time) time.Time {
	return At(day, s.Hour, s.Minute)
}

// ParseSlotTimes reads "HH:MM" (or "HH:MM:SS", seconds ignored) values,
// sorted by time of day. Two entries in the same hour are rejected since
// they would share a slot id.
func ParseSlotTimes(values []string) ([]SlotTime, error) {
	slots := make([]SlotTime, 0, len(values))
	seen := make(map[int]bool, len(values))
	for _, v := range values {
		parts := strings.Split(strings.TrimSpace(v), ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid slot time %q", v)
		}
		h, errH := strconv.Atoi(parts[0])
		m, errM := strconv.Atoi(parts[1])
		if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
			return nil, fmt.Errorf("invalid slot time %q", v)
		}
		if seen[h] {
			return nil, fmt.Errorf("slot time %q shares hour %02d with another slot", v, h)
		}
		seen[h] = true
		slots = append(slots, SlotTime{Hour: h, Minute: m})
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Hour != slots[j].Hour {
			return slots[i].Hour < slots[j].Hour
		}
		return slots[i].Minute < slots[j].Minute
	})
	return slots, nil
}

// HourStart truncates t to the start of its civil hour.
func HourStart(t time.Time) time.Time {
	// The zone offset is a whole number of hours.
	return t.UTC().Truncate(time.Hour)
}
