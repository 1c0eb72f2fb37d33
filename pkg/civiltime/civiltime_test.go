package civiltime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCivil(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2026/03/01 08:00:00", time.Date(2026, 2, 28, 23, 0, 0, 0, time.UTC)},
		{"2026/3/1 8:05", time.Date(2026, 2, 28, 23, 5, 0, 0, time.UTC)},
		{"2026-03-01 12:30:15", time.Date(2026, 3, 1, 3, 30, 15, 0, time.UTC)},
		{"  2026/03/01 00:00  ", time.Date(2026, 2, 28, 15, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.True(t, tc.want.Equal(ParseCivil(tc.in)))
		})
	}
}

func TestParseCivil_InvalidReturnsEpoch(t *testing.T) {
	for _, in := range []string{"", "tomorrow", "2026/13/01 08:00", "2026/02/30 08:00", "2026/03/01 25:00", "2026/03/01"} {
		assert.Equal(t, Epoch, ParseCivil(in), in)
	}
}

func TestFormatCivil_RoundTrip(t *testing.T) {
	in := "2026/03/01 08:04:09"
	assert.Equal(t, in, FormatCivil(ParseCivil(in)))
	assert.Equal(t, "2026/03/01 09:00:00", FormatCivil(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestDeriveSlotID(t *testing.T) {
	assert.Equal(t, "20260301-08", DeriveSlotID("2026/03/01 08:05:00"))
	assert.Equal(t, "20260301-08", DeriveSlotID("2026/03/01 08:38:59"))
	assert.Equal(t, "20260301-09", DeriveSlotID("2026/3/1 9:00"))
	assert.Equal(t, "", DeriveSlotID("garbage"))
}

func TestDayBoundaries(t *testing.T) {
	// 2026-03-01 20:00 UTC is 2026-03-02 05:00 civil.
	instant := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	start := StartOfDay(instant)
	assert.Equal(t, "2026/03/02 00:00:00", FormatCivil(start))
	assert.Equal(t, "2026/03/02", CivilDate(EndOfDay(instant)))
	assert.Equal(t, "2026/03/02 12:00:00", FormatCivil(At(instant, 12, 0)))
	assert.Equal(t, 5, Hour(instant))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2026/03/01 00:00:00", FormatCivil(d))

	_, err = ParseDate("03/01/2026")
	assert.Error(t, err)
}

func TestFixedClock(t *testing.T) {
	c := NewFixedClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	c.Advance(time.Hour)
	assert.Equal(t, 1, c.Now().Hour())
}
