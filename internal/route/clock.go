package route

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseClock converts "HH:MM:SS" or "HH:MM" to minutes since midnight.
// Seconds are accepted but dropped.
func ParseClock(s string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, false
	}

	hms := [3]int{}
	for i, p := range parts {
		if p == "" || len(p) > 2 {
			return 0, false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		hms[i] = n
	}

	if hms[0] > 23 || hms[1] > 59 || hms[2] > 59 {
		return 0, false
	}

	return float64(hms[0]*60 + hms[1]), true
}

// NormalizeScheduledTime turns a raw scheduled_time cell into minutes
// since midnight. Plain numbers are taken as minutes already; clock strings
// are converted; anything else is Missing.
func NormalizeScheduledTime(cell string) float64 {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return Missing()
	}
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		if math.IsInf(v, 0) {
			return Missing()
		}
		return v
	}
	if v, ok := ParseClock(cell); ok {
		return v
	}
	return Missing()
}

// StartOfDay places minutes-since-midnight on the calendar day of ref.
// Hours wrap at 24 in both directions, so -10 is 23:50. Seconds are zeroed.
func StartOfDay(ref time.Time, minutes float64) time.Time {
	m := math.Floor(minutes)
	hour := floorMod(int(math.Floor(m/60)), 24)
	minute := floorMod(int(m), 60)
	return time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location())
}

func floorMod(a, n int) int {
	return ((a % n) + n) % n
}

// FormatClock renders an instant as 24-hour "HH:MM".
func FormatClock(t time.Time) string {
	return t.Format("15:04")
}

// Weekday returns the day of week counted from Monday=0.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
