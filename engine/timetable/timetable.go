// Package timetable implements the HH:MM clock arithmetic used by schedules.
// All differences wrap around midnight: a train leaving at 23:54 and arriving
// at 00:04 travels for ten minutes.
package timetable

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the length of the wraparound cycle.
const MinutesPerDay = 24 * 60

// TimeToMinutes converts "HH:MM" to minutes past midnight.
// Malformed input yields 0.
func TimeToMinutes(s string) int {
	h, m, ok := parseClock(s)
	if !ok {
		return 0
	}
	return h*60 + m
}

// RawTimeDifference returns the minutes from "from" to "to", wrapping past
// midnight when "to" is earlier than "from".
func RawTimeDifference(from, to string) int {
	a, b := TimeToMinutes(from), TimeToMinutes(to)
	if b >= a {
		return b - a
	}
	return MinutesPerDay - a + b
}

// TimeDifference is RawTimeDifference rendered as "HH:MM".
func TimeDifference(from, to string) string {
	return MinutesToTime(RawTimeDifference(from, to))
}

// MinutesToTime renders minutes as zero-padded "HH:MM". The sign is dropped.
func MinutesToTime(n int) string {
	h, m := n/60, n%60
	return fmt.Sprintf("%02d:%02d", abs(h), abs(m))
}

// FormatClock renders an offset from service-day start as a wall clock time.
// Offsets past 24h (overnight GTFS trips) wrap.
func FormatClock(d time.Duration) string {
	minutes := int(d/time.Minute) % MinutesPerDay
	if minutes < 0 {
		minutes += MinutesPerDay
	}
	return MinutesToTime(minutes)
}

// Valid reports whether s is a well-formed "HH:MM" clock time.
func Valid(s string) bool {
	h, m, ok := parseClock(s)
	return ok && h < 24 && m < 60
}

func parseClock(s string) (int, int, bool) {
	hs, ms, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 {
		return 0, 0, false
	}
	return h, m, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
