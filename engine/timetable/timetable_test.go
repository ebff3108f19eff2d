package timetable

import (
	"testing"
	"time"
)

func TestTimeToMinutes(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"00:00", 0},
		{"01:30", 90},
		{"23:59", 1439},
		{" 07:05 ", 425},
		{"", 0},
		{"abc", 0},
		{"12", 0},
		{"12:xx", 0},
	}
	for _, tt := range tests {
		if got := TimeToMinutes(tt.input); got != tt.want {
			t.Errorf("TimeToMinutes(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestRawTimeDifference(t *testing.T) {
	tests := []struct {
		from, to string
		want     int
	}{
		{"23:54", "00:04", 10},
		{"10:00", "10:00", 0},
		{"10:00", "12:30", 150},
		{"12:30", "10:00", 1290},
		{"00:00", "23:59", 1439},
	}
	for _, tt := range tests {
		if got := RawTimeDifference(tt.from, tt.to); got != tt.want {
			t.Errorf("RawTimeDifference(%q, %q) = %d, want %d", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestRawTimeDifferenceRange(t *testing.T) {
	for a := 0; a < MinutesPerDay; a += 7 {
		for b := 0; b < MinutesPerDay; b += 11 {
			from, to := MinutesToTime(a), MinutesToTime(b)
			got := RawTimeDifference(from, to)
			if got < 0 || got >= MinutesPerDay {
				t.Fatalf("RawTimeDifference(%s, %s) = %d out of range", from, to, got)
			}
			want := b - a
			if b < a {
				want = MinutesPerDay - a + b
			}
			if got != want {
				t.Fatalf("RawTimeDifference(%s, %s) = %d, want %d", from, to, got, want)
			}
		}
	}
}

func TestMinutesToTime(t *testing.T) {
	tests := []struct {
		input int
		want  string
	}{
		{0, "00:00"},
		{90, "01:30"},
		{1439, "23:59"},
		{-90, "01:30"},
		{1500, "25:00"},
	}
	for _, tt := range tests {
		if got := MinutesToTime(tt.input); got != tt.want {
			t.Errorf("MinutesToTime(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTimeDifference(t *testing.T) {
	if got := TimeDifference("23:54", "00:04"); got != "00:10" {
		t.Fatalf("expected 00:10, got %s", got)
	}
}

func TestFormatClock(t *testing.T) {
	if got := FormatClock(8*time.Hour + 5*time.Minute); got != "08:05" {
		t.Fatalf("expected 08:05, got %s", got)
	}
	if got := FormatClock(25*time.Hour + 10*time.Minute); got != "01:10" {
		t.Fatalf("expected wrapped 01:10, got %s", got)
	}
}

func TestValid(t *testing.T) {
	for _, s := range []string{"00:00", "23:59", "7:05"} {
		if !Valid(s) {
			t.Errorf("Valid(%q) = false", s)
		}
	}
	for _, s := range []string{"", "24:00", "12:60", "ab:cd", "-1:00"} {
		if Valid(s) {
			t.Errorf("Valid(%q) = true", s)
		}
	}
}
