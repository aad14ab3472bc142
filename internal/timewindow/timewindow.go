package timewindow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/bookcal/internal/logging"
)

const secondsPerDay = 24 * 60 * 60

// TimeOfDay is a wall-clock time expressed as seconds since midnight.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from its components.
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// Clock returns the hour, minute and second components.
func (t TimeOfDay) Clock() (hour, minute, second int) {
	s := int(t)
	return s / 3600, (s % 3600) / 60, s % 60
}

// String formats t as HH:MM:SS.
func (t TimeOfDay) String() string {
	h, m, s := t.Clock()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Add returns t shifted by d, truncated to whole seconds.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return t + TimeOfDay(d/time.Second)
}

// Of returns the wall-clock time of day of ts in its own location.
func Of(ts time.Time) TimeOfDay {
	return NewTimeOfDay(ts.Hour(), ts.Minute(), ts.Second())
}

// TimeRange is a half-open time-of-day interval [Start, End).
type TimeRange struct {
	Start TimeOfDay
	End   TimeOfDay
}

// String formats r as HH:MM-HH:MM.
func (r TimeRange) String() string {
	return r.Start.String()[:5] + "-" + r.End.String()[:5]
}

// JoinRanges formats ranges as a comma separated list.
func JoinRanges(ranges []TimeRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// Contains reports whether t lies inside the half-open range.
func (r TimeRange) Contains(t TimeOfDay) bool {
	return r.Start <= t && t < r.End
}

// ParseTimeOfDay parses HH:MM or HH:MM:SS.
func ParseTimeOfDay(text string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM or HH:MM:SS", text)
	}

	limits := []int{23, 59, 59}
	values := make([]int, 3)
	for i, p := range parts {
		if p == "" || len(p) > 2 {
			return 0, fmt.Errorf("invalid time of day %q", text)
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q", text)
		}
		values[i] = v
	}

	return NewTimeOfDay(values[0], values[1], values[2]), nil
}

// ParseRange parses a "HH:MM-HH:MM" range. Both sides also accept seconds.
// Inverted or empty ranges are rejected.
func ParseRange(text string) (TimeRange, error) {
	startText, endText, ok := strings.Cut(text, "-")
	if !ok || strings.Contains(endText, "-") {
		return TimeRange{}, fmt.Errorf("invalid time range %q: expected HH:MM-HH:MM", text)
	}

	start, err := ParseTimeOfDay(startText)
	if err != nil {
		return TimeRange{}, fmt.Errorf("invalid time range %q: %w", text, err)
	}
	end, err := ParseTimeOfDay(endText)
	if err != nil {
		return TimeRange{}, fmt.Errorf("invalid time range %q: %w", text, err)
	}
	if start >= end {
		return TimeRange{}, fmt.Errorf("invalid time range %q: start must be before end", text)
	}

	return TimeRange{Start: start, End: end}, nil
}

// ParseRanges parses every entry, dropping malformed ones with a warning so a
// single bad entry never blocks the rest.
func ParseRanges(logger logging.Logger, texts []string) []TimeRange {
	ranges := make([]TimeRange, 0, len(texts))
	for _, text := range texts {
		r, err := ParseRange(text)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping malformed time range", "range", text, logging.KeyError, err.Error())
			}
			continue
		}
		ranges = append(ranges, r)
	}
	return ranges
}

// GenerateSlots walks each range from its start in interval steps and emits
// every slot start whose full interval still fits before the range end.
// Ranges are processed in the order given; the output is neither sorted nor
// deduplicated across overlapping ranges.
func GenerateSlots(ranges []TimeRange, interval time.Duration) []TimeOfDay {
	step := TimeOfDay(interval / time.Second)
	if step <= 0 {
		return nil
	}

	var slots []TimeOfDay
	for _, r := range ranges {
		for current := r.Start; current+step <= r.End && current < secondsPerDay; current += step {
			slots = append(slots, current)
		}
	}
	return slots
}

// IsBlocked reports whether t falls inside any blocked range.
// A slot exactly at a block's end is not blocked.
func IsBlocked(t TimeOfDay, blocked []TimeRange) bool {
	for _, b := range blocked {
		if b.Contains(t) {
			return true
		}
	}
	return false
}

// FormatTwelveHour converts "HH:MM:SS" to "hh:mm AM/PM".
// Input that does not parse is returned unchanged.
func FormatTwelveHour(hour string) string {
	t, err := time.Parse("15:04:05", hour)
	if err != nil {
		return hour
	}
	return t.Format("03:04 PM")
}
