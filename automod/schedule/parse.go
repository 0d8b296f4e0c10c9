package schedule

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var delayRegex = regexp.MustCompile(`^(\d+)(s|m|h|d)$`)

var delayUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// Parses short relative durations like "30s", "10m", "2h", or "1d".
func ParseDelay(raw string) (time.Duration, error) {
	m := delayRegex.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, invalid("delay", "expected a number followed by s, m, h, or d (eg, 10m); got %q", raw)
	}
	v, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, invalid("delay", "bad number %q", m[1])
	}
	unit := delayUnits[m[2]]
	if v > math.MaxInt64/int64(unit) {
		return 0, invalid("delay", "%q is too large", raw)
	}
	d := time.Duration(v) * unit
	if d <= 0 {
		return 0, invalid("delay", "must be positive")
	}
	return d, nil
}

// Resolves either a relative delay ("10m") or an absolute date/time ("2024-03-01 15:04") into a delay from `now`.
//
// Absolute times without a zone are interpreted in the location of `now`. Times at or before `now` are rejected.
func ParseWhen(raw string, now time.Time) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if delayRegex.MatchString(raw) {
		return ParseDelay(raw)
	}
	t, err := dateparse.ParseIn(raw, now.Location())
	if err != nil {
		return 0, invalid("when", "unrecognized time %q", raw)
	}
	d := t.Sub(now)
	if d <= 0 {
		return 0, invalid("when", "%s is not in the future", t.Format(time.RFC3339))
	}
	return d, nil
}
