package source

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Layouts vendor exports use for timestamps, tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseTime reads the timestamp formats found in vendor exports: ISO-8601
// variants, SQL datetimes, day-first then month-first dates, written-out
// dates and Unix epochs (Slack's "1700000000.000100"). Times without a zone
// are taken as UTC. ok is false when nothing fits.
func ParseTime(raw string) (t time.Time, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if epoch, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "-/") {
		return fromEpoch(epoch)
	}

	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// fromEpoch accepts seconds or milliseconds since the epoch.
func fromEpoch(v float64) (time.Time, bool) {
	if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return time.Time{}, false
	}
	if v > 1e11 {
		v /= 1000
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}
