// Package isodate implements the broker's strict ISO-8601 subset used for
// all wire-level timestamp fields. Parsing accepts a date-only form and a
// full date-time form with a mandatory zone offset (Z, +HHMM/-HHMM or
// +HH:MM/-HH:MM) and an optional fractional-seconds component restricted to
// 2, 3, or 6 digits; a date-time with no zone is rejected rather than
// assumed UTC. Formatting always renders UTC with either millisecond or
// microsecond precision, matching the two wire representations the broker
// emits.
package isodate

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var pattern = regexp.MustCompile(
	`^(\d{4})-(\d{2})-(\d{2})(?:T(\d{2}):(\d{2}):(\d{2})(?:\.(\d{2}|\d{3}|\d{6}))?(Z|[+-]\d{2}:?\d{2}))?$`,
)

// Parse accepts a date-time in the broker's ISO-8601 subset and returns the
// corresponding instant, truncated to microsecond precision.
func Parse(s string) (time.Time, error) {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("isodate: invalid date-time %q", s)
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])

	if m[4] == "" {
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
	}

	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	second, _ := strconv.Atoi(m[6])

	nanos := 0
	if frac := m[7]; frac != "" {
		for len(frac) < 9 {
			frac += "0"
		}
		n, err := strconv.Atoi(frac[:9])
		if err != nil {
			return time.Time{}, fmt.Errorf("isodate: invalid fraction in %q", s)
		}
		nanos = n - n%1000 // truncate to microsecond precision
	}

	loc, err := parseZone(m[8], s)
	if err != nil {
		return time.Time{}, err
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, nanos, loc), nil
}

func parseZone(zone, original string) (*time.Location, error) {
	if zone == "" || zone == "Z" {
		return time.UTC, nil
	}

	sign := 1
	if zone[0] == '-' {
		sign = -1
	}
	digits := zone[1:]
	if len(digits) == 5 && digits[2] == ':' {
		digits = digits[:2] + digits[3:]
	}
	if len(digits) != 4 {
		return nil, fmt.Errorf("isodate: invalid zone offset in %q", original)
	}

	hours, err := strconv.Atoi(digits[:2])
	if err != nil {
		return nil, fmt.Errorf("isodate: invalid zone offset in %q", original)
	}
	minutes, err := strconv.Atoi(digits[2:])
	if err != nil {
		return nil, fmt.Errorf("isodate: invalid zone offset in %q", original)
	}
	if hours > 23 || minutes > 59 {
		return nil, fmt.Errorf("isodate: invalid zone offset in %q", original)
	}

	return time.FixedZone("", sign*(hours*3600+minutes*60)), nil
}

// ParseMicros parses s and returns microseconds since the Unix epoch. An
// unparseable value yields zero rather than an error, mirroring the
// best-effort helper the broker uses when a caller has already validated
// the field shape upstream.
func ParseMicros(s string) int64 {
	t, err := Parse(s)
	if err != nil {
		return 0
	}
	return t.UnixMicro()
}

// FormatMicros renders epoch microseconds as a UTC ISO-8601 string with
// microsecond precision, e.g. "2021-02-11T11:17:43.123456Z".
func FormatMicros(epochMicros int64) string {
	t := time.UnixMicro(epochMicros).UTC()
	return fmt.Sprintf("%s.%06dZ", t.Format("2006-01-02T15:04:05"), t.Nanosecond()/1000)
}

// FormatMillis renders epoch microseconds as a UTC ISO-8601 string with
// millisecond precision, e.g. "2021-02-11T11:17:43.123Z".
func FormatMillis(epochMicros int64) string {
	t := time.UnixMicro(epochMicros).UTC()
	return fmt.Sprintf("%s.%03dZ", t.Format("2006-01-02T15:04:05"), t.Nanosecond()/1000000)
}
