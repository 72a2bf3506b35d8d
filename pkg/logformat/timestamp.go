package logformat

import (
	"regexp"
	"strconv"
	"time"
)

// CanonicalTimeLayout is the display form timestamps are rewritten to.
const CanonicalTimeLayout = "2006-01-02 15:04:05.000"

// FormatCanonical renders a timestamp in the canonical display form (UTC).
func FormatCanonical(t time.Time) string {
	return t.UTC().Format(CanonicalTimeLayout)
}

// TimestampParser detects and parses timestamps from log lines
type TimestampParser struct {
	patterns []timestampPattern
}

type timestampPattern struct {
	regex   *regexp.Regexp
	layout  string
	machine bool
}

// NewTimestampParser creates a parser with common timestamp formats
func NewTimestampParser() *TimestampParser {
	return &TimestampParser{
		patterns: []timestampPattern{
			// ISO 8601 / RFC 3339 variants
			// 2024-01-15T10:30:45.123Z
			{
				regex:  regexp.MustCompile(`(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d{3})?(?:Z|[+-]\d{2}:\d{2})?)`),
				layout: time.RFC3339,
			},
			// Common log format with milliseconds
			// 2024-01-15 10:30:45.123
			{
				regex:  regexp.MustCompile(`(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3})`),
				layout: "2006-01-02 15:04:05.000",
			},
			// Common log format without milliseconds
			{
				regex:  regexp.MustCompile(`(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})`),
				layout: "2006-01-02 15:04:05",
			},
			// Syslog format
			// Jan 15 10:30:45
			{
				regex:  regexp.MustCompile(`([A-Z][a-z]{2} {1,2}\d{1,2} \d{2}:\d{2}:\d{2})`),
				layout: "Jan 2 15:04:05",
			},
			// Apache/nginx common log format
			// 15/Jan/2024:10:30:45 +0000
			{
				regex:  regexp.MustCompile(`(\d{2}/[A-Z][a-z]{2}/\d{4}:\d{2}:\d{2}:\d{2} [+-]\d{4})`),
				layout: "02/Jan/2006:15:04:05 -0700",
			},
			// Unix timestamp with milliseconds
			// 1705315845123
			{
				regex:   regexp.MustCompile(`^(\d{13})(?:\D|$)`),
				layout:  "unix_ms",
				machine: true,
			},
			// Unix timestamp (seconds)
			// 1705315845
			{
				regex:   regexp.MustCompile(`^(\d{10})(?:\D|$)`),
				layout:  "unix",
				machine: true,
			},
			// Bracket format common in many loggers
			// [2024-01-15 10:30:45.123]
			{
				regex:  regexp.MustCompile(`\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:\.\d{3})?)\]`),
				layout: "2006-01-02 15:04:05.000",
			},
			// Time only (assume today)
			{
				regex:  regexp.MustCompile(`^(\d{2}:\d{2}:\d{2}(?:\.\d{3})?)`),
				layout: "15:04:05.000",
			},
		},
	}
}

// Timestamp is a parsed timestamp and where it was found in the line.
type Timestamp struct {
	Time    time.Time
	Start   int
	End     int
	Machine bool
}

// Parse attempts to extract a timestamp from a log line
func (p *TimestampParser) Parse(content []byte) (Timestamp, bool) {
	line := string(content)

	for _, pattern := range p.patterns {
		loc := pattern.regex.FindStringSubmatchIndex(line)
		if loc == nil || loc[2] < 0 {
			continue
		}

		start, end := loc[2], loc[3]
		timeStr := line[start:end]

		if pattern.layout == "unix" || pattern.layout == "unix_ms" {
			n, err := strconv.ParseInt(timeStr, 10, 64)
			if err != nil {
				continue
			}
			var t time.Time
			if pattern.layout == "unix" {
				t = time.Unix(n, 0)
			} else {
				t = time.UnixMilli(n)
			}
			return Timestamp{Time: t, Start: start, End: end, Machine: true}, true
		}

		layouts := []string{pattern.layout}
		if pattern.layout == "2006-01-02 15:04:05.000" {
			layouts = append(layouts, "2006-01-02 15:04:05")
		}
		if pattern.layout == "15:04:05.000" {
			layouts = append(layouts, "15:04:05")
		}

		for _, layout := range layouts {
			t, err := time.Parse(layout, timeStr)
			if err != nil {
				continue
			}
			if layout == "15:04:05" || layout == "15:04:05.000" {
				now := time.Now()
				t = time.Date(now.Year(), now.Month(), now.Day(),
					t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
			}
			if layout == "Jan 2 15:04:05" {
				t = time.Date(time.Now().Year(), t.Month(), t.Day(),
					t.Hour(), t.Minute(), t.Second(), 0, time.Local)
			}
			return Timestamp{Time: t, Start: start, End: end, Machine: pattern.machine}, true
		}
	}

	return Timestamp{}, false
}
