package utils

import (
	"strings"
	"time"
)

func StrOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// StrPtr returns nil for blank input.
func StrPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func ParseYMD(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	// strip time to midnight UTC to match DATE semantics
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ParseDateRange parses optional YYYY-MM-DD bounds. The upper bound is moved to the end of its day.
func ParseDateRange(from, to string) (*time.Time, *time.Time, error) {
	var lo, hi *time.Time
	if from != "" {
		t, err := ParseYMD(from)
		if err != nil {
			return nil, nil, err
		}
		lo = &t
	}
	if to != "" {
		t, err := ParseYMD(to)
		if err != nil {
			return nil, nil, err
		}
		t = t.Add(24*time.Hour - time.Nanosecond)
		hi = &t
	}
	return lo, hi, nil
}
