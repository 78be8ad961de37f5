package search

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeDate = regexp.MustCompile(`^(\d+)\s+(minute|hour|day|week|month|year)s?\s+ago$`)

var absoluteLayouts = []string{
	time.RFC3339,
	time.DateOnly,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02/01/2006",
	"Jan 2006",
}

// ParseDate understands the relative ("3 days ago") and absolute date strings
// search APIs attach to results. It returns nil when the value is unparseable.
func ParseDate(raw string, now time.Time) *time.Time {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return nil
	}
	switch s {
	case "today", "just now":
		t := now
		return &t
	case "yesterday":
		t := now.AddDate(0, 0, -1)
		return &t
	}
	if m := relativeDate.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		var t time.Time
		switch m[2] {
		case "minute":
			t = now.Add(-time.Duration(n) * time.Minute)
		case "hour":
			t = now.Add(-time.Duration(n) * time.Hour)
		case "day":
			t = now.AddDate(0, 0, -n)
		case "week":
			t = now.AddDate(0, 0, -7*n)
		case "month":
			t = now.AddDate(0, -n, 0)
		case "year":
			t = now.AddDate(-n, 0, 0)
		}
		return &t
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
