package bot

import (
	"strings"
	"time"
)

// shortDate renders t as "20/09/2025 23:00" in loc.
func shortDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format("02/01/2006 15:04")
}

// normalize collapses whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// keyword lower-cases s and drops trailing punctuation for command matching.
func keyword(s string) string {
	return strings.TrimRight(strings.ToLower(normalize(s)), ".!?,;")
}

func oneOf(s string, set ...string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
