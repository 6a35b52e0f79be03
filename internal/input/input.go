// Package input reads the free-form values admins type for events: dates
// in Brazilian or ISO notation and prices with or without the R$ prefix.
// The chat wizard and the HTTP event API share it.
package input

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrBadDate is returned when a date matches none of the accepted forms
	// or names a day that does not exist.
	ErrBadDate = errors.New("unrecognized date")
	// ErrBadPrice is returned for unparsable or negative prices.
	ErrBadPrice = errors.New("unrecognized price")
)

var brDate = regexp.MustCompile(`^(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})(?:\s+(?:às\s+)?(\d{1,2})(?:[:h](\d{2}))?h?)?$`)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
}

var isoLocalLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate reads an event date typed by an admin.  It accepts
// dd/mm/yyyy with an optional hh:mm (separators '/', '-' or '.') and ISO
// 8601.  Inputs without an explicit offset are read in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if loc == nil {
		loc = time.UTC
	}
	if m := brDate.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		hour, minute := 0, 0
		if m[4] != "" {
			hour, _ = strconv.Atoi(m[4])
		}
		if m[5] != "" {
			minute, _ = strconv.Atoi(m[5])
		}
		if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 {
			return time.Time{}, ErrBadDate
		}
		t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
		if t.Day() != day {
			return time.Time{}, ErrBadDate
		}
		return t, nil
	}
	upper := strings.ToUpper(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, upper); err == nil {
			return t, nil
		}
	}
	for _, layout := range isoLocalLayouts {
		if t, err := time.ParseInLocation(layout, upper, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrBadDate
}

var thousandsOnly = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)

// ParsePrice reads a price in Brazilian or plain notation: "60", "60,00",
// "R$ 60", "1.234,50", "1234.5".  Negative prices and exponent forms are
// rejected; the result is rounded to cents.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "gratis", "grátis", "free", "0":
		return decimal.Zero, nil
	}
	s = strings.TrimPrefix(s, "r$")
	s = strings.ReplaceAll(s, " ", "")
	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Contains(s, ","):
		s = strings.Replace(s, ",", ".", 1)
	case thousandsOnly.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}
	// decimal accepts exponents ("1e5"); nobody types a price that way.
	if s == "" || strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrBadPrice
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, ErrBadPrice
	}
	return d.Round(2), nil
}

// FormatPrice renders d as "R$ 1.234,50".
func FormatPrice(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	intPart, frac := fixed, "00"
	if i := strings.IndexByte(fixed, '.'); i >= 0 {
		intPart, frac = fixed[:i], fixed[i+1:]
	}
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return "R$ " + b.String() + "," + frac
}
