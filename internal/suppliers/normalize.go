package suppliers

import (
	"strconv"
	"strings"
	"unicode"
)

// optional returns nil for blank strings so absent upstream fields stay absent.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// optionalPtr is optional for fields that were already pointers in the response schema.
func optionalPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return optional(*s)
}

// parsePrice parses a supplier price string such as "$1,234.50", "0,45 €" or "0.1".
// Currency symbols and whitespace are dropped. When only commas are present, a single
// comma followed by anything but three digits is taken as the decimal separator.
func parsePrice(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseCount parses stock strings such as "12,345" or "1234 In Stock".
func parseCount(raw string) *int64 {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		} else if r != ',' && b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return nil
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// inactiveStatus reports whether a lifecycle status marks a part as no longer sold.
func inactiveStatus(status string) bool {
	s := strings.ToLower(status)
	for _, marker := range []string{"obsolete", "discontinued", "end of life"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
