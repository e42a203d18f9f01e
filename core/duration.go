package core

import (
	"regexp"
	"strconv"
	"time"
)

// DefaultWindow is returned for malformed duration strings. The permissive
// fallback is intentional: one bad rule must not halt evaluation of others.
// The API layer logs a warning at rule-write time instead of rejecting.
const DefaultWindow = time.Hour

var windowPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseWindow parses compact duration strings ("30s", "5m", "1h", "2d").
// Malformed input does not fail; it returns DefaultWindow.
func ParseWindow(s string) time.Duration {
	m := windowPattern.FindStringSubmatch(s)
	if m == nil {
		return DefaultWindow
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		// digits too large for int64
		return DefaultWindow
	}
	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second
	case "m":
		return time.Duration(n) * time.Minute
	case "h":
		return time.Duration(n) * time.Hour
	case "d":
		return time.Duration(n) * 24 * time.Hour
	}
	return DefaultWindow
}

// IsValidWindow reports whether s parses without hitting the fallback.
// Used by the API layer to warn operators about silently-defaulted rules.
func IsValidWindow(s string) bool {
	return windowPattern.MatchString(s)
}
