package corexpr

import "time"

// parseDuration parses a timeout attribute string using the standard
// library's duration grammar ("1s", "500ms", …), matching the teacher's
// own use of time.Duration-typed retry/backoff fields throughout
// RetryPolicy.
func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
