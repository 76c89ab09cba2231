package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log.
	MaxQueryLogLength = 200
	// RedactedText is the replacement text for sensitive data.
	RedactedText = "[REDACTED]"
)

var (
	// Matches password=xxx, pwd=xxx, pass=xxx in key/value connection strings.
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Matches user:pass@host credentials embedded in URI-style connection strings.
	uriCredsPattern = regexp.MustCompile(`://[^:/@\s]+:[^@\s]+@`)
)

// SanitizeURI removes embedded credentials from a connection URI or DSN.
// Use this before logging any connection string.
func SanitizeURI(uri string) string {
	if uri == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(uri, "${1}="+RedactedText)
	return uriCredsPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
}

// SanitizeError sanitizes error messages that might echo connection strings.
// Driver errors frequently include the DSN that failed to parse or connect.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeURI(err.Error())
}

// SanitizeQuery truncates a SQL statement for logging and strips any
// credential-shaped substrings that leaked into it.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	sanitized := SanitizeURI(query)
	if len(sanitized) > MaxQueryLogLength {
		sanitized = sanitized[:MaxQueryLogLength] + "..."
	}
	return sanitized
}
