package observability

import (
	"regexp"
	"strings"
	"unicode"
)

const defaultStringLimit = 256

// Bot API request URLs embed the token as a path segment.
var botTokenPattern = regexp.MustCompile(`/bot\d+:[\w-]+`)

// sanitizeString trims unwanted characters and limits string length to avoid log injection.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}

	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := []rune(b.String())
	if len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return string(cleaned)
}

// SanitizeRoute removes control characters and enforces length constraints on routes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod removes control characters in HTTP methods.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeUserID limits potential identifiers to reduce PII leakage in logs.
func SanitizeUserID(uid string) string {
	if len(uid) == 0 {
		return ""
	}
	return sanitizeString(uid, 64)
}

// RedactBotToken masks the Telegram bot token in error strings. Transport
// errors from the bot API carry the full request URL, token included.
func RedactBotToken(value string) string {
	return sanitizeString(botTokenPattern.ReplaceAllString(value, "/bot[REDACTED]"), 512)
}
