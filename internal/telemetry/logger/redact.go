package logger

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redacted replaces masked values.
const Redacted = "REDACTED"

// Values logged under keys containing one of these are masked whole.
var secretKeys = []string{"password", "secret"}

// userinfo matches the "user:pass@" part of a URL, scheme kept.
var userinfo = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^/?#@\s]+@`)

// RedactURLs masks the userinfo of every URL in s. Peer URLs may carry
// credentials and show up in dial errors.
func RedactURLs(s string) string {
	if !strings.Contains(s, "@") {
		return s
	}
	return userinfo.ReplaceAllString(s, "${1}"+Redacted+"@")
}

// redact masks secret-keyed strings and URL credentials in strings and
// errors. Groups are walked by the handlers, so a is always a leaf.
func redact(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if s != "" && isSecretKey(a.Key) {
			return slog.String(a.Key, Redacted)
		}
		if r := RedactURLs(s); r != s {
			return slog.String(a.Key, r)
		}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			msg := err.Error()
			if r := RedactURLs(msg); r != msg {
				return slog.String(a.Key, r)
			}
		}
	}
	return a
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range secretKeys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}
