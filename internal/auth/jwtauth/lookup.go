package jwtauth

import (
	"net/http"
	"strings"

	"github.com/gqlgate/gqlgate/internal/config"
	"github.com/gqlgate/gqlgate/internal/observability"
)

// locator extracts a raw token from a request by trying the configured
// lookup locations in order. The first location that yields a value wins.
type locator struct {
	rules  []config.LookupLocation
	logger observability.Logger
}

// locate returns the raw token or a lookup failure. A header present with a
// non-matching prefix fails immediately with a prefix mismatch; an absent
// value at any rule falls through to the next one.
func (l *locator) locate(r *http.Request) (string, *LookupError) {
	sawDecodeFailure := false

	for _, rule := range l.rules {
		switch rule.In {
		case config.LookupInHeader:
			value := r.Header.Get(rule.Name)
			if value == "" {
				continue
			}
			if !isHeaderSafe(value) {
				// Fail open per source: skip the rule, keep the reason.
				l.logger.Warn("failed to decode header value, ignoring rule",
					observability.String("header", rule.Name),
				)
				sawDecodeFailure = true
				continue
			}
			if rule.Prefix != "" {
				stripped, ok := strings.CutPrefix(value, rule.Prefix)
				if !ok {
					return "", &LookupError{Reason: ReasonPrefixMismatch}
				}
				return strings.TrimSpace(stripped), nil
			}
			// Only the prefix-stripped branch trims; a bare header value
			// is returned verbatim.
			return value, nil

		case config.LookupInQueryParam:
			if values, ok := r.URL.Query()[rule.Name]; ok && len(values) > 0 {
				return values[0], nil
			}

		case config.LookupInCookie:
			if value, ok := l.lookupCookie(r, rule.Name); ok {
				return value, nil
			}
		}
	}

	if sawDecodeFailure {
		return "", &LookupError{Reason: ReasonHeaderDecode}
	}
	return "", &LookupError{Reason: ReasonNotFound}
}

// lookupCookie scans the Cookie header for a cookie with the given name.
// Segments that fail to parse are logged and skipped; they never abort the
// whole lookup.
func (l *locator) lookupCookie(r *http.Request, name string) (string, bool) {
	raw := r.Header.Get("Cookie")
	if raw == "" {
		return "", false
	}

	for _, segment := range strings.Split(raw, ";") {
		cookieName, cookieValue, err := parseCookieSegment(segment)
		if err != nil {
			l.logger.Warn("failed to parse cookie, ignoring it",
				observability.Error(err),
			)
			continue
		}
		if cookieName == name {
			return cookieValue, true
		}
	}

	return "", false
}

// parseCookieSegment parses one name=value segment of a Cookie header.
func parseCookieSegment(segment string) (name, value string, err error) {
	segment = strings.TrimSpace(segment)
	name, value, found := strings.Cut(segment, "=")
	name = strings.TrimSpace(name)
	if !found || name == "" {
		return "", "", &cookieParseError{segment: segment}
	}
	value = strings.TrimSpace(value)
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}
	return name, value, nil
}

type cookieParseError struct {
	segment string
}

func (e *cookieParseError) Error() string {
	return "malformed cookie segment"
}

// isHeaderSafe reports whether a header value consists only of visible
// ASCII and spaces, matching the transport's header grammar.
func isHeaderSafe(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b < 0x20 && b != '\t' {
			return false
		}
		if b >= 0x7f {
			return false
		}
	}
	return true
}
