package notify

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	maxTitleRunes = 100
	maxBodyRunes  = 300

	// safeTarget replaces any navigation target that fails validation.
	safeTarget = "/"
)

var markupPattern = regexp.MustCompile(`<[^>]*>`)

// sanitizeText strips markup, collapses surrounding whitespace and caps the
// length in runes. Upstream payloads are untrusted.
func sanitizeText(s string, maxRunes int) string {
	s = markupPattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	runes := []rune(s)
	if len(runes) > maxRunes {
		s = string(runes[:maxRunes-1]) + "…"
	}
	return s
}

// sanitizeTarget accepts only known-safe navigation targets: a relative path
// within the app, or an absolute URL on the configured origin. Anything else
// collapses to the root path.
func sanitizeTarget(target, origin string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return safeTarget
	}

	// Relative path, but not scheme-relative ("//evil.example").
	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") {
		return target
	}

	if origin != "" {
		parsed, err := url.Parse(target)
		if err == nil && parsed.IsAbs() {
			base, baseErr := url.Parse(origin)
			if baseErr == nil && parsed.Scheme == base.Scheme && parsed.Host == base.Host {
				result := parsed.Path
				if result == "" {
					result = safeTarget
				}
				if parsed.RawQuery != "" {
					result += "?" + parsed.RawQuery
				}
				return result
			}
		}
	}

	return safeTarget
}
