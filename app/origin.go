package huddle

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// originChecker returns the websocket origin policy for the allowed origins.
// "*" allows every origin. Requests without an Origin header come from non-browser clients and are allowed.
func originChecker(origins []string, logger *zap.Logger) func(r *http.Request) bool {
	allowed, allowAll := normalizeOrigins(origins, logger)
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		normalized, ok := normalizeOrigin(origin)
		if !ok {
			return false
		}
		return slices.Contains(allowed, normalized)
	}
}

func normalizeOrigins(origins []string, logger *zap.Logger) ([]string, bool) {
	normalized := make([]string, 0, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			allowAll = true
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("ignoring invalid origin in configuration", zap.String("origin", origin))
			continue
		}

		normalized = append(normalized, normalizedOrigin)
	}

	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
