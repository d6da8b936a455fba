package authapi

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeBaseURL trims the configured base URL and defaults the scheme
// to https. Users routinely paste bare hostnames into settings.
func NormalizeBaseURL(baseURL string) (string, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return "", &APIError{Message: "baseUrl is blank"}
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return "", &APIError{Message: fmt.Sprintf("invalid baseUrl: %s", baseURL)}
	}
	return strings.TrimRight(parsed.String(), "/"), nil
}
