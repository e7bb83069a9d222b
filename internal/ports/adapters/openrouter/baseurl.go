package openrouter

import (
	"fmt"
	"net/url"
	"strings"
)

const DefaultBaseURL = "https://openrouter.ai"

var defaultAllowedHosts = map[string]struct{}{
	"openrouter.ai":     {},
	"api.openrouter.ai": {},
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// ValidateBaseURL accepts only absolute https URLs without credentials or
// query whose host is in allowedHosts (the public API hosts when empty).
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	u, err := url.Parse(normalizeBaseURL(baseURL))
	if err != nil {
		return fmt.Errorf("openrouter base url: %w", err)
	}
	bad := func(reason string) error {
		return fmt.Errorf("openrouter base url %q: %s", u.Redacted(), reason)
	}
	switch {
	case !u.IsAbs() || u.Hostname() == "":
		return bad("absolute URL with host is required")
	case u.User != nil:
		return bad("userinfo is not allowed")
	case u.RawQuery != "" || u.Fragment != "":
		return bad("query and fragment are not allowed")
	case !strings.EqualFold(u.Scheme, "https"):
		return bad("https is required")
	}

	host := strings.ToLower(u.Hostname())
	if _, ok := normalizeAllowedHosts(allowedHosts)[host]; !ok {
		return bad(fmt.Sprintf("host %q is not allowed", host))
	}
	return nil
}

// normalizeAllowedHosts strips schemes, ports and slashes from configured
// host entries.
func normalizeAllowedHosts(allowedHosts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		v = strings.Trim(v, "/")
		if i := strings.Index(v, ":"); i >= 0 {
			v = v[:i]
		}
		if v != "" {
			out[v] = struct{}{}
		}
	}
	if len(out) == 0 {
		return defaultAllowedHosts
	}
	return out
}
