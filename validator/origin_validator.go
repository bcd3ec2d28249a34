package validator

import (
	"fmt"
	"net/url"
	"strings"
)

// IOriginValidator checks and normalizes the origin an envelope claims to
// come from. Origins are scheme+host+port only; anything carrying a path,
// query or credentials is rejected rather than silently stripped.
type IOriginValidator interface {
	Validate(origin string) (string, error)
}

type OriginValidator struct {
	allowInsecure bool
}

var _ IOriginValidator = (*OriginValidator)(nil)

func NewOriginValidator(allowInsecure bool) *OriginValidator {
	return &OriginValidator{allowInsecure: allowInsecure}
}

func (v *OriginValidator) Validate(origin string) (string, error) {
	if origin == "" {
		return "", fmt.Errorf("empty origin")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin %q: %w", origin, err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !v.allowInsecure {
			return "", fmt.Errorf("insecure origin %q not allowed", origin)
		}
	default:
		return "", fmt.Errorf("origin %q: unsupported scheme %q", origin, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}
	if u.User != nil {
		return "", fmt.Errorf("origin %q carries credentials", origin)
	}
	if u.Path != "" && u.Path != "/" {
		return "", fmt.Errorf("origin %q carries a path", origin)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("origin %q carries query or fragment", origin)
	}
	return u.Scheme + "://" + strings.ToLower(u.Host), nil
}
