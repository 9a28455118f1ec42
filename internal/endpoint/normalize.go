package endpoint

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrEmptyURL is returned by Validate for empty or whitespace-only input.
var ErrEmptyURL = errors.New("endpoint: url must not be empty")

// ErrDuplicateURL is returned when the normalized URL is already a candidate.
var ErrDuplicateURL = errors.New("endpoint: url already present")

// InvalidURLError reports a candidate that failed parsing or scheme checks.
type InvalidURLError struct {
	Raw    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("endpoint: invalid url %q: %s", e.Raw, e.Reason)
}

// Normalize trims surrounding whitespace and strips every trailing slash.
// Normalize(Normalize(u)) == Normalize(u) for all u.
func Normalize(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// Validate normalizes raw and parses it as an absolute http or https URL.
func Validate(raw string) (*url.URL, error) {
	n := Normalize(raw)
	if n == "" {
		if strings.TrimSpace(raw) == "" {
			return nil, ErrEmptyURL
		}
		return nil, &InvalidURLError{Raw: raw, Reason: "no host"}
	}

	u, err := url.Parse(n)
	if err != nil {
		return nil, &InvalidURLError{Raw: raw, Reason: err.Error()}
	}
	if !u.IsAbs() {
		return nil, &InvalidURLError{Raw: raw, Reason: "not an absolute url"}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, &InvalidURLError{Raw: raw, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &InvalidURLError{Raw: raw, Reason: "no host"}
	}
	return u, nil
}

// IsInvalid reports whether err is an input error produced by Validate.
func IsInvalid(err error) bool {
	var inv *InvalidURLError
	return errors.Is(err, ErrEmptyURL) || errors.As(err, &inv)
}
