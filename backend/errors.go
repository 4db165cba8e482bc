package backend

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a missing or malformed backend setting.
// It is returned before any connection is attempted.
type ConfigurationError struct {
	Backend string
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Setting == "" {
		return fmt.Sprintf("%s backend misconfigured: %s", e.Backend, e.Reason)
	}
	return fmt.Sprintf("%s backend misconfigured: %s %s", e.Backend, e.Setting, e.Reason)
}

// AuthenticationError reports that no usable credential could be obtained.
type AuthenticationError struct {
	Backend string
	Err     error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Backend, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// UnavailableError reports a transport failure or a non-success response
// from a backend. Body carries the raw response body when present.
type UnavailableError struct {
	Backend    string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UnavailableError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s failed", e.Backend, e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": status %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&sb, ": %s", strings.TrimSpace(e.Body))
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
