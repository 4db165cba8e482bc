package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrTaskNotFound returns an error for when a task is not found.
func ErrTaskNotFound(id string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task not found: %s", id),
		Suggestion: "Use 'vibe list' to see all task IDs",
	}
}

// ErrBackendNotConfigured returns an error when a backend setting is missing.
func ErrBackendNotConfigured(name string, cause error) error {
	return &ErrorWithSuggestion{
		Err:        cause,
		Suggestion: fmt.Sprintf("Run 'vibe config set-backend %s' or edit the backend.%s section of your config file", name, name),
	}
}

// ErrBackendOffline returns an error when a backend is unreachable with smart suggestions.
func ErrBackendOffline(name string, cause error) error {
	return &ErrorWithSuggestion{
		Err:        cause,
		Suggestion: getSmartSuggestion(cause.Error()),
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the server is running and accessible"
	}

	if strings.Contains(lowerReason, "timeout") {
		return "The server may be slow or unreachable. Try again later"
	}

	if strings.Contains(lowerReason, "status 401") || strings.Contains(lowerReason, "status 403") {
		return "Check that your token is valid and has access to the database or list"
	}

	return "Check your internet connection and try again"
}

// ErrInvalidPriority returns an error for an invalid priority value.
func ErrInvalidPriority(priority string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid priority: %s", priority),
		Suggestion: "Valid options: low, medium, high, urgent",
	}
}

// ErrInvalidDate returns an error for an invalid date string.
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid date: %s", dateStr),
		Suggestion: "Use YYYY-MM-DD, a full ISO-8601 timestamp, or a relative date like today, tomorrow, +3d",
	}
}

// ErrInvalidDuration returns an error for an unparseable time-spent input.
func ErrInvalidDuration(input string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid duration: %q", input),
		Suggestion: "Use minutes (90), hours (1.5h), or both (2h30m)",
	}
}

// ErrInvalidStatus returns an error for an invalid status with valid options.
func ErrInvalidStatus(status string, valid []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid status: %s", status),
		Suggestion: fmt.Sprintf("Valid options: %s", strings.Join(valid, ", ")),
	}
}

// ErrAuthenticationFailed returns an error when authentication fails.
func ErrAuthenticationFailed(backend string, cause error) error {
	return &ErrorWithSuggestion{
		Err:        cause,
		Suggestion: fmt.Sprintf("Verify your %s credentials are correct and have not expired", backend),
	}
}

// ErrNoTasksSelected is returned by batch commands given no IDs.
var ErrNoTasksSelected = errors.New("no task IDs given")
