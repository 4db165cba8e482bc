package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// CLIHandler handles CLI commands for credential management
type CLIHandler struct {
	manager *Manager
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

// NewCLIHandler creates a new CLI handler for credential commands
func NewCLIHandler(manager *Manager, stdin io.Reader, stdout, stderr io.Writer) *CLIHandler {
	return &CLIHandler{
		manager: manager,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}
}

// Set prompts for a backend's API token and stores it in the keyring
func (h *CLIHandler) Set(ctx context.Context, backend string) error {
	secret, err := PromptSecret(h.stdin, h.stdout, backend+" API token")
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if secret == "" {
		return fmt.Errorf("token must not be empty")
	}

	if err := h.manager.Set(ctx, backend, DefaultAccount, secret); err != nil {
		if errors.Is(err, ErrKeyringNotAvailable) {
			return h.keyringNotAvailableError(backend)
		}
		return fmt.Errorf("failed to store token: %w", err)
	}

	_, _ = fmt.Fprintf(h.stdout, "Token stored in system keyring\n")
	return nil
}

// keyringNotAvailableError explains the environment variable alternative
func (h *CLIHandler) keyringNotAvailableError(backend string) error {
	return fmt.Errorf(`system keyring not available.

Alternative: set the token in the environment instead:
  export %s="your-api-token"

Run 'vibe credentials list' to verify the token is detected`, EnvVar(backend))
}

// Get displays where a backend's token comes from, never the token itself
func (h *CLIHandler) Get(ctx context.Context, backend string, jsonOutput bool) error {
	info, err := h.manager.Get(ctx, backend, DefaultAccount)
	if err != nil {
		return fmt.Errorf("failed to get credentials: %w", err)
	}

	if jsonOutput {
		b, err := info.JSON()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(h.stdout, string(b))
		return nil
	}

	if !info.Found {
		_, _ = fmt.Fprintf(h.stdout, "No token found for %s\n", info.Backend)
		_, _ = fmt.Fprintf(h.stdout, "Searched:\n")
		_, _ = fmt.Fprintf(h.stdout, "  - System keyring: Not found\n")
		_, _ = fmt.Fprintf(h.stdout, "  - Environment variable %s: Not set\n", EnvVar(info.Backend))
		_, _ = fmt.Fprintf(h.stdout, "\nSuggestion: Run 'vibe credentials set %s'\n", info.Backend)
		return nil
	}

	_, _ = fmt.Fprintf(h.stdout, "Backend: %s\n", info.Backend)
	_, _ = fmt.Fprintf(h.stdout, "Source: %s\n", info.Source)
	_, _ = fmt.Fprintf(h.stdout, "Token: ******** (hidden)\n")
	return nil
}

// Delete removes a backend's token from the keyring
func (h *CLIHandler) Delete(ctx context.Context, backend string) error {
	if err := h.manager.Delete(ctx, backend, DefaultAccount); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	_, _ = fmt.Fprintf(h.stdout, "Token removed from system keyring\n")
	return nil
}

// List displays token status for the given backends
func (h *CLIHandler) List(ctx context.Context, backends []string, jsonOutput bool) error {
	statuses, err := h.manager.ListBackends(ctx, backends)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	if jsonOutput {
		type statusJSON struct {
			Backend        string `json:"backend"`
			HasCredentials bool   `json:"has_credentials"`
			Source         string `json:"source,omitempty"`
		}
		output := make([]statusJSON, 0, len(statuses))
		for _, s := range statuses {
			entry := statusJSON{Backend: s.Backend, HasCredentials: s.HasCredentials}
			if s.HasCredentials {
				entry.Source = string(s.Source)
			}
			output = append(output, entry)
		}
		b, err := json.Marshal(output)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(h.stdout, string(b))
		return nil
	}

	_, _ = fmt.Fprintf(h.stdout, "%-12s %-15s %s\n", "BACKEND", "STATUS", "SOURCE")
	for _, s := range statuses {
		status, source := "Not configured", "-"
		if s.HasCredentials {
			status, source = "Available", string(s.Source)
		}
		_, _ = fmt.Fprintf(h.stdout, "%-12s %-15s %s\n", s.Backend, status, source)
	}
	return nil
}
