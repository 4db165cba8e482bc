// Package credentials provides secure secret storage and retrieval for remote
// backends (Notion, Microsoft To Do) using OS-native keyrings with fallback to
// environment variables.
package credentials

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Source indicates where a secret was retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// DefaultAccount is the keyring account used for a backend's API token
const DefaultAccount = "token"

// CredentialInfo contains credential information returned by Get()
type CredentialInfo struct {
	Source  Source // Where the secret came from
	Backend string // Backend name (e.g., "notion")
	Account string // Keyring account within the backend's service
	Secret  string // Never printed
	Found   bool   // Whether a secret was found
}

// JSON serializes the credential info to JSON (secret excluded)
func (c *CredentialInfo) JSON() ([]byte, error) {
	output := struct {
		Backend string `json:"backend"`
		Account string `json:"account"`
		Source  string `json:"source"`
		Found   bool   `json:"found"`
	}{
		Backend: c.Backend,
		Account: c.Account,
		Source:  string(c.Source),
		Found:   c.Found,
	}
	return json.Marshal(output)
}

// BackendStatus represents the credential status for a backend
type BackendStatus struct {
	Backend        string
	HasCredentials bool
	Source         Source
}

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, secret string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager handles credential operations
type Manager struct {
	keyring Keyring
	getenv  func(string) string
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// WithEnv sets the environment lookup function (os.Getenv by default)
func WithEnv(getenv func(string) string) ManagerOption {
	return func(m *Manager) {
		m.getenv = getenv
	}
}

// NewManager creates a new credential manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// normalizeBackend normalizes backend names to lowercase
func normalizeBackend(backend string) string {
	return strings.ToLower(strings.TrimSpace(backend))
}

// serviceName returns the keyring service name for a backend
func serviceName(backend string) string {
	return fmt.Sprintf("vibetodo-%s", normalizeBackend(backend))
}

// EnvVar returns the environment variable consulted for a backend's token
func EnvVar(backend string) string {
	return fmt.Sprintf("VIBE_%s_TOKEN", strings.ToUpper(normalizeBackend(backend)))
}

// Set stores a secret in the keyring
func (m *Manager) Set(ctx context.Context, backend, account, secret string) error {
	return m.keyring.Set(serviceName(backend), account, secret)
}

// Get retrieves a secret from available sources (keyring first, then env vars).
// The environment is only consulted for DefaultAccount.
func (m *Manager) Get(ctx context.Context, backend, account string) (*CredentialInfo, error) {
	backend = normalizeBackend(backend)
	info := &CredentialInfo{Backend: backend, Account: account, Source: SourceNone}

	secret, err := m.keyring.Get(serviceName(backend), account)
	if err == nil && secret != "" {
		info.Source, info.Secret, info.Found = SourceKeyring, secret, true
		return info, nil
	}

	if account == DefaultAccount {
		if v := m.getenv(EnvVar(backend)); v != "" {
			info.Source, info.Secret, info.Found = SourceEnvironment, v, true
			return info, nil
		}
	}

	return info, nil
}

// Token returns the API token for a backend, or "" when none is stored
func (m *Manager) Token(ctx context.Context, backend string) string {
	info, err := m.Get(ctx, backend, DefaultAccount)
	if err != nil || !info.Found {
		return ""
	}
	return info.Secret
}

// Delete removes a secret from the keyring. Deleting a missing secret is not an error.
func (m *Manager) Delete(ctx context.Context, backend, account string) error {
	err := m.keyring.Delete(serviceName(backend), account)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// ListBackends returns the token status for each named backend
func (m *Manager) ListBackends(ctx context.Context, backends []string) ([]BackendStatus, error) {
	statuses := make([]BackendStatus, 0, len(backends))
	for _, name := range backends {
		info, err := m.Get(ctx, name, DefaultAccount)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, BackendStatus{
			Backend:        info.Backend,
			HasCredentials: info.Found,
			Source:         info.Source,
		})
	}
	return statuses, nil
}

// PromptSecret prompts for a secret. When reader is a terminal the input is
// hidden with term.ReadPassword; otherwise a single line is read.
func PromptSecret(reader io.Reader, writer io.Writer, label string) (string, error) {
	_, _ = fmt.Fprintf(writer, "Enter %s: ", label)

	if f, ok := reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(writer)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	scanner := bufio.NewScanner(reader)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no input received")
}
