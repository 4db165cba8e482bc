package factory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"vibetodo/backend"
	"vibetodo/backend/notion"
	"vibetodo/backend/sqlite"
	"vibetodo/internal/config"
	"vibetodo/internal/credentials"
)

func testCredentials() *credentials.Manager {
	return credentials.NewManager(
		credentials.WithKeyring(credentials.NewMockKeyring()),
		credentials.WithEnv(func(string) string { return "" }),
	)
}

func newConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if err := cfg.SaveTo(filepath.Join(t.TempDir(), "config.yaml")); err != nil {
		t.Fatalf("SaveTo error: %v", err)
	}
	return cfg
}

func TestNewSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tasks.db")
	cfg := newConfig(t, "backend:\n  type: sqlite\n  sqlite:\n    db_path: "+dbPath+"\n")

	b, err := New(context.Background(), cfg, Options{Credentials: testCredentials()})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer func() { _ = b.Close() }()

	if b.Name() != sqlite.Name {
		t.Errorf("Name() = %q", b.Name())
	}
	if sb, ok := b.(*sqlite.Backend); !ok || sb.Path() != dbPath {
		t.Errorf("backend = %T at %v", b, b)
	}
}

func TestNewConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		backend string
		setting string
	}{
		{"notion without token", "backend:\n  type: notion\n  notion:\n    database_id: abc\n", "notion", "token"},
		{"notion without database", "backend:\n  type: notion\n  notion:\n    token: secret\n", "notion", "database_id"},
		{"microsoft without client id", "backend:\n  type: microsoft\n", "microsoft", "client_id"},
		{"unknown type", "backend:\n  type: trello\n", "trello", "backend.type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(t, tt.yaml)
			_, err := New(context.Background(), cfg, Options{Credentials: testCredentials()})

			var cfgErr *backend.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Backend != tt.backend || cfgErr.Setting != tt.setting {
				t.Errorf("error = %+v, want %s/%s", cfgErr, tt.backend, tt.setting)
			}
		})
	}
}

func TestNotionTokenFromCredentials(t *testing.T) {
	creds := testCredentials()
	if err := creds.Set(context.Background(), "notion", credentials.DefaultAccount, "secret_from_keyring"); err != nil {
		t.Fatal(err)
	}
	cfg := newConfig(t, "backend:\n  type: notion\n  notion:\n    database_id: abc\n")

	b, err := New(context.Background(), cfg, Options{Credentials: creds})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if b.Name() != notion.Name {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestNotionDiscoveryPersistsToConfigFile(t *testing.T) {
	const databaseID = "0f6b6c4e-1e0a-4c4b-8f31-2f0d7a5b9c11"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/databases/" + databaseID:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":           databaseID,
				"data_sources": []map[string]string{{"id": "ds-42"}},
			})
		case "/v1/data_sources/ds-42/query":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"results": []interface{}{}, "has_more": false})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := newConfig(t, "backend:\n  type: notion\n  notion:\n    token: secret\n    database_id: "+databaseID+"\n    base_url: "+server.URL+"\n")
	b, err := New(context.Background(), cfg, Options{Credentials: testCredentials()})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, err := b.ListAll(context.Background(), ""); err != nil {
		t.Fatalf("ListAll error: %v", err)
	}

	reloaded, err := config.Load(cfg.Path())
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if got, _ := reloaded.Get("backend.notion.data_source_id"); got != "ds-42" {
		t.Errorf("persisted data_source_id = %q, want ds-42", got)
	}
}

func TestAvailable(t *testing.T) {
	got := Available()
	want := []string{"sqlite", "notion", "microsoft"}
	if len(got) != len(want) {
		t.Fatalf("Available() = %+v", got)
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("Available()[%d] = %q, want %q", i, got[i].Name, name)
		}
		if got[i].Description == "" {
			t.Errorf("%s has no description", name)
		}
	}
}
