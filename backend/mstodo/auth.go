package mstodo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"

	"vibetodo/backend"
	"vibetodo/internal/config"
	"vibetodo/internal/credentials"
	"vibetodo/internal/utils"
)

// Scopes requested for Microsoft To Do access
var Scopes = []string{"offline_access", "Tasks.ReadWrite", "User.Read"}

// TokenCache stores the OAuth2 token between runs.
// Load returns nil, nil when nothing has been cached yet.
type TokenCache interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, token *oauth2.Token) error
}

// DefaultTokenCachePath returns the token file used when token_cache_path is unset
func DefaultTokenCachePath() string {
	return filepath.Join(config.GetCacheDir(), "mstodo_token.json")
}

// FileTokenCache keeps the token as JSON in a file readable only by the owner
type FileTokenCache struct {
	Path string
}

// NewFileTokenCache creates a file cache at path, expanding ~ and env vars
func NewFileTokenCache(path string) *FileTokenCache {
	return &FileTokenCache{Path: config.ExpandPath(path)}
}

// Load reads the cached token
func (c *FileTokenCache) Load(ctx context.Context) (*oauth2.Token, error) {
	data, err := os.ReadFile(c.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token cache: %w", err)
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("failed to decode token cache %s: %w", c.Path, err)
	}
	return tok, nil
}

// Save writes the token, creating the cache directory if needed
func (c *FileTokenCache) Save(ctx context.Context, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0700); err != nil {
		return fmt.Errorf("failed to create token cache directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path, data, 0600)
}

// tokenAccount is the keyring account holding the serialized token
const tokenAccount = "oauth_token"

// KeyringTokenCache keeps the token as a JSON blob in the OS keyring
type KeyringTokenCache struct {
	Manager *credentials.Manager
}

// Load reads the cached token from the keyring
func (c *KeyringTokenCache) Load(ctx context.Context) (*oauth2.Token, error) {
	info, err := c.Manager.Get(ctx, Name, tokenAccount)
	if err != nil {
		return nil, err
	}
	if !info.Found {
		return nil, nil
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal([]byte(info.Secret), tok); err != nil {
		return nil, fmt.Errorf("failed to decode keyring token: %w", err)
	}
	return tok, nil
}

// Save stores the token in the keyring
func (c *KeyringTokenCache) Save(ctx context.Context, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return c.Manager.Set(ctx, Name, tokenAccount, string(data))
}

// newTokenCache picks the cache named by the token_cache setting
func newTokenCache(s backend.Settings, creds *credentials.Manager) (TokenCache, error) {
	switch strings.ToLower(s.Get("token_cache", "file")) {
	case "file":
		return NewFileTokenCache(s.Get("token_cache_path", DefaultTokenCachePath())), nil
	case "keyring":
		if creds == nil {
			creds = credentials.NewManager()
		}
		return &KeyringTokenCache{Manager: creds}, nil
	default:
		return nil, &backend.ConfigurationError{Backend: Name, Setting: "token_cache", Reason: "must be file or keyring"}
	}
}

// oauthConfig builds the Microsoft identity platform client configuration
func oauthConfig(clientID, authURL, tenant string) *oauth2.Config {
	base := strings.TrimRight(authURL, "/") + "/" + tenant + "/oauth2/v2.0"
	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:       base + "/authorize",
			TokenURL:      base + "/token",
			DeviceAuthURL: base + "/devicecode",
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

// DeviceCodeLogin returns an interactive login that runs the device code flow,
// printing the verification URL and user code to w.
func DeviceCodeLogin(w io.Writer) backend.InteractiveLogin {
	return func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		resp, err := cfg.DeviceAuth(ctx)
		if err != nil {
			return nil, fmt.Errorf("device authorization failed: %w", err)
		}
		_, _ = fmt.Fprintf(w, "To sign in to Microsoft To Do, open %s and enter the code %s\n", resp.VerificationURI, resp.UserCode)
		return cfg.DeviceAccessToken(ctx, resp)
	}
}

// authenticate establishes b.token. It tries the cached token, then a silent
// refresh, then the interactive login, and persists any newly obtained token.
func (b *Backend) authenticate(ctx context.Context, login backend.InteractiveLogin) error {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.client)

	cached, err := b.cache.Load(ctx)
	if err != nil {
		utils.Warnf("microsoft: ignoring unreadable token cache: %v", err)
		cached = nil
	}

	var lastErr error
	if cached.Valid() {
		err := b.verify(ctx, cached)
		if err == nil {
			utils.Debugf("microsoft: using cached token")
			b.token = cached
			return nil
		}
		utils.Debugf("microsoft: cached token rejected: %v", err)
		lastErr = fmt.Errorf("cached token rejected: %w", err)
	}

	if cached != nil && cached.RefreshToken != "" {
		tok, err := b.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cached.RefreshToken}).Token()
		if err == nil {
			utils.Debugf("microsoft: refreshed access token")
			b.storeToken(ctx, tok)
			return nil
		}
		utils.Debugf("microsoft: silent refresh failed: %v", err)
		lastErr = err
	}

	if login == nil {
		if lastErr == nil {
			lastErr = errors.New("no cached token and no interactive login available")
		}
		return &backend.AuthenticationError{Backend: Name, Err: lastErr}
	}

	tok, err := login(ctx, b.oauth)
	if err != nil {
		return &backend.AuthenticationError{Backend: Name, Err: err}
	}
	if tok == nil || tok.AccessToken == "" {
		return &backend.AuthenticationError{Backend: Name, Err: errors.New("login returned no access token")}
	}
	b.storeToken(ctx, tok)
	return nil
}

// verify performs the identity check for a token
func (b *Backend) verify(ctx context.Context, tok *oauth2.Token) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/v1.0/me", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity check returned status %d", resp.StatusCode)
	}
	return nil
}

// refreshAccessToken exchanges the current refresh token for a new access token
func (b *Backend) refreshAccessToken(ctx context.Context) error {
	b.mu.Lock()
	refresh := ""
	if b.token != nil {
		refresh = b.token.RefreshToken
	}
	b.mu.Unlock()

	if refresh == "" {
		return fmt.Errorf("no refresh token available")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.client)
	tok, err := b.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return err
	}
	b.storeToken(ctx, tok)
	return nil
}

// storeToken installs tok and writes it to the cache. A failed write is only logged.
func (b *Backend) storeToken(ctx context.Context, tok *oauth2.Token) {
	b.mu.Lock()
	b.token = tok
	b.mu.Unlock()

	if err := b.cache.Save(ctx, tok); err != nil {
		utils.Warnf("microsoft: could not save token cache: %v", err)
	}
}

func (b *Backend) accessToken() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token == nil {
		return ""
	}
	return b.token.AccessToken
}
