// Package mstodo provides a backend implementation for the Microsoft Graph API To Do.
package mstodo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"vibetodo/backend"
	"vibetodo/internal/utils"
)

const (
	// Name is the registry name of this backend
	Name = "microsoft"
	// DefaultBaseURL is the Microsoft Graph API base URL
	DefaultBaseURL = "https://graph.microsoft.com"
	// DefaultAuthURL is the Microsoft identity platform host
	DefaultAuthURL = "https://login.microsoftonline.com"
	// DefaultTenant accepts both work and personal accounts
	DefaultTenant = "common"

	// maxResults bounds the single page returned by ListAll
	maxResults = 1000

	msDateTimeLayout = "2006-01-02T15:04:05.0000000"
)

func init() {
	backend.RegisterWithPriority(Name, "Microsoft To Do", func(ctx context.Context, s backend.Settings, d backend.Deps) (backend.Backend, error) {
		if s.Get("client_id", "") == "" {
			return nil, &backend.ConfigurationError{Backend: Name, Setting: "client_id", Reason: "is required"}
		}
		cache, err := newTokenCache(s, d.Credentials)
		if err != nil {
			return nil, err
		}
		return New(ctx, Config{
			ClientID:   s.Get("client_id", ""),
			ListID:     s.Get("list_id", ""),
			Tenant:     s.Get("tenant", DefaultTenant),
			BaseURL:    s.Get("base_url", ""),
			AuthURL:    s.Get("auth_url", ""),
			Cache:      cache,
			Login:      d.Login,
			HTTPClient: d.HTTPClient,
		})
	}, 30)
}

// Config holds Microsoft To Do connection settings
type Config struct {
	ClientID   string
	ListID     string // empty selects the account's default list
	Tenant     string
	BaseURL    string // Override for testing
	AuthURL    string // Override for testing
	Cache      TokenCache
	Login      backend.InteractiveLogin
	HTTPClient *http.Client
}

// Backend implements backend.Backend using Microsoft Graph API To Do
type Backend struct {
	client  *http.Client
	baseURL string
	oauth   *oauth2.Config
	cache   TokenCache
	listID  string

	mu    sync.Mutex
	token *oauth2.Token
}

// New creates a Microsoft To Do backend. It authenticates and resolves the
// target task list before returning.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.ClientID == "" {
		return nil, &backend.ConfigurationError{Backend: Name, Setting: "client_id", Reason: "is required"}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = DefaultTenant
	}
	client := cfg.HTTPClient
	if client == nil {
		client = createHTTPClient()
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewFileTokenCache(DefaultTokenCachePath())
	}

	b := &Backend{
		client:  client,
		baseURL: baseURL,
		oauth:   oauthConfig(cfg.ClientID, authURL, tenant),
		cache:   cache,
		listID:  cfg.ListID,
	}

	if err := b.authenticate(ctx, cfg.Login); err != nil {
		return nil, err
	}
	if b.listID == "" {
		id, err := b.discoverList(ctx)
		if err != nil {
			return nil, err
		}
		b.listID = id
	}
	utils.Debugf("microsoft: using task list %s", b.listID)
	return b, nil
}

// createHTTPClient creates an HTTP client with proper configuration
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}

// Name returns the registry name of the backend
func (b *Backend) Name() string {
	return Name
}

// ListID returns the task list this backend reads and writes
func (b *Backend) ListID() string {
	return b.listID
}

// Close closes the backend
func (b *Backend) Close() error {
	if transport, ok := b.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// doRequest performs an authenticated Microsoft Graph API request
func (b *Backend) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	resp, err := b.send(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	// Handle token expiration - attempt refresh and retry
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		if err := b.refreshAccessToken(ctx); err != nil {
			return nil, &backend.AuthenticationError{Backend: Name, Err: fmt.Errorf("token refresh failed: %w", err)}
		}
		return b.send(ctx, method, path, payload)
	}
	return resp, nil
}

func (b *Backend) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.accessToken())
	req.Header.Set("Content-Type", "application/json")

	return b.client.Do(req)
}

func readBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return string(data)
}

func (b *Backend) tasksPath() string {
	return "/v1.0/me/todo/lists/" + url.PathEscape(b.listID) + "/tasks"
}

// =============================================================================
// Microsoft Graph API Types
// =============================================================================

type msTaskList struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	WellknownListName string `json:"wellknownListName,omitempty"`
}

type msTask struct {
	ID                   string      `json:"id"`
	Title                string      `json:"title"`
	Body                 *msTaskBody `json:"body,omitempty"`
	Status               string      `json:"status"`     // notStarted, inProgress, completed
	Importance           string      `json:"importance"` // low, normal, high
	DueDateTime          *msDateTime `json:"dueDateTime,omitempty"`
	Categories           []string    `json:"categories,omitempty"`
	CreatedDateTime      string      `json:"createdDateTime"`
	LastModifiedDateTime string      `json:"lastModifiedDateTime"`
}

// msTaskWrite is the create/update payload. DueDateTime is sent as null to clear it.
type msTaskWrite struct {
	Title       string      `json:"title"`
	Body        msTaskBody  `json:"body"`
	Status      string      `json:"status"`
	Importance  string      `json:"importance"`
	DueDateTime *msDateTime `json:"dueDateTime"`
	Categories  []string    `json:"categories"`
}

type msTaskBody struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"` // text or html
}

type msDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// =============================================================================
// List Discovery
// =============================================================================

// discoverList picks the well-known default list, or the first list
func (b *Backend) discoverList(ctx context.Context) (string, error) {
	resp, err := b.doRequest(ctx, http.MethodGet, "/v1.0/me/todo/lists", nil)
	if err != nil {
		return "", &backend.UnavailableError{Backend: Name, Op: "list discovery", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &backend.UnavailableError{Backend: Name, Op: "list discovery", StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	var result struct {
		Value []msTaskList `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &backend.UnavailableError{Backend: Name, Op: "list discovery", Err: err}
	}

	for _, l := range result.Value {
		if l.WellknownListName == "defaultList" {
			return l.ID, nil
		}
	}
	if len(result.Value) > 0 {
		return result.Value[0].ID, nil
	}
	return "", &backend.ConfigurationError{Backend: Name, Setting: "list_id", Reason: "no task lists found for this account"}
}

// =============================================================================
// Repository Operations
// =============================================================================

// Save creates a task without an ID and updates the task otherwise
func (b *Backend) Save(ctx context.Context, task *backend.Task) (*backend.Task, error) {
	payload, err := taskToMS(task)
	if err != nil {
		return nil, err
	}

	op, method, path := "create", http.MethodPost, b.tasksPath()
	if task.ID != "" {
		op, method, path = "update", http.MethodPatch, b.tasksPath()+"/"+url.PathEscape(task.ID)
	}

	resp, err := b.doRequest(ctx, method, path, payload)
	if err != nil {
		return nil, &backend.UnavailableError{Backend: Name, Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &backend.UnavailableError{Backend: Name, Op: op, StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	var item msTask
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, &backend.UnavailableError{Backend: Name, Op: op, Err: err}
	}
	return msToTask(&item), nil
}

// GetByID returns a task by ID, or nil if the list has no such task
func (b *Backend) GetByID(ctx context.Context, id string) (*backend.Task, error) {
	if id == "" {
		return nil, nil
	}

	resp, err := b.doRequest(ctx, http.MethodGet, b.tasksPath()+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, &backend.UnavailableError{Backend: Name, Op: "get", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	// Graph answers 400 for ids that are not well formed.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &backend.UnavailableError{Backend: Name, Op: "get", StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	var item msTask
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, &backend.UnavailableError{Backend: Name, Op: "get", Err: err}
	}
	return msToTask(&item), nil
}

// ListAll returns one page of tasks newest first, optionally filtered by status
func (b *Backend) ListAll(ctx context.Context, status backend.TaskStatus) ([]backend.Task, error) {
	query := url.Values{}
	query.Set("$top", strconv.Itoa(maxResults))
	if status != "" {
		ms, err := statusToMS(status)
		if err != nil {
			return nil, err
		}
		query.Set("$filter", "status eq '"+ms+"'")
	}

	resp, err := b.doRequest(ctx, http.MethodGet, b.tasksPath()+"?"+query.Encode(), nil)
	if err != nil {
		return nil, &backend.UnavailableError{Backend: Name, Op: "list", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &backend.UnavailableError{Backend: Name, Op: "list", StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	var result struct {
		Value []msTask `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &backend.UnavailableError{Backend: Name, Op: "list", Err: err}
	}

	tasks := make([]backend.Task, 0, len(result.Value))
	for i := range result.Value {
		tasks = append(tasks, *msToTask(&result.Value[i]))
	}
	backend.SortNewestFirst(tasks)
	return tasks, nil
}

// Delete removes a task. A missing task reports false.
func (b *Backend) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}

	resp, err := b.doRequest(ctx, http.MethodDelete, b.tasksPath()+"/"+url.PathEscape(id), nil)
	if err != nil {
		return false, &backend.UnavailableError{Backend: Name, Op: "delete", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &backend.UnavailableError{Backend: Name, Op: "delete", StatusCode: resp.StatusCode, Body: readBody(resp)}
	}
}

// =============================================================================
// Field Mapping
// =============================================================================

// taskToMS builds the write payload. Time spent and project have no remote field.
func taskToMS(task *backend.Task) (*msTaskWrite, error) {
	status, err := statusToMS(task.Status)
	if err != nil {
		return nil, err
	}
	importance, err := priorityToImportance(task.Priority)
	if err != nil {
		return nil, err
	}

	w := &msTaskWrite{
		Title:      task.Title,
		Body:       msTaskBody{Content: task.Description, ContentType: "text"},
		Status:     status,
		Importance: importance,
		Categories: append([]string{}, task.Tags...),
	}
	if task.DueDate != nil {
		w.DueDateTime = &msDateTime{DateTime: task.DueDate.UTC().Format(msDateTimeLayout), TimeZone: "UTC"}
	}
	return w, nil
}

// msToTask converts a Graph task into a domain task
func msToTask(item *msTask) *backend.Task {
	task := &backend.Task{
		ID:       item.ID,
		Title:    item.Title,
		Status:   msToStatus(item.Status),
		Priority: importanceToPriority(item.Importance),
		DueDate:  parseMSDateTime(item.DueDateTime),
		Tags:     append([]string{}, item.Categories...),
	}
	if item.Body != nil {
		task.Description = item.Body.Content
	}
	task.CreatedAt, _ = time.Parse(time.RFC3339Nano, item.CreatedDateTime)
	task.UpdatedAt, _ = time.Parse(time.RFC3339Nano, item.LastModifiedDateTime)
	return task
}

// statusToMS converts a task status to Microsoft To Do status
func statusToMS(status backend.TaskStatus) (string, error) {
	switch status {
	case backend.StatusTodo:
		return "notStarted", nil
	case backend.StatusInProgress:
		return "inProgress", nil
	case backend.StatusDone:
		return "completed", nil
	default:
		return "", fmt.Errorf("microsoft: cannot map status %q", status)
	}
}

// msToStatus converts Microsoft To Do status to a task status.
// Unknown values fall back to todo.
func msToStatus(status string) backend.TaskStatus {
	switch status {
	case "notStarted":
		return backend.StatusTodo
	case "inProgress":
		return backend.StatusInProgress
	case "completed":
		return backend.StatusDone
	default:
		utils.Warnf("microsoft: unknown status %q, treating as todo", status)
		return backend.StatusTodo
	}
}

// priorityToImportance converts a priority to Microsoft importance.
// Urgent has no remote equivalent and is written as high.
func priorityToImportance(priority backend.TaskPriority) (string, error) {
	switch priority {
	case backend.PriorityLow:
		return "low", nil
	case backend.PriorityMedium:
		return "normal", nil
	case backend.PriorityHigh, backend.PriorityUrgent:
		return "high", nil
	default:
		return "", fmt.Errorf("microsoft: cannot map priority %q", priority)
	}
}

// importanceToPriority converts Microsoft importance to a priority.
// Unknown values fall back to medium.
func importanceToPriority(importance string) backend.TaskPriority {
	switch importance {
	case "low":
		return backend.PriorityLow
	case "normal":
		return backend.PriorityMedium
	case "high":
		return backend.PriorityHigh
	default:
		utils.Warnf("microsoft: unknown importance %q, treating as medium", importance)
		return backend.PriorityMedium
	}
}

// parseMSDateTime parses a Graph dateTimeTimeZone value, returning UTC
func parseMSDateTime(dt *msDateTime) *time.Time {
	if dt == nil || dt.DateTime == "" {
		return nil
	}

	loc := time.UTC
	if dt.TimeZone != "" && dt.TimeZone != "UTC" {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}

	formats := []string{
		msDateTimeLayout,
		"2006-01-02T15:04:05",
		time.RFC3339Nano,
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, dt.DateTime, loc); err == nil {
			t = t.UTC()
			return &t
		}
	}

	utils.Warnf("microsoft: unparseable due date %q", dt.DateTime)
	return nil
}

// Verify interface compliance at compile time
var _ backend.Backend = (*Backend)(nil)
