// Package notion provides a backend implementation for a Notion database.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"vibetodo/backend"
	"vibetodo/internal/utils"
)

const (
	// Name is the registry name of this backend
	Name = "notion"
	// DefaultBaseURL is the Notion REST API base URL
	DefaultBaseURL = "https://api.notion.com"
	// APIVersion is sent as the Notion-Version header
	APIVersion = "2025-09-03"

	pageSize = 100
)

// Property names expected in the target database
const (
	propTitle       = "Name"
	propDescription = "Description"
	propStatus      = "Status"
	propPriority    = "Priority"
	propTimeSpent   = "Time Spent"
	propDueDate     = "Due Date"
	propTags        = "Tags"
	propProject     = "Project"
)

func init() {
	backend.RegisterWithPriority(Name, "Notion database", func(ctx context.Context, s backend.Settings, d backend.Deps) (backend.Backend, error) {
		token := s.Get("token", "")
		if token == "" && d.Credentials != nil {
			token = d.Credentials.Token(ctx, Name)
		}
		return New(Config{
			Token:        token,
			DatabaseID:   s.Get("database_id", ""),
			DataSourceID: s.Get("data_source_id", ""),
			BaseURL:      s.Get("base_url", ""),
			HTTPClient:   d.HTTPClient,
			Settings:     d.Settings,
		})
	}, 20)
}

// Config holds Notion connection settings
type Config struct {
	Token        string
	DatabaseID   string
	DataSourceID string // cached discovery result; empty means not yet resolved
	BaseURL      string // Override for testing
	HTTPClient   *http.Client
	Settings     backend.SettingsWriter // receives the discovered data_source_id
}

// Backend implements backend.Backend using the Notion API
type Backend struct {
	client     *http.Client
	baseURL    string
	token      string
	databaseID string
	settings   backend.SettingsWriter

	mu           sync.Mutex
	dataSourceID string
}

// New creates a new Notion backend. It performs no network calls; the
// database's data source is resolved on the first listing.
func New(cfg Config) (*Backend, error) {
	if cfg.Token == "" {
		return nil, &backend.ConfigurationError{Backend: Name, Setting: "token", Reason: "is required"}
	}
	if cfg.DatabaseID == "" {
		return nil, &backend.ConfigurationError{Backend: Name, Setting: "database_id", Reason: "is required"}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = createHTTPClient()
	}

	return &Backend{
		client:       client,
		baseURL:      baseURL,
		token:        cfg.Token,
		databaseID:   cfg.DatabaseID,
		dataSourceID: cfg.DataSourceID,
		settings:     cfg.Settings,
	}, nil
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

// Close closes the backend
func (b *Backend) Close() error {
	if transport, ok := b.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// DataSourceID returns the resolved data source handle, or "" before discovery
func (b *Backend) DataSourceID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dataSourceID
}

// doRequest performs an authenticated Notion API request
func (b *Backend) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("Notion-Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")

	return b.client.Do(req)
}

// readBody returns the response body for error reporting
func readBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return string(data)
}

// normalizeID returns the canonical dashed form of a page ID.
// ok is false when id is not a UUID and therefore cannot name a page.
func normalizeID(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

// =============================================================================
// Notion API Types
// =============================================================================

type notionDatabase struct {
	ID          string `json:"id"`
	DataSources []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"data_sources"`
}

type notionQueryResponse struct {
	Results    []notionPage `json:"results"`
	HasMore    bool         `json:"has_more"`
	NextCursor *string      `json:"next_cursor"`
}

type notionPage struct {
	ID             string                    `json:"id"`
	Archived       bool                      `json:"archived"`
	InTrash        bool                      `json:"in_trash"`
	CreatedTime    string                    `json:"created_time"`
	LastEditedTime string                    `json:"last_edited_time"`
	Properties     map[string]notionProperty `json:"properties"`
}

type notionProperty struct {
	Title       []notionRichText `json:"title"`
	RichText    []notionRichText `json:"rich_text"`
	Select      *notionSelect    `json:"select"`
	MultiSelect []notionSelect   `json:"multi_select"`
	Number      *float64         `json:"number"`
	Date        *notionDate      `json:"date"`
}

type notionRichText struct {
	PlainText string `json:"plain_text"`
	Text      *struct {
		Content string `json:"content"`
	} `json:"text"`
}

type notionSelect struct {
	Name string `json:"name"`
}

type notionDate struct {
	Start string `json:"start"`
}

// =============================================================================
// Discovery
// =============================================================================

// ensureDataSource resolves the data source handle once. The database's first
// data source is used, falling back to the database ID itself. The result is
// written through the settings writer; a failed write is logged, not returned.
func (b *Backend) ensureDataSource(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dataSourceID != "" {
		return b.dataSourceID, nil
	}

	resp, err := b.doRequest(ctx, http.MethodGet, "/v1/databases/"+b.databaseID, nil)
	if err != nil {
		return "", &backend.UnavailableError{Backend: Name, Op: "database lookup", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &backend.UnavailableError{Backend: Name, Op: "database lookup", StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	var db notionDatabase
	if err := json.NewDecoder(resp.Body).Decode(&db); err != nil {
		return "", &backend.UnavailableError{Backend: Name, Op: "database lookup", Err: err}
	}

	id := b.databaseID
	if len(db.DataSources) > 0 && db.DataSources[0].ID != "" {
		id = db.DataSources[0].ID
	}
	b.dataSourceID = id
	utils.Debugf("notion: resolved data source %s for database %s", id, b.databaseID)

	if b.settings != nil {
		if err := b.settings.SetBackendSetting(Name, "data_source_id", id); err != nil {
			utils.Warnf("notion: could not save data_source_id to config: %v", err)
		}
	}
	return id, nil
}

// =============================================================================
// Repository Operations
// =============================================================================

// Save creates a page for a task without an ID and updates the page otherwise
func (b *Backend) Save(ctx context.Context, task *backend.Task) (*backend.Task, error) {
	props, err := taskToProperties(task)
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	op := "create"
	if task.ID == "" {
		body := map[string]interface{}{
			"parent":     map[string]string{"database_id": b.databaseID},
			"properties": props,
		}
		resp, err = b.doRequest(ctx, http.MethodPost, "/v1/pages", body)
	} else {
		op = "update"
		id, ok := normalizeID(task.ID)
		if !ok {
			return nil, fmt.Errorf("invalid notion page id %q", task.ID)
		}
		resp, err = b.doRequest(ctx, http.MethodPatch, "/v1/pages/"+id, map[string]interface{}{"properties": props})
	}
	if err != nil {
		return nil, &backend.UnavailableError{Backend: Name, Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &backend.UnavailableError{Backend: Name, Op: op, StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	var page notionPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, &backend.UnavailableError{Backend: Name, Op: op, Err: err}
	}
	return pageToTask(&page), nil
}

// GetByID returns a task by page ID. Any failure is reported as not found.
func (b *Backend) GetByID(ctx context.Context, id string) (*backend.Task, error) {
	pageID, ok := normalizeID(id)
	if !ok {
		return nil, nil
	}

	resp, err := b.doRequest(ctx, http.MethodGet, "/v1/pages/"+pageID, nil)
	if err != nil {
		utils.Debugf("notion: get %s failed: %v", pageID, err)
		return nil, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		utils.Debugf("notion: get %s returned status %d", pageID, resp.StatusCode)
		return nil, nil
	}

	var page notionPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		utils.Debugf("notion: get %s decode failed: %v", pageID, err)
		return nil, nil
	}
	if page.Archived || page.InTrash {
		return nil, nil
	}
	return pageToTask(&page), nil
}

// ListAll queries the data source newest first, following pagination cursors
func (b *Backend) ListAll(ctx context.Context, status backend.TaskStatus) ([]backend.Task, error) {
	dataSourceID, err := b.ensureDataSource(ctx)
	if err != nil {
		return nil, err
	}

	query := map[string]interface{}{
		"sorts":     []map[string]string{{"timestamp": "created_time", "direction": "descending"}},
		"page_size": pageSize,
	}
	if status != "" {
		name, err := statusToNotion(status)
		if err != nil {
			return nil, err
		}
		query["filter"] = map[string]interface{}{
			"property": propStatus,
			"select":   map[string]string{"equals": name},
		}
	}

	tasks := []backend.Task{}
	for {
		page, err := b.queryPage(ctx, dataSourceID, query)
		if err != nil {
			return nil, err
		}
		for i := range page.Results {
			tasks = append(tasks, *pageToTask(&page.Results[i]))
		}
		if !page.HasMore {
			break
		}
		if page.NextCursor == nil || *page.NextCursor == "" {
			return nil, &backend.UnavailableError{Backend: Name, Op: "query", Err: errors.New("has_more set without next_cursor")}
		}
		query["start_cursor"] = *page.NextCursor
	}
	return tasks, nil
}

// queryPage fetches one page of query results
func (b *Backend) queryPage(ctx context.Context, dataSourceID string, query map[string]interface{}) (*notionQueryResponse, error) {
	resp, err := b.doRequest(ctx, http.MethodPost, "/v1/data_sources/"+dataSourceID+"/query", query)
	if err != nil {
		return nil, &backend.UnavailableError{Backend: Name, Op: "query", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &backend.UnavailableError{Backend: Name, Op: "query", StatusCode: resp.StatusCode, Body: readBody(resp)}
	}

	var result notionQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &backend.UnavailableError{Backend: Name, Op: "query", Err: err}
	}
	return &result, nil
}

// Delete archives the page. It never returns an error; failure is reported as false.
func (b *Backend) Delete(ctx context.Context, id string) (bool, error) {
	pageID, ok := normalizeID(id)
	if !ok {
		return false, nil
	}

	resp, err := b.doRequest(ctx, http.MethodPatch, "/v1/pages/"+pageID, map[string]bool{"archived": true})
	if err != nil {
		utils.Debugf("notion: archive %s failed: %v", pageID, err)
		return false, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		utils.Debugf("notion: archive %s returned status %d", pageID, resp.StatusCode)
		return false, nil
	}
	return true, nil
}

// =============================================================================
// Field Mapping
// =============================================================================

// taskToProperties builds the property payload for create and update.
// Unset optional fields are sent as explicit clears so updates remove them.
func taskToProperties(task *backend.Task) (map[string]interface{}, error) {
	status, err := statusToNotion(task.Status)
	if err != nil {
		return nil, err
	}
	priority, err := priorityToNotion(task.Priority)
	if err != nil {
		return nil, err
	}

	description := []map[string]interface{}{}
	if task.Description != "" {
		description = append(description, textBlock(task.Description))
	}

	var due interface{}
	if task.DueDate != nil {
		due = map[string]string{"start": task.DueDate.UTC().Format(time.RFC3339)}
	}

	tags := make([]map[string]string, 0, len(task.Tags))
	for _, tag := range task.Tags {
		tags = append(tags, map[string]string{"name": tag})
	}

	var project interface{}
	if task.Project != "" {
		project = map[string]string{"name": task.Project}
	}

	return map[string]interface{}{
		propTitle:       map[string]interface{}{"title": []map[string]interface{}{textBlock(task.Title)}},
		propDescription: map[string]interface{}{"rich_text": description},
		propStatus:      map[string]interface{}{"select": map[string]string{"name": status}},
		propPriority:    map[string]interface{}{"select": map[string]string{"name": priority}},
		propTimeSpent:   map[string]interface{}{"number": task.TimeSpent},
		propDueDate:     map[string]interface{}{"date": due},
		propTags:        map[string]interface{}{"multi_select": tags},
		propProject:     map[string]interface{}{"select": project},
	}, nil
}

func textBlock(content string) map[string]interface{} {
	return map[string]interface{}{"text": map[string]string{"content": content}}
}

// pageToTask converts a Notion page into a task
func pageToTask(page *notionPage) *backend.Task {
	props := page.Properties
	task := &backend.Task{
		ID:          page.ID,
		Title:       joinText(props[propTitle].Title),
		Description: joinText(props[propDescription].RichText),
		Status:      backend.StatusTodo,
		Priority:    backend.PriorityMedium,
		Tags:        []string{},
	}

	if sel := props[propStatus].Select; sel != nil {
		task.Status = notionToStatus(sel.Name)
	}
	if sel := props[propPriority].Select; sel != nil {
		task.Priority = notionToPriority(sel.Name)
	}
	if n := props[propTimeSpent].Number; n != nil && *n > 0 {
		task.TimeSpent = int(math.Round(*n))
	}
	if d := props[propDueDate].Date; d != nil && d.Start != "" {
		if due, err := utils.ParseISODate(d.Start); err == nil {
			task.DueDate = &due
		} else {
			utils.Warnf("notion: page %s has unparseable due date %q", page.ID, d.Start)
		}
	}
	for _, tag := range props[propTags].MultiSelect {
		task.Tags = append(task.Tags, tag.Name)
	}
	if sel := props[propProject].Select; sel != nil {
		task.Project = sel.Name
	}

	task.CreatedAt, _ = time.Parse(time.RFC3339, page.CreatedTime)
	task.UpdatedAt, _ = time.Parse(time.RFC3339, page.LastEditedTime)
	return task
}

// joinText concatenates every segment of a title or rich text array
func joinText(segments []notionRichText) string {
	var buf bytes.Buffer
	for _, s := range segments {
		switch {
		case s.PlainText != "":
			buf.WriteString(s.PlainText)
		case s.Text != nil:
			buf.WriteString(s.Text.Content)
		}
	}
	return buf.String()
}

// statusToNotion converts a task status to the Notion select label
func statusToNotion(status backend.TaskStatus) (string, error) {
	switch status {
	case backend.StatusTodo:
		return "To Do", nil
	case backend.StatusInProgress:
		return "In Progress", nil
	case backend.StatusDone:
		return "Done", nil
	default:
		return "", fmt.Errorf("notion: cannot map status %q", status)
	}
}

// notionToStatus converts a Notion select label to a task status.
// Unknown labels fall back to todo.
func notionToStatus(name string) backend.TaskStatus {
	switch name {
	case "To Do":
		return backend.StatusTodo
	case "In Progress":
		return backend.StatusInProgress
	case "Done":
		return backend.StatusDone
	default:
		utils.Warnf("notion: unknown status %q, treating as todo", name)
		return backend.StatusTodo
	}
}

// priorityToNotion converts a task priority to the Notion select label
func priorityToNotion(priority backend.TaskPriority) (string, error) {
	switch priority {
	case backend.PriorityLow:
		return "Low", nil
	case backend.PriorityMedium:
		return "Medium", nil
	case backend.PriorityHigh:
		return "High", nil
	case backend.PriorityUrgent:
		return "Urgent", nil
	default:
		return "", fmt.Errorf("notion: cannot map priority %q", priority)
	}
}

// notionToPriority converts a Notion select label to a task priority.
// Unknown labels fall back to medium.
func notionToPriority(name string) backend.TaskPriority {
	switch name {
	case "Low":
		return backend.PriorityLow
	case "Medium":
		return backend.PriorityMedium
	case "High":
		return backend.PriorityHigh
	case "Urgent":
		return backend.PriorityUrgent
	default:
		utils.Warnf("notion: unknown priority %q, treating as medium", name)
		return backend.PriorityMedium
	}
}

// Verify interface compliance at compile time
var _ backend.Backend = (*Backend)(nil)
