package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"vibetodo/backend"
)

// =============================================================================
// Notion API Mock Server for Tests
// =============================================================================

// mockNotionServer simulates the subset of the Notion API used by the backend
type mockNotionServer struct {
	server      *httptest.Server
	token       string
	databaseID  string
	dataSources []string // ids returned by the database lookup
	pages       map[string]*mockPage
	order       []string
	perPage     int  // results per query page
	failQueryAt int  // 1-based query call that fails; 0 disables
	dropCursor  bool // answer has_more without a next_cursor
	failWrites  bool
	mu          sync.Mutex
	requestLog  []string
	queryBodies []map[string]interface{}
	clock       time.Time
}

type mockPage struct {
	ID          string                 `json:"id"`
	Archived    bool                   `json:"archived"`
	CreatedTime string                 `json:"created_time"`
	EditedTime  string                 `json:"last_edited_time"`
	Properties  map[string]interface{} `json:"properties"`
}

func newMockNotionServer(token, databaseID string) *mockNotionServer {
	m := &mockNotionServer{
		token:      token,
		databaseID: databaseID,
		pages:      make(map[string]*mockPage),
		perPage:    100,
		clock:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handler))
	return m
}

func (m *mockNotionServer) Close() {
	m.server.Close()
}

func (m *mockNotionServer) URL() string {
	return m.server.URL
}

func (m *mockNotionServer) count(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requestLog {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

// addPage inserts a page with the given status label directly into the mock store
func (m *mockNotionServer) addPage(title, status string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(map[string]interface{}{
		propTitle:    map[string]interface{}{"title": []interface{}{map[string]interface{}{"plain_text": title}}},
		propStatus:   map[string]interface{}{"select": map[string]interface{}{"name": status}},
		propPriority: map[string]interface{}{"select": map[string]interface{}{"name": "Medium"}},
	})
}

func (m *mockNotionServer) insertLocked(props map[string]interface{}) string {
	m.clock = m.clock.Add(time.Minute)
	id := uuid.New().String()
	ts := m.clock.Format(time.RFC3339)
	m.pages[id] = &mockPage{ID: id, CreatedTime: ts, EditedTime: ts, Properties: props}
	m.order = append(m.order, id)
	return id
}

func (m *mockNotionServer) handler(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestLog = append(m.requestLog, r.Method+" "+r.URL.Path)

	if r.Header.Get("Authorization") != "Bearer "+m.token {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"object":"error","code":"unauthorized"}`))
		return
	}
	if r.Header.Get("Notion-Version") == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"object":"error","code":"missing_version"}`))
		return
	}

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/v1/databases/"):
		m.handleDatabase(w, strings.TrimPrefix(path, "/v1/databases/"))
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/v1/data_sources/") && strings.HasSuffix(path, "/query"):
		m.handleQuery(w, r)
	case r.Method == http.MethodPost && path == "/v1/pages":
		m.handleCreate(w, r)
	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/v1/pages/"):
		m.handleUpdate(w, r, strings.TrimPrefix(path, "/v1/pages/"))
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/v1/pages/"):
		m.handleGet(w, strings.TrimPrefix(path, "/v1/pages/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (m *mockNotionServer) handleDatabase(w http.ResponseWriter, id string) {
	if id != m.databaseID {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"object":"error","code":"object_not_found"}`))
		return
	}
	resp := map[string]interface{}{"object": "database", "id": id}
	if m.dataSources != nil {
		sources := []map[string]string{}
		for _, ds := range m.dataSources {
			sources = append(sources, map[string]string{"id": ds, "name": "Tasks"})
		}
		resp["data_sources"] = sources
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *mockNotionServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	m.queryBodies = append(m.queryBodies, body)

	if m.failQueryAt > 0 && len(m.queryBodies) == m.failQueryAt {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"object":"error","code":"bad_gateway"}`))
		return
	}

	wantStatus := ""
	if f, ok := body["filter"].(map[string]interface{}); ok {
		if sel, ok := f["select"].(map[string]interface{}); ok {
			wantStatus, _ = sel["equals"].(string)
		}
	}

	var matched []*mockPage
	for _, id := range m.order {
		p := m.pages[id]
		if p.Archived {
			continue
		}
		if wantStatus != "" && selectName(p.Properties[propStatus]) != wantStatus {
			continue
		}
		matched = append(matched, p)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedTime > matched[j].CreatedTime })

	start := 0
	if c, ok := body["start_cursor"].(string); ok {
		start, _ = strconv.Atoi(c)
	}
	end := start + m.perPage
	if end > len(matched) {
		end = len(matched)
	}

	resp := map[string]interface{}{"results": matched[start:end], "has_more": end < len(matched), "next_cursor": nil}
	if end < len(matched) && !m.dropCursor {
		resp["next_cursor"] = strconv.Itoa(end)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func selectName(prop interface{}) string {
	p, _ := prop.(map[string]interface{})
	sel, _ := p["select"].(map[string]interface{})
	name, _ := sel["name"].(string)
	return name
}

func (m *mockNotionServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	if m.failWrites {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"object":"error","code":"validation_error","message":"Status is not a property"}`))
		return
	}
	var body struct {
		Parent     map[string]string      `json:"parent"`
		Properties map[string]interface{} `json:"properties"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Parent["database_id"] != m.databaseID {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := m.insertLocked(body.Properties)
	_ = json.NewEncoder(w).Encode(m.pages[id])
}

func (m *mockNotionServer) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := m.pages[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"object":"error","code":"object_not_found"}`))
		return
	}
	if m.failWrites {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"object":"error","code":"conflict_error"}`))
		return
	}
	var body struct {
		Archived   *bool                  `json:"archived"`
		Properties map[string]interface{} `json:"properties"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Archived != nil {
		p.Archived = *body.Archived
	}
	for k, v := range body.Properties {
		p.Properties[k] = v
	}
	m.clock = m.clock.Add(time.Second)
	p.EditedTime = m.clock.Format(time.RFC3339)
	_ = json.NewEncoder(w).Encode(p)
}

func (m *mockNotionServer) handleGet(w http.ResponseWriter, id string) {
	p, ok := m.pages[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"object":"error","code":"object_not_found"}`))
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

// recordingWriter captures persisted settings
type recordingWriter struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func (r *recordingWriter) SetBackendSetting(name, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.values == nil {
		r.values = make(map[string]string)
	}
	r.values[name+"."+key] = value
	return nil
}

const testDatabaseID = "6f1e9b2c-4a1d-4e3b-9c8f-0123456789ab"

func newTestBackend(t *testing.T, m *mockNotionServer, writer backend.SettingsWriter) *Backend {
	t.Helper()
	b, err := New(Config{Token: "secret_test", DatabaseID: testDatabaseID, BaseURL: m.URL(), Settings: writer})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// =============================================================================
// Construction and Discovery
// =============================================================================

func TestNewRequiresSettings(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		setting string
	}{
		{"missing token", Config{DatabaseID: "db"}, "token"},
		{"missing database", Config{Token: "t"}, "database_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			var cfgErr *backend.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Setting != tt.setting {
				t.Errorf("Setting = %q, want %q", cfgErr.Setting, tt.setting)
			}
		})
	}
}

func TestConstructionMakesNoRequests(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	defer m.Close()

	_ = newTestBackend(t, m, nil)
	if n := m.count(""); n != 0 {
		t.Errorf("construction made %d requests, want 0", n)
	}
}

func TestDiscoveryOnFirstListAndPersisted(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	m.dataSources = []string{"ds-primary", "ds-secondary"}
	defer m.Close()

	writer := &recordingWriter{}
	b := newTestBackend(t, m, writer)
	ctx := context.Background()

	if _, err := b.ListAll(ctx, ""); err != nil {
		t.Fatalf("ListAll error: %v", err)
	}
	if _, err := b.ListAll(ctx, ""); err != nil {
		t.Fatalf("second ListAll error: %v", err)
	}

	if n := m.count("GET /v1/databases/"); n != 1 {
		t.Errorf("database lookups = %d, want 1", n)
	}
	if n := m.count("POST /v1/data_sources/ds-primary/query"); n != 2 {
		t.Errorf("queries against ds-primary = %d, want 2", n)
	}
	if got := writer.values["notion.data_source_id"]; got != "ds-primary" {
		t.Errorf("persisted data_source_id = %q, want ds-primary", got)
	}
	if b.DataSourceID() != "ds-primary" {
		t.Errorf("DataSourceID() = %q", b.DataSourceID())
	}
}

func TestDiscoveryFallsBackToDatabaseID(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	defer m.Close()

	writer := &recordingWriter{}
	b := newTestBackend(t, m, writer)

	if _, err := b.ListAll(context.Background(), ""); err != nil {
		t.Fatalf("ListAll error: %v", err)
	}
	if n := m.count("POST /v1/data_sources/" + testDatabaseID + "/query"); n != 1 {
		t.Errorf("query against database id = %d, want 1", n)
	}
	if got := writer.values["notion.data_source_id"]; got != testDatabaseID {
		t.Errorf("persisted data_source_id = %q, want database id", got)
	}
}

func TestDiscoveryPersistFailureIsNotFatal(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	m.dataSources = []string{"ds-1"}
	defer m.Close()

	b := newTestBackend(t, m, &recordingWriter{err: errors.New("read-only filesystem")})
	if _, err := b.ListAll(context.Background(), ""); err != nil {
		t.Fatalf("ListAll should succeed when persisting fails, got %v", err)
	}
}

func TestCachedDataSourceSkipsDiscovery(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	defer m.Close()

	b, err := New(Config{Token: "secret_test", DatabaseID: testDatabaseID, DataSourceID: "ds-cached", BaseURL: m.URL()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := b.ListAll(context.Background(), ""); err != nil {
		t.Fatalf("ListAll error: %v", err)
	}
	if n := m.count("GET /v1/databases/"); n != 0 {
		t.Errorf("database lookups = %d, want 0", n)
	}
	if n := m.count("POST /v1/data_sources/ds-cached/query"); n != 1 {
		t.Errorf("queries against cached handle = %d, want 1", n)
	}
}

func TestDiscoveryFailureFailsList(t *testing.T) {
	m := newMockNotionServer("secret_test", "other-database")
	defer m.Close()

	b := newTestBackend(t, m, nil)
	_, err := b.ListAll(context.Background(), "")
	var unavailable *backend.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if unavailable.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", unavailable.StatusCode)
	}
}

// =============================================================================
// Repository Operations
// =============================================================================

func TestSaveCreateAndGetRoundTrip(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	defer m.Close()
	b := newTestBackend(t, m, nil)
	ctx := context.Background()

	due := time.Date(2024, 12, 31, 17, 0, 0, 0, time.UTC)
	task := backend.NewTask("Plan launch")
	task.Description = "Draft the announcement"
	task.Status = backend.StatusInProgress
	task.Priority = backend.PriorityUrgent
	task.TimeSpent = 42
	task.DueDate = &due
	task.Tags = []string{"marketing", "q4"}
	task.Project = "Launch"

	saved, err := b.Save(ctx, task)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("saved task has no ID")
	}
	if n := m.count("POST /v1/pages"); n != 1 {
		t.Errorf("create requests = %d, want 1", n)
	}

	got, err := b.GetByID(ctx, saved.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID = %v, %v", got, err)
	}
	if got.Title != "Plan launch" || got.Description != "Draft the announcement" {
		t.Errorf("text = %q / %q", got.Title, got.Description)
	}
	if got.Status != backend.StatusInProgress || got.Priority != backend.PriorityUrgent {
		t.Errorf("enums = %q / %q", got.Status, got.Priority)
	}
	if got.TimeSpent != 42 {
		t.Errorf("TimeSpent = %d", got.TimeSpent)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, due)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "marketing" {
		t.Errorf("Tags = %v", got.Tags)
	}
	if got.Project != "Launch" {
		t.Errorf("Project = %q", got.Project)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should come from created_time")
	}
}

func TestSaveUpdateClearsOptionalFields(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	defer m.Close()
	b := newTestBackend(t, m, nil)
	ctx := context.Background()

	due := time.Now().Add(24 * time.Hour)
	task := backend.NewTask("with extras")
	task.DueDate = &due
	task.Project = "P"
	task.Tags = []string{"x"}
	saved, err := b.Save(ctx, task)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}

	saved.DueDate = nil
	saved.Project = ""
	saved.Tags = nil
	saved.MarkDone()
	updated, err := b.Save(ctx, saved)
	if err != nil {
		t.Fatalf("update error: %v", err)
	}
	if n := m.count("PATCH /v1/pages/"); n != 1 {
		t.Errorf("update requests = %d, want 1", n)
	}
	if updated.ID != saved.ID {
		t.Errorf("update changed ID")
	}
	if updated.Status != backend.StatusDone {
		t.Errorf("Status = %q", updated.Status)
	}
	if updated.DueDate != nil || updated.Project != "" || len(updated.Tags) != 0 {
		t.Errorf("optional fields not cleared: %+v", updated)
	}
}

func TestSaveAcceptsUndashedID(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	defer m.Close()
	b := newTestBackend(t, m, nil)
	ctx := context.Background()

	id := m.addPage("existing", "To Do")
	task := backend.NewTask("renamed")
	task.ID = strings.ReplaceAll(id, "-", "")

	updated, err := b.Save(ctx, task)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if updated.ID != id {
		t.Errorf("ID = %q, want %q", updated.ID, id)
	}
}

func TestSaveFailureCarriesBody(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	m.failWrites = true
	defer m.Close()
	b := newTestBackend(t, m, nil)

	_, err := b.Save(context.Background(), backend.NewTask("rejected"))
	var unavailable *backend.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if unavailable.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d", unavailable.StatusCode)
	}
	if !strings.Contains(unavailable.Body, "Status is not a property") {
		t.Errorf("Body = %q", unavailable.Body)
	}
}

func TestGetByIDFailuresAreNotFound(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	defer m.Close()
	b := newTestBackend(t, m, nil)
	ctx := context.Background()

	for _, id := range []string{uuid.New().String(), "not-a-uuid", ""} {
		got, err := b.GetByID(ctx, id)
		if err != nil || got != nil {
			t.Errorf("GetByID(%q) = %v, %v; want nil, nil", id, got, err)
		}
	}

	// Transport failure
	m.Close()
	got, err := b.GetByID(ctx, uuid.New().String())
	if err != nil || got != nil {
		t.Errorf("GetByID on closed server = %v, %v; want nil, nil", got, err)
	}
}

func TestListAllFiltersByStatus(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	defer m.Close()
	b := newTestBackend(t, m, nil)

	m.addPage("a", "To Do")
	m.addPage("b", "Done")
	m.addPage("c", "In Progress")

	tasks, err := b.ListAll(context.Background(), backend.StatusDone)
	if err != nil {
		t.Fatalf("ListAll error: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "b" {
		t.Errorf("ListAll(done) = %+v", tasks)
	}

	body := m.queryBodies[len(m.queryBodies)-1]
	filter, _ := json.Marshal(body["filter"])
	if !strings.Contains(string(filter), `"equals":"Done"`) {
		t.Errorf("filter = %s", filter)
	}
	sorts, _ := json.Marshal(body["sorts"])
	if !strings.Contains(string(sorts), `"direction":"descending"`) {
		t.Errorf("sorts = %s", sorts)
	}
}

func TestListAllFollowsPagination(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	m.perPage = 2
	defer m.Close()
	b := newTestBackend(t, m, nil)

	for i := 0; i < 5; i++ {
		m.addPage(fmt.Sprintf("task %d", i), "To Do")
	}

	tasks, err := b.ListAll(context.Background(), "")
	if err != nil {
		t.Fatalf("ListAll error: %v", err)
	}
	if len(tasks) != 5 {
		t.Fatalf("ListAll returned %d tasks, want 5", len(tasks))
	}
	if tasks[0].Title != "task 4" || tasks[4].Title != "task 0" {
		t.Errorf("order = %q ... %q, want newest first", tasks[0].Title, tasks[4].Title)
	}
	if n := len(m.queryBodies); n != 3 {
		t.Errorf("query pages = %d, want 3", n)
	}
	if m.queryBodies[1]["start_cursor"] != "2" {
		t.Errorf("second page cursor = %v", m.queryBodies[1]["start_cursor"])
	}
}

func TestListAllFailedPageAborts(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	m.perPage = 1
	m.failQueryAt = 2
	defer m.Close()
	b := newTestBackend(t, m, nil)

	m.addPage("one", "To Do")
	m.addPage("two", "To Do")

	tasks, err := b.ListAll(context.Background(), "")
	if err == nil {
		t.Fatalf("ListAll should fail, got %d tasks", len(tasks))
	}
	if tasks != nil {
		t.Error("no partial results should be returned")
	}
}

func TestListAllMissingCursorFails(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	m.perPage = 1
	m.dropCursor = true
	defer m.Close()
	b := newTestBackend(t, m, nil)

	m.addPage("one", "To Do")
	m.addPage("two", "To Do")

	tasks, err := b.ListAll(context.Background(), "")
	var unavailable *backend.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("ListAll error = %v, want UnavailableError", err)
	}
	if unavailable.Op != "query" {
		t.Errorf("Op = %q, want query", unavailable.Op)
	}
	if tasks != nil {
		t.Errorf("partial listing returned: %+v", tasks)
	}
}

func TestDeleteArchives(t *testing.T) {
	m := newMockNotionServer("secret_test", testDatabaseID)
	defer m.Close()
	b := newTestBackend(t, m, nil)
	ctx := context.Background()

	id := m.addPage("doomed", "To Do")

	ok, err := b.Delete(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v; want true, nil", ok, err)
	}
	if got, _ := b.GetByID(ctx, id); got != nil {
		t.Error("archived page should read as not found")
	}
	tasks, _ := b.ListAll(ctx, "")
	if len(tasks) != 0 {
		t.Errorf("archived page still listed: %+v", tasks)
	}

	ok, err = b.Delete(ctx, uuid.New().String())
	if err != nil || ok {
		t.Errorf("Delete(unknown) = %v, %v; want false, nil", ok, err)
	}
	ok, err = b.Delete(ctx, "bogus")
	if err != nil || ok {
		t.Errorf("Delete(bogus) = %v, %v; want false, nil", ok, err)
	}
}

func TestWrongTokenFailsListing(t *testing.T) {
	m := newMockNotionServer("secret_other", testDatabaseID)
	defer m.Close()
	b := newTestBackend(t, m, nil)

	_, err := b.ListAll(context.Background(), "")
	var unavailable *backend.UnavailableError
	if !errors.As(err, &unavailable) || unavailable.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 UnavailableError, got %v", err)
	}
}

// =============================================================================
// Field Mapping
// =============================================================================

func TestStatusAndPriorityLabels(t *testing.T) {
	for _, st := range []backend.TaskStatus{backend.StatusTodo, backend.StatusInProgress, backend.StatusDone} {
		label, err := statusToNotion(st)
		if err != nil {
			t.Fatalf("statusToNotion(%q) error: %v", st, err)
		}
		if back := notionToStatus(label); back != st {
			t.Errorf("status %q round-trips to %q", st, back)
		}
	}
	for _, p := range []backend.TaskPriority{backend.PriorityLow, backend.PriorityMedium, backend.PriorityHigh, backend.PriorityUrgent} {
		label, err := priorityToNotion(p)
		if err != nil {
			t.Fatalf("priorityToNotion(%q) error: %v", p, err)
		}
		if back := notionToPriority(label); back != p {
			t.Errorf("priority %q round-trips to %q", p, back)
		}
	}

	if notionToStatus("Blocked") != backend.StatusTodo {
		t.Error("unknown status label should fall back to todo")
	}
	if notionToPriority("P0") != backend.PriorityMedium {
		t.Error("unknown priority label should fall back to medium")
	}
	if _, err := statusToNotion("archived"); err == nil {
		t.Error("statusToNotion should reject unknown statuses")
	}
}

func TestPageToTaskConcatenatesSegments(t *testing.T) {
	raw := `{
		"id": "6f1e9b2c-4a1d-4e3b-9c8f-0123456789ab",
		"created_time": "2024-01-02T03:04:05.000Z",
		"last_edited_time": "2024-01-03T03:04:05.000Z",
		"properties": {
			"Name": {"title": [{"plain_text": "Hello, "}, {"plain_text": "world"}]},
			"Description": {"rich_text": [{"text": {"content": "part one"}}, {"text": {"content": " and two"}}]},
			"Due Date": {"date": {"start": "2024-05-01"}},
			"Time Spent": {"number": 12.6},
			"Status": {"select": null}
		}
	}`
	var page notionPage
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	task := pageToTask(&page)

	if task.Title != "Hello, world" {
		t.Errorf("Title = %q", task.Title)
	}
	if task.Description != "part one and two" {
		t.Errorf("Description = %q", task.Description)
	}
	if task.Status != backend.StatusTodo || task.Priority != backend.PriorityMedium {
		t.Errorf("defaults = %q / %q", task.Status, task.Priority)
	}
	if task.TimeSpent != 13 {
		t.Errorf("TimeSpent = %d, want 13", task.TimeSpent)
	}
	want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if task.DueDate == nil || !task.DueDate.Equal(want) {
		t.Errorf("DueDate = %v, want %v", task.DueDate, want)
	}
	if task.Project != "" {
		t.Errorf("Project = %q", task.Project)
	}
	if task.CreatedAt.Year() != 2024 || task.UpdatedAt.Day() != 3 {
		t.Errorf("timestamps = %v / %v", task.CreatedAt, task.UpdatedAt)
	}
}

func TestRegisteredConstructorUsesCredentials(t *testing.T) {
	ctor, ok := backend.Lookup(Name)
	if !ok {
		t.Fatal("notion backend not registered")
	}
	_, err := ctor(context.Background(), backend.Settings{"database_id": "db"}, backend.Deps{})
	var cfgErr *backend.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Setting != "token" {
		t.Fatalf("expected token ConfigurationError, got %v", err)
	}
}
