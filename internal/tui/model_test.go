package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"vibetodo/backend"
	"vibetodo/backend/sqlite"
	"vibetodo/internal/service"
)

func newTestModel(t *testing.T) (*Model, *service.Service) {
	t.Helper()
	b, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New error: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	svc := service.New(b)
	ctx := context.Background()
	for _, seed := range []struct {
		title, project string
		priority       backend.TaskPriority
	}{
		{"Review PR", "Work", backend.PriorityUrgent},
		{"Write tests", "Work", backend.PriorityLow},
		{"Buy groceries", "Home", backend.PriorityMedium},
		{"Loose end", "", backend.PriorityMedium},
	} {
		if _, err := svc.CreateTask(ctx, seed.title, service.CreateOptions{Project: seed.project, Priority: seed.priority}); err != nil {
			t.Fatal(err)
		}
	}

	m := New(svc)
	settle(m, m.Init())
	return m, svc
}

// settle runs cmd and feeds load/change/error results back into the model
// until nothing is left to process.
func settle(m *Model, cmd tea.Cmd) {
	for cmd != nil {
		msg := cmd()
		switch msg.(type) {
		case tasksLoadedMsg, taskChangedMsg, errMsg:
			_, cmd = m.Update(msg)
		default:
			return
		}
	}
}

func press(m *Model, key string) {
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	_, cmd := m.Update(msg)
	settle(m, cmd)
}

func typeText(m *Model, text string) {
	for _, r := range text {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func visibleTitles(m *Model) []string {
	var titles []string
	for _, idx := range m.filteredIdx {
		titles = append(titles, m.tasks[idx].Title)
	}
	return titles
}

func selectProject(t *testing.T, m *Model, name string) {
	t.Helper()
	press(m, "tab")
	for m.selectedProject() != name {
		before := m.projectCursor
		press(m, "down")
		if m.projectCursor == before {
			t.Fatalf("project %q not in pane %v", name, m.projects)
		}
	}
	press(m, "tab")
}

func TestProjectPane(t *testing.T) {
	m, _ := newTestModel(t)

	if m.projects[0] != allProjects || len(m.projects) != 3 {
		t.Fatalf("projects = %v, want All plus Work and Home", m.projects)
	}
	if len(m.filteredIdx) != 4 {
		t.Errorf("All shows %d tasks, want 4", len(m.filteredIdx))
	}
	if visibleTitles(m)[0] != "Review PR" {
		t.Errorf("urgent task should sort first, got %v", visibleTitles(m))
	}

	selectProject(t, m, "Work")
	for _, idx := range m.filteredIdx {
		if m.tasks[idx].Project != "Work" {
			t.Errorf("task %q shown under Work", m.tasks[idx].Title)
		}
	}
	if len(m.filteredIdx) != 2 {
		t.Errorf("Work shows %d tasks, want 2", len(m.filteredIdx))
	}

	view := m.View()
	if !strings.Contains(view, "Work · 2 tasks") {
		t.Errorf("status bar missing project summary:\n%s", view)
	}
}

func TestAddTaskUsesSelectedProject(t *testing.T) {
	m, svc := newTestModel(t)
	selectProject(t, m, "Home")

	press(m, "a")
	if m.mode != ModeAdd {
		t.Fatalf("mode = %v, want ModeAdd", m.mode)
	}
	if !strings.Contains(m.View(), "Add New Task to Home") {
		t.Error("add dialog should name the project")
	}
	typeText(m, "Water plants")
	press(m, "enter")

	tasks, _ := svc.ListTasks(context.Background(), "")
	var found *backend.Task
	for i := range tasks {
		if tasks[i].Title == "Water plants" {
			found = &tasks[i]
		}
	}
	if found == nil || found.Project != "Home" {
		t.Fatalf("created task = %+v", found)
	}
	if m.selectedProject() != "Home" || len(m.filteredIdx) != 2 {
		t.Errorf("after reload project=%q visible=%v", m.selectedProject(), visibleTitles(m))
	}
}

func TestAddEmptyTitleIsIgnored(t *testing.T) {
	m, svc := newTestModel(t)
	press(m, "a")
	typeText(m, "   ")
	press(m, "enter")

	if m.mode != ModeNormal {
		t.Error("enter should close the dialog")
	}
	tasks, _ := svc.ListTasks(context.Background(), "")
	if len(tasks) != 4 {
		t.Errorf("have %d tasks, want 4", len(tasks))
	}
}

func TestEditRenamesTask(t *testing.T) {
	m, svc := newTestModel(t)
	task, _ := m.current()
	id := task.ID

	press(m, "e")
	if m.textInput.Value() != "Review PR" {
		t.Fatalf("edit input = %q", m.textInput.Value())
	}
	m.textInput.SetValue("Review PR #42")
	press(m, "enter")

	got, _ := svc.GetTask(context.Background(), id)
	if got.Title != "Review PR #42" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestToggleDoneAndStart(t *testing.T) {
	m, svc := newTestModel(t)
	task, _ := m.current()
	id := task.ID

	press(m, "s")
	got, _ := svc.GetTask(context.Background(), id)
	if got.Status != backend.StatusInProgress {
		t.Fatalf("after s status = %s", got.Status)
	}

	press(m, "c")
	got, _ = svc.GetTask(context.Background(), id)
	if got.Status != backend.StatusDone {
		t.Fatalf("after c status = %s", got.Status)
	}
	if !strings.Contains(m.View(), "[✓]") {
		t.Error("done marker not rendered")
	}

	// done sorts last, so find it again before toggling back
	for i, idx := range m.filteredIdx {
		if m.tasks[idx].ID == id {
			m.taskCursor = i
		}
	}
	press(m, "c")
	got, _ = svc.GetTask(context.Background(), id)
	if got.Status != backend.StatusTodo {
		t.Errorf("second c status = %s, want todo", got.Status)
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	m, svc := newTestModel(t)
	task, _ := m.current()
	id := task.ID

	press(m, "d")
	if m.mode != ModeConfirmDelete {
		t.Fatalf("mode = %v", m.mode)
	}
	press(m, "n")
	if got, _ := svc.GetTask(context.Background(), id); got == nil {
		t.Fatal("n should keep the task")
	}

	press(m, "d")
	press(m, "y")
	if got, _ := svc.GetTask(context.Background(), id); got != nil {
		t.Error("y should delete the task")
	}
	for _, title := range visibleTitles(m) {
		if title == "Review PR" {
			t.Error("deleted task still listed")
		}
	}
}

func TestFilterByTitle(t *testing.T) {
	m, _ := newTestModel(t)

	press(m, "/")
	typeText(m, "WRITE")
	press(m, "enter")

	if got := visibleTitles(m); len(got) != 1 || got[0] != "Write tests" {
		t.Errorf("filtered = %v", got)
	}
	if !strings.Contains(m.View(), "Filter: WRITE") {
		t.Error("status bar should show the filter")
	}

	press(m, "/")
	press(m, "esc")
	if len(visibleTitles(m)) != 4 {
		t.Error("esc should clear the filter")
	}
}

func TestEmptyPaneIgnoresTaskKeys(t *testing.T) {
	m, _ := newTestModel(t)
	press(m, "/")
	typeText(m, "no such task")
	press(m, "enter")

	for _, key := range []string{"e", "c", "s", "d"} {
		press(m, key)
		if m.mode != ModeNormal {
			t.Errorf("%s with no tasks changed mode to %v", key, m.mode)
		}
	}
	if !strings.Contains(m.View(), "No tasks") {
		t.Error("empty pane should say No tasks")
	}
}

type failingService struct {
	*service.Service
}

func (f failingService) SetStatus(ctx context.Context, id string, status backend.TaskStatus) (*backend.Task, error) {
	return nil, errors.New("backend offline")
}

func TestWriteErrorShownInStatusBar(t *testing.T) {
	_, svc := newTestModel(t)
	m := New(failingService{svc})
	settle(m, m.Init())

	press(m, "c")
	if m.lastErr != "backend offline" {
		t.Fatalf("lastErr = %q", m.lastErr)
	}
	if !strings.Contains(m.View(), "Error: backend offline") {
		t.Error("error not rendered")
	}
}

func TestQuitKey(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
