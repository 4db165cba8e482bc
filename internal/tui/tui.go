// Package tui provides a terminal user interface for task management.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vibetodo/backend"
	"vibetodo/internal/service"
)

// allProjects is the label of the unfiltered entry in the project pane
const allProjects = "All"

// Service is the subset of service.Service the TUI drives
type Service interface {
	ListTasks(ctx context.Context, status backend.TaskStatus) ([]backend.Task, error)
	CreateTask(ctx context.Context, title string, opts service.CreateOptions) (*backend.Task, error)
	UpdateTask(ctx context.Context, id string, title, description *string) (*backend.Task, error)
	SetStatus(ctx context.Context, id string, status backend.TaskStatus) (*backend.Task, error)
	DeleteTask(ctx context.Context, id string) (bool, error)
}

// Focus indicates which pane has focus
type Focus int

const (
	FocusProjects Focus = iota
	FocusTasks
)

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdd
	ModeEdit
	ModeFilter
	ModeHelp
	ModeConfirmDelete
)

// Model represents the TUI state
type Model struct {
	svc Service
	ctx context.Context
	now func() time.Time

	// Data
	tasks       []backend.Task
	projects    []string // projects[0] is allProjects
	filteredIdx []int    // indices into tasks for the visible rows

	// Selection
	projectCursor int
	taskCursor    int
	focus         Focus

	// Mode and input
	mode      Mode
	textInput textinput.Model
	filter    string
	lastErr   string

	// UI dimensions
	width  int
	height int

	// Styles
	projectPaneStyle lipgloss.Style
	taskPaneStyle    lipgloss.Style
	selectedStyle    lipgloss.Style
	completedStyle   lipgloss.Style
	overdueStyle     lipgloss.Style
	projectStyle     lipgloss.Style
	helpStyle        lipgloss.Style
	errorStyle       lipgloss.Style
	dialogStyle      lipgloss.Style
	statusBarStyle   lipgloss.Style
}

// Message types
type tasksLoadedMsg struct {
	tasks []backend.Task
}

// taskChangedMsg is sent after any successful write; the model reloads.
type taskChangedMsg struct{}

type errMsg struct {
	err error
}

// New creates a new TUI model
func New(svc Service) *Model {
	ti := textinput.New()
	ti.Placeholder = "Enter text..."
	ti.CharLimit = 256

	return &Model{
		svc:       svc,
		ctx:       context.Background(),
		now:       time.Now,
		projects:  []string{allProjects},
		textInput: ti,
		focus:     FocusTasks,
		mode:      ModeNormal,
		projectPaneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		taskPaneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		completedStyle: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240")),
		overdueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		projectStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
	}
}

// WithContext sets the context used for service calls
func (m *Model) WithContext(ctx context.Context) *Model {
	m.ctx = ctx
	return m
}

// Init initializes the TUI
func (m *Model) Init() tea.Cmd {
	return m.loadTasks()
}

func (m *Model) loadTasks() tea.Cmd {
	return func() tea.Msg {
		tasks, err := m.svc.ListTasks(m.ctx, "")
		if err != nil {
			return errMsg{err}
		}
		return tasksLoadedMsg{tasks}
	}
}

// write runs fn as a command and reports a change or an error
func (m *Model) write(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return errMsg{err}
		}
		return taskChangedMsg{}
	}
}

func (m *Model) createTask(title string) tea.Cmd {
	project := m.selectedProject()
	return m.write(func() error {
		_, err := m.svc.CreateTask(m.ctx, title, service.CreateOptions{Project: project})
		return err
	})
}

func (m *Model) renameTask(id, title string) tea.Cmd {
	return m.write(func() error {
		_, err := m.svc.UpdateTask(m.ctx, id, &title, nil)
		return err
	})
}

func (m *Model) setStatus(id string, status backend.TaskStatus) tea.Cmd {
	return m.write(func() error {
		_, err := m.svc.SetStatus(m.ctx, id, status)
		return err
	})
}

func (m *Model) deleteTask(id string) tea.Cmd {
	return m.write(func() error {
		_, err := m.svc.DeleteTask(m.ctx, id)
		return err
	})
}

// current returns the task under the cursor
func (m *Model) current() (*backend.Task, bool) {
	if len(m.filteredIdx) == 0 || m.taskCursor >= len(m.filteredIdx) {
		return nil, false
	}
	return &m.tasks[m.filteredIdx[m.taskCursor]], true
}

// selectedProject returns the project filter, or "" for all projects
func (m *Model) selectedProject() string {
	if m.projectCursor <= 0 || m.projectCursor >= len(m.projects) {
		return ""
	}
	return m.projects[m.projectCursor]
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tasksLoadedMsg:
		m.setTasks(msg.tasks)
		return m, nil

	case taskChangedMsg:
		m.lastErr = ""
		return m, m.loadTasks()

	case errMsg:
		m.lastErr = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeAdd:
			return m.handleAddMode(msg)
		case ModeEdit:
			return m.handleEditMode(msg)
		case ModeFilter:
			return m.handleFilterMode(msg)
		case ModeHelp:
			m.mode = ModeNormal
			return m, nil
		case ModeConfirmDelete:
			return m.handleConfirmDeleteMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	if m.mode == ModeAdd || m.mode == ModeEdit || m.mode == ModeFilter {
		m.textInput, cmd = m.textInput.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		if m.focus == FocusProjects {
			m.focus = FocusTasks
		} else {
			m.focus = FocusProjects
		}

	case "up", "k":
		if m.focus == FocusProjects {
			if m.projectCursor > 0 {
				m.projectCursor--
				m.taskCursor = 0
				m.applyFilter()
			}
		} else if m.taskCursor > 0 {
			m.taskCursor--
		}

	case "down", "j":
		if m.focus == FocusProjects {
			if m.projectCursor < len(m.projects)-1 {
				m.projectCursor++
				m.taskCursor = 0
				m.applyFilter()
			}
		} else if m.taskCursor < len(m.filteredIdx)-1 {
			m.taskCursor++
		}

	case "a":
		return m, m.openInput(ModeAdd, "New task title...", "")

	case "e":
		if task, ok := m.current(); ok {
			return m, m.openInput(ModeEdit, "Task title...", task.Title)
		}

	case "c":
		if task, ok := m.current(); ok {
			next := backend.StatusDone
			if task.Status == backend.StatusDone {
				next = backend.StatusTodo
			}
			return m, m.setStatus(task.ID, next)
		}

	case "s":
		if task, ok := m.current(); ok && task.Status != backend.StatusInProgress {
			return m, m.setStatus(task.ID, backend.StatusInProgress)
		}

	case "d":
		if _, ok := m.current(); ok {
			m.mode = ModeConfirmDelete
		}

	case "/":
		return m, m.openInput(ModeFilter, "Search...", m.filter)

	case "?":
		m.mode = ModeHelp
	}
	return m, nil
}

func (m *Model) openInput(mode Mode, placeholder, value string) tea.Cmd {
	m.mode = mode
	m.textInput.Reset()
	m.textInput.Placeholder = placeholder
	m.textInput.SetValue(value)
	m.textInput.Focus()
	return textinput.Blink
}

func (m *Model) handleAddMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		m.mode = ModeNormal
		if value := strings.TrimSpace(m.textInput.Value()); value != "" {
			return m, m.createTask(value)
		}
		return m, nil

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleEditMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		m.mode = ModeNormal
		value := strings.TrimSpace(m.textInput.Value())
		if task, ok := m.current(); ok && value != "" && value != task.Title {
			return m, m.renameTask(task.ID, value)
		}
		return m, nil

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleFilterMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		m.filter = strings.TrimSpace(m.textInput.Value())
		m.applyFilter()
		m.mode = ModeNormal
		return m, nil

	case tea.KeyEsc:
		m.filter = ""
		m.applyFilter()
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.mode = ModeNormal
		if task, ok := m.current(); ok {
			return m, m.deleteTask(task.ID)
		}
	case "n", "N", "esc":
		m.mode = ModeNormal
	}
	return m, nil
}

// setTasks replaces the task set, rebuilding the project pane and keeping
// the selected project when it still exists.
func (m *Model) setTasks(tasks []backend.Task) {
	selected := m.selectedProject()

	backend.SortForDisplay(tasks)
	m.tasks = tasks
	m.projects = append([]string{allProjects}, service.Projects(tasks)...)

	m.projectCursor = 0
	for i, p := range m.projects {
		if i > 0 && p == selected {
			m.projectCursor = i
		}
	}
	m.applyFilter()
}

func (m *Model) applyFilter() {
	project := m.selectedProject()
	query := strings.ToLower(m.filter)

	m.filteredIdx = nil
	for i, task := range m.tasks {
		if project != "" && task.Project != project {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(task.Title), query) {
			continue
		}
		m.filteredIdx = append(m.filteredIdx, i)
	}
	if m.taskCursor >= len(m.filteredIdx) {
		m.taskCursor = len(m.filteredIdx) - 1
	}
	if m.taskCursor < 0 {
		m.taskCursor = 0
	}
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeAdd:
		title := "Add New Task"
		if p := m.selectedProject(); p != "" {
			title += " to " + p
		}
		return m.renderInputDialog(title, "Enter: confirm  Esc: cancel")
	case ModeEdit:
		title := "Edit Task"
		if task, ok := m.current(); ok {
			title = "Edit: " + task.Title
		}
		return m.renderInputDialog(title, "Enter: confirm  Esc: cancel")
	case ModeFilter:
		return m.renderInputDialog("Search/Filter Tasks", "Enter: filter  Esc: clear")
	case ModeHelp:
		return m.centerDialog(m.dialogStyle.Render(helpText))
	case ModeConfirmDelete:
		title := "Delete selected task?"
		if task, ok := m.current(); ok {
			title = fmt.Sprintf("Delete %q?", task.Title)
		}
		return m.centerDialog(m.dialogStyle.Render(title + "\n\n" + m.helpStyle.Render("y: yes  n: no")))
	}

	projectWidth := m.width / 4
	taskWidth := m.width - projectWidth - 4

	projectPane := m.projectPaneStyle.Width(projectWidth).Height(m.height - 4).Render(m.renderProjectPane(projectWidth - 4))
	taskPane := m.taskPaneStyle.Width(taskWidth).Height(m.height - 4).Render(m.renderTaskPane(taskWidth - 4))

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, projectPane, taskPane))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderProjectPane(width int) string {
	var b strings.Builder
	b.WriteString("Projects\n")
	b.WriteString(strings.Repeat("─", max(width, 1)))
	b.WriteString("\n")

	for i, name := range m.projects {
		cursor := " "
		if i == m.projectCursor {
			cursor = ">"
			if m.focus == FocusProjects {
				name = m.selectedStyle.Render(name)
			}
		}
		b.WriteString(cursor + " " + name + "\n")
	}
	return b.String()
}

func (m *Model) renderTaskPane(width int) string {
	var b strings.Builder
	b.WriteString("Tasks\n")
	b.WriteString(strings.Repeat("─", max(width, 1)))
	b.WriteString("\n")

	if len(m.filteredIdx) == 0 {
		b.WriteString("No tasks\n")
		return b.String()
	}

	now := m.now()
	for fi, idx := range m.filteredIdx {
		task := m.tasks[idx]
		selected := fi == m.taskCursor && m.focus == FocusTasks

		cursor := " "
		if selected {
			cursor = ">"
		}

		title := task.Title
		switch {
		case task.Status == backend.StatusDone:
			title = m.completedStyle.Render(title)
		case selected:
			title = m.selectedStyle.Render(title)
		case task.IsOverdueAt(now):
			title = m.overdueStyle.Render(title)
		}

		line := cursor + " " + statusMarker(task.Status) + priorityMarker(task.Priority) + title
		if task.Project != "" && m.selectedProject() == "" {
			line += " " + m.projectStyle.Render("("+task.Project+")")
		}
		if task.TimeSpent > 0 {
			line += " " + m.helpStyle.Render(task.FormatTimeSpent())
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func statusMarker(s backend.TaskStatus) string {
	switch s {
	case backend.StatusDone:
		return "[✓] "
	case backend.StatusInProgress:
		return "[~] "
	default:
		return "[ ] "
	}
}

func priorityMarker(p backend.TaskPriority) string {
	switch p {
	case backend.PriorityUrgent:
		return "!! "
	case backend.PriorityHigh:
		return "! "
	default:
		return ""
	}
}

func (m *Model) renderStatusBar() string {
	project := m.selectedProject()
	if project == "" {
		project = allProjects
	}
	left := fmt.Sprintf("%s · %d tasks", project, len(m.filteredIdx))
	if m.lastErr != "" {
		left = m.errorStyle.Render("Error: " + m.lastErr)
	}

	right := "q:quit  ?:help"
	if m.filter != "" {
		right = "Filter: " + m.filter + "  " + right
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func (m *Model) renderInputDialog(title, hint string) string {
	return m.centerDialog(m.dialogStyle.Render(
		title + "\n\n" +
			m.textInput.View() + "\n\n" +
			m.helpStyle.Render(hint),
	))
}

const helpText = `Help - Key Bindings

Navigation:
  j/↓    Move down
  k/↑    Move up
  Tab    Switch focus between projects/tasks

Actions:
  a      Add new task
  e      Edit selected task title
  c      Toggle task done
  s      Start task (in progress)
  d      Delete task (with confirm)
  /      Search/filter tasks

General:
  ?      Show this help
  q      Quit

Press any key to close`

func (m *Model) centerDialog(dialog string) string {
	lines := strings.Split(dialog, "\n")
	dialogHeight := len(lines)
	dialogWidth := 0
	for _, line := range lines {
		if w := lipgloss.Width(line); w > dialogWidth {
			dialogWidth = w
		}
	}

	topPad := (m.height - dialogHeight) / 2
	leftPad := (m.width - dialogWidth) / 2
	if topPad < 0 {
		topPad = 0
	}
	if leftPad < 0 {
		leftPad = 0
	}

	var b strings.Builder
	for i := 0; i < topPad; i++ {
		b.WriteString("\n")
	}
	for _, line := range lines {
		b.WriteString(strings.Repeat(" ", leftPad))
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
