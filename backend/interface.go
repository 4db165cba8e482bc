package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TaskStatus represents the workflow state of a task
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// Statuses lists every valid status in display order.
var Statuses = []TaskStatus{StatusInProgress, StatusTodo, StatusDone}

// ParseStatus converts a lowercase tag into a TaskStatus.
func ParseStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q (valid: todo, in_progress, done)", s)
	}
	return st, nil
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Rank returns the display order of the status: in_progress first, done last.
func (s TaskStatus) Rank() int {
	switch s {
	case StatusInProgress:
		return 0
	case StatusTodo:
		return 1
	case StatusDone:
		return 2
	default:
		return 3
	}
}

// TaskPriority represents the urgency of a task
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// Priorities lists every valid priority in display order.
var Priorities = []TaskPriority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority converts a lowercase tag into a TaskPriority.
func ParsePriority(s string) (TaskPriority, error) {
	p := TaskPriority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q (valid: low, medium, high, urgent)", s)
	}
	return p, nil
}

// Valid reports whether p is one of the known priorities.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Rank returns the display order of the priority: urgent first, low last.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Task represents a todo item
type Task struct {
	ID          string // empty until the task is persisted
	Title       string
	Description string
	Status      TaskStatus
	Priority    TaskPriority
	TimeSpent   int // minutes
	DueDate     *time.Time
	Tags        []string
	Project     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTask returns an unsaved task with default status and priority.
func NewTask(title string) *Task {
	now := time.Now().UTC()
	return &Task{
		Title:     title,
		Status:    StatusTodo,
		Priority:  PriorityMedium,
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (t *Task) touch() {
	t.UpdatedAt = time.Now().UTC()
}

// MarkDone sets the status to done.
func (t *Task) MarkDone() {
	t.Status = StatusDone
	t.touch()
}

// MarkInProgress sets the status to in_progress.
func (t *Task) MarkInProgress() {
	t.Status = StatusInProgress
	t.touch()
}

// SetStatus changes the status and refreshes UpdatedAt.
func (t *Task) SetStatus(s TaskStatus) {
	t.Status = s
	t.touch()
}

// SetPriority changes the priority and refreshes UpdatedAt.
func (t *Task) SetPriority(p TaskPriority) {
	t.Priority = p
	t.touch()
}

// SetProject changes the project and refreshes UpdatedAt.
func (t *Task) SetProject(project string) {
	t.Project = project
	t.touch()
}

// AddTime adds minutes to the time spent. Non-positive values are ignored.
func (t *Task) AddTime(minutes int) {
	if minutes <= 0 {
		return
	}
	t.TimeSpent += minutes
	t.touch()
}

// AddTags merges tags into the task, skipping ones already present.
// It reports whether any tag was added.
func (t *Task) AddTags(tags ...string) bool {
	seen := make(map[string]bool, len(t.Tags))
	for _, tag := range t.Tags {
		seen[tag] = true
	}
	added := false
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		t.Tags = append(t.Tags, tag)
		added = true
	}
	if added {
		t.touch()
	}
	return added
}

// IsOverdue reports whether the task is past its due date and not done.
func (t *Task) IsOverdue() bool {
	return t.IsOverdueAt(time.Now())
}

// IsOverdueAt is IsOverdue evaluated at the given instant.
func (t *Task) IsOverdueAt(now time.Time) bool {
	if t.DueDate == nil || t.Status == StatusDone {
		return false
	}
	return now.UTC().After(t.DueDate.UTC())
}

// DaysUntilDue returns the whole days between now and the due date.
// ok is false when no due date is set.
func (t *Task) DaysUntilDue() (days int, ok bool) {
	if t.DueDate == nil {
		return 0, false
	}
	return int(time.Until(*t.DueDate).Hours() / 24), true
}

// FormatTimeSpent renders the time spent as "1h 30m" or "45m".
func (t *Task) FormatTimeSpent() string {
	return FormatMinutes(t.TimeSpent)
}

// FormatMinutes renders a minute count as "1h 30m" or "45m".
func FormatMinutes(minutes int) string {
	h, m := minutes/60, minutes%60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	c.Tags = append([]string{}, t.Tags...)
	return &c
}

// SortForDisplay orders tasks by status, then priority, then newest first.
func SortForDisplay(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Status.Rank() != b.Status.Rank() {
			return a.Status.Rank() < b.Status.Rank()
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// SortNewestFirst orders tasks by creation time, newest first.
func SortNewestFirst(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

// Repository defines the storage contract every backend satisfies
type Repository interface {
	// Save inserts the task when its ID is empty and updates it otherwise.
	// The returned task carries the backend-assigned ID.
	Save(ctx context.Context, task *Task) (*Task, error)

	// GetByID returns (nil, nil) when no task has the given ID.
	GetByID(ctx context.Context, id string) (*Task, error)

	// ListAll returns every task, newest first. An empty status means no filter.
	ListAll(ctx context.Context, status TaskStatus) ([]Task, error)

	// Delete reports whether a task was removed.
	Delete(ctx context.Context, id string) (bool, error)
}

// Backend is a Repository bound to a concrete storage service
type Backend interface {
	Repository

	// Name returns the registry name of the backend (e.g., "sqlite").
	Name() string

	// Close releases connections held by the backend.
	Close() error
}

// Settings is the per-backend key/value bag read from configuration.
type Settings map[string]string

// Get returns the value for key, or def when it is empty.
func (s Settings) Get(key, def string) string {
	if v := strings.TrimSpace(s[key]); v != "" {
		return v
	}
	return def
}

// SettingsWriter persists a single backend setting back to configuration.
type SettingsWriter interface {
	SetBackendSetting(backend, key, value string) error
}
