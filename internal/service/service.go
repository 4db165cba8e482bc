// Package service implements task operations on top of a backend repository.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vibetodo/backend"
)

// ErrEmptyTitle is returned when a task would be created or renamed to an empty title
var ErrEmptyTitle = errors.New("task title cannot be empty")

// Service is the task facade used by the CLI and TUI
type Service struct {
	repo backend.Repository
}

// New creates a Service backed by repo
func New(repo backend.Repository) *Service {
	return &Service{repo: repo}
}

// CreateOptions holds the optional fields of a new task
type CreateOptions struct {
	Description string
	Priority    backend.TaskPriority
	DueDate     *time.Time
	Tags        []string
	Project     string
}

// CreateTask builds a task from title and opts and saves it
func (s *Service) CreateTask(ctx context.Context, title string, opts CreateOptions) (*backend.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	task := backend.NewTask(title)
	task.Description = opts.Description
	if opts.Priority != "" {
		if !opts.Priority.Valid() {
			return nil, fmt.Errorf("invalid priority %q", opts.Priority)
		}
		task.Priority = opts.Priority
	}
	task.DueDate = opts.DueDate
	task.AddTags(opts.Tags...)
	task.Project = strings.TrimSpace(opts.Project)

	return s.Create(ctx, task)
}

// Create saves a fully built task as a new record. Any ID on task is ignored.
func (s *Service) Create(ctx context.Context, task *backend.Task) (*backend.Task, error) {
	fresh := task.Clone()
	fresh.ID = ""
	saved, err := s.repo.Save(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return saved, nil
}

// Replace overwrites the fields of the task with id using task, keeping the
// stored ID and creation time. A missing task returns nil, nil.
func (s *Service) Replace(ctx context.Context, id string, task *backend.Task) (*backend.Task, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	replacement := task.Clone()
	replacement.ID = existing.ID
	replacement.CreatedAt = existing.CreatedAt
	saved, err := s.repo.Save(ctx, replacement)
	if err != nil {
		return nil, fmt.Errorf("failed to save task %s: %w", id, err)
	}
	return saved, nil
}

// GetTask returns the task with id, or nil if it does not exist
func (s *Service) GetTask(ctx context.Context, id string) (*backend.Task, error) {
	return s.repo.GetByID(ctx, id)
}

// ListTasks returns tasks in the backend's order, optionally filtered by status
func (s *Service) ListTasks(ctx context.Context, status backend.TaskStatus) ([]backend.Task, error) {
	return s.repo.ListAll(ctx, status)
}

// update loads the task, applies fn, and saves it. A missing task returns nil, nil.
func (s *Service) update(ctx context.Context, id string, fn func(*backend.Task) error) (*backend.Task, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}
	if err := fn(task); err != nil {
		return nil, err
	}
	saved, err := s.repo.Save(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to save task %s: %w", id, err)
	}
	return saved, nil
}

// UpdateTask changes the title and/or description. Nil arguments are left as is.
func (s *Service) UpdateTask(ctx context.Context, id string, title, description *string) (*backend.Task, error) {
	return s.update(ctx, id, func(t *backend.Task) error {
		if title != nil {
			trimmed := strings.TrimSpace(*title)
			if trimmed == "" {
				return ErrEmptyTitle
			}
			t.Title = trimmed
		}
		if description != nil {
			t.Description = *description
		}
		t.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// MarkDone sets the task's status to done
func (s *Service) MarkDone(ctx context.Context, id string) (*backend.Task, error) {
	return s.update(ctx, id, func(t *backend.Task) error {
		t.MarkDone()
		return nil
	})
}

// MarkInProgress sets the task's status to in_progress
func (s *Service) MarkInProgress(ctx context.Context, id string) (*backend.Task, error) {
	return s.update(ctx, id, func(t *backend.Task) error {
		t.MarkInProgress()
		return nil
	})
}

// SetStatus moves the task to status
func (s *Service) SetStatus(ctx context.Context, id string, status backend.TaskStatus) (*backend.Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	return s.update(ctx, id, func(t *backend.Task) error {
		t.SetStatus(status)
		return nil
	})
}

// AddTime adds minutes to the task's time spent. Non-positive values change
// nothing and are not written to the backend.
func (s *Service) AddTime(ctx context.Context, id string, minutes int) (*backend.Task, error) {
	if minutes <= 0 {
		return s.repo.GetByID(ctx, id)
	}
	return s.update(ctx, id, func(t *backend.Task) error {
		t.AddTime(minutes)
		return nil
	})
}

// DeleteTask removes a task and reports whether it existed
func (s *Service) DeleteTask(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}

// =============================================================================
// Statistics
// =============================================================================

// Stats summarizes all tasks in the backend
type Stats struct {
	Total        int     `json:"total"`
	Todo         int     `json:"todo"`
	InProgress   int     `json:"in_progress"`
	Done         int     `json:"done"`
	Overdue      int     `json:"overdue"`
	TotalMinutes int     `json:"total_time_minutes"`
	TotalHours   float64 `json:"total_time_hours"`
}

// Statistics counts tasks by status and sums time spent
func (s *Service) Statistics(ctx context.Context) (*Stats, error) {
	tasks, err := s.repo.ListAll(ctx, "")
	if err != nil {
		return nil, err
	}
	return ComputeStats(tasks, time.Now()), nil
}

// ComputeStats summarizes tasks as of now
func ComputeStats(tasks []backend.Task, now time.Time) *Stats {
	stats := &Stats{Total: len(tasks)}
	for i := range tasks {
		t := &tasks[i]
		switch t.Status {
		case backend.StatusTodo:
			stats.Todo++
		case backend.StatusInProgress:
			stats.InProgress++
		case backend.StatusDone:
			stats.Done++
		}
		if t.IsOverdueAt(now) {
			stats.Overdue++
		}
		stats.TotalMinutes += t.TimeSpent
	}
	stats.TotalHours = float64(stats.TotalMinutes) / 60
	return stats
}

// =============================================================================
// Filtering
// =============================================================================

// Filter narrows a task listing on the client side
type Filter struct {
	Project string
	Tag     string
	Overdue bool
}

// Apply returns the tasks matching every set criterion, keeping their order
func (f Filter) Apply(tasks []backend.Task, now time.Time) []backend.Task {
	result := make([]backend.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Project != "" && !strings.EqualFold(t.Project, f.Project) {
			continue
		}
		if f.Tag != "" && !hasTag(t.Tags, f.Tag) {
			continue
		}
		if f.Overdue && !t.IsOverdueAt(now) {
			continue
		}
		result = append(result, t)
	}
	return result
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}

// Projects returns the distinct non-empty projects in first-seen order
func Projects(tasks []backend.Task) []string {
	seen := make(map[string]bool)
	var projects []string
	for _, t := range tasks {
		if t.Project != "" && !seen[t.Project] {
			seen[t.Project] = true
			projects = append(projects, t.Project)
		}
	}
	return projects
}
