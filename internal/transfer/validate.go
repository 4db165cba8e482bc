package transfer

import (
	"fmt"
	"strconv"
	"strings"

	"vibetodo/backend"
	"vibetodo/internal/utils"
)

// Row is one inbound record with every field still in text form
type Row struct {
	ID          string
	Title       string
	Description string
	Status      string
	Priority    string
	DueDate     string
	Tags        []string
	Project     string
	TimeSpent   string // empty means 0
}

// ValidationError describes one problem with an inbound record
type ValidationError struct {
	Position int
	Field    string
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %d: %s: %s", e.Position, e.Field, e.Message)
}

// Validate checks a record and returns every problem found. A record with
// any error must not be imported.
func Validate(row Row, position int) []*ValidationError {
	var errs []*ValidationError
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Position: position, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(row.Title) == "" {
		add("title", "missing required field")
	}

	switch {
	case row.Status == "":
		add("status", "missing required field")
	case !backend.TaskStatus(row.Status).Valid():
		add("status", "invalid status %q", row.Status)
	}

	switch {
	case row.Priority == "":
		add("priority", "missing required field")
	case !backend.TaskPriority(row.Priority).Valid():
		add("priority", "invalid priority %q", row.Priority)
	}

	if row.DueDate != "" {
		if _, err := utils.ParseISODate(row.DueDate); err != nil {
			add("due_date", "invalid date %q", row.DueDate)
		}
	}

	if row.TimeSpent != "" {
		n, err := strconv.Atoi(row.TimeSpent)
		switch {
		case err != nil:
			add("time_spent_minutes", "invalid minutes %q", row.TimeSpent)
		case n < 0:
			add("time_spent_minutes", "cannot be negative")
		}
	}

	return errs
}

// toTask builds an unsaved task from a validated row
func (row Row) toTask() *backend.Task {
	task := backend.NewTask(strings.TrimSpace(row.Title))
	task.Description = row.Description
	task.Status = backend.TaskStatus(row.Status)
	task.Priority = backend.TaskPriority(row.Priority)
	if row.DueDate != "" {
		due, _ := utils.ParseISODate(row.DueDate)
		task.DueDate = &due
	}
	task.AddTags(row.Tags...)
	task.Project = row.Project
	if row.TimeSpent != "" {
		task.TimeSpent, _ = strconv.Atoi(row.TimeSpent)
	}
	return task
}
