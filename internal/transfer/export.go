package transfer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vibetodo/backend"
	"vibetodo/internal/service"
)

// Record is the flat form of a task in a JSON export
type Record struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Status           string   `json:"status"`
	Priority         string   `json:"priority"`
	DueDate          *string  `json:"due_date"`
	Tags             []string `json:"tags"`
	Project          string   `json:"project"`
	TimeSpentMinutes int      `json:"time_spent_minutes"`
	CreatedAt        *string  `json:"created_at"`
	UpdatedAt        *string  `json:"updated_at"`
}

// Envelope is the top-level JSON export document
type Envelope struct {
	Version    string   `json:"version"`
	ExportDate string   `json:"export_date"`
	Backend    string   `json:"backend"`
	Tasks      []Record `json:"tasks"`
}

// Exporter writes the tasks reachable through a service
type Exporter struct {
	svc         *service.Service
	backendName string
	now         func() time.Time
}

// NewExporter creates an exporter; backendName is recorded in JSON exports
func NewExporter(svc *service.Service, backendName string) *Exporter {
	return &Exporter{svc: svc, backendName: backendName, now: time.Now}
}

// collect returns the tasks named by ids, or every task when ids is empty.
// Unknown ids are skipped.
func (e *Exporter) collect(ctx context.Context, ids []string) ([]backend.Task, error) {
	if len(ids) == 0 {
		return e.svc.ListTasks(ctx, "")
	}
	tasks := make([]backend.Task, 0, len(ids))
	for _, id := range ids {
		task, err := e.svc.GetTask(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load task %s: %w", id, err)
		}
		if task != nil {
			tasks = append(tasks, *task)
		}
	}
	return tasks, nil
}

// ExportJSON writes the JSON envelope to w and returns the number of tasks written
func (e *Exporter) ExportJSON(ctx context.Context, w io.Writer, ids []string) (int, error) {
	tasks, err := e.collect(ctx, ids)
	if err != nil {
		return 0, err
	}

	env := Envelope{
		Version:    FormatVersion,
		ExportDate: e.now().UTC().Format(time.RFC3339),
		Backend:    e.backendName,
		Tasks:      make([]Record, 0, len(tasks)),
	}
	for i := range tasks {
		env.Tasks = append(env.Tasks, toRecord(&tasks[i]))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return 0, fmt.Errorf("failed to write JSON export: %w", err)
	}
	return len(tasks), nil
}

// ExportCSV writes the header and one row per task to w
func (e *Exporter) ExportCSV(ctx context.Context, w io.Writer, ids []string) (int, error) {
	tasks, err := e.collect(ctx, ids)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	for i := range tasks {
		t := &tasks[i]
		due := ""
		if t.DueDate != nil {
			due = formatTime(*t.DueDate)
		}
		if err := cw.Write([]string{
			t.Title,
			t.Description,
			string(t.Status),
			string(t.Priority),
			due,
			strings.Join(t.Tags, tagSeparator),
			t.Project,
			strconv.Itoa(t.TimeSpent),
		}); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("failed to write CSV export: %w", err)
	}
	return len(tasks), nil
}

// ExportFile writes an export to path, creating parent directories
func (e *Exporter) ExportFile(ctx context.Context, path string, format Format, ids []string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}

	var n int
	switch format {
	case FormatJSON:
		n, err = e.ExportJSON(ctx, f, ids)
	case FormatCSV:
		n, err = e.ExportCSV(ctx, f, ids)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func toRecord(t *backend.Task) Record {
	r := Record{
		ID:               t.ID,
		Title:            t.Title,
		Description:      t.Description,
		Status:           string(t.Status),
		Priority:         string(t.Priority),
		Tags:             append([]string{}, t.Tags...),
		Project:          t.Project,
		TimeSpentMinutes: t.TimeSpent,
	}
	if t.DueDate != nil {
		s := formatTime(*t.DueDate)
		r.DueDate = &s
	}
	if !t.CreatedAt.IsZero() {
		s := formatTime(t.CreatedAt)
		r.CreatedAt = &s
	}
	if !t.UpdatedAt.IsZero() {
		s := formatTime(t.UpdatedAt)
		r.UpdatedAt = &s
	}
	return r
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
