package transfer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"vibetodo/internal/service"
	"vibetodo/internal/utils"
)

// RecordError ties a message to a record position. Position 0 means the
// problem concerns the whole file.
type RecordError struct {
	Position int
	Message  string
}

func (e RecordError) String() string {
	if e.Position == 0 {
		return e.Message
	}
	return fmt.Sprintf("%d: %s", e.Position, e.Message)
}

// Result reports the outcome of one import
type Result struct {
	Success int
	Skipped int
	Failed  int
	Errors  []RecordError
}

// Total returns the number of records processed
func (r *Result) Total() int {
	return r.Success + r.Skipped + r.Failed
}

// FirstErrors returns at most n errors for display
func (r *Result) FirstErrors(n int) []RecordError {
	if n < 0 || n >= len(r.Errors) {
		return r.Errors
	}
	return r.Errors[:n]
}

func (r *Result) fail(position int, messages ...string) {
	r.Failed++
	for _, m := range messages {
		r.Errors = append(r.Errors, RecordError{Position: position, Message: m})
	}
}

// Importer writes imported records through a service
type Importer struct {
	svc *service.Service
}

// NewImporter creates an importer writing through svc
func NewImporter(svc *service.Service) *Importer {
	return &Importer{svc: svc}
}

// ImportFile reads path in the given format
func (i *Importer) ImportFile(ctx context.Context, path string, format Format, strategy Strategy) *Result {
	f, err := os.Open(path)
	if err != nil {
		result := &Result{}
		result.fail(0, fmt.Sprintf("failed to read file: %v", err))
		return result
	}
	defer func() { _ = f.Close() }()

	switch format {
	case FormatJSON:
		return i.ImportJSON(ctx, f, strategy)
	case FormatCSV:
		return i.ImportCSV(ctx, f, strategy)
	default:
		result := &Result{}
		result.fail(0, fmt.Sprintf("unsupported format %q", format))
		return result
	}
}

// ImportJSON reads a JSON export envelope. Positions are 1-based record indexes.
func (i *Importer) ImportJSON(ctx context.Context, r io.Reader, strategy Strategy) *Result {
	result := &Result{}

	var env struct {
		Version *string          `json:"version"`
		Tasks   *json.RawMessage `json:"tasks"`
	}
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		result.fail(0, fmt.Sprintf("failed to read file: %v", err))
		return result
	}

	var problems []string
	if env.Version == nil {
		problems = append(problems, "missing version")
	}
	var records []json.RawMessage
	if env.Tasks == nil {
		problems = append(problems, "missing tasks")
	} else if err := json.Unmarshal(*env.Tasks, &records); err != nil {
		problems = append(problems, "tasks must be a list")
	}
	if len(problems) > 0 {
		result.fail(0, problems...)
		return result
	}

	for idx, raw := range records {
		pos := idx + 1
		if err := ctx.Err(); err != nil {
			result.fail(pos, err.Error())
			return result
		}
		row, err := jsonRow(raw)
		if err != nil {
			result.fail(pos, err.Error())
			continue
		}
		i.importRow(ctx, row, strategy, pos, result)
	}
	return result
}

// jsonRow converts one JSON task object into a Row
func jsonRow(raw json.RawMessage) (Row, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return Row{}, errors.New("record must be an object")
	}

	row := Row{
		ID:          jsonString(m["id"]),
		Title:       jsonString(m["title"]),
		Description: jsonString(m["description"]),
		Status:      jsonString(m["status"]),
		Priority:    jsonString(m["priority"]),
		DueDate:     jsonString(m["due_date"]),
		Project:     jsonString(m["project"]),
		TimeSpent:   jsonString(m["time_spent_minutes"]),
	}
	if tags, ok := m["tags"].([]interface{}); ok {
		for _, t := range tags {
			if s := strings.TrimSpace(jsonString(t)); s != "" {
				row.Tags = append(row.Tags, s)
			}
		}
	}
	return row, nil
}

// jsonString renders a decoded JSON scalar as text; null becomes ""
func jsonString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		data, _ := json.Marshal(x)
		return string(data)
	}
}

// ImportCSV reads a CSV export. Positions are file line numbers; the header is line 1.
func (i *Importer) ImportCSV(ctx context.Context, r io.Reader, strategy Strategy) *Result {
	result := &Result{}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			result.fail(0, "file is empty")
		} else {
			result.fail(0, fmt.Sprintf("failed to read header: %v", err))
		}
		return result
	}
	columns := make(map[string]int, len(header))
	for idx, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		columns[name] = idx
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.fail(parseErr.StartLine, parseErr.Err.Error())
				continue
			}
			result.fail(0, fmt.Sprintf("failed to read file: %v", err))
			return result
		}

		line, _ := cr.FieldPos(0)
		if err := ctx.Err(); err != nil {
			result.fail(line, err.Error())
			return result
		}
		i.importRow(ctx, csvRow(rec, columns), strategy, line, result)
	}
	return result
}

func csvRow(rec []string, columns map[string]int) Row {
	get := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}

	row := Row{
		ID:          get("id"),
		Title:       get("title"),
		Description: get("description"),
		Status:      get("status"),
		Priority:    get("priority"),
		DueDate:     get("due_date"),
		Project:     get("project"),
		TimeSpent:   get("time_spent_minutes"),
	}
	for _, tag := range strings.Split(get("tags"), tagSeparator) {
		if tag = strings.TrimSpace(tag); tag != "" {
			row.Tags = append(row.Tags, tag)
		}
	}
	return row
}

// importRow validates one row and writes it according to strategy
func (i *Importer) importRow(ctx context.Context, row Row, strategy Strategy, pos int, result *Result) {
	if errs := Validate(row, pos); len(errs) > 0 {
		messages := make([]string, len(errs))
		for k, e := range errs {
			messages[k] = e.Field + ": " + e.Message
		}
		result.fail(pos, messages...)
		return
	}

	task := row.toTask()

	if row.ID != "" {
		switch strategy {
		case StrategySkip:
			existing, err := i.svc.GetTask(ctx, row.ID)
			if err != nil {
				result.fail(pos, fmt.Sprintf("lookup failed: %v", err))
				return
			}
			if existing != nil {
				result.Skipped++
				return
			}
		case StrategyOverwrite:
			saved, err := i.svc.Replace(ctx, row.ID, task)
			if err != nil {
				result.fail(pos, fmt.Sprintf("save failed: %v", err))
				return
			}
			if saved != nil {
				utils.Debugf("imported record %d over task %s", pos, saved.ID)
				result.Success++
				return
			}
		}
	}

	if _, err := i.svc.Create(ctx, task); err != nil {
		result.fail(pos, fmt.Sprintf("save failed: %v", err))
		return
	}
	utils.Debugf("imported record %d as %q", pos, task.Title)
	result.Success++
}
