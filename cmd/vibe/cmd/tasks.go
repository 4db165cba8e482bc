package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"vibetodo/backend"
	"vibetodo/internal/service"
	"vibetodo/internal/utils"
)

var (
	todoStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	inProgressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	doneStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	urgentStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	highStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	lowStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	overdueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	headerStyle     = lipgloss.NewStyle().Bold(true)
)

// JSON output structures
type taskJSON struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	DueDate     *string  `json:"due_date,omitempty"`
	Tags        []string `json:"tags"`
	Project     string   `json:"project,omitempty"`
	TimeSpent   int      `json:"time_spent_minutes"`
	Overdue     bool     `json:"overdue"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

type listTasksResponse struct {
	Tasks  []taskJSON `json:"tasks"`
	Count  int        `json:"count"`
	Result string     `json:"result"`
}

type actionResponse struct {
	Action string   `json:"action"`
	Task   taskJSON `json:"task"`
	Result string   `json:"result"`
}

type countResponse struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
	Result string `json:"result"`
}

func taskToJSON(t *backend.Task) taskJSON {
	result := taskJSON{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Tags:        append([]string{}, t.Tags...),
		Project:     t.Project,
		TimeSpent:   t.TimeSpent,
		Overdue:     t.IsOverdue(),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if t.DueDate != nil {
		s := t.DueDate.Format("2006-01-02")
		result.DueDate = &s
	}
	return result
}

func outputActionJSON(w io.Writer, action string, task *backend.Task) error {
	return writeJSON(w, actionResponse{Action: action, Task: taskToJSON(task), Result: ResultActionCompleted})
}

func statusLabel(s backend.TaskStatus) string {
	text := fmt.Sprintf("%-11s", s)
	switch s {
	case backend.StatusDone:
		return doneStyle.Render(text)
	case backend.StatusInProgress:
		return inProgressStyle.Render(text)
	default:
		return todoStyle.Render(text)
	}
}

func priorityLabel(p backend.TaskPriority) string {
	text := fmt.Sprintf("%-8s", p)
	switch p {
	case backend.PriorityUrgent:
		return urgentStyle.Render(text)
	case backend.PriorityHigh:
		return highStyle.Render(text)
	case backend.PriorityLow:
		return lowStyle.Render(text)
	default:
		return text
	}
}

func getStatusIcon(status backend.TaskStatus) string {
	switch status {
	case backend.StatusDone:
		return "[✓]"
	case backend.StatusInProgress:
		return "[~]"
	default:
		return "[ ]"
	}
}

// parsePriorityFlag returns "" for an empty flag
func parsePriorityFlag(s string) (backend.TaskPriority, error) {
	if s == "" {
		return "", nil
	}
	p, err := backend.ParsePriority(s)
	if err != nil {
		return "", utils.ErrInvalidPriority(s)
	}
	return p, nil
}

func parseStatusArg(s string) (backend.TaskStatus, error) {
	status, err := backend.ParseStatus(s)
	if err != nil {
		valid := make([]string, len(backend.Statuses))
		for i, v := range backend.Statuses {
			valid[i] = string(v)
		}
		return "", utils.ErrInvalidStatus(s, valid)
	}
	return status, nil
}

// =============================================================================
// add
// =============================================================================

func newAddCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, _ := cmd.Flags().GetString("description")
			priorityFlag, _ := cmd.Flags().GetString("priority")
			dueFlag, _ := cmd.Flags().GetString("due")
			tags, _ := cmd.Flags().GetStringSlice("tag")
			project, _ := cmd.Flags().GetString("project")

			priority, err := parsePriorityFlag(priorityFlag)
			if err != nil {
				return err
			}
			due, err := utils.ParseDateFlag(dueFlag)
			if err != nil {
				return err
			}

			opts := service.CreateOptions{
				Description: description,
				Priority:    priority,
				DueDate:     due,
				Tags:        tags,
				Project:     project,
			}
			ctx := cmd.Context()
			return a.withService(ctx, func(svc *service.Service, _ backend.Backend) error {
				task, err := svc.CreateTask(ctx, strings.Join(args, " "), opts)
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					return outputActionJSON(a.stdout, "add", task)
				}
				_, _ = fmt.Fprintf(a.stdout, "Created task %s: %s\n", task.ID, task.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringP("description", "d", "", "Task description")
	cmd.Flags().StringP("priority", "p", "", "Priority: low, medium, high, urgent")
	cmd.Flags().String("due", "", "Due date (YYYY-MM-DD, today, tomorrow, +3d)")
	cmd.Flags().StringSliceP("tag", "t", nil, "Tag (repeatable or comma-separated)")
	cmd.Flags().StringP("project", "P", "", "Project name")
	return cmd
}

// =============================================================================
// list
// =============================================================================

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statusFlag, _ := cmd.Flags().GetString("status")
			project, _ := cmd.Flags().GetString("project")
			tag, _ := cmd.Flags().GetString("tag")
			overdue, _ := cmd.Flags().GetBool("overdue")

			var status backend.TaskStatus
			if statusFlag != "" {
				s, err := parseStatusArg(statusFlag)
				if err != nil {
					return err
				}
				status = s
			}

			ctx := cmd.Context()
			return a.withService(ctx, func(svc *service.Service, _ backend.Backend) error {
				tasks, err := svc.ListTasks(ctx, status)
				if err != nil {
					return err
				}
				tasks = service.Filter{Project: project, Tag: tag, Overdue: overdue}.Apply(tasks, time.Now())
				backend.SortForDisplay(tasks)

				if jsonFlag(cmd) {
					out := make([]taskJSON, 0, len(tasks))
					for i := range tasks {
						out = append(out, taskToJSON(&tasks[i]))
					}
					return writeJSON(a.stdout, listTasksResponse{Tasks: out, Count: len(out), Result: ResultInfoOnly})
				}
				printTaskTable(a.stdout, tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringP("status", "s", "", "Only tasks with this status")
	cmd.Flags().StringP("project", "P", "", "Only tasks in this project")
	cmd.Flags().StringP("tag", "t", "", "Only tasks with this tag")
	cmd.Flags().Bool("overdue", false, "Only overdue tasks")
	return cmd
}

func printTaskTable(w io.Writer, tasks []backend.Task) {
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(w, "No tasks found")
		return
	}

	_, _ = fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-6s %-3s %-11s %-8s %-12s %s", "ID", "", "STATUS", "PRIORITY", "DUE", "TITLE")))
	for i := range tasks {
		t := &tasks[i]
		due := fmt.Sprintf("%-12s", "-")
		if t.DueDate != nil {
			due = fmt.Sprintf("%-12s", t.DueDate.Format("2006-01-02"))
			if t.IsOverdue() {
				due = overdueStyle.Render(due)
			}
		}

		line := fmt.Sprintf("%-6s %s %s %s %s %s", t.ID, getStatusIcon(t.Status), statusLabel(t.Status), priorityLabel(t.Priority), due, t.Title)
		if t.Project != "" {
			line += " @" + t.Project
		}
		if len(t.Tags) > 0 {
			line += " #" + strings.Join(t.Tags, " #")
		}
		if t.TimeSpent > 0 {
			line += " (" + t.FormatTimeSpent() + ")"
		}
		_, _ = fmt.Fprintln(w, line)
	}
	_, _ = fmt.Fprintf(w, "\n%d task(s)\n", len(tasks))
}

// =============================================================================
// show
// =============================================================================

// mustGet loads a task, turning a missing one into a suggestion error
func mustGet(ctx context.Context, svc *service.Service, id string) (*backend.Task, error) {
	task, err := svc.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, utils.ErrTaskNotFound(id)
	}
	return task, nil
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withService(ctx, func(svc *service.Service, _ backend.Backend) error {
				task, err := mustGet(ctx, svc, args[0])
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					return writeJSON(a.stdout, taskToJSON(task))
				}
				printTaskDetail(a.stdout, task)
				return nil
			})
		},
	}
}

func printTaskDetail(w io.Writer, t *backend.Task) {
	_, _ = fmt.Fprintf(w, "%s %s\n", getStatusIcon(t.Status), headerStyle.Render(t.Title))
	_, _ = fmt.Fprintf(w, "  ID:        %s\n", t.ID)
	_, _ = fmt.Fprintf(w, "  Status:    %s\n", statusLabel(t.Status))
	_, _ = fmt.Fprintf(w, "  Priority:  %s\n", priorityLabel(t.Priority))
	if t.Description != "" {
		_, _ = fmt.Fprintf(w, "  Description: %s\n", t.Description)
	}
	if t.DueDate != nil {
		due := t.DueDate.Format("2006-01-02")
		if days, ok := t.DaysUntilDue(); ok {
			switch {
			case t.IsOverdue():
				due += " " + overdueStyle.Render(fmt.Sprintf("(overdue by %d day(s))", -days))
			case days == 0:
				due += " (today)"
			default:
				due += fmt.Sprintf(" (in %d day(s))", days)
			}
		}
		_, _ = fmt.Fprintf(w, "  Due:       %s\n", due)
	}
	if t.Project != "" {
		_, _ = fmt.Fprintf(w, "  Project:   %s\n", t.Project)
	}
	if len(t.Tags) > 0 {
		_, _ = fmt.Fprintf(w, "  Tags:      %s\n", strings.Join(t.Tags, ", "))
	}
	_, _ = fmt.Fprintf(w, "  Time:      %s\n", t.FormatTimeSpent())
	_, _ = fmt.Fprintf(w, "  Created:   %s\n", t.CreatedAt.Local().Format("2006-01-02 15:04"))
	_, _ = fmt.Fprintf(w, "  Updated:   %s\n", t.UpdatedAt.Local().Format("2006-01-02 15:04"))
}

// =============================================================================
// start / done / update / log
// =============================================================================

// newTransitionCmd builds a command that applies op to one task
func newTransitionCmd(a *app, use, short, action, verb string, op func(*service.Service) func(context.Context, string) (*backend.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withService(ctx, func(svc *service.Service, _ backend.Backend) error {
				task, err := op(svc)(ctx, args[0])
				if err != nil {
					return err
				}
				if task == nil {
					return utils.ErrTaskNotFound(args[0])
				}
				if jsonFlag(cmd) {
					return outputActionJSON(a.stdout, action, task)
				}
				_, _ = fmt.Fprintf(a.stdout, "%s task %s: %s\n", verb, task.ID, task.Title)
				return nil
			})
		},
	}
}

func newStartCmd(a *app) *cobra.Command {
	return newTransitionCmd(a, "start", "Mark a task in progress", "start", "Started",
		func(s *service.Service) func(context.Context, string) (*backend.Task, error) { return s.MarkInProgress })
}

func newDoneCmd(a *app) *cobra.Command {
	return newTransitionCmd(a, "done", "Mark a task done", "done", "Completed",
		func(s *service.Service) func(context.Context, string) (*backend.Task, error) { return s.MarkDone })
}

func newUpdateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Change a task's title or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var title, description *string
			if cmd.Flags().Changed("title") {
				v, _ := cmd.Flags().GetString("title")
				title = &v
			}
			if cmd.Flags().Changed("description") {
				v, _ := cmd.Flags().GetString("description")
				description = &v
			}
			if title == nil && description == nil {
				return fmt.Errorf("nothing to update: pass --title and/or --description")
			}

			ctx := cmd.Context()
			return a.withService(ctx, func(svc *service.Service, _ backend.Backend) error {
				task, err := svc.UpdateTask(ctx, args[0], title, description)
				if err != nil {
					return err
				}
				if task == nil {
					return utils.ErrTaskNotFound(args[0])
				}
				if jsonFlag(cmd) {
					return outputActionJSON(a.stdout, "update", task)
				}
				_, _ = fmt.Fprintf(a.stdout, "Updated task %s: %s\n", task.ID, task.Title)
				return nil
			})
		},
	}
	cmd.Flags().String("title", "", "New title")
	cmd.Flags().StringP("description", "d", "", "New description (\"\" clears it)")
	return cmd
}

func newLogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "log [id] [duration]",
		Short: "Add time spent to a task (90, 45m, 1.5h, 2h30m)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := utils.ParseTimeInput(args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withService(ctx, func(svc *service.Service, _ backend.Backend) error {
				task, err := svc.AddTime(ctx, args[0], minutes)
				if err != nil {
					return err
				}
				if task == nil {
					return utils.ErrTaskNotFound(args[0])
				}
				if jsonFlag(cmd) {
					return outputActionJSON(a.stdout, "log", task)
				}
				_, _ = fmt.Fprintf(a.stdout, "Logged %s on task %s (total %s)\n", backend.FormatMinutes(minutes), task.ID, task.FormatTimeSpent())
				return nil
			})
		},
	}
}

// =============================================================================
// delete
// =============================================================================

func newDeleteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete [id]",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			ctx := cmd.Context()
			return a.withService(ctx, func(svc *service.Service, _ backend.Backend) error {
				task, err := mustGet(ctx, svc, args[0])
				if err != nil {
					return err
				}
				if !force && !utils.PromptYesNo(fmt.Sprintf("Delete task %s %q?", task.ID, task.Title), a.cfg.Stdin, a.stdout) {
					_, _ = fmt.Fprintln(a.stdout, "Cancelled")
					return nil
				}

				deleted, err := svc.DeleteTask(ctx, task.ID)
				if err != nil {
					return err
				}
				if !deleted {
					return utils.ErrTaskNotFound(task.ID)
				}
				if jsonFlag(cmd) {
					return outputActionJSON(a.stdout, "delete", task)
				}
				_, _ = fmt.Fprintf(a.stdout, "Deleted task %s: %s\n", task.ID, task.Title)
				return nil
			})
		},
	}
	cmd.Flags().BoolP("force", "f", false, "Delete without confirmation")
	return cmd
}

// =============================================================================
// stats
// =============================================================================

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withService(ctx, func(svc *service.Service, b backend.Backend) error {
				stats, err := svc.Statistics(ctx)
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					return writeJSON(a.stdout, stats)
				}
				_, _ = fmt.Fprintf(a.stdout, "Backend:      %s\n", b.Name())
				_, _ = fmt.Fprintf(a.stdout, "Total:        %d\n", stats.Total)
				_, _ = fmt.Fprintf(a.stdout, "  Todo:        %d\n", stats.Todo)
				_, _ = fmt.Fprintf(a.stdout, "  In progress: %d\n", stats.InProgress)
				_, _ = fmt.Fprintf(a.stdout, "  Done:        %d\n", stats.Done)
				_, _ = fmt.Fprintf(a.stdout, "Overdue:      %d\n", stats.Overdue)
				_, _ = fmt.Fprintf(a.stdout, "Time spent:   %s (%.1fh)\n", backend.FormatMinutes(stats.TotalMinutes), stats.TotalHours)
				return nil
			})
		},
	}
}
