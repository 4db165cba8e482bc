package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vibetodo/backend"
	"vibetodo/internal/service"
	"vibetodo/internal/utils"
)

func newBatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Apply one change to several tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		newBatchValueCmd(a, "status [status] [id...]", "Set the status of several tasks", "batch_status",
			func(ctx context.Context, svc *service.Service, value string, ids []string) (int, error) {
				status, err := parseStatusArg(value)
				if err != nil {
					return 0, err
				}
				return svc.BatchUpdateStatus(ctx, ids, status)
			}),
		newBatchValueCmd(a, "priority [priority] [id...]", "Set the priority of several tasks", "batch_priority",
			func(ctx context.Context, svc *service.Service, value string, ids []string) (int, error) {
				priority, err := backend.ParsePriority(value)
				if err != nil {
					return 0, utils.ErrInvalidPriority(value)
				}
				return svc.BatchUpdatePriority(ctx, ids, priority)
			}),
		newBatchValueCmd(a, "project [project] [id...]", "Move several tasks to a project (\"\" clears it)", "batch_project",
			func(ctx context.Context, svc *service.Service, value string, ids []string) (int, error) {
				return svc.BatchUpdateProject(ctx, ids, value)
			}),
		newBatchValueCmd(a, "tags [tag,tag...] [id...]", "Add tags to several tasks", "batch_tags",
			func(ctx context.Context, svc *service.Service, value string, ids []string) (int, error) {
				return svc.BatchAddTags(ctx, ids, strings.Split(value, ","))
			}),
		newBatchDeleteCmd(a),
	)
	return cmd
}

// newBatchValueCmd builds "batch <what> VALUE ID..." commands
func newBatchValueCmd(a *app, use, short, action string, apply func(context.Context, *service.Service, string, []string) (int, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return utils.WrapWithSuggestion(utils.ErrNoTasksSelected, "Pass one or more task IDs after the value")
			}
			ctx := cmd.Context()
			return a.withService(ctx, func(svc *service.Service, _ backend.Backend) error {
				n, err := apply(ctx, svc, args[0], args[1:])
				if err != nil {
					return err
				}
				return a.reportCount(cmd, action, n, "Updated")
			})
		},
	}
}

func newBatchDeleteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [id...]",
		Short: "Delete several tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			if !force && !utils.PromptYesNo(fmt.Sprintf("Delete %d task(s)?", len(args)), a.cfg.Stdin, a.stdout) {
				_, _ = fmt.Fprintln(a.stdout, "Cancelled")
				return nil
			}
			ctx := cmd.Context()
			return a.withService(ctx, func(svc *service.Service, _ backend.Backend) error {
				n, err := svc.BatchDelete(ctx, args)
				if err != nil {
					return err
				}
				return a.reportCount(cmd, "batch_delete", n, "Deleted")
			})
		},
	}
	cmd.Flags().BoolP("force", "f", false, "Delete without confirmation")
	return cmd
}

func (a *app) reportCount(cmd *cobra.Command, action string, n int, verb string) error {
	if jsonFlag(cmd) {
		return writeJSON(a.stdout, countResponse{Action: action, Count: n, Result: ResultActionCompleted})
	}
	_, _ = fmt.Fprintf(a.stdout, "%s %d task(s)\n", verb, n)
	return nil
}
