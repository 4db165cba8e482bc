package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"vibetodo/backend"
	"vibetodo/internal/service"
	"vibetodo/internal/transfer"
)

// maxShownErrors caps the import errors printed in text mode
const maxShownErrors = 10

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export tasks to a JSON or CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatFlag, _ := cmd.Flags().GetString("format")
			ids, _ := cmd.Flags().GetStringSlice("id")

			format, err := transfer.ParseFormat(formatFlag, args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withService(ctx, func(svc *service.Service, b backend.Backend) error {
				n, err := transfer.NewExporter(svc, b.Name()).ExportFile(ctx, args[0], format, ids)
				if err != nil {
					return err
				}
				if jsonFlag(cmd) {
					return writeJSON(a.stdout, map[string]interface{}{
						"action": "export",
						"file":   args[0],
						"format": format,
						"count":  n,
						"result": ResultActionCompleted,
					})
				}
				_, _ = fmt.Fprintf(a.stdout, "Exported %d task(s) to %s\n", n, args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringP("format", "f", "", "json or csv (default: from file extension)")
	cmd.Flags().StringSlice("id", nil, "Export only these task IDs")
	return cmd
}

type importResponse struct {
	Action  string   `json:"action"`
	Success int      `json:"success"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
	Result  string   `json:"result"`
}

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import tasks from a JSON or CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatFlag, _ := cmd.Flags().GetString("format")
			strategyFlag, _ := cmd.Flags().GetString("strategy")

			format, err := transfer.ParseFormat(formatFlag, args[0])
			if err != nil {
				return err
			}
			strategy, err := transfer.ParseStrategy(strategyFlag)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withService(ctx, func(svc *service.Service, _ backend.Backend) error {
				result := transfer.NewImporter(svc).ImportFile(ctx, args[0], format, strategy)

				if jsonFlag(cmd) {
					resp := importResponse{
						Action:  "import",
						Success: result.Success,
						Skipped: result.Skipped,
						Failed:  result.Failed,
						Errors:  []string{},
						Result:  ResultActionCompleted,
					}
					for _, e := range result.Errors {
						resp.Errors = append(resp.Errors, e.String())
					}
					if result.Failed > 0 {
						resp.Result = ResultError
					}
					return writeJSON(a.stdout, resp)
				}

				_, _ = fmt.Fprintf(a.stdout, "Imported %d, skipped %d, failed %d\n", result.Success, result.Skipped, result.Failed)
				for _, e := range result.FirstErrors(maxShownErrors) {
					_, _ = fmt.Fprintf(a.stdout, "  %s\n", e.String())
				}
				if extra := len(result.Errors) - maxShownErrors; extra > 0 {
					_, _ = fmt.Fprintf(a.stdout, "  ... and %d more\n", extra)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringP("format", "f", "", "json or csv (default: from file extension)")
	cmd.Flags().StringP("strategy", "s", "create_new", "Conflict handling: skip, overwrite, create_new")
	return cmd
}
