package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"db-updater/internal/domain"
	"db-updater/internal/handler"
	"db-updater/internal/middleware"
)

// includeCmd はインクルードディレクトリを管理する。
func includeCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "include",
		Short: "Manage include directories",
		Long:  "Manage the directories scanned for update files. A leading $ is replaced by SOURCE_DIR.",
	}
	cmd.AddCommand(includeListCmd(opts))
	cmd.AddCommand(includeAddCmd(opts))
	return cmd
}

func includeListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List include directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp handler.IncludeDirectoryListResponse
			if opts.apiURL != "" {
				if err := opts.getJSON(cmd.Context(), "/v1/updates/includes", &resp); err != nil {
					return err
				}
			} else {
				ctx := cmd.Context()
				service, closeDB, err := openService(ctx, opts.cfg, opts.cfg.Updates.Policy())
				if err != nil {
					return err
				}
				defer closeDB()

				dirs, err := service.ListIncludeDirectories(ctx)
				if err != nil {
					return err
				}
				resp = handler.NewIncludeDirectoryListResponse(dirs)
			}

			out := cmd.OutOrStdout()
			if opts.output == "json" {
				return json.NewEncoder(out).Encode(resp)
			}
			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "PATH\tSTATE")
			for _, d := range resp.Directories {
				fmt.Fprintf(w, "%s\t%s\n", d.Path, d.State)
			}
			return w.Flush()
		},
	}
}

func includeAddCmd(opts *cliOptions) *cobra.Command {
	var stateStr string

	cmd := &cobra.Command{
		Use:   "add PATH",
		Short: "Register an include directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.apiURL != "" {
				return fmt.Errorf("include add runs against the database directly, unset --api-url")
			}
			state, err := domain.ParseUpdateState(stateStr)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			service, closeDB, err := openService(ctx, opts.cfg, opts.cfg.Updates.Policy())
			if err != nil {
				return err
			}
			defer closeDB()

			if err := service.AddIncludeDirectory(ctx, args[0], state); err != nil {
				middleware.WriteAuditLog(ctx, "INCLUDE_ADD", args[0], "FAILED")
				return err
			}
			middleware.WriteAuditLog(ctx, "INCLUDE_ADD", args[0], "SUCCESS")

			fmt.Fprintf(cmd.OutOrStdout(), "Added include directory %q (%s)\n", args[0], state)
			return nil
		},
	}
	cmd.Flags().StringVar(&stateStr, "state", string(domain.UpdateStateActive), "State of updates in this directory (ACTIVE, ARCHIVED)")
	return cmd
}
