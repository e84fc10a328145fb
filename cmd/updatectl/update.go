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

// updateCmd は更新パスを1回実行する。
func updateCmd(opts *cliOptions) *cobra.Command {
	var (
		redundancy         bool
		allowRehash        bool
		archivedRedundancy bool
		cleanMaxCount      int
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Apply pending updates and reconcile the ledger",
		Long:  "Discover update files in the include directories, apply new or changed ones and bring the ledger in sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.apiURL != "" {
				return fmt.Errorf("update runs against the database directly, unset --api-url")
			}
			ctx := cmd.Context()

			// 明示されたフラグだけ設定を上書きする
			policy := opts.cfg.Updates.Policy()
			flags := cmd.Flags()
			if flags.Changed("redundancy") {
				policy.RedundancyChecks = redundancy
			}
			if flags.Changed("allow-rehash") {
				policy.AllowRehash = allowRehash
			}
			if flags.Changed("archived-redundancy") {
				policy.ArchivedRedundancyChecks = archivedRedundancy
			}
			if flags.Changed("clean-dead-ref-max-count") {
				policy.CleanDeadReferencesMaxCount = cleanMaxCount
			}

			service, closeDB, err := openService(ctx, opts.cfg, policy)
			if err != nil {
				return err
			}
			defer closeDB()

			applied, err := service.Update(ctx)
			if err != nil {
				middleware.WriteAuditLog(ctx, "UPDATE", "", "FAILED")
				return fmt.Errorf("update failed: %w", err)
			}
			middleware.WriteAuditLog(ctx, "UPDATE", "", "SUCCESS")

			out := cmd.OutOrStdout()
			if opts.output == "json" {
				return json.NewEncoder(out).Encode(map[string]int{"applied": applied})
			}
			if applied == 0 {
				fmt.Fprintln(out, "Database is up-to-date.")
			} else {
				fmt.Fprintf(out, "Applied %d update(s).\n", applied)
			}
			return nil
		},
	}

	defaults := domain.DefaultUpdatePolicy()
	cmd.Flags().BoolVar(&redundancy, "redundancy", defaults.RedundancyChecks, "Hash known updates to detect changes")
	cmd.Flags().BoolVar(&allowRehash, "allow-rehash", defaults.AllowRehash, "Fill in missing hashes without reapplying")
	cmd.Flags().BoolVar(&archivedRedundancy, "archived-redundancy", defaults.ArchivedRedundancyChecks, "Also hash updates that are archived on both sides")
	cmd.Flags().IntVar(&cleanMaxCount, "clean-dead-ref-max-count", defaults.CleanDeadReferencesMaxCount, "Maximum number of orphaned entries deleted automatically (-1 = unlimited)")
	return cmd
}

// statusCmd は台帳を変更せずに照合結果を表示する。
func statusCmd(opts *cliOptions) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of every update without applying anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := handler.ValidateFileStatus(statusFilter)
			if err != nil {
				return err
			}

			var resp handler.StatusResponse
			if opts.apiURL != "" {
				if err := opts.getJSON(cmd.Context(), "/v1/updates/status?status="+statusFilter, &resp); err != nil {
					return err
				}
			} else {
				ctx := cmd.Context()
				service, closeDB, err := openService(ctx, opts.cfg, opts.cfg.Updates.Policy())
				if err != nil {
					return err
				}
				defer closeDB()

				status, err := service.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get update status: %w", err)
				}
				resp = handler.NewStatusResponse(status, filter)
			}

			out := cmd.OutOrStdout()
			if opts.output == "json" {
				return json.NewEncoder(out).Encode(resp)
			}

			// テーブル形式で出力
			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATE\tSTATUS\tHASH\tAPPLIED AT")
			fmt.Fprintln(w, "----\t-----\t------\t----\t----------")
			for _, e := range resp.Entries {
				appliedAt := "-"
				if e.AppliedAt != nil {
					appliedAt = *e.AppliedAt
				}
				status := e.Status
				if e.RenamedFrom != "" {
					status = fmt.Sprintf("%s (from %s)", e.Status, e.RenamedFrom)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Name, dash(e.State), status, dash(short(e.Hash)), appliedAt)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush output: %w", err)
			}
			fmt.Fprintf(out, "\npending: %d, changed: %d, renamed: %d, missing: %d\n",
				resp.Summary["pending"], resp.Summary["changed"], resp.Summary["renamed"], resp.Summary["missing"])
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show entries with this status (applied, pending, changed, unhashed, renamed, missing)")
	return cmd
}

// listCmd は台帳の適用済み更新を表示する。
func listCmd(opts *cliOptions) *cobra.Command {
	var stateFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applied updates recorded in the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter domain.UpdateState
			if stateFilter != "" {
				state, err := domain.ParseUpdateState(stateFilter)
				if err != nil {
					return err
				}
				filter = state
			}

			var resp handler.AppliedUpdateListResponse
			if opts.apiURL != "" {
				if err := opts.getJSON(cmd.Context(), "/v1/updates?state="+string(filter), &resp); err != nil {
					return err
				}
			} else {
				ctx := cmd.Context()
				service, closeDB, err := openService(ctx, opts.cfg, opts.cfg.Updates.Policy())
				if err != nil {
					return err
				}
				defer closeDB()

				updates, err := service.ListApplied(ctx)
				if err != nil {
					return err
				}
				resp = handler.NewAppliedUpdateListResponse(updates, filter)
			}

			out := cmd.OutOrStdout()
			if opts.output == "json" {
				return json.NewEncoder(out).Encode(resp)
			}

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATE\tHASH\tSPEED(ms)\tAPPLIED AT")
			for _, u := range resp.Updates {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", u.Name, u.State, dash(short(u.Hash)), u.SpeedMs, u.AppliedAt)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&stateFilter, "state", "", "Only show updates in this state (ACTIVE, ARCHIVED)")
	return cmd
}

func short(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
