// Package main はCLIツールのエントリポイント。
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"db-updater/config"
	"db-updater/internal/infra"
)

// cliOptions はサブコマンド共通のフラグと読み込んだ設定を保持する。
type cliOptions struct {
	configPath string
	apiURL     string
	output     string
	timeout    time.Duration

	cfg        *config.Config
	httpClient *http.Client
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:          "updatectl",
		Short:        "Database update reconciliation CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .envファイルを読み込む（存在しない場合は無視）
			_ = godotenv.Load()

			if opts.configPath != "" {
				if err := os.Setenv("UPDATER_CONFIG", opts.configPath); err != nil {
					return err
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			infra.SetupLogger(cfg)

			if opts.apiURL == "" {
				opts.apiURL = os.Getenv("UPDATECTL_API_URL")
			}
			opts.httpClient = &http.Client{Timeout: opts.timeout}
			return nil
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a TOML config file (or set UPDATER_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "Read from a running server instead of the database (or set UPDATECTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(updateCmd(opts))
	rootCmd.AddCommand(statusCmd(opts))
	rootCmd.AddCommand(listCmd(opts))
	rootCmd.AddCommand(includeCmd(opts))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "updatectl version %s\n", infra.Version)
		},
	}
}
