// Package main はAPIサーバーのエントリポイント。
// 起動時に更新パスを1回実行してから参照用APIを公開する。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"db-updater/config"
	"db-updater/internal/handler"
	"db-updater/internal/infra"
	"db-updater/internal/repository"
	"db-updater/internal/usecase"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer infra.ShutdownTracer(ctx, tp)

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg)

	// DB初期化
	db, err := infra.NewDB(cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// DI
	repo := repository.NewUpdateRepository(db, cfg.SourceDir)
	if err := repo.EnsureSchema(ctx); err != nil {
		slog.Error("failed to prepare updater tables", "error", err)
		os.Exit(1)
	}
	service := usecase.NewUpdateService(repo, afero.NewOsFs(), infra.NewSQLExecutor(db), cfg.Updates.Policy())

	// 起動時の更新パス
	if cfg.Updates.Enabled {
		applied, err := service.Update(ctx)
		if err != nil {
			slog.Error("failed to update database", "error", err)
			os.Exit(1)
		}
		slog.Info("database is up-to-date", "applied", applied)
	} else {
		slog.Info("automatic updates are disabled")
	}

	h := handler.NewUpdateHandler(service)
	router := handler.NewRouter(h, cfg)

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
