package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"db-updater/config"
	"db-updater/internal/domain"
	"db-updater/internal/infra"
	"db-updater/internal/repository"
	"db-updater/internal/usecase"
)

// openService はデータベースに接続し、台帳テーブルを用意したUpdateServiceを返す。
// 返される関数で接続を閉じる。
func openService(ctx context.Context, cfg *config.Config, policy domain.UpdatePolicy) (*usecase.UpdateService, func(), error) {
	db, err := infra.NewDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				slog.Error("failed to close database", "error", err)
			}
		}
	}

	repo := repository.NewUpdateRepository(db, cfg.SourceDir)
	if err := repo.EnsureSchema(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("failed to prepare updater tables: %w", err)
	}

	service := usecase.NewUpdateService(repo, afero.NewOsFs(), infra.NewSQLExecutor(db), policy)
	return service, closeDB, nil
}
