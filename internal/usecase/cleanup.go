package usecase

import (
	"context"
	"fmt"
	"log/slog"
)

// handleOrphans は台帳にだけ残ったレコードを報告し、上限以内なら削除する。
func (s *UpdateService) handleOrphans(ctx context.Context, logger *slog.Logger, orphans []string) error {
	if len(orphans) == 0 {
		return nil
	}

	limit := s.policy.CleanDeadReferencesMaxCount
	doCleanup := limit < 0 || len(orphans) <= limit

	for _, name := range orphans {
		logger.WarnContext(ctx, "update was applied to the database but is missing in the update directories now",
			"name", name,
		)
		if doCleanup {
			logger.InfoContext(ctx, "deleting orphaned entry", "name", name)
		}
	}

	if !doCleanup {
		logger.ErrorContext(ctx, "cleanup is disabled, dirty updates were applied to the database but are now missing in the source directory",
			"operation", "cleanup",
			"count", len(orphans),
			"limit", limit,
		)
		return nil
	}
	return s.cleanUp(ctx, orphans)
}

// cleanUp は孤立レコードを一括削除する。
func (s *UpdateService) cleanUp(ctx context.Context, orphans []string) error {
	if len(orphans) == 0 {
		return nil
	}
	if err := s.repo.DeleteByNames(ctx, orphans); err != nil {
		return fmt.Errorf("failed to clean up orphaned updates: %w", err)
	}
	return nil
}
