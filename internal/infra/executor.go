package infra

import (
	"bytes"
	"context"
	"log/slog"

	"gorm.io/gorm"
)

// NewSQLExecutor は更新内容を1トランザクションで実行する関数を返す。
// 内容は解釈せずドライバにそのまま渡すため、複数文の可否はドライバ設定に依存する。
func NewSQLExecutor(db *gorm.DB) func(ctx context.Context, name string, content []byte) error {
	return func(ctx context.Context, name string, content []byte) error {
		if len(bytes.TrimSpace(content)) == 0 {
			slog.DebugContext(ctx, "update is empty, nothing to execute", "name", name)
			return nil
		}
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Exec(string(content)).Error
		})
	}
}
