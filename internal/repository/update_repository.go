// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"db-updater/internal/domain"
)

// sourceDirMarker はインクルードパス先頭でソースディレクトリを表す記号。
const sourceDirMarker = "$"

// UpdateModel はupdatesテーブルのモデル。
type UpdateModel struct {
	Name      string    `gorm:"column:name;primaryKey;type:varchar(200)"`
	Hash      string    `gorm:"column:hash;type:char(40);not null;default:''"`
	State     string    `gorm:"column:state;type:varchar(8);not null;default:'ACTIVE'"`
	Timestamp time.Time `gorm:"column:timestamp;not null"`
	Speed     uint32    `gorm:"column:speed;not null;default:0"`
}

// TableName はテーブル名を指定。
func (UpdateModel) TableName() string {
	return "updates"
}

// UpdateIncludeModel はupdates_includeテーブルのモデル。
type UpdateIncludeModel struct {
	Path  string `gorm:"column:path;primaryKey;type:varchar(200)"`
	State string `gorm:"column:state;type:varchar(8);not null;default:'ACTIVE'"`
}

// TableName はテーブル名を指定。
func (UpdateIncludeModel) TableName() string {
	return "updates_include"
}

// UpdateRepository は適用済み更新の台帳とインクルードディレクトリを管理する。
type UpdateRepository struct {
	db        *gorm.DB
	sourceDir string
}

// NewUpdateRepository は新しいUpdateRepositoryを生成する。
// sourceDirはインクルードパス先頭の"$"の置換先。
func NewUpdateRepository(db *gorm.DB, sourceDir string) *UpdateRepository {
	return &UpdateRepository{db: db, sourceDir: sourceDir}
}

// EnsureSchema は台帳テーブルが無ければ作成する。
func (r *UpdateRepository) EnsureSchema(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&UpdateModel{}, &UpdateIncludeModel{}); err != nil {
		slog.ErrorContext(ctx, "failed to ensure updater schema",
			"operation", "ensure_schema",
			"error", err,
		)
		return err
	}
	return nil
}

// FindIncludeDirectories は設定済みのインクルードディレクトリを取得する。
func (r *UpdateRepository) FindIncludeDirectories(ctx context.Context) ([]*domain.IncludeDirectory, error) {
	var models []UpdateIncludeModel
	if err := r.db.WithContext(ctx).Order("path ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find include directories",
			"operation", "find_include_directories",
			"error", err,
		)
		return nil, err
	}

	dirs := make([]*domain.IncludeDirectory, 0, len(models))
	for _, model := range models {
		state, err := domain.ParseUpdateState(model.State)
		if err != nil {
			slog.ErrorContext(ctx, "invalid include directory state",
				"operation", "find_include_directories",
				"path", model.Path,
				"error", err,
			)
			return nil, err
		}
		dirs = append(dirs, &domain.IncludeDirectory{
			Path:  r.resolvePath(model.Path),
			State: state,
		})
	}
	return dirs, nil
}

// resolvePath は先頭の"$"をソースディレクトリに置換する。
func (r *UpdateRepository) resolvePath(path string) string {
	if strings.HasPrefix(path, sourceDirMarker) {
		return r.sourceDir + strings.TrimPrefix(path, sourceDirMarker)
	}
	return path
}

// CreateIncludeDirectory はインクルードディレクトリを登録する。既に存在する場合は状態を更新する。
func (r *UpdateRepository) CreateIncludeDirectory(ctx context.Context, dir *domain.IncludeDirectory) error {
	model := &UpdateIncludeModel{
		Path:  dir.Path,
		State: string(dir.State),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"state"}),
	}).Create(model).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to create include directory",
			"operation", "create_include_directory",
			"path", dir.Path,
			"error", err,
		)
		return err
	}
	return nil
}

// FindAllApplied は適用済み更新を名前順に取得する。
func (r *UpdateRepository) FindAllApplied(ctx context.Context) ([]*domain.AppliedUpdate, error) {
	var models []UpdateModel
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find all applied updates",
			"operation", "find_all_applied",
			"error", err,
		)
		return nil, err
	}

	updates := make([]*domain.AppliedUpdate, 0, len(models))
	for _, model := range models {
		state, err := domain.ParseUpdateState(model.State)
		if err != nil {
			slog.ErrorContext(ctx, "invalid applied update state",
				"operation", "find_all_applied",
				"name", model.Name,
				"error", err,
			)
			return nil, err
		}
		updates = append(updates, &domain.AppliedUpdate{
			Name:      model.Name,
			Hash:      model.Hash,
			State:     state,
			Timestamp: model.Timestamp,
			Speed:     model.Speed,
		})
	}
	return updates, nil
}

// Upsert は適用済み更新を記録する。同名のレコードがあれば置き換える。
func (r *UpdateRepository) Upsert(ctx context.Context, update *domain.AppliedUpdate) error {
	model := &UpdateModel{
		Name:      update.Name,
		Hash:      update.Hash,
		State:     string(update.State),
		Timestamp: time.Now().UTC(),
		Speed:     update.Speed,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"hash", "state", "timestamp", "speed"}),
	}).Create(model).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to upsert applied update",
			"operation", "upsert",
			"name", update.Name,
			"error", err,
		)
		return err
	}
	update.Timestamp = model.Timestamp
	return nil
}

// DeleteByName は指定された名前のレコードを削除する。
func (r *UpdateRepository) DeleteByName(ctx context.Context, name string) error {
	err := r.db.WithContext(ctx).Where("name = ?", name).Delete(&UpdateModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete applied update",
			"operation", "delete_by_name",
			"name", name,
			"error", err,
		)
		return err
	}
	return nil
}

// DeleteByNames は指定された名前のレコードを一括削除する。
func (r *UpdateRepository) DeleteByNames(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Where("name IN ?", names).Delete(&UpdateModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete applied updates",
			"operation", "delete_by_names",
			"count", len(names),
			"error", err,
		)
		return err
	}
	return nil
}

// RenameByName はレコードの名前を変更する。
func (r *UpdateRepository) RenameByName(ctx context.Context, from, to string) error {
	err := r.db.WithContext(ctx).
		Model(&UpdateModel{}).
		Where("name = ?", from).
		Update("name", to).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to rename applied update",
			"operation", "rename_by_name",
			"from", from,
			"to", to,
			"error", err,
		)
		return err
	}
	return nil
}

// UpdateState はレコードの状態を更新する。
func (r *UpdateRepository) UpdateState(ctx context.Context, name string, state domain.UpdateState) error {
	err := r.db.WithContext(ctx).
		Model(&UpdateModel{}).
		Where("name = ?", name).
		Update("state", string(state)).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update state",
			"operation", "update_state",
			"name", name,
			"state", state,
			"error", err,
		)
		return err
	}
	return nil
}
