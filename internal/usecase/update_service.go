// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"db-updater/internal/domain"
)

const tracerName = "db-updater/internal/usecase"

// UpdateRepository は更新台帳を管理するリポジトリのインターフェース。
type UpdateRepository interface {
	FindIncludeDirectories(ctx context.Context) ([]*domain.IncludeDirectory, error)
	CreateIncludeDirectory(ctx context.Context, dir *domain.IncludeDirectory) error
	FindAllApplied(ctx context.Context) ([]*domain.AppliedUpdate, error)
	Upsert(ctx context.Context, update *domain.AppliedUpdate) error
	DeleteByName(ctx context.Context, name string) error
	DeleteByNames(ctx context.Context, names []string) error
	RenameByName(ctx context.Context, from, to string) error
	UpdateState(ctx context.Context, name string, state domain.UpdateState) error
}

// ApplyFunc は更新ファイルの内容をデータベースに適用する。
// 内容は解釈せずそのまま渡される。
type ApplyFunc func(ctx context.Context, name string, content []byte) error

// UpdateService は更新ファイルと台帳の同期を行う。
type UpdateService struct {
	repo      UpdateRepository
	discovery *FileDiscovery
	applyFn   ApplyFunc
	policy    domain.UpdatePolicy
	tracer    trace.Tracer
}

// NewUpdateService は新しいUpdateServiceを生成する。
func NewUpdateService(repo UpdateRepository, fs afero.Fs, apply ApplyFunc, policy domain.UpdatePolicy) *UpdateService {
	return &UpdateService{
		repo:      repo,
		discovery: NewFileDiscovery(fs),
		applyFn:   apply,
		policy:    policy,
		tracer:    otel.Tracer(tracerName),
	}
}

// updatePass は1回の更新パスの作業状態。
type updatePass struct {
	available   map[string]*domain.UpdateFile
	applied     map[string]*domain.AppliedUpdate
	hashToName  map[string]string
	ledgerNames []string
	reconciled  map[string]struct{}
}

func newUpdatePass(files []*domain.UpdateFile, applied []*domain.AppliedUpdate) *updatePass {
	p := &updatePass{
		available:   make(map[string]*domain.UpdateFile, len(files)),
		applied:     make(map[string]*domain.AppliedUpdate, len(applied)),
		hashToName:  make(map[string]string, len(applied)),
		ledgerNames: make([]string, 0, len(applied)),
		reconciled:  make(map[string]struct{}, len(applied)),
	}
	for _, f := range files {
		p.available[f.Name] = f
	}
	for _, a := range applied {
		p.applied[a.Name] = a
		p.ledgerNames = append(p.ledgerNames, a.Name)
	}
	sort.Strings(p.ledgerNames)

	// 同じハッシュが複数ある場合は名前順で最初のものを使う
	for _, name := range p.ledgerNames {
		hash := p.applied[name].Hash
		if hash == "" {
			continue
		}
		if _, ok := p.hashToName[hash]; !ok {
			p.hashToName[hash] = name
		}
	}
	return p
}

func (p *updatePass) reconcile(name string) {
	p.reconciled[name] = struct{}{}
}

func (p *updatePass) renamed(from, to, hash string) {
	p.reconcile(from)
	p.hashToName[hash] = to
}

// orphans は台帳にあるが今回のパスで照合されなかった名前を返す。
func (p *updatePass) orphans() []string {
	var names []string
	for _, name := range p.ledgerNames {
		if _, ok := p.reconciled[name]; !ok {
			names = append(names, name)
		}
	}
	return names
}

// load はインクルードディレクトリ、更新ファイル、台帳を読み込む。
// ファイル名の重複は台帳に触れる前に検出される。
func (s *UpdateService) load(ctx context.Context) ([]*domain.UpdateFile, []*domain.AppliedUpdate, error) {
	dirs, err := s.repo.FindIncludeDirectories(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch include directories: %w", err)
	}

	files, err := s.discovery.Discover(ctx, dirs)
	if err != nil {
		return nil, nil, err
	}

	applied, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch applied updates: %w", err)
	}
	return files, applied, nil
}

// Update は更新パスを1回実行し、新たに適用した更新の数を返す。
// 致命的なエラーの場合はその時点で中断し、実行済みの変更はそのまま残る。
func (s *UpdateService) Update(ctx context.Context) (int, error) {
	runID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "UpdateService.Update",
		trace.WithAttributes(attribute.String("updater.run_id", runID)))
	defer span.End()

	logger := slog.Default().With("run_id", runID)
	logger.DebugContext(ctx, "starting update pass",
		"redundancy", s.policy.RedundancyChecks,
		"allow_rehash", s.policy.AllowRehash,
		"archived_redundancy", s.policy.ArchivedRedundancyChecks,
		"clean_dead_ref_max_count", s.policy.CleanDeadReferencesMaxCount,
	)

	files, applied, err := s.load(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load updates",
			"operation", "update",
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return 0, err
	}

	pass := newUpdatePass(files, applied)
	imported := 0
	for _, file := range files {
		isApplied, err := s.reconcileFile(ctx, logger, pass, file)
		if err != nil {
			logger.ErrorContext(ctx, "update pass aborted",
				"operation", "update",
				"name", file.Name,
				"error", err,
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, "update pass aborted")
			return imported, err
		}
		if isApplied {
			imported++
		}
	}

	if err := s.handleOrphans(ctx, logger, pass.orphans()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cleanup failed")
		return imported, err
	}

	span.SetAttributes(attribute.Int("updater.applied", imported))
	logger.InfoContext(ctx, "update pass completed",
		"operation", "update",
		"files", len(files),
		"applied", imported,
	)
	return imported, nil
}

// reconcileFile は1ファイルを台帳と照合し、必要なアクションを実行する。
// APPLYを実行した場合にtrueを返す。
func (s *UpdateService) reconcileFile(ctx context.Context, logger *slog.Logger, pass *updatePass, file *domain.UpdateFile) (bool, error) {
	logger.DebugContext(ctx, "checking update", "name", file.Name)

	record, known := pass.applied[file.Name]
	if known {
		if !s.policy.RedundancyChecks {
			logger.DebugContext(ctx, "update is already applied, skipping redundancy checks", "name", file.Name)
			pass.reconcile(file.Name)
			return false, nil
		}

		// アーカイブ済みの更新は変更されない前提
		if !s.policy.ArchivedRedundancyChecks &&
			record.State == domain.UpdateStateArchived && file.State == domain.UpdateStateArchived {
			logger.DebugContext(ctx, "update is archived and marked as archived in database, skipping redundancy checks", "name", file.Name)
			pass.reconcile(file.Name)
			return false, nil
		}
	}

	content, err := s.discovery.ReadContent(file)
	if err != nil {
		return false, err
	}
	hash := CalculateHash(content)
	mode := domain.UpdateModeApply

	switch {
	case !known:
		oldName, ok := pass.hashToName[hash]
		if !ok {
			logger.InfoContext(ctx, "applying update", "name", file.Name, "hash", shortHash(hash))
			break
		}
		if existing, exists := pass.available[oldName]; exists {
			logger.WarnContext(ctx, "update seems to be renamed but the old file is still there, treating it as a new file",
				"name", file.Name,
				"hash", shortHash(hash),
				"old_name", existing.Name,
			)
			break
		}

		logger.InfoContext(ctx, "renaming update",
			"from", oldName,
			"to", file.Name,
			"hash", shortHash(hash),
		)
		if err := s.rename(ctx, oldName, file.Name); err != nil {
			return false, err
		}
		pass.renamed(oldName, file.Name, hash)
		return false, nil

	case s.policy.AllowRehash && record.Hash == "":
		mode = domain.UpdateModeRehash
		logger.InfoContext(ctx, "re-hashing update", "name", file.Name, "hash", shortHash(hash))

	case record.Hash != hash:
		logger.InfoContext(ctx, "reapplying update, it changed",
			"name", file.Name,
			"old_hash", shortHash(record.Hash),
			"hash", shortHash(hash),
		)

	default:
		// 内容が同じで移動だけされた場合は状態のみ更新する
		if record.State != file.State {
			logger.DebugContext(ctx, "updating state of update", "name", file.Name, "state", file.State)
			if err := s.repo.UpdateState(ctx, file.Name, file.State); err != nil {
				return false, fmt.Errorf("failed to update state of %s: %w", file.Name, err)
			}
		}
		logger.DebugContext(ctx, "update is already applied and is matching hash", "name", file.Name, "hash", shortHash(hash))
		pass.reconcile(file.Name)
		return false, nil
	}

	var speed uint32
	if mode == domain.UpdateModeApply {
		speed, err = s.apply(ctx, file, content)
		if err != nil {
			return false, err
		}
	}

	entry := &domain.AppliedUpdate{
		Name:  file.Name,
		Hash:  hash,
		State: file.State,
		Speed: speed,
	}
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return false, fmt.Errorf("failed to record update %s: %w", file.Name, err)
	}

	if known {
		pass.reconcile(file.Name)
	}
	return mode == domain.UpdateModeApply, nil
}

// rename は台帳上の更新名を変更する。変更先の名前のレコードは先に削除する。
func (s *UpdateService) rename(ctx context.Context, from, to string) error {
	if err := s.repo.DeleteByName(ctx, to); err != nil {
		return fmt.Errorf("failed to delete rename target %s: %w", to, err)
	}
	if err := s.repo.RenameByName(ctx, from, to); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", from, to, err)
	}
	return nil
}

// ListApplied は台帳の全レコードを名前順に返す。
func (s *UpdateService) ListApplied(ctx context.Context) ([]*domain.AppliedUpdate, error) {
	updates, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch applied updates: %w", err)
	}
	return updates, nil
}

// ListIncludeDirectories は設定済みのインクルードディレクトリを返す。
func (s *UpdateService) ListIncludeDirectories(ctx context.Context) ([]*domain.IncludeDirectory, error) {
	dirs, err := s.repo.FindIncludeDirectories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch include directories: %w", err)
	}
	return dirs, nil
}

// AddIncludeDirectory はインクルードディレクトリを登録する。
func (s *UpdateService) AddIncludeDirectory(ctx context.Context, path string, state domain.UpdateState) error {
	if path == "" {
		return fmt.Errorf("include directory path is empty")
	}
	dir := &domain.IncludeDirectory{Path: path, State: state}
	if err := s.repo.CreateIncludeDirectory(ctx, dir); err != nil {
		return fmt.Errorf("failed to add include directory: %w", err)
	}
	return nil
}
