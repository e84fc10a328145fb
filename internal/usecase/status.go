package usecase

import (
	"context"
	"log/slog"

	"db-updater/internal/domain"
)

// Status は台帳を変更せずに各更新ファイルの照合結果を返す。
// ポリシーに関わらず全ファイルのハッシュを計算する。
func (s *UpdateService) Status(ctx context.Context) (*domain.UpdateStatus, error) {
	files, applied, err := s.load(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load updates",
			"operation", "status",
			"error", err,
		)
		return nil, err
	}

	pass := newUpdatePass(files, applied)
	status := &domain.UpdateStatus{}
	for _, file := range files {
		content, err := s.discovery.ReadContent(file)
		if err != nil {
			return nil, err
		}
		hash := CalculateHash(content)

		entry := &domain.UpdateStatusEntry{
			Name:  file.Name,
			State: file.State,
			Hash:  hash,
		}

		record, known := pass.applied[file.Name]
		switch {
		case known && record.Hash == "":
			entry.Status = domain.FileStatusUnhashed
		case known && record.Hash == hash:
			entry.Status = domain.FileStatusApplied
		case known:
			entry.Status = domain.FileStatusChanged
		default:
			entry.Status = domain.FileStatusPending
			if oldName, ok := pass.hashToName[hash]; ok {
				if _, exists := pass.available[oldName]; !exists {
					entry.Status = domain.FileStatusRenamed
					entry.RenamedFrom = oldName
					pass.renamed(oldName, file.Name, hash)
				}
			}
		}

		if known {
			appliedAt := record.Timestamp
			entry.AppliedAt = &appliedAt
			pass.reconcile(file.Name)
		}
		status.Entries = append(status.Entries, entry)
	}

	for _, name := range pass.orphans() {
		record := pass.applied[name]
		appliedAt := record.Timestamp
		status.Entries = append(status.Entries, &domain.UpdateStatusEntry{
			Name:      record.Name,
			State:     record.State,
			Status:    domain.FileStatusMissing,
			Hash:      record.Hash,
			AppliedAt: &appliedAt,
		})
	}
	return status, nil
}
