package domain

import "time"

// FileStatus は更新ファイルと台帳の照合結果を表す
type FileStatus string

const (
	FileStatusApplied  FileStatus = "applied"
	FileStatusPending  FileStatus = "pending"
	FileStatusChanged  FileStatus = "changed"
	FileStatusUnhashed FileStatus = "unhashed"
	FileStatusRenamed  FileStatus = "renamed"
	FileStatusMissing  FileStatus = "missing"
)

// UpdateStatusEntry はステータス一覧の1行
type UpdateStatusEntry struct {
	Name        string
	State       UpdateState
	Status      FileStatus
	Hash        string
	RenamedFrom string     // Status=renamedの場合の旧ファイル名
	AppliedAt   *time.Time // 未適用の場合はnil
}

// UpdateStatus は更新パスを実行せずに算出した照合結果
type UpdateStatus struct {
	Entries []*UpdateStatusEntry
}

// Count は指定されたステータスの件数を返す。
func (s *UpdateStatus) Count(status FileStatus) int {
	n := 0
	for _, e := range s.Entries {
		if e.Status == status {
			n++
		}
	}
	return n
}
