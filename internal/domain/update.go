// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"fmt"
	"strings"
	"time"
)

// UpdateState は更新ファイルのライフサイクル状態を表す。
type UpdateState string

const (
	// UpdateStateActive は通常運用中のディレクトリに置かれた更新を表す。
	UpdateStateActive UpdateState = "ACTIVE"
	// UpdateStateArchived はアーカイブ済み（内容が変わらない）更新を表す。
	UpdateStateArchived UpdateState = "ARCHIVED"
)

// ParseUpdateState は文字列表現をUpdateStateに変換する。
// 旧表記の "RELEASED" はACTIVEとして扱う。
func ParseUpdateState(s string) (UpdateState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACTIVE", "RELEASED":
		return UpdateStateActive, nil
	case "ARCHIVED":
		return UpdateStateArchived, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidUpdateState, s)
	}
}

// UpdateFile はディスク上で見つかった更新ファイルを表す。
// Nameは全インクルードディレクトリを通して一意。
type UpdateFile struct {
	Path  string
	Name  string
	State UpdateState
}

// AppliedUpdate は適用済み更新の台帳レコードを表す。
type AppliedUpdate struct {
	Name      string
	Hash      string // 空文字はハッシュ未計算
	State     UpdateState
	Timestamp time.Time
	Speed     uint32 // 最後の適用に掛かったミリ秒
}

// IncludeDirectory は更新ファイルを探索するディレクトリを表す。
type IncludeDirectory struct {
	Path  string
	State UpdateState
}

// UpdatePolicy は更新パスの動作を制御する。
type UpdatePolicy struct {
	RedundancyChecks            bool
	AllowRehash                 bool
	ArchivedRedundancyChecks    bool
	CleanDeadReferencesMaxCount int // 負の値は上限なし
}

// DefaultUpdatePolicy は既定のポリシーを返す。
func DefaultUpdatePolicy() UpdatePolicy {
	return UpdatePolicy{
		RedundancyChecks:            true,
		AllowRehash:                 true,
		ArchivedRedundancyChecks:    false,
		CleanDeadReferencesMaxCount: 3,
	}
}

// UpdateMode は更新ファイルに対して実行するアクション。
type UpdateMode int

const (
	UpdateModeApply UpdateMode = iota
	UpdateModeRehash
)

func (m UpdateMode) String() string {
	switch m {
	case UpdateModeApply:
		return "apply"
	case UpdateModeRehash:
		return "rehash"
	default:
		return "unknown"
	}
}
