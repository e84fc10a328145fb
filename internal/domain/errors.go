package domain

import "errors"

var (
	// ErrDuplicateFilename は複数の更新ファイルが同じファイル名を持つ場合のエラー。
	ErrDuplicateFilename = errors.New("duplicate update filename")

	// ErrUnreadableFile は更新ファイルを読み込めない場合のエラー。
	ErrUnreadableFile = errors.New("update file is not readable")

	// ErrExecutorFailure は更新内容の実行に失敗した場合のエラー。
	ErrExecutorFailure = errors.New("update execution failed")

	// ErrInvalidUpdateState は状態の文字列表現が不正な場合のエラー。
	ErrInvalidUpdateState = errors.New("invalid update state")
)
