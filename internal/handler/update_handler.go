// Package handler はHTTPハンドラを提供する。
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"db-updater/internal/domain"
	"db-updater/internal/middleware"
	"db-updater/internal/usecase"
	"db-updater/pkg/httputil"
)

var validFileStatuses = map[domain.FileStatus]struct{}{
	domain.FileStatusApplied:  {},
	domain.FileStatusPending:  {},
	domain.FileStatusChanged:  {},
	domain.FileStatusUnhashed: {},
	domain.FileStatusRenamed:  {},
	domain.FileStatusMissing:  {},
}

// UpdateHandler は更新台帳の参照用HTTPハンドラを提供する。
type UpdateHandler struct {
	service *usecase.UpdateService
}

// NewUpdateHandler は新しいUpdateHandlerを生成する。
func NewUpdateHandler(service *usecase.UpdateService) *UpdateHandler {
	return &UpdateHandler{service: service}
}

// AppliedUpdateResponse は適用済み更新のレスポンス形式。
type AppliedUpdateResponse struct {
	Name      string `json:"name"`
	Hash      string `json:"hash"`
	State     string `json:"state"`
	AppliedAt string `json:"applied_at"`
	SpeedMs   uint32 `json:"speed_ms"`
}

// AppliedUpdateListResponse は適用済み更新一覧のレスポンス形式。
type AppliedUpdateListResponse struct {
	Updates []AppliedUpdateResponse `json:"updates"`
}

// IncludeDirectoryResponse はインクルードディレクトリのレスポンス形式。
type IncludeDirectoryResponse struct {
	Path  string `json:"path"`
	State string `json:"state"`
}

// IncludeDirectoryListResponse はインクルードディレクトリ一覧のレスポンス形式。
type IncludeDirectoryListResponse struct {
	Directories []IncludeDirectoryResponse `json:"directories"`
}

// StatusEntryResponse はステータス1行のレスポンス形式。
type StatusEntryResponse struct {
	Name        string  `json:"name"`
	State       string  `json:"state,omitempty"`
	Status      string  `json:"status"`
	Hash        string  `json:"hash,omitempty"`
	RenamedFrom string  `json:"renamed_from,omitempty"`
	AppliedAt   *string `json:"applied_at,omitempty"`
}

// StatusResponse はステータス一覧のレスポンス形式。
type StatusResponse struct {
	Summary map[string]int        `json:"summary"`
	Entries []StatusEntryResponse `json:"entries"`
}

// NewAppliedUpdateListResponse は台帳レコードをレスポンス形式に変換する。
// filterが空でなければその状態のレコードだけを含める。
func NewAppliedUpdateListResponse(updates []*domain.AppliedUpdate, filter domain.UpdateState) AppliedUpdateListResponse {
	resp := AppliedUpdateListResponse{Updates: make([]AppliedUpdateResponse, 0, len(updates))}
	for _, u := range updates {
		if filter != "" && u.State != filter {
			continue
		}
		resp.Updates = append(resp.Updates, AppliedUpdateResponse{
			Name:      u.Name,
			Hash:      u.Hash,
			State:     string(u.State),
			AppliedAt: u.Timestamp.UTC().Format(time.RFC3339),
			SpeedMs:   u.Speed,
		})
	}
	return resp
}

// NewIncludeDirectoryListResponse はインクルードディレクトリをレスポンス形式に変換する。
func NewIncludeDirectoryListResponse(dirs []*domain.IncludeDirectory) IncludeDirectoryListResponse {
	resp := IncludeDirectoryListResponse{Directories: make([]IncludeDirectoryResponse, 0, len(dirs))}
	for _, d := range dirs {
		resp.Directories = append(resp.Directories, IncludeDirectoryResponse{
			Path:  d.Path,
			State: string(d.State),
		})
	}
	return resp
}

// NewStatusResponse は照合結果をレスポンス形式に変換する。
// 集計は絞り込み前の全行に対して行う。
func NewStatusResponse(status *domain.UpdateStatus, filter domain.FileStatus) StatusResponse {
	resp := StatusResponse{
		Summary: make(map[string]int, len(validFileStatuses)),
		Entries: make([]StatusEntryResponse, 0, len(status.Entries)),
	}
	for s := range validFileStatuses {
		resp.Summary[string(s)] = status.Count(s)
	}
	for _, e := range status.Entries {
		if filter != "" && e.Status != filter {
			continue
		}
		entry := StatusEntryResponse{
			Name:        e.Name,
			State:       string(e.State),
			Status:      string(e.Status),
			Hash:        e.Hash,
			RenamedFrom: e.RenamedFrom,
		}
		if e.AppliedAt != nil {
			appliedAt := e.AppliedAt.UTC().Format(time.RFC3339)
			entry.AppliedAt = &appliedAt
		}
		resp.Entries = append(resp.Entries, entry)
	}
	return resp
}

// ValidateFileStatus はステータスの絞り込み条件を検証する。空文字は絞り込みなし。
func ValidateFileStatus(s string) (domain.FileStatus, error) {
	status := domain.FileStatus(s)
	if status == "" {
		return "", nil
	}
	if _, ok := validFileStatuses[status]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return status, nil
}

// ListApplied は台帳の適用済み更新を返す。stateクエリで絞り込める。
func (h *UpdateHandler) ListApplied(w http.ResponseWriter, r *http.Request) {
	var filter domain.UpdateState
	if s := r.URL.Query().Get("state"); s != "" {
		state, err := domain.ParseUpdateState(s)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_STATE", "state must be ACTIVE or ARCHIVED")
			return
		}
		filter = state
	}

	updates, err := h.service.ListApplied(r.Context())
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "LIST_APPLIED", string(filter), "FAILED")
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	resp := NewAppliedUpdateListResponse(updates, filter)
	middleware.WriteAuditLog(r.Context(), "LIST_APPLIED", string(filter), "SUCCESS")
	httputil.JSON(w, http.StatusOK, resp)
}

// ListIncludeDirectories はインクルードディレクトリを返す。
func (h *UpdateHandler) ListIncludeDirectories(w http.ResponseWriter, r *http.Request) {
	dirs, err := h.service.ListIncludeDirectories(r.Context())
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "LIST_INCLUDES", "", "FAILED")
		if errors.Is(err, domain.ErrInvalidUpdateState) {
			httputil.Error(w, http.StatusInternalServerError, "INVALID_LEDGER", "include directory has an invalid state")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "LIST_INCLUDES", "", "SUCCESS")
	httputil.JSON(w, http.StatusOK, NewIncludeDirectoryListResponse(dirs))
}

// GetStatus は台帳を変更せずに照合結果を返す。statusクエリで絞り込める。
func (h *UpdateHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	filter, err := ValidateFileStatus(r.URL.Query().Get("status"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_STATUS", "unknown status filter")
		return
	}

	status, err := h.service.Status(r.Context())
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "GET_STATUS", string(filter), "FAILED")
		if errors.Is(err, domain.ErrDuplicateFilename) {
			httputil.Error(w, http.StatusConflict, "DUPLICATE_FILENAME", err.Error())
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	resp := NewStatusResponse(status, filter)
	middleware.WriteAuditLog(r.Context(), "GET_STATUS", string(filter), "SUCCESS")
	httputil.JSON(w, http.StatusOK, resp)
}

// Healthz は死活監視用のエンドポイント。
func (h *UpdateHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
