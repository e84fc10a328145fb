package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"

	"db-updater/config"
	"db-updater/internal/domain"
	"db-updater/internal/usecase"
)

// mockUpdateRepository はテスト用のモックリポジトリ。
type mockUpdateRepository struct {
	includes        []*domain.IncludeDirectory
	findIncludesErr error
	applied         []*domain.AppliedUpdate
	findAppliedErr  error
}

func (m *mockUpdateRepository) FindIncludeDirectories(ctx context.Context) ([]*domain.IncludeDirectory, error) {
	return m.includes, m.findIncludesErr
}

func (m *mockUpdateRepository) CreateIncludeDirectory(ctx context.Context, dir *domain.IncludeDirectory) error {
	return nil
}

func (m *mockUpdateRepository) FindAllApplied(ctx context.Context) ([]*domain.AppliedUpdate, error) {
	return m.applied, m.findAppliedErr
}

func (m *mockUpdateRepository) Upsert(ctx context.Context, update *domain.AppliedUpdate) error {
	return errors.New("unexpected write")
}

func (m *mockUpdateRepository) DeleteByName(ctx context.Context, name string) error {
	return errors.New("unexpected write")
}

func (m *mockUpdateRepository) DeleteByNames(ctx context.Context, names []string) error {
	return errors.New("unexpected write")
}

func (m *mockUpdateRepository) RenameByName(ctx context.Context, from, to string) error {
	return errors.New("unexpected write")
}

func (m *mockUpdateRepository) UpdateState(ctx context.Context, name string, state domain.UpdateState) error {
	return errors.New("unexpected write")
}

func noopApply(ctx context.Context, name string, content []byte) error {
	return nil
}

func setupRouter(t *testing.T, repo *mockUpdateRepository, fs afero.Fs) http.Handler {
	t.Helper()
	service := usecase.NewUpdateService(repo, fs, noopApply, domain.DefaultUpdatePolicy())
	return NewRouter(NewUpdateHandler(service), config.Default())
}

func doGet(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUpdateHandler_ListApplied(t *testing.T) {
	repo := &mockUpdateRepository{
		applied: []*domain.AppliedUpdate{
			{Name: "001_a.sql", Hash: "AAA", State: domain.UpdateStateArchived, Timestamp: time.Now(), Speed: 5},
			{Name: "002_b.sql", Hash: "BBB", State: domain.UpdateStateActive, Timestamp: time.Now(), Speed: 7},
		},
	}
	router := setupRouter(t, repo, afero.NewMemMapFs())

	rec := doGet(t, router, "/v1/updates")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp AppliedUpdateListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(resp.Updates))
	}
	if resp.Updates[0].Name != "001_a.sql" || resp.Updates[0].SpeedMs != 5 {
		t.Errorf("unexpected first update: %+v", resp.Updates[0])
	}

	// stateで絞り込み（旧表記も受け付ける）
	rec = doGet(t, router, "/v1/updates?state=released")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	resp = AppliedUpdateListResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Updates) != 1 || resp.Updates[0].Name != "002_b.sql" {
		t.Errorf("expected only 002_b.sql, got %+v", resp.Updates)
	}
}

func TestUpdateHandler_ListApplied_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		repoErr    error
		wantStatus int
		wantCode   string
	}{
		{"invalid state", "/v1/updates?state=DELETED", nil, http.StatusBadRequest, "INVALID_STATE"},
		{"repository error", "/v1/updates", errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(t, &mockUpdateRepository{findAppliedErr: tt.repoErr}, afero.NewMemMapFs())

			rec := doGet(t, router, tt.target)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["code"] != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, resp["code"])
			}
		})
	}
}

func TestUpdateHandler_ListIncludeDirectories(t *testing.T) {
	repo := &mockUpdateRepository{
		includes: []*domain.IncludeDirectory{
			{Path: "/srv/sql/updates", State: domain.UpdateStateActive},
			{Path: "/srv/sql/old", State: domain.UpdateStateArchived},
		},
	}
	router := setupRouter(t, repo, afero.NewMemMapFs())

	rec := doGet(t, router, "/v1/updates/includes")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp IncludeDirectoryListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Directories) != 2 || resp.Directories[1].State != "ARCHIVED" {
		t.Errorf("unexpected directories: %+v", resp.Directories)
	}
}

func TestUpdateHandler_ListIncludeDirectories_AuditLog(t *testing.T) {
	tests := []struct {
		name       string
		repoErr    error
		wantStatus int
		wantResult string
	}{
		{"success", nil, http.StatusOK, "SUCCESS"},
		{"repository error", errors.New("connection refused"), http.StatusInternalServerError, "FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
			t.Cleanup(func() { slog.SetDefault(prev) })

			router := setupRouter(t, &mockUpdateRepository{findIncludesErr: tt.repoErr}, afero.NewMemMapFs())
			rec := doGet(t, router, "/v1/updates/includes")
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			found := false
			for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
				var record struct {
					Audit struct {
						Operation string `json:"operation"`
						Result    string `json:"result"`
					} `json:"audit"`
				}
				if err := json.Unmarshal(line, &record); err != nil {
					continue
				}
				if record.Audit.Operation == "LIST_INCLUDES" {
					found = true
					if record.Audit.Result != tt.wantResult {
						t.Errorf("expected result %s, got %s", tt.wantResult, record.Audit.Result)
					}
				}
			}
			if !found {
				t.Errorf("expected LIST_INCLUDES audit log, got %s", buf.String())
			}
		})
	}
}

func TestUpdateHandler_GetStatus(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/srv/sql/updates/001_a.sql", []byte("SELECT 1;"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := afero.WriteFile(fs, "/srv/sql/updates/002_b.sql", []byte("SELECT 2;"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	repo := &mockUpdateRepository{
		includes: []*domain.IncludeDirectory{
			{Path: "/srv/sql/updates", State: domain.UpdateStateActive},
		},
		applied: []*domain.AppliedUpdate{
			{Name: "001_a.sql", Hash: usecase.CalculateHash([]byte("SELECT 1;")), State: domain.UpdateStateActive, Timestamp: time.Now()},
		},
	}
	router := setupRouter(t, repo, fs)

	rec := doGet(t, router, "/v1/updates/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Summary["applied"] != 1 || resp.Summary["pending"] != 1 {
		t.Errorf("unexpected summary: %v", resp.Summary)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.Entries))
	}
	if resp.Entries[0].AppliedAt == nil || resp.Entries[1].AppliedAt != nil {
		t.Errorf("expected applied_at only on applied entry, got %+v", resp.Entries)
	}

	rec = doGet(t, router, "/v1/updates/status?status=pending")
	resp = StatusResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Name != "002_b.sql" {
		t.Errorf("expected only 002_b.sql, got %+v", resp.Entries)
	}

	rec = doGet(t, router, "/v1/updates/status?status=bogus")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestUpdateHandler_GetStatus_Duplicate(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, path := range []string{"/a/dup.sql", "/b/dup.sql"} {
		if err := afero.WriteFile(fs, path, []byte("SELECT 1;"), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
	}
	repo := &mockUpdateRepository{
		includes: []*domain.IncludeDirectory{
			{Path: "/a", State: domain.UpdateStateActive},
			{Path: "/b", State: domain.UpdateStateActive},
		},
	}
	router := setupRouter(t, repo, fs)

	rec := doGet(t, router, "/v1/updates/status")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", rec.Code)
	}
}

func TestUpdateHandler_Healthz(t *testing.T) {
	router := setupRouter(t, &mockUpdateRepository{}, afero.NewMemMapFs())

	rec := doGet(t, router, "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}
