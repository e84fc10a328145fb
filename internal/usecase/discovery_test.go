package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"db-updater/internal/domain"
)

func TestFileDiscovery_Discover(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	writeFile(t, fs, "/updates/b.sql", "SELECT 2;")
	writeFile(t, fs, "/updates/sub/a.sql", "SELECT 1;")
	writeFile(t, fs, "/updates/readme.md", "# notes")
	writeFile(t, fs, "/updates/c.SQL", "SELECT 3;")
	writeFile(t, fs, "/updates/d.sql.bak", "SELECT 4;")
	writeFile(t, fs, "/archived/0.sql", "SELECT 0;")

	discovery := NewFileDiscovery(fs)
	files, err := discovery.Discover(ctx, []*domain.IncludeDirectory{
		{Path: "/updates", State: domain.UpdateStateActive},
		{Path: "/archived", State: domain.UpdateStateArchived},
	})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	expected := []struct {
		name  string
		path  string
		state domain.UpdateState
	}{
		{"0.sql", "/archived/0.sql", domain.UpdateStateArchived},
		{"a.sql", "/updates/sub/a.sql", domain.UpdateStateActive},
		{"b.sql", "/updates/b.sql", domain.UpdateStateActive},
	}
	if len(files) != len(expected) {
		t.Fatalf("expected %d files, got %d", len(expected), len(files))
	}
	for i, f := range files {
		if f.Name != expected[i].name || f.Path != expected[i].path || f.State != expected[i].state {
			t.Errorf("files[%d]: expected %+v, got %+v", i, expected[i], *f)
		}
	}
}

func TestFileDiscovery_Discover_Symlinks(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	updates := filepath.Join(base, "updates")
	custom := filepath.Join(base, "custom")
	shared := filepath.Join(base, "shared")
	for _, dir := range []string{updates, custom, shared} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
	}
	files := map[string]string{
		filepath.Join(updates, "2024_base.sql"):  "SELECT 1;",
		filepath.Join(custom, "2024_custom.sql"): "SELECT 2;",
		filepath.Join(shared, "2024_shared.sql"): "SELECT 3;",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}

	// ディレクトリへのリンク、ファイルへのリンク、リンク切れ
	links := map[string]string{
		filepath.Join(updates, "custom"):          custom,
		filepath.Join(updates, "2024_linked.sql"): filepath.Join(shared, "2024_shared.sql"),
		filepath.Join(updates, "broken.sql"):      filepath.Join(base, "missing.sql"),
	}
	for link, target := range links {
		if err := os.Symlink(target, link); err != nil {
			t.Skipf("symlinks not supported: %v", err)
		}
	}

	discovery := NewFileDiscovery(afero.NewOsFs())
	found, err := discovery.Discover(ctx, []*domain.IncludeDirectory{
		{Path: updates, State: domain.UpdateStateActive},
	})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	expected := []struct {
		name string
		path string
	}{
		{"2024_base.sql", filepath.Join(updates, "2024_base.sql")},
		{"2024_custom.sql", filepath.Join(updates, "custom", "2024_custom.sql")},
		{"2024_linked.sql", filepath.Join(updates, "2024_linked.sql")},
	}
	if len(found) != len(expected) {
		t.Fatalf("expected %d files, got %+v", len(expected), found)
	}
	for i, f := range found {
		if f.Name != expected[i].name || f.Path != expected[i].path {
			t.Errorf("files[%d]: expected %+v, got %+v", i, expected[i], *f)
		}
	}

	content, err := discovery.ReadContent(found[1])
	if err != nil {
		t.Fatalf("ReadContent through symlink failed: %v", err)
	}
	if string(content) != "SELECT 2;" {
		t.Errorf("unexpected content %q", content)
	}
}

func TestFileDiscovery_Discover_MissingDirectory(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/updates/a.sql", "SELECT 1;")
	writeFile(t, fs, "/not_a_dir.sql", "SELECT 2;")

	discovery := NewFileDiscovery(fs)
	files, err := discovery.Discover(ctx, []*domain.IncludeDirectory{
		{Path: "/missing", State: domain.UpdateStateActive},
		{Path: "/not_a_dir.sql", State: domain.UpdateStateActive},
		{Path: "/updates", State: domain.UpdateStateActive},
	})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(files) != 1 || files[0].Name != "a.sql" {
		t.Errorf("expected only a.sql, got %+v", files)
	}
}

func TestFileDiscovery_Discover_DepthLimit(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	// ルートを深さ1として、深さ10のディレクトリまで探索される
	var levels []string
	for i := 2; i <= 11; i++ {
		levels = append(levels, "l")
		dir := "/root/" + strings.Join(levels, "/")
		writeFile(t, fs, dir+"/depth_"+string(rune('a'+i))+".sql", "SELECT 1;")
	}

	discovery := NewFileDiscovery(fs)
	files, err := discovery.Discover(ctx, []*domain.IncludeDirectory{
		{Path: "/root", State: domain.UpdateStateActive},
	})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(files) != 9 {
		t.Fatalf("expected 9 files (depth 2..10), got %d", len(files))
	}
	for _, f := range files {
		if f.Name == "depth_l.sql" {
			t.Errorf("expected file at depth 11 to be ignored, got %s", f.Path)
		}
	}
}

func TestFileDiscovery_Discover_Duplicate(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/a/dup.sql", "SELECT 1;")
	writeFile(t, fs, "/b/x/dup.sql", "SELECT 2;")

	discovery := NewFileDiscovery(fs)
	_, err := discovery.Discover(ctx, []*domain.IncludeDirectory{
		{Path: "/a", State: domain.UpdateStateActive},
		{Path: "/b", State: domain.UpdateStateArchived},
	})
	if !errors.Is(err, domain.ErrDuplicateFilename) {
		t.Fatalf("want ErrDuplicateFilename, got %v", err)
	}
	if !strings.Contains(err.Error(), "dup.sql") {
		t.Errorf("expected error to name the file, got %v", err)
	}
}

func TestFileDiscovery_ReadContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/updates/a.sql", "SELECT 1;")
	discovery := NewFileDiscovery(fs)

	content, err := discovery.ReadContent(&domain.UpdateFile{Path: "/updates/a.sql", Name: "a.sql"})
	if err != nil {
		t.Fatalf("ReadContent failed: %v", err)
	}
	if string(content) != "SELECT 1;" {
		t.Errorf("unexpected content %q", content)
	}

	_, err = discovery.ReadContent(&domain.UpdateFile{Path: "/updates/gone.sql", Name: "gone.sql"})
	if !errors.Is(err, domain.ErrUnreadableFile) {
		t.Errorf("want ErrUnreadableFile, got %v", err)
	}
}

func TestCalculateHash(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"", "DA39A3EE5E6B4B0D3255BFEF95601890AFD80709"},
		{"abc", "A9993E364706816ABA3E25717850C26C9CD0D89D"},
	}
	for _, tt := range tests {
		if got := CalculateHash([]byte(tt.content)); got != tt.want {
			t.Errorf("CalculateHash(%q) = %s, want %s", tt.content, got, tt.want)
		}
	}

	if got := shortHash("A9993E364706816ABA3E25717850C26C9CD0D89D"); got != "A9993E3" {
		t.Errorf("shortHash = %s, want A9993E3", got)
	}
	if got := shortHash(""); got != "" {
		t.Errorf("shortHash(\"\") = %q, want empty", got)
	}
}
