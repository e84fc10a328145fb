package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"db-updater/internal/domain"
)

const (
	// updateFileExtension は更新ファイルとして扱う拡張子。
	updateFileExtension = ".sql"
	// maxDiscoveryDepth はインクルードディレクトリ直下を1とした最大探索深さ。
	maxDiscoveryDepth = 10
)

// FileDiscovery はインクルードディレクトリから更新ファイルを探索する。
type FileDiscovery struct {
	fs afero.Fs
}

// NewFileDiscovery は新しいFileDiscoveryを生成する。
func NewFileDiscovery(fs afero.Fs) *FileDiscovery {
	return &FileDiscovery{fs: fs}
}

// Discover は全インクルードディレクトリを再帰的に探索し、ファイル名順の一覧を返す。
// 同名のファイルが2つ以上見つかった場合はErrDuplicateFilenameを返す。
func (d *FileDiscovery) Discover(ctx context.Context, dirs []*domain.IncludeDirectory) ([]*domain.UpdateFile, error) {
	found := make(map[string]*domain.UpdateFile)
	for _, dir := range dirs {
		isDir, err := afero.IsDir(d.fs, dir.Path)
		if err != nil || !isDir {
			slog.WarnContext(ctx, "include directory does not exist, skipped",
				"operation", "discover",
				"path", dir.Path,
			)
			continue
		}
		if err := d.walk(ctx, dir.Path, dir.State, 1, found); err != nil {
			return nil, err
		}
	}

	files := make([]*domain.UpdateFile, 0, len(found))
	for _, f := range found {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func (d *FileDiscovery) walk(ctx context.Context, path string, state domain.UpdateState, depth int, found map[string]*domain.UpdateFile) error {
	entries, err := afero.ReadDir(d.fs, path)
	if err != nil {
		return fmt.Errorf("failed to read include directory %s: %w", path, err)
	}

	for _, entry := range entries {
		entryPath := filepath.Join(path, entry.Name())
		// シンボリックリンクはリンク先の種類で判定する
		if entry.Mode()&os.ModeSymlink != 0 {
			target, err := d.fs.Stat(entryPath)
			if err != nil {
				slog.WarnContext(ctx, "broken symlink in include directory, skipped",
					"operation", "discover",
					"path", entryPath,
					"error", err,
				)
				continue
			}
			entry = target
		}
		if entry.IsDir() {
			if depth < maxDiscoveryDepth {
				if err := d.walk(ctx, entryPath, state, depth+1, found); err != nil {
					return err
				}
			}
			continue
		}
		if filepath.Ext(entry.Name()) != updateFileExtension {
			continue
		}

		if existing, ok := found[entry.Name()]; ok {
			slog.ErrorContext(ctx, "duplicated update filename, every name needs to be unique",
				"operation", "discover",
				"name", entry.Name(),
				"path", entryPath,
				"other_path", existing.Path,
			)
			return fmt.Errorf("%w: %s (%s, %s)", domain.ErrDuplicateFilename, entry.Name(), existing.Path, entryPath)
		}

		slog.DebugContext(ctx, "added update file",
			"operation", "discover",
			"name", entry.Name(),
		)
		found[entry.Name()] = &domain.UpdateFile{
			Path:  entryPath,
			Name:  entry.Name(),
			State: state,
		}
	}
	return nil
}

// ReadContent は更新ファイルの内容を読み込む。
func (d *FileDiscovery) ReadContent(file *domain.UpdateFile) ([]byte, error) {
	content, err := afero.ReadFile(d.fs, file.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUnreadableFile, file.Path, err)
	}
	return content, nil
}
