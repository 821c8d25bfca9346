package media

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"boorubot/internal/config"
	"boorubot/internal/logging"
)

type cachedFile struct {
	path    string
	size    int64
	modTime time.Time
}

// CleanCache deletes the oldest files across the media directories
// until their total size fits the configured budget.
func CleanCache(cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "media"))

	var files []cachedFile
	var total int64
	for _, root := range []string{cfg.DownloadDir(), cfg.TranscodeDir()} {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			files = append(files, cachedFile{path: path, size: info.Size(), modTime: info.ModTime()})
			total += info.Size()
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	budget := int64(cfg.Media.MaxCacheMiB) << 20
	if total <= budget {
		return nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	for _, f := range files {
		if total <= budget {
			break
		}
		err := os.Remove(f.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("cache file removal failed",
				logging.String("path", f.path),
				logging.Error(err))
			continue
		}
		total -= f.size
	}
	logger.Info("media cache cleaned", logging.Int64("remaining_bytes", total))
	return nil
}
