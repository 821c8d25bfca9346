// Package media handles post media on disk: downloading the right
// variant from the booru, converting animated clips to gif for upload,
// and keeping the cache under its size budget.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"boorubot/internal/config"
	"boorubot/internal/hub"
	"boorubot/internal/logging"
	"boorubot/internal/services"
)

var plainMediaExts = map[string]bool{"jpg": true, "jpeg": true, "png": true}

// Downloader fetches post media into the download cache.
type Downloader struct {
	httpClient *http.Client
	root       string
	baseURL    string
	maxUpload  int64
	logger     *slog.Logger
}

// NewDownloader builds a downloader writing into the configured
// download directory.
func NewDownloader(cfg *config.Config, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Downloader{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		root:       cfg.DownloadDir(),
		baseURL:    cfg.Booru.BaseURL,
		maxUpload:  int64(cfg.Media.MaxUploadMiB) << 20,
		logger:     logger.With(logging.String(logging.FieldComponent, "media")),
	}
}

// Download fetches the post's media and returns the local path. Still
// images over the upload cap fall back to the sample, then the preview
// rendition. The file lands under a temporary name first so a partial
// download never shows up under the final one.
func (d *Downloader) Download(ctx context.Context, post *hub.Post) (string, error) {
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	mediaURL := post.MediaURL(d.baseURL)
	name := post.FileName()
	if plainMediaExts[strings.ToLower(post.Ext)] && post.FileSize > d.maxUpload {
		if post.SampleFileSize > 0 && post.SampleFileSize <= d.maxUpload && post.SampleURL != "" {
			mediaURL = post.SampleURL
			name = fmt.Sprintf("%s_sample.jpg", post.MD5)
			d.logger.Info("using sample image", logging.Int64(logging.FieldPostID, post.ID))
		} else {
			mediaURL = post.PreviewURL(d.baseURL)
			name = fmt.Sprintf("%s_preview.jpg", post.MD5)
			d.logger.Info("using preview image", logging.Int64(logging.FieldPostID, post.ID))
		}
	}

	path := filepath.Join(d.root, name)
	temp := filepath.Join(d.root, uuid.NewString()+".part")
	if err := d.fetch(ctx, mediaURL, temp); err != nil {
		os.Remove(temp)
		return "", err
	}
	if err := os.Rename(temp, path); err != nil {
		os.Remove(temp)
		return "", fmt.Errorf("finalize download: %w", err)
	}
	d.logger.Info("media downloaded",
		logging.Int64(logging.FieldPostID, post.ID),
		logging.String("path", path))
	return path, nil
}

func (d *Downloader) fetch(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "media", "request", rawURL, err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "media", "download", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrTransient
		if resp.StatusCode < 500 {
			marker = services.ErrValidation
		}
		return services.Wrap(marker, "media", "download",
			fmt.Sprintf("%s returned %s", rawURL, resp.Status), nil)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return services.Wrap(services.ErrTransient, "media", "download", rawURL, err)
	}
	return nil
}
