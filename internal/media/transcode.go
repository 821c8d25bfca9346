package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"boorubot/internal/config"
	"boorubot/internal/hub"
	"boorubot/internal/logging"
	"boorubot/internal/services"
)

// Transcoder converts animated media to gif before upload.
type Transcoder struct {
	root      string
	width     int
	fps       int
	maxUpload int64
	logger    *slog.Logger

	// FFmpegPath is the binary invoked for conversion, overridable in
	// tests.
	FFmpegPath string
}

// NewTranscoder builds a transcoder writing into the configured
// transcode directory.
func NewTranscoder(cfg *config.Config, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transcoder{
		root:       cfg.TranscodeDir(),
		width:      cfg.Media.GifWidth,
		fps:        cfg.Media.GifFPS,
		maxUpload:  int64(cfg.Media.MaxUploadMiB) << 20,
		logger:     logger.With(logging.String(logging.FieldComponent, "media")),
		FFmpegPath: "ffmpeg",
	}
}

// Prepare returns the path of the file to upload for a post. Still
// images and gifs under the upload cap pass through unchanged; videos
// are converted to gif with a palette pass first for quality, then a
// plain pass when the palette result is too large.
func (t *Transcoder) Prepare(ctx context.Context, post *hub.Post, mediaPath string) (string, error) {
	if !post.IsAnimated() {
		return mediaPath, nil
	}
	if strings.EqualFold(post.Ext, "gif") {
		info, err := os.Stat(mediaPath)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", mediaPath, err)
		}
		if info.Size() <= t.maxUpload {
			return mediaPath, nil
		}
		return "", services.Wrap(services.ErrValidation, "media", "prepare",
			fmt.Sprintf("gif %s exceeds the upload cap", mediaPath), nil)
	}

	if err := os.MkdirAll(t.root, 0o755); err != nil {
		return "", fmt.Errorf("create transcode dir: %w", err)
	}
	out := filepath.Join(t.root, post.WeiboFileName())
	os.Remove(out)

	if err := t.paletteGif(ctx, mediaPath, out); err == nil {
		if size, ok := t.fits(out); ok {
			return out, nil
		} else {
			t.logger.Info("palette gif over cap, retrying plain",
				logging.Int64(logging.FieldPostID, post.ID),
				logging.Int64("size", size))
		}
	} else {
		t.logger.Warn("palette transcode failed",
			logging.Int64(logging.FieldPostID, post.ID),
			logging.Error(err))
	}
	os.Remove(out)

	if err := t.plainGif(ctx, mediaPath, out); err != nil {
		return "", err
	}
	if _, ok := t.fits(out); !ok {
		return "", services.Wrap(services.ErrValidation, "media", "prepare",
			fmt.Sprintf("transcoded gif for post %d exceeds the upload cap", post.ID), nil)
	}
	return out, nil
}

func (t *Transcoder) fits(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return info.Size(), info.Size() <= t.maxUpload
}

// paletteGif runs the two-pass palette conversion.
func (t *Transcoder) paletteGif(ctx context.Context, in, out string) error {
	palette := filepath.Join(t.root, "palette.png")
	os.Remove(palette)

	scale := fmt.Sprintf("fps=%d,scale=%d:-1:flags=lanczos", t.fps, t.width)
	if err := t.run(ctx,
		"-v", "warning", "-i", in,
		"-vf", scale+",palettegen", "-y", palette,
	); err != nil {
		return err
	}
	return t.run(ctx,
		"-v", "warning", "-i", in, "-i", palette,
		"-lavfi", scale+" [x]; [x][1:v] paletteuse", "-y", out,
	)
}

func (t *Transcoder) plainGif(ctx context.Context, in, out string) error {
	scale := fmt.Sprintf("fps=%d,scale=%d:-1:flags=lanczos", t.fps, t.width)
	return t.run(ctx,
		"-v", "warning", "-i", in,
		"-vf", scale, "-gifflags", "+transdiff", "-y", out,
	)
}

func (t *Transcoder) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, t.FFmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return services.Wrap(services.ErrValidation, "media", "ffmpeg",
			strings.TrimSpace(string(output)), err)
	}
	return nil
}
