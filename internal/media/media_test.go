package media_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"boorubot/internal/config"
	"boorubot/internal/hub"
	"boorubot/internal/media"
	"boorubot/internal/testsupport"
)

func newMediaConfig(t *testing.T, baseURL string) *config.Config {
	cfg := testsupport.NewConfig(t, testsupport.WithBooruBaseURL(baseURL))
	cfg.Media.MaxUploadMiB = 1
	return cfg
}

func TestDownloadFullMedia(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/data/abc123.mp4", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "video-bytes")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := newMediaConfig(t, srv.URL)
	d := media.NewDownloader(cfg, nil)
	post := &hub.Post{ID: 1, MD5: "abc123", Ext: "mp4", FileSize: 11}

	path, err := d.Download(context.Background(), post)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Base(path) != "abc123.mp4" {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "video-bytes" {
		t.Errorf("content = %q, %v", data, err)
	}
}

func TestDownloadOversizedImageFallsBack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sample/abc123.jpg", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "sample-bytes")
	})
	mux.HandleFunc("/data/preview/abc123.jpg", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "preview-bytes")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := newMediaConfig(t, srv.URL)
	d := media.NewDownloader(cfg, nil)
	ctx := context.Background()

	// Sample fits under the cap: use it.
	post := &hub.Post{
		ID: 2, MD5: "abc123", Ext: "png",
		FileSize:       2 << 20,
		SampleURL:      srv.URL + "/sample/abc123.jpg",
		SampleFileSize: 512 << 10,
	}
	path, err := d.Download(ctx, post)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Base(path) != "abc123_sample.jpg" {
		t.Errorf("sample path = %q", path)
	}

	// Sample also too large: fall back to the preview rendition.
	post.SampleFileSize = 2 << 20
	path, err = d.Download(ctx, post)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Base(path) != "abc123_preview.jpg" {
		t.Errorf("preview path = %q", path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "preview-bytes" {
		t.Errorf("preview content = %q", data)
	}
}

// fakeFFmpeg writes a tiny gif to the output path (the argument after
// -y), standing in for a real encoder.
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := `#!/bin/sh
out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-y" ]; then out="$arg"; fi
  prev="$arg"
done
printf 'GIF89a' > "$out"
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPrepareStillImagePassesThrough(t *testing.T) {
	cfg := newMediaConfig(t, "https://booru.example")
	tr := media.NewTranscoder(cfg, nil)
	post := &hub.Post{ID: 3, MD5: "abc123", Ext: "jpg"}

	path, err := tr.Prepare(context.Background(), post, "/media/abc123.jpg")
	if err != nil || path != "/media/abc123.jpg" {
		t.Fatalf("Prepare = %q, %v", path, err)
	}
}

func TestPrepareSmallGifPassesThrough(t *testing.T) {
	cfg := newMediaConfig(t, "https://booru.example")
	tr := media.NewTranscoder(cfg, nil)
	in := filepath.Join(t.TempDir(), "abc123.gif")
	if err := os.WriteFile(in, []byte("GIF89a"), 0o644); err != nil {
		t.Fatal(err)
	}
	post := &hub.Post{ID: 4, MD5: "abc123", Ext: "gif"}

	path, err := tr.Prepare(context.Background(), post, in)
	if err != nil || path != in {
		t.Fatalf("Prepare = %q, %v", path, err)
	}
}

func TestPrepareTranscodesVideo(t *testing.T) {
	cfg := newMediaConfig(t, "https://booru.example")
	tr := media.NewTranscoder(cfg, nil)
	tr.FFmpegPath = fakeFFmpeg(t)

	in := filepath.Join(t.TempDir(), "abc123.mp4")
	if err := os.WriteFile(in, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	post := &hub.Post{ID: 5, MD5: "abc123", Ext: "mp4"}

	path, err := tr.Prepare(context.Background(), post, in)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if filepath.Base(path) != "abc123.gif" {
		t.Errorf("output = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "GIF89a" {
		t.Errorf("output content = %q, %v", data, err)
	}
}

func TestCleanCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Media.MaxCacheMiB = 1
	if err := os.MkdirAll(cfg.DownloadDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.TranscodeDir(), 0o755); err != nil {
		t.Fatal(err)
	}

	write := func(dir, name string, size int, age time.Duration) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
		stamp := time.Now().Add(-age)
		if err := os.Chtimes(path, stamp, stamp); err != nil {
			t.Fatal(err)
		}
		return path
	}

	oldest := write(cfg.DownloadDir(), "old.mp4", 600<<10, 3*time.Hour)
	middle := write(cfg.TranscodeDir(), "mid.gif", 600<<10, 2*time.Hour)
	newest := write(cfg.DownloadDir(), "new.mp4", 600<<10, time.Hour)

	if err := media.CleanCache(cfg, nil); err != nil {
		t.Fatalf("CleanCache: %v", err)
	}

	if _, err := os.Stat(oldest); !os.IsNotExist(err) {
		t.Error("oldest file survived")
	}
	if _, err := os.Stat(middle); !os.IsNotExist(err) {
		t.Error("second oldest file survived")
	}
	if _, err := os.Stat(newest); err != nil {
		t.Errorf("newest file deleted: %v", err)
	}
}

func TestCleanCacheUnderBudgetIsNoOp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.DownloadDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfg.DownloadDir(), "small.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := media.CleanCache(cfg, nil); err != nil {
		t.Fatalf("CleanCache: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file under budget deleted: %v", err)
	}
}
