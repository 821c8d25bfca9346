package weibo_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"boorubot/internal/hub"
	"boorubot/internal/testsupport"
	"boorubot/internal/weibo"
)

func testCredentials() *weibo.Credentials {
	return &weibo.Credentials{AID: "test-aid", GSID: "test-gsid", UID: "1234567890"}
}

func writeMedia(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "abc123.gif")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestClient(t *testing.T, handler http.Handler) *weibo.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := weibo.NewClient(testCredentials(), nil)
	client.APIBaseURL = srv.URL
	client.UploadBaseURL = srv.URL
	return client
}

func newShareHandler(t *testing.T, mediaBody string) (*http.ServeMux, *string) {
	t.Helper()
	mux := http.NewServeMux()
	var gotContent string

	mux.HandleFunc("/2/statuses/upload_file", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("act") {
		case "init":
			sum := md5.Sum([]byte(mediaBody))
			if q.Get("check") != hex.EncodeToString(sum[:]) {
				t.Errorf("init check = %q", q.Get("check"))
			}
			json.NewEncoder(w).Encode(map[string]string{
				"upload_url": "http://" + r.Host + "/2/statuses/upload_file?act=send",
				"fileToken":  "tok-1",
			})
		case "send":
			body, _ := io.ReadAll(r.Body)
			sum := md5.Sum(body)
			if q.Get("sectioncheck") != hex.EncodeToString(sum[:]) {
				t.Errorf("sectioncheck mismatch for body %q", body)
			}
			if q.Get("filetoken") != "tok-1" {
				t.Errorf("filetoken = %q", q.Get("filetoken"))
			}
			json.NewEncoder(w).Encode(map[string]string{"pic_id": "pic-9"})
		default:
			t.Errorf("unexpected act %q", q.Get("act"))
		}
	})
	mux.HandleFunc("/2/statuses/send", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotContent = r.FormValue("content")
		var media []map[string]any
		if err := json.Unmarshal([]byte(r.FormValue("media")), &media); err != nil || len(media) != 1 {
			t.Errorf("media field = %q", r.FormValue("media"))
		} else if media[0]["fid"] != "pic-9" {
			t.Errorf("media fid = %v", media[0]["fid"])
		}
		json.NewEncoder(w).Encode(map[string]string{
			"idstr":        "4412345678901234",
			"original_pic": "http://img.example/pic-9.jpg",
		})
	})
	return mux, &gotContent
}

func TestShare(t *testing.T) {
	mux, gotContent := newShareHandler(t, "gif-bytes")
	client := newTestClient(t, mux)
	media := writeMedia(t, "gif-bytes")

	status, err := client.Share(context.Background(), "hello status", media)
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if status.IDStr != "4412345678901234" || status.OriginalPic != "http://img.example/pic-9.jpg" {
		t.Errorf("status = %+v", status)
	}
	if *gotContent != "hello status" {
		t.Errorf("posted content = %q", *gotContent)
	}
}

func TestShareAPIErrorSurfaces(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/2/statuses/upload_file", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error_code": 20021, "error": "content illegal"})
	})
	client := newTestClient(t, mux)
	media := writeMedia(t, "gif-bytes")

	_, err := client.Share(context.Background(), "text", media)
	var apiErr *weibo.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "20021" {
		t.Fatalf("err = %v, want api error 20021", err)
	}
}

func TestPostStatusSuccess(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBooruBaseURL("https://booru.example"))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	if err := store.UpsertPost(ctx, &hub.Post{ID: 9, IsShown: true, MD5: "abc123", Ext: "gif"}); err != nil {
		t.Fatal(err)
	}

	mux, gotContent := newShareHandler(t, "gif-bytes")
	client := newTestClient(t, mux)
	svc := weibo.NewService(cfg, store, client, nil)
	media := writeMedia(t, "gif-bytes")

	post, err := store.GetPost(ctx, 9)
	if err != nil {
		t.Fatal(err)
	}
	result, err := svc.PostStatus(ctx, post, media)
	if err != nil {
		t.Fatalf("PostStatus: %v", err)
	}
	if result.WeiboID != "4412345678901234" {
		t.Errorf("weibo id = %q", result.WeiboID)
	}
	if *gotContent != "ID：9；https://booru.example/post/show/9 " {
		t.Errorf("caption = %q", *gotContent)
	}

	saved, err := store.GetPost(ctx, 9)
	if err != nil {
		t.Fatal(err)
	}
	if !saved.Posted || saved.WeiboID != "4412345678901234" {
		t.Errorf("post after publish = %+v", saved)
	}
	latest, err := store.LatestPostedID(ctx)
	if err != nil || latest != 9 {
		t.Errorf("latest posted = %d, %v", latest, err)
	}
}

func TestPostStatusSkipsMissingMedia(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	svc := weibo.NewService(cfg, store, weibo.NewClient(testCredentials(), nil), nil)

	_, err := svc.PostStatus(context.Background(), &hub.Post{ID: 1}, filepath.Join(t.TempDir(), "missing.gif"))
	if !weibo.IsSkip(err) {
		t.Fatalf("err = %v, want skip", err)
	}
}

func TestPostStatusSkipsRejectedStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mux := http.NewServeMux()
	mux.HandleFunc("/2/statuses/upload_file", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"errno": "20021", "errmsg": "content illegal"})
	})
	client := newTestClient(t, mux)
	svc := weibo.NewService(cfg, store, client, nil)
	media := writeMedia(t, "gif-bytes")

	_, err := svc.PostStatus(context.Background(), &hub.Post{ID: 2}, media)
	if !weibo.IsSkip(err) || weibo.IsRetry(err) {
		t.Fatalf("err = %v, want skip", err)
	}
}

func TestLoadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte(`{"aid":"a","gsid":"g","uid":"123"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	creds, err := weibo.LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.UID != "123" {
		t.Errorf("uid = %q", creds.UID)
	}

	if err := os.WriteFile(path, []byte(`{"aid":"a"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := weibo.LoadCredentials(path); err == nil {
		t.Error("incomplete credentials accepted")
	}
}
