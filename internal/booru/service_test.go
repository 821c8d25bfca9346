package booru_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"boorubot/internal/booru"
	"boorubot/internal/hub"
	"boorubot/internal/schema"
	"boorubot/internal/testsupport"
)

// newListing serves a moebooru-style listing over a fixed descending
// post slice plus a name-to-type tag table.
func newListing(t *testing.T, posts []booru.APIPost, tagTypes map[string]int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/post.json", func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if page < 1 || limit < 1 {
			http.Error(w, "bad paging", http.StatusBadRequest)
			return
		}
		start := (page - 1) * limit
		end := start + limit
		if start > len(posts) {
			start = len(posts)
		}
		if end > len(posts) {
			end = len(posts)
		}
		if err := json.NewEncoder(w).Encode(posts[start:end]); err != nil {
			t.Errorf("encode page: %v", err)
		}
	})
	mux.HandleFunc("/tag.json", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		res := []booru.APITag{}
		if typ, ok := tagTypes[name]; ok {
			res = append(res, booru.APITag{Name: name, Type: typ})
		}
		if err := json.NewEncoder(w).Encode(res); err != nil {
			t.Errorf("encode tags: %v", err)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newService(t *testing.T, srv *httptest.Server, pageSize int) (*booru.Service, *hub.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithBooruBaseURL(srv.URL))
	cfg.Booru.PageSize = pageSize
	store := testsupport.MustOpenStore(t, cfg)
	return booru.NewService(cfg, store, nil), store
}

func descendingPosts(highest, lowest int64, skip map[int64]bool) []booru.APIPost {
	var posts []booru.APIPost
	for id := highest; id >= lowest; id-- {
		if skip[id] {
			continue
		}
		posts = append(posts, booru.APIPost{
			ID:             id,
			Tags:           "animated effects",
			Author:         "kraken",
			MD5:            "d41d8cd98f00b204e9800998ecf8427e",
			FileExt:        "mp4",
			IsShownInIndex: true,
			CreatedAt:      1500000000 + id,
			Status:         "active",
		})
	}
	return posts
}

func TestUpdatePostsByPage(t *testing.T) {
	posts := []booru.APIPost{
		{ID: 103, Tags: "yutaka_nakamura sword_fight", Author: "mei", FileExt: "mp4",
			IsShownInIndex: true, Score: 40, Rating: "s", Status: "active", CreatedAt: 1500000103},
		{ID: 102, Tags: "sword_fight", Author: "mei", FileExt: "gif",
			IsShownInIndex: true, Status: "active", CreatedAt: 1500000102},
		{ID: 101, Tags: "sword_fight", Author: "rei", FileExt: "webm",
			IsShownInIndex: true, Status: "pending", CreatedAt: 1500000101},
	}
	srv := newListing(t, posts, map[string]int{"yutaka_nakamura": int(schema.TagArtist)})
	svc, store := newService(t, srv, 100)
	ctx := context.Background()

	saved, err := svc.UpdatePostsByPage(ctx, 1, 0)
	if err != nil {
		t.Fatalf("UpdatePostsByPage: %v", err)
	}
	if len(saved) != 3 {
		t.Fatalf("saved %d posts, want 3", len(saved))
	}

	got, err := store.GetPost(ctx, 103)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if !got.IsShown || got.IsPending || got.Score != 40 || got.UploaderName != "mei" {
		t.Errorf("post 103 = %+v", got)
	}
	if len(got.Tags) != 2 {
		t.Errorf("post 103 tags = %v", got.Tags)
	}

	tag, err := store.GetTag(ctx, "yutaka_nakamura")
	if err != nil {
		t.Fatalf("GetTag: %v", err)
	}
	if tag.Type != schema.TagArtist {
		t.Errorf("tag type = %v, want artist", tag.Type)
	}

	created := svc.TakeCreatedTags()
	if len(created) != 2 {
		t.Errorf("created tags = %v", created)
	}
	if svc.TakeCreatedTags() != nil {
		t.Error("created tags not cleared")
	}

	// Uploader mei appeared with a visible non-pending post.
	mei, err := store.GetUploader(ctx, "mei")
	if err != nil {
		t.Fatalf("GetUploader: %v", err)
	}
	if !mei.InWhitelist {
		t.Error("mei not whitelisted")
	}
	// Post 101 is pending, so rei stays off the whitelist.
	rei, err := store.GetUploader(ctx, "rei")
	if err != nil {
		t.Fatalf("GetUploader: %v", err)
	}
	if rei.InWhitelist {
		t.Error("rei whitelisted from a pending post")
	}
}

func TestUpdatePostsByPageEscapeID(t *testing.T) {
	srv := newListing(t, descendingPosts(103, 101, nil), nil)
	svc, store := newService(t, srv, 100)
	ctx := context.Background()

	saved, err := svc.UpdatePostsByPage(ctx, 1, 102)
	if err != nil {
		t.Fatalf("UpdatePostsByPage: %v", err)
	}
	if len(saved) != 1 || saved[0].ID != 103 {
		t.Fatalf("saved = %v, want only post 103", saved)
	}
	if _, err := store.GetPost(ctx, 102); err == nil {
		t.Error("post at the escape id was saved")
	}
}

func TestAutoUpdateBootstrap(t *testing.T) {
	srv := newListing(t, descendingPosts(105, 101, nil), nil)
	svc, store := newService(t, srv, 3)
	ctx := context.Background()

	if err := svc.AutoUpdate(ctx); err != nil {
		t.Fatalf("AutoUpdate: %v", err)
	}
	// Empty store mirrors one page, no deeper crawl.
	if _, err := store.GetPost(ctx, 103); err != nil {
		t.Errorf("first page post missing: %v", err)
	}
	if _, err := store.GetPost(ctx, 102); err == nil {
		t.Error("bootstrap crawled beyond the first page")
	}
}

func TestAutoUpdateStopsAtOverlap(t *testing.T) {
	srv := newListing(t, descendingPosts(106, 101, nil), nil)
	svc, store := newService(t, srv, 2)
	ctx := context.Background()
	if err := store.UpsertPost(ctx, &hub.Post{ID: 104, IsShown: true}); err != nil {
		t.Fatalf("UpsertPost: %v", err)
	}

	if err := svc.AutoUpdate(ctx); err != nil {
		t.Fatalf("AutoUpdate: %v", err)
	}
	for _, id := range []int64{106, 105, 104, 103} {
		if _, err := store.GetPost(ctx, id); err != nil {
			t.Errorf("post %d missing: %v", id, err)
		}
	}
	if _, err := store.GetPost(ctx, 102); err == nil {
		t.Error("crawl continued past the overlap")
	}
}

func TestUpdatePostsFindsDeepID(t *testing.T) {
	srv := newListing(t, descendingPosts(100, 1, nil), nil)
	svc, store := newService(t, srv, 5)
	ctx := context.Background()

	if err := svc.UpdatePosts(ctx, 42); err != nil {
		t.Fatalf("UpdatePosts: %v", err)
	}
	got, err := store.GetPost(ctx, 42)
	if err != nil {
		t.Fatalf("post 42 not mirrored: %v", err)
	}
	if !got.IsShown {
		t.Errorf("post 42 = %+v", got)
	}
	// Probed pages are saved wholesale, starting with the front page.
	if _, err := store.GetPost(ctx, 100); err != nil {
		t.Errorf("front page post missing: %v", err)
	}
}

func TestUpdatePostsHidesDeletedPost(t *testing.T) {
	srv := newListing(t, descendingPosts(100, 1, map[int64]bool{43: true}), nil)
	svc, store := newService(t, srv, 5)
	ctx := context.Background()
	if err := store.UpsertPost(ctx, &hub.Post{ID: 43, IsShown: true}); err != nil {
		t.Fatalf("UpsertPost: %v", err)
	}

	if err := svc.UpdatePosts(ctx, 43); err != nil {
		t.Fatalf("UpdatePosts: %v", err)
	}
	got, err := store.GetPost(ctx, 43)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.IsShown {
		t.Error("deleted post still marked shown")
	}
}

func TestRefreshTagsForce(t *testing.T) {
	srv := newListing(t, nil, map[string]int{"mind_game": int(schema.TagCopyright)})
	svc, store := newService(t, srv, 100)
	ctx := context.Background()
	if _, err := store.EnsureTag(ctx, "mind_game", schema.TagGeneral); err != nil {
		t.Fatalf("EnsureTag: %v", err)
	}

	if err := svc.RefreshTags(ctx, []string{"mind_game"}, true); err != nil {
		t.Fatalf("RefreshTags: %v", err)
	}
	tag, err := store.GetTag(ctx, "mind_game")
	if err != nil {
		t.Fatalf("GetTag: %v", err)
	}
	if tag.Type != schema.TagCopyright {
		t.Errorf("tag type = %v, want copyright", tag.Type)
	}
	if created := svc.TakeCreatedTags(); len(created) != 1 || created[0] != "mind_game" {
		t.Errorf("created tags = %v", created)
	}
}
