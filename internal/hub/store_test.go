package hub_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"boorubot/internal/hub"
	"boorubot/internal/schema"
	"boorubot/internal/services"
	"boorubot/internal/testsupport"
)

func newStore(t *testing.T) *hub.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return testsupport.MustOpenStore(t, cfg)
}

func mustSave(t *testing.T, store *hub.Store, tag *hub.Tag, editor string) {
	t.Helper()
	if err := store.SaveTag(context.Background(), tag, editor); err != nil {
		t.Fatalf("SaveTag: %v", err)
	}
}

func history(t *testing.T, store *hub.Store, name string) []*hub.Snapshot {
	t.Helper()
	snaps, err := store.ListSnapshots(context.Background(), name)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	return snaps
}

func TestSaveTagCreatesInitSnapshot(t *testing.T) {
	store := newStore(t)
	reg := store.Registry()

	tag := hub.NewTag("yutaka_nakamura", schema.TagArtist)
	if err := tag.SaveToDetail(reg, "name_ja", "中村豊", true); err != nil {
		t.Fatal(err)
	}
	mustSave(t, store, tag, "")

	snaps := history(t, store, tag.Name)
	if len(snaps) != 1 {
		t.Fatalf("snapshot count = %d, want 1", len(snaps))
	}
	if snaps[0].Note != "Init" {
		t.Errorf("note = %q", snaps[0].Note)
	}
	content, order, err := store.SnapshotContent(context.Background(), snaps[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if content["name_ja"] != "中村豊" || len(order) != 1 {
		t.Errorf("content = %v order = %v", content, order)
	}
}

func TestSaveTagNoSnapshotWhenUnchanged(t *testing.T) {
	store := newStore(t)
	tag := hub.NewTag("x", schema.TagArtist)
	tag.Detail["name_ja"] = "A"
	mustSave(t, store, tag, "")
	first := history(t, store, "x")

	mustSave(t, store, tag, "someone")
	second := history(t, store, "x")
	if len(second) != len(first) || second[0].Hash != first[0].Hash {
		t.Errorf("unchanged save must not touch history: %v vs %v", second, first)
	}
}

func TestSystemEditsKeepAmendingInit(t *testing.T) {
	store := newStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return base })

	tag := hub.NewTag("x", schema.TagArtist)
	tag.Detail["name_ja"] = "A"
	mustSave(t, store, tag, "")

	// Well past the debounce window: background edits still amend.
	store.SetClock(func() time.Time { return base.Add(24 * time.Hour) })
	tag.Detail["description"] = "B"
	mustSave(t, store, tag, "")

	snaps := history(t, store, "x")
	if len(snaps) != 1 {
		t.Fatalf("snapshot count = %d, want 1", len(snaps))
	}
	if snaps[0].Note != "Init" {
		t.Errorf("note = %q", snaps[0].Note)
	}
	content, _, err := store.SnapshotContent(context.Background(), snaps[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if content["description"] != "B" {
		t.Errorf("amended content = %v", content)
	}
}

func TestNamedEditorCreatesNewSnapshotWithNote(t *testing.T) {
	store := newStore(t)
	tag := hub.NewTag("x", schema.TagArtist)
	tag.Detail["name_ja"] = "A"
	mustSave(t, store, tag, "")

	tag.Detail["name_ja"] = "A2"
	tag.Detail["description"] = "D"
	mustSave(t, store, tag, "alice")

	snaps := history(t, store, "x")
	if len(snaps) != 2 {
		t.Fatalf("snapshot count = %d, want 2", len(snaps))
	}
	if snaps[0].Note != "Change:name_ja;Add:description" {
		t.Errorf("note = %q", snaps[0].Note)
	}
	if snaps[0].EditorName() != "alice" || snaps[1].EditorName() != "System" {
		t.Errorf("editors = %q, %q", snaps[0].EditorName(), snaps[1].EditorName())
	}
}

func TestDebounceAmendRecomputesNote(t *testing.T) {
	store := newStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return base })

	tag := hub.NewTag("x", schema.TagArtist)
	tag.Detail["name_ja"] = "A"
	mustSave(t, store, tag, "")

	store.SetClock(func() time.Time { return base.Add(time.Minute) })
	tag.Detail["description"] = "D"
	mustSave(t, store, tag, "alice")

	store.SetClock(func() time.Time { return base.Add(2 * time.Minute) })
	tag.Detail["name_ja"] = "A2"
	mustSave(t, store, tag, "alice")

	snaps := history(t, store, "x")
	if len(snaps) != 2 {
		t.Fatalf("snapshot count = %d, want 2", len(snaps))
	}
	if snaps[0].Note != "Change:name_ja;Add:description" {
		t.Errorf("amended note = %q", snaps[0].Note)
	}
}

func TestDebounceExpiredCreatesNewSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSnapshotDebounce(10))
	store := testsupport.MustOpenStore(t, cfg)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return base })

	tag := hub.NewTag("x", schema.TagArtist)
	tag.Detail["name_ja"] = "A"
	mustSave(t, store, tag, "")

	store.SetClock(func() time.Time { return base.Add(time.Second) })
	tag.Detail["description"] = "D"
	mustSave(t, store, tag, "alice")

	store.SetClock(func() time.Time { return base.Add(time.Hour) })
	tag.Detail["description"] = "D2"
	mustSave(t, store, tag, "alice")

	snaps := history(t, store, "x")
	if len(snaps) != 3 {
		t.Fatalf("snapshot count = %d, want 3", len(snaps))
	}
	if snaps[0].Note != "Change:description" {
		t.Errorf("note = %q", snaps[0].Note)
	}
}

func TestImmediateUndoDeletesSnapshot(t *testing.T) {
	store := newStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return base })

	tag := hub.NewTag("x", schema.TagArtist)
	tag.Detail["name_ja"] = "A"
	mustSave(t, store, tag, "")

	store.SetClock(func() time.Time { return base.Add(time.Minute) })
	tag.Detail["description"] = "D"
	mustSave(t, store, tag, "alice")
	if got := len(history(t, store, "x")); got != 2 {
		t.Fatalf("snapshot count = %d, want 2", got)
	}

	store.SetClock(func() time.Time { return base.Add(2 * time.Minute) })
	delete(tag.Detail, "description")
	mustSave(t, store, tag, "alice")

	snaps := history(t, store, "x")
	if len(snaps) != 1 {
		t.Fatalf("undo should drop the snapshot, count = %d", len(snaps))
	}
	if snaps[0].Note != "Init" {
		t.Errorf("surviving note = %q", snaps[0].Note)
	}
}

func TestRevertToSnapshot(t *testing.T) {
	store := newStore(t)
	tag := hub.NewTag("x", schema.TagArtist)
	tag.Detail["name_ja"] = "A"
	mustSave(t, store, tag, "")
	initID := history(t, store, "x")[0].ID

	tag.Detail["name_ja"] = "B"
	mustSave(t, store, tag, "alice")

	if err := store.RevertToSnapshot(context.Background(), "x", initID, "bob"); err != nil {
		t.Fatalf("RevertToSnapshot: %v", err)
	}

	got, err := store.GetTag(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if got.Detail["name_ja"] != "A" {
		t.Errorf("reverted detail = %v", got.Detail)
	}
	snaps := history(t, store, "x")
	if len(snaps) != 3 {
		t.Fatalf("snapshot count = %d, want 3", len(snaps))
	}
	want := "Revert to id:" + strconv.FormatInt(initID, 10) + ";Change:name_ja"
	if snaps[0].Note != want {
		t.Errorf("revert note = %q, want %q", snaps[0].Note, want)
	}
}

func TestRevertRejectsForeignSnapshot(t *testing.T) {
	store := newStore(t)
	a := hub.NewTag("a", schema.TagArtist)
	a.Detail["name_ja"] = "A"
	mustSave(t, store, a, "")
	b := hub.NewTag("b", schema.TagArtist)
	b.Detail["name_ja"] = "B"
	mustSave(t, store, b, "")

	aID := history(t, store, "a")[0].ID
	err := store.RevertToSnapshot(context.Background(), "b", aID, "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpsertPostCreatesTagRows(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	post := &hub.Post{
		ID:        100,
		MD5:       "abc",
		Ext:       "mp4",
		IsShown:   true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Tags:      []string{"yutaka_nakamura", "one_piece"},
	}
	if err := store.UpsertPost(ctx, post); err != nil {
		t.Fatalf("UpsertPost: %v", err)
	}

	got, err := store.GetPost(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Tags) != 2 {
		t.Errorf("tags = %v", got.Tags)
	}
	if _, err := store.GetTag(ctx, "one_piece"); err != nil {
		t.Errorf("tag row not created: %v", err)
	}

	post.Tags = []string{"one_piece"}
	if err := store.UpsertPost(ctx, post); err != nil {
		t.Fatal(err)
	}
	got, err = store.GetPost(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "one_piece" {
		t.Errorf("pruned tags = %v", got.Tags)
	}
}

func TestPostSelectionQueries(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := store.SaveUploader(ctx, &hub.Uploader{Name: "spammer", InBlacklist: true}); err != nil {
		t.Fatal(err)
	}
	for i, p := range []*hub.Post{
		{ID: 1, IsShown: true, CreatedAt: base},
		{ID: 2, IsShown: true, CreatedAt: base.Add(time.Hour)},
		{ID: 3, IsShown: true, CreatedAt: base.Add(2 * time.Hour), UploaderName: "spammer"},
		{ID: 4, IsShown: false, CreatedAt: base.Add(3 * time.Hour)},
	} {
		if err := store.UpsertPost(ctx, p); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}

	posts, err := store.NewestUnposted(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 2 || posts[0].ID != 1 || posts[1].ID != 2 {
		t.Fatalf("newest unposted = %v", ids(posts))
	}

	if err := store.MarkPosted(ctx, 1, &hub.Weibo{WeiboID: "4412345", ImgURL: "http://example.com/1.jpg"}); err != nil {
		t.Fatal(err)
	}
	latest, err := store.LatestPostedID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest != 1 {
		t.Errorf("latest posted id = %v", latest)
	}

	posts, err = store.UnpostedAfter(ctx, latest)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0].ID != 2 {
		t.Errorf("unposted after = %v", ids(posts))
	}

	marked, err := store.GetPost(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !marked.Posted || marked.WeiboID != "4412345" {
		t.Errorf("posted flags = %+v", marked)
	}
}

func TestMarkPostsHidden(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	for id := int64(1); id <= 3; id++ {
		if err := store.UpsertPost(ctx, &hub.Post{ID: id, IsShown: true}); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := store.PostIDsInRange(ctx, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("range ids = %v", ids)
	}

	if err := store.MarkPostsHidden(ctx, []int64{2}); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetPost(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsShown || got.IsPending {
		t.Errorf("hidden flags = %+v", got)
	}
}

func ids(posts []*hub.Post) []int64 {
	out := make([]int64, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

