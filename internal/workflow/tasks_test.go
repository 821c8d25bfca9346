package workflow_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"boorubot/internal/config"
	"boorubot/internal/hub"
	"boorubot/internal/services"
	"boorubot/internal/testsupport"
	"boorubot/internal/weibo"
	"boorubot/internal/workflow"
)

type stubSyncer struct {
	created []string
	err     error
	calls   int
}

func (s *stubSyncer) AutoUpdate(ctx context.Context) error {
	s.calls++
	return s.err
}

func (s *stubSyncer) TakeCreatedTags() []string {
	out := s.created
	s.created = nil
	return out
}

type stubEnricher struct {
	mu    sync.Mutex
	names []string
	fail  map[string]error
}

func (e *stubEnricher) UpdateTagInfo(ctx context.Context, name string) error {
	e.mu.Lock()
	e.names = append(e.names, name)
	e.mu.Unlock()
	return e.fail[name]
}

func (e *stubEnricher) seen() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]bool, len(e.names))
	for _, n := range e.names {
		out[n] = true
	}
	return out
}

type stubFetcher struct {
	fail map[int64]error
}

func (f *stubFetcher) Download(ctx context.Context, post *hub.Post) (string, error) {
	if err := f.fail[post.ID]; err != nil {
		return "", err
	}
	return fmt.Sprintf("/media/%d.gif", post.ID), nil
}

type stubPreparer struct{}

func (stubPreparer) Prepare(ctx context.Context, post *hub.Post, mediaPath string) (string, error) {
	return mediaPath, nil
}

type stubPoster struct {
	store  *hub.Store
	fail   map[int64]error
	posted []int64
}

func (p *stubPoster) PostStatus(ctx context.Context, post *hub.Post, mediaPath string) (*hub.Weibo, error) {
	if err := p.fail[post.ID]; err != nil {
		return nil, err
	}
	status := &hub.Weibo{WeiboID: fmt.Sprintf("w%d", post.ID)}
	if err := p.store.MarkPosted(ctx, post.ID, status); err != nil {
		return nil, err
	}
	p.posted = append(p.posted, post.ID)
	return status, nil
}

func insertPost(t *testing.T, store *hub.Store, id int64) {
	t.Helper()
	err := store.UpsertPost(context.Background(), &hub.Post{
		ID: id, MD5: fmt.Sprintf("md5-%d", id), Ext: "mp4",
		IsShown: true, CreatedAt: time.Unix(id, 0).UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func newPostTasks(t *testing.T, cfg *config.Config, store *hub.Store, fetcher *stubFetcher, poster *stubPoster) *workflow.Tasks {
	t.Helper()
	return workflow.NewTasksWith(cfg, store,
		&stubSyncer{}, &stubEnricher{}, fetcher, stubPreparer{}, poster, nil)
}

func TestSyncEnrichesCreatedTags(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.EnrichParallel = 2
	store := testsupport.MustOpenStore(t, cfg)

	syncer := &stubSyncer{created: []string{"mind_game", "yutaka_nakamura", "effects"}}
	enricher := &stubEnricher{fail: map[string]error{"effects": fmt.Errorf("source down")}}
	tasks := workflow.NewTasksWith(cfg, store, syncer, enricher, &stubFetcher{}, stubPreparer{}, nil, nil)

	if err := tasks.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if syncer.calls != 1 {
		t.Errorf("AutoUpdate calls = %d", syncer.calls)
	}
	seen := enricher.seen()
	for _, name := range []string{"mind_game", "yutaka_nakamura", "effects"} {
		if !seen[name] {
			t.Errorf("tag %q never enriched", name)
		}
	}
}

func TestPostBootstrapsNewestBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Weibo.BootstrapBatch = 2
	store := testsupport.MustOpenStore(t, cfg)
	for id := int64(101); id <= 103; id++ {
		insertPost(t, store, id)
	}

	poster := &stubPoster{store: store}
	tasks := newPostTasks(t, cfg, store, &stubFetcher{}, poster)
	if err := tasks.Post(context.Background()); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(poster.posted) != 2 || poster.posted[0] != 102 || poster.posted[1] != 103 {
		t.Fatalf("posted order = %v", poster.posted)
	}

	// The next run resumes above the published watermark.
	insertPost(t, store, 104)
	if err := tasks.Post(context.Background()); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(poster.posted) != 3 || poster.posted[2] != 104 {
		t.Fatalf("posted order after resume = %v", poster.posted)
	}
}

func TestPostSkipsUnrecoverableMedia(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Weibo.BootstrapBatch = 10
	store := testsupport.MustOpenStore(t, cfg)
	insertPost(t, store, 201)
	insertPost(t, store, 202)

	fetcher := &stubFetcher{fail: map[int64]error{
		201: services.Wrap(services.ErrValidation, "media", "download", "gone", nil),
	}}
	poster := &stubPoster{store: store}
	tasks := newPostTasks(t, cfg, store, fetcher, poster)

	if err := tasks.Post(context.Background()); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if len(poster.posted) != 1 || poster.posted[0] != 202 {
		t.Fatalf("posted = %v", poster.posted)
	}
	got, err := store.GetPost(context.Background(), 201)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Posted {
		t.Error("skipped post not marked posted")
	}
}

func TestPostStopsOnRetryableFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Weibo.BootstrapBatch = 10
	cfg.Weibo.MaxConsecutiveFailures = 2
	store := testsupport.MustOpenStore(t, cfg)
	insertPost(t, store, 301)
	insertPost(t, store, 302)

	poster := &stubPoster{store: store, fail: map[int64]error{
		301: fmt.Errorf("%w: upstream flaked", weibo.ErrRetry),
	}}
	tasks := newPostTasks(t, cfg, store, &stubFetcher{}, poster)
	ctx := context.Background()

	if err := tasks.Post(ctx); err == nil {
		t.Fatal("expected the run to fail")
	}
	if len(poster.posted) != 0 {
		t.Fatalf("posted = %v, want none", poster.posted)
	}
	got, err := store.GetPost(ctx, 301)
	if err != nil {
		t.Fatal(err)
	}
	if got.Posted {
		t.Error("failed post marked posted")
	}

	// Second failing run spends the budget; the third is refused.
	if err := tasks.Post(ctx); err == nil {
		t.Fatal("expected the second run to fail")
	}
	if err := tasks.Post(ctx); err != workflow.ErrPostingHalted {
		t.Fatalf("err = %v, want ErrPostingHalted", err)
	}
}

func TestPostDisabledIsNoOp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	insertPost(t, store, 401)

	tasks := workflow.NewTasksWith(cfg, store,
		&stubSyncer{}, &stubEnricher{}, &stubFetcher{}, stubPreparer{}, nil, nil)
	if tasks.PostingEnabled() {
		t.Error("PostingEnabled with nil poster")
	}
	if err := tasks.Post(context.Background()); err != nil {
		t.Fatalf("Post: %v", err)
	}
}

func TestManagerRunsSyncLoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.SyncInterval = 3600
	cfg.Workflow.CleanInterval = 3600
	store := testsupport.MustOpenStore(t, cfg)

	ran := make(chan struct{}, 1)
	syncer := &signalSyncer{ran: ran}
	tasks := workflow.NewTasksWith(cfg, store, syncer, &stubEnricher{}, &stubFetcher{}, stubPreparer{}, nil, nil)
	mgr := workflow.NewManager(cfg, tasks, nil)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := mgr.Start(context.Background()); err == nil {
		t.Error("second Start succeeded")
	}
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("sync never ran")
	}
	mgr.Stop()
	mgr.Stop()
}

type signalSyncer struct {
	ran chan struct{}
}

func (s *signalSyncer) AutoUpdate(ctx context.Context) error {
	select {
	case s.ran <- struct{}{}:
	default:
	}
	return nil
}

func (s *signalSyncer) TakeCreatedTags() []string { return nil }
