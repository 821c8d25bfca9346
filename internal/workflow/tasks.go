// Package workflow runs the bot's recurring tasks: syncing posts from
// the booru, enriching newly seen tags, publishing unposted media, and
// keeping the media cache trimmed.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"boorubot/internal/booru"
	"boorubot/internal/config"
	"boorubot/internal/enrich"
	"boorubot/internal/hub"
	"boorubot/internal/logging"
	"boorubot/internal/media"
	"boorubot/internal/services"
	"boorubot/internal/sources"
	"boorubot/internal/weibo"
)

// ErrPostingHalted signals that the posting circuit breaker is open:
// too many consecutive runs failed and posting stays off until restart.
var ErrPostingHalted = errors.New("posting halted after repeated failures")

// Syncer mirrors posts and tags from the booru.
type Syncer interface {
	AutoUpdate(ctx context.Context) error
	TakeCreatedTags() []string
}

// TagEnricher fills in tag details from the information sources.
type TagEnricher interface {
	UpdateTagInfo(ctx context.Context, tagName string) error
}

// MediaFetcher downloads a post's media variant to local disk.
type MediaFetcher interface {
	Download(ctx context.Context, post *hub.Post) (string, error)
}

// MediaPreparer converts downloaded media into its uploadable form.
type MediaPreparer interface {
	Prepare(ctx context.Context, post *hub.Post, mediaPath string) (string, error)
}

// Poster publishes one post as a status.
type Poster interface {
	PostStatus(ctx context.Context, post *hub.Post, mediaPath string) (*hub.Weibo, error)
}

// Tasks bundles the one-shot operations the manager schedules. The CLI
// invokes them directly for manual runs.
type Tasks struct {
	cfg      *config.Config
	store    *hub.Store
	syncer   Syncer
	enricher TagEnricher
	fetcher  MediaFetcher
	preparer MediaPreparer
	poster   Poster
	logger   *slog.Logger

	mu           sync.Mutex
	postFailures int
}

// NewTasks wires the full task set from configuration. The poster is
// left unset when posting is disabled.
func NewTasks(cfg *config.Config, store *hub.Store, logger *slog.Logger) (*Tasks, error) {
	client := sources.NewClient(cfg, logger)
	enricher := enrich.New(store, enrich.DefaultAdapters(client, cfg), logger)

	var poster Poster
	if cfg.Weibo.Enabled {
		creds, err := weibo.LoadCredentials(cfg.Weibo.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("load posting credentials: %w", err)
		}
		poster = weibo.NewService(cfg, store, weibo.NewClient(creds, logger), logger)
	}

	return NewTasksWith(cfg, store,
		booru.NewService(cfg, store, logger),
		enricher,
		media.NewDownloader(cfg, logger),
		media.NewTranscoder(cfg, logger),
		poster,
		logger,
	), nil
}

// NewTasksWith assembles tasks from explicit collaborators.
func NewTasksWith(cfg *config.Config, store *hub.Store, syncer Syncer, enricher TagEnricher, fetcher MediaFetcher, preparer MediaPreparer, poster Poster, logger *slog.Logger) *Tasks {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tasks{
		cfg:      cfg,
		store:    store,
		syncer:   syncer,
		enricher: enricher,
		fetcher:  fetcher,
		preparer: preparer,
		poster:   poster,
		logger:   logger.With(logging.String(logging.FieldComponent, "workflow")),
	}
}

// PostingEnabled reports whether a poster is configured.
func (t *Tasks) PostingEnabled() bool {
	return t.poster != nil
}

// Sync pulls new posts from the booru, then enriches whatever tags the
// sync created.
func (t *Tasks) Sync(ctx context.Context) error {
	if err := t.syncer.AutoUpdate(ctx); err != nil {
		return err
	}
	return t.EnrichTags(ctx, t.syncer.TakeCreatedTags())
}

// EnrichTags updates tag details with a bounded worker pool. Individual
// tag failures are logged and do not stop the batch.
func (t *Tasks) EnrichTags(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	workers := t.cfg.Workflow.EnrichParallel
	if workers < 1 {
		workers = 1
	}
	if workers > len(names) {
		workers = len(names)
	}

	work := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for name := range work {
				if err := t.enricher.UpdateTagInfo(ctx, name); err != nil {
					t.logger.Warn("tag enrichment failed",
						logging.String(logging.FieldTag, name),
						logging.Error(err))
				}
			}
		}()
	}

feed:
	for _, name := range names {
		select {
		case <-ctx.Done():
			break feed
		case work <- name:
		}
	}
	close(work)
	wg.Wait()
	return ctx.Err()
}

// Post publishes unposted media in id order. A skipped post is marked
// posted and the run continues; any other failure stops the run so the
// next cycle retries from the same place. Repeated failing runs open
// the circuit breaker.
func (t *Tasks) Post(ctx context.Context) error {
	if t.poster == nil {
		return nil
	}
	if max := t.cfg.Weibo.MaxConsecutiveFailures; max > 0 && t.failureCount() >= max {
		return ErrPostingHalted
	}

	posts, err := t.pendingPosts(ctx)
	if err != nil {
		return err
	}
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := t.postOne(ctx, post)
		switch {
		case err == nil:
			t.resetFailures()
		// Validation failures (missing media, a clip that cannot fit the
		// upload cap) never succeed on retry, so the post is skipped.
		case weibo.IsSkip(err), errors.Is(err, services.ErrValidation):
			t.logger.Warn("post skipped",
				logging.Int64(logging.FieldPostID, post.ID),
				logging.Error(err))
			if err := t.store.MarkPosted(ctx, post.ID, nil); err != nil {
				return err
			}
		default:
			t.recordFailure()
			return err
		}
	}
	return nil
}

// pendingPosts resumes after the newest published post, or seeds the
// first run with the most recent batch.
func (t *Tasks) pendingPosts(ctx context.Context) ([]*hub.Post, error) {
	lastID, err := t.store.LatestPostedID(ctx)
	if err != nil {
		return nil, err
	}
	if lastID > 0 {
		return t.store.UnpostedAfter(ctx, lastID)
	}
	return t.store.NewestUnposted(ctx, t.cfg.Weibo.BootstrapBatch)
}

func (t *Tasks) postOne(ctx context.Context, post *hub.Post) error {
	mediaPath, err := t.fetcher.Download(ctx, post)
	if err != nil {
		return err
	}
	uploadPath, err := t.preparer.Prepare(ctx, post, mediaPath)
	if err != nil {
		return err
	}
	_, err = t.poster.PostStatus(ctx, post, uploadPath)
	return err
}

// Clean trims the media cache to its configured budget.
func (t *Tasks) Clean(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return media.CleanCache(t.cfg, t.logger)
}

func (t *Tasks) failureCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.postFailures
}

func (t *Tasks) recordFailure() {
	t.mu.Lock()
	t.postFailures++
	t.mu.Unlock()
}

func (t *Tasks) resetFailures() {
	t.mu.Lock()
	t.postFailures = 0
	t.mu.Unlock()
}
