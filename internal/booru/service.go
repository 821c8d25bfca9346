package booru

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"boorubot/internal/config"
	"boorubot/internal/hub"
	"boorubot/internal/logging"
	"boorubot/internal/schema"
	"boorubot/internal/services"
)

// maxProbeDepth caps the number of listing pages probed while searching
// for one post id. The listing has no random access by id, so the
// search walks pages with proportional jumps and must terminate even
// when the estimates oscillate.
const maxProbeDepth = 11

const defaultPageSize = 100

// Service mirrors the booru listing into the local store. One instance
// covers one sync pass: fetched pages are memoized so overlapping
// lookups reuse them, and tags created along the way are collected for
// the enrichment pipeline.
type Service struct {
	store    *hub.Store
	client   *Client
	pageSize int
	logger   *slog.Logger

	cache   map[int64]APIPost
	maxPage int64
	created []string
}

// NewService builds a sync service over the given store.
func NewService(cfg *config.Config, store *hub.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	pageSize := cfg.Booru.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Service{
		store:    store,
		client:   NewClient(cfg, logger),
		pageSize: pageSize,
		logger:   logger.With(logging.String(logging.FieldComponent, "booru")),
		cache:    make(map[int64]APIPost),
		maxPage:  1 << 30,
	}
}

// TakeCreatedTags returns the names of tags first seen (or re-typed)
// during this sync pass and clears the list. The caller feeds them to
// the enrichment pipeline.
func (s *Service) TakeCreatedTags() []string {
	created := s.created
	s.created = nil
	return created
}

// UpdatePosts refreshes the given posts from the listing. Posts that
// can no longer be found upstream are marked hidden. All pages fetched
// during the search are saved, not just the requested ids.
func (s *Service) UpdatePosts(ctx context.Context, ids ...int64) error {
	for _, id := range ids {
		if _, ok := s.cache[id]; ok {
			continue
		}
		if _, found := s.findPost(ctx, id); !found {
			if _, err := s.store.GetPost(ctx, id); err != nil {
				if errors.Is(err, services.ErrNotFound) {
					continue
				}
				return err
			}
			if err := s.store.MarkPostsHidden(ctx, []int64{id}); err != nil {
				return err
			}
			s.logger.Info("post gone upstream", logging.Int64(logging.FieldPostID, id))
		}
	}
	return s.flushCache(ctx)
}

// UpdatePostsByPage fetches one listing page and saves its posts in
// order. A non-zero escapeID stops at the first post at or below it.
func (s *Service) UpdatePostsByPage(ctx context.Context, page int64, escapeID int64) ([]*hub.Post, error) {
	res, err := s.fetchPage(ctx, page)
	if err != nil {
		return nil, err
	}
	var posts []*hub.Post
	for _, p := range res {
		if escapeID != 0 && p.ID <= escapeID {
			break
		}
		post, err := s.savePost(ctx, p)
		if err != nil {
			return posts, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// AutoUpdate pulls new posts from the front of the listing until it
// overlaps with the newest post already mirrored. On an empty store it
// mirrors just the first page.
func (s *Service) AutoUpdate(ctx context.Context) error {
	lastID, err := s.store.LatestPostID(ctx)
	if err != nil {
		return err
	}
	page := int64(1)
	posts, err := s.UpdatePostsByPage(ctx, page, 0)
	if err != nil {
		return err
	}
	if lastID == 0 {
		return nil
	}
	for len(posts) > 0 && posts[len(posts)-1].ID > lastID+1 {
		page++
		posts, err = s.UpdatePostsByPage(ctx, page, 0)
		if err != nil {
			return err
		}
	}
	return nil
}

// RefreshTags re-reads tag types from the booru for the given names,
// creating missing tags. With force false only newly created tags are
// looked up.
func (s *Service) RefreshTags(ctx context.Context, names []string, force bool) error {
	_, err := s.ensureTags(ctx, names, force)
	return err
}

func (s *Service) ensureTags(ctx context.Context, names []string, force bool) ([]*hub.Tag, error) {
	tags := make([]*hub.Tag, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		tag, err := s.store.GetTag(ctx, name)
		created := false
		if err != nil {
			if !errors.Is(err, services.ErrNotFound) {
				return nil, err
			}
			tag, err = s.store.EnsureTag(ctx, name, schema.TagGeneral)
			if err != nil {
				return nil, err
			}
			created = true
		}
		if created || force {
			s.created = append(s.created, name)
			if err := s.refreshTagType(ctx, tag); err != nil {
				s.logger.Warn("tag type refresh failed",
					logging.String(logging.FieldTag, name),
					logging.Error(err))
			}
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (s *Service) refreshTagType(ctx context.Context, tag *hub.Tag) error {
	res, err := s.client.TagList(ctx, tag.Name)
	if err != nil {
		return err
	}
	for _, t := range res {
		if t.Name != tag.Name {
			continue
		}
		if typ := schema.TagType(t.Type); tag.Type != typ {
			tag.Type = typ
			if err := s.store.SaveTag(ctx, tag, ""); err != nil {
				return err
			}
			s.logger.Info("tag type updated",
				logging.String(logging.FieldTag, tag.Name),
				logging.String("type", typ.String()))
		}
		break
	}
	return nil
}

func (s *Service) savePost(ctx context.Context, p APIPost) (*hub.Post, error) {
	post := &hub.Post{
		ID:             p.ID,
		Source:         p.Source,
		FileSize:       p.FileSize,
		IsShown:        p.IsShownInIndex,
		IsPending:      p.Status == "pending",
		MD5:            p.MD5,
		Ext:            p.FileExt,
		CreatedAt:      time.Unix(p.CreatedAt, 0).UTC(),
		Score:          p.Score,
		Rating:         p.Rating,
		SampleURL:      p.SampleURL,
		SampleFileSize: p.SampleFileSize,
		UploaderName:   p.Author,
		Tags:           strings.Fields(p.Tags),
	}
	if _, err := s.ensureTags(ctx, post.Tags, false); err != nil {
		return nil, err
	}
	if err := s.updateUploader(ctx, p.Author, post.IsPending, post.IsShown); err != nil {
		return nil, err
	}
	if err := s.store.UpsertPost(ctx, post); err != nil {
		return nil, err
	}
	s.logger.Debug("post updated", logging.Int64(logging.FieldPostID, post.ID))
	return post, nil
}

// updateUploader whitelists an uploader the first time one of their
// posts shows up in the public index.
func (s *Service) updateUploader(ctx context.Context, author string, isPending, isShown bool) error {
	if author == "" {
		return nil
	}
	uploader, err := s.store.GetUploader(ctx, author)
	if err != nil {
		return err
	}
	if isShown && !isPending && !uploader.InWhitelist {
		uploader.InWhitelist = true
		return s.store.SaveUploader(ctx, uploader)
	}
	return nil
}

// fetchPage retrieves one listing page, memoizes its posts, and runs
// the visibility correction pass against the observed id range.
func (s *Service) fetchPage(ctx context.Context, page int64) ([]APIPost, error) {
	res, err := s.client.PostsPage(ctx, page, s.pageSize)
	if err != nil {
		return nil, err
	}
	for _, p := range res {
		s.cache[p.ID] = p
	}
	if err := s.refreshIsShown(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// refreshIsShown hides known posts whose id falls inside the page's
// observed range but which the page no longer lists.
func (s *Service) refreshIsShown(ctx context.Context, page []APIPost) error {
	if len(page) == 0 {
		return nil
	}
	known, err := s.store.PostIDsInRange(ctx, page[len(page)-1].ID, page[0].ID)
	if err != nil {
		return err
	}
	observed := make(map[int64]bool, len(page))
	for _, p := range page {
		observed[p.ID] = true
	}
	var gone []int64
	for _, id := range known {
		if !observed[id] {
			gone = append(gone, id)
		}
	}
	return s.store.MarkPostsHidden(ctx, gone)
}

// findPost locates a post by id in the descending listing. Pages are
// probed with proportional jumps bounded by binary-search midpoints;
// an empty page lowers the known last valid page. The search gives up
// after maxProbeDepth probes or when the next estimate revisits one
// already on the stack.
func (s *Service) findPost(ctx context.Context, postID int64) (APIPost, bool) {
	if p, ok := s.cache[postID]; ok {
		return p, true
	}
	limit := int64(s.pageSize)
	stack := []int64{1}
	minPage := int64(1)
	maxPage := s.maxPage

search:
	for len(stack) > 0 && len(stack) <= maxProbeDepth {
		page := stack[len(stack)-1]
		res, err := s.fetchPage(ctx, page)
		if err != nil {
			s.logger.Warn("listing page fetch failed",
				logging.Int64("page", page),
				logging.Error(err))
			res = nil
		}
		if len(res) == 0 {
			stack = stack[:len(stack)-1]
			if page < s.maxPage {
				s.maxPage = page
			}
			if page < maxPage {
				maxPage = page
			}
			if len(stack) > 0 {
				stack = append(stack, (maxPage+stack[len(stack)-1])/2)
				continue
			}
			return APIPost{}, false
		}

		firstID := res[0].ID
		lastID := res[len(res)-1].ID
		s.logger.Debug("listing page probed",
			logging.Int64("page", page),
			logging.Int64("first", firstID),
			logging.Int64("last", lastID))

		switch {
		case postID > firstID:
			if page <= 1 {
				return APIPost{}, false
			}
			next := page - ceilDiv(postID-firstID, limit)
			if mid := (minPage + page) / 2; next < mid {
				next = mid
			}
			maxPage = page
			if next < 1 {
				next = 1
			}
			stack = append(stack, next)
		case postID < lastID:
			next := page + ceilDiv(lastID-postID, limit)
			if mid := (maxPage + page) / 2; next > mid {
				next = mid
			}
			minPage = page
			for _, seen := range stack {
				if seen == next {
					break search
				}
			}
			if next > s.maxPage {
				next = (s.maxPage + page) / 2
			}
			stack = append(stack, next)
		default:
			p, ok := s.cache[postID]
			return p, ok
		}
	}
	p, ok := s.cache[postID]
	return p, ok
}

// flushCache saves every memoized post, in id order for determinism.
func (s *Service) flushCache(ctx context.Context) error {
	ids := make([]int64, 0, len(s.cache))
	for id := range s.cache {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if _, err := s.savePost(ctx, s.cache[id]); err != nil {
			return err
		}
	}
	return nil
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
