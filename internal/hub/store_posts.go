package hub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"boorubot/internal/services"
)

// UpsertPost stores one mirrored post and reconciles its tag joins.
// Tags that have never been seen before are created as empty general
// tags so the join rows always resolve. Publication state (posted,
// weibo_id) survives re-sync; only MarkPosted changes it.
func (s *Store) UpsertPost(ctx context.Context, post *Post) error {
	if post == nil || post.ID == 0 {
		return services.Wrap(services.ErrValidation, "hub", "upsert post", "post id required", nil)
	}
	for _, name := range post.Tags {
		if _, err := s.GetTag(ctx, name); err != nil {
			if !errors.Is(err, services.ErrNotFound) {
				return err
			}
			if err := s.SaveTag(ctx, NewTag(name, 0), ""); err != nil {
				return err
			}
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		var createdAt any
		if !post.CreatedAt.IsZero() {
			createdAt = formatTime(post.CreatedAt)
		}
		uploader := sql.NullString{String: post.UploaderName, Valid: post.UploaderName != ""}
		weiboID := sql.NullString{String: post.WeiboID, Valid: post.WeiboID != ""}
		if _, err := tx.Exec(
			`INSERT INTO posts (id, source, file_size, is_shown, is_pending, md5, ext, created_at,
				score, rating, sample_url, sample_file_size, uploader_name, posted, weibo_id, update_time)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				source = excluded.source,
				file_size = excluded.file_size,
				is_shown = excluded.is_shown,
				is_pending = excluded.is_pending,
				md5 = excluded.md5,
				ext = excluded.ext,
				created_at = excluded.created_at,
				score = excluded.score,
				rating = excluded.rating,
				sample_url = excluded.sample_url,
				sample_file_size = excluded.sample_file_size,
				uploader_name = excluded.uploader_name,
				update_time = excluded.update_time`,
			post.ID, post.Source, post.FileSize, post.IsShown, post.IsPending, post.MD5, post.Ext,
			createdAt, post.Score, post.Rating, post.SampleURL, post.SampleFileSize,
			uploader, post.Posted, weiboID, formatTime(now),
		); err != nil {
			return fmt.Errorf("upsert post %d: %w", post.ID, err)
		}

		for _, name := range post.Tags {
			if _, err := tx.Exec(
				`INSERT INTO post_tags (post_id, tag_name) VALUES (?, ?)
				 ON CONFLICT(post_id, tag_name) DO NOTHING`,
				post.ID, name,
			); err != nil {
				return fmt.Errorf("link tag %s: %w", name, err)
			}
		}
		query := `DELETE FROM post_tags WHERE post_id = ?`
		args := []any{post.ID}
		if len(post.Tags) > 0 {
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(post.Tags)), ",")
			query += ` AND tag_name NOT IN (` + placeholders + `)`
			for _, name := range post.Tags {
				args = append(args, name)
			}
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("prune tag links: %w", err)
		}
		return nil
	})
}

// GetPost loads one post with its tag names.
func (s *Store) GetPost(ctx context.Context, id int64) (*Post, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, selectPost+` WHERE id = ?`, id)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "hub", "get post", fmt.Sprintf("id %d", id), nil)
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachTags(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// PostIDsInRange lists known shown post ids inside an id interval.
func (s *Store) PostIDsInRange(ctx context.Context, minID, maxID int64) ([]int64, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM posts WHERE id >= ? AND id <= ? AND is_shown = 1 ORDER BY id`,
		minID, maxID)
	if err != nil {
		return nil, fmt.Errorf("posts in range: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkPostsHidden flags posts that disappeared from the booru listing
// as no longer visible.
func (s *Store) MarkPostsHidden(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.execWithRetry(ctx,
		`UPDATE posts SET is_shown = 0, is_pending = 0 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("mark posts hidden: %w", err)
	}
	return nil
}

// UnpostedAfter lists publishable posts with ids above a watermark,
// oldest first. Posts from blacklisted uploaders are excluded.
func (s *Store) UnpostedAfter(ctx context.Context, afterID int64) ([]*Post, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, selectPost+`
		 WHERE posted = 0 AND is_shown = 1 AND id > ?
		   AND (uploader_name IS NULL OR uploader_name NOT IN
				(SELECT name FROM uploaders WHERE in_blacklist = 1))
		 ORDER BY id`, afterID)
	if err != nil {
		return nil, fmt.Errorf("unposted after: %w", err)
	}
	return s.collectPosts(ctx, rows)
}

// NewestUnposted lists the newest publishable posts, returned in
// ascending id order. Used to bootstrap posting when nothing has been
// published yet.
func (s *Store) NewestUnposted(ctx context.Context, limit int) ([]*Post, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, selectPost+`
		 WHERE posted = 0 AND is_shown = 1
		   AND (uploader_name IS NULL OR uploader_name NOT IN
				(SELECT name FROM uploaders WHERE in_blacklist = 1))
		 ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("newest unposted: %w", err)
	}
	posts, err := s.collectPosts(ctx, rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
		posts[i], posts[j] = posts[j], posts[i]
	}
	return posts, nil
}

// LatestPostID returns the highest mirrored post id, or zero when the
// store holds no posts yet.
func (s *Store) LatestPostID(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var id sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM posts`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("latest post: %w", err)
	}
	return id.Int64, nil
}

// LatestPostedID returns the highest post id that has been published,
// or zero when none has.
func (s *Store) LatestPostedID(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var id sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(id) FROM posts WHERE posted = 1`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("latest posted: %w", err)
	}
	return id.Int64, nil
}

// MarkPosted records a successful publication: the status row is
// inserted and the post linked to it.
func (s *Store) MarkPosted(ctx context.Context, postID int64, weibo *Weibo) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if weibo != nil && weibo.WeiboID != "" {
			if _, err := tx.Exec(
				`INSERT INTO weibos (weibo_id, img_url, create_time) VALUES (?, ?, ?)
				 ON CONFLICT(weibo_id) DO NOTHING`,
				weibo.WeiboID, weibo.ImgURL, formatTime(s.now()),
			); err != nil {
				return fmt.Errorf("insert weibo: %w", err)
			}
			if _, err := tx.Exec(
				`UPDATE posts SET posted = 1, weibo_id = ? WHERE id = ?`,
				weibo.WeiboID, postID,
			); err != nil {
				return fmt.Errorf("mark posted: %w", err)
			}
			return nil
		}
		if _, err := tx.Exec(`UPDATE posts SET posted = 1 WHERE id = ?`, postID); err != nil {
			return fmt.Errorf("mark posted: %w", err)
		}
		return nil
	})
}

// TagsForPost loads the full tag records joined to a post.
func (s *Store) TagsForPost(ctx context.Context, postID int64) ([]*Tag, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name, t.type, t.override_name, t.deletion_flag, t.is_editable, t.detail, t.order_of_keys
		 FROM post_tags pt JOIN tags t ON t.name = pt.tag_name
		 WHERE pt.post_id = ? ORDER BY t.name`, postID)
	if err != nil {
		return nil, fmt.Errorf("tags for post: %w", err)
	}
	defer rows.Close()

	var tags []*Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// EarliestPostSource returns the source field of the oldest post
// carrying a tag.
func (s *Store) EarliestPostSource(ctx context.Context, tagName string) (string, error) {
	ctx = ensureContext(ctx)
	var source sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT p.source FROM post_tags pt JOIN posts p ON p.id = pt.post_id
		 WHERE pt.tag_name = ? ORDER BY p.id LIMIT 1`, tagName).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("earliest post source: %w", err)
	}
	return source.String, nil
}

// SaveUploader stores or updates one uploader record.
func (s *Store) SaveUploader(ctx context.Context, u *Uploader) error {
	if u == nil || u.Name == "" {
		return services.Wrap(services.ErrValidation, "hub", "save uploader", "name required", nil)
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO uploaders (name, override_name, in_whitelist, in_blacklist)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			override_name = excluded.override_name,
			in_whitelist = excluded.in_whitelist,
			in_blacklist = excluded.in_blacklist`,
		u.Name, u.OverrideName, u.InWhitelist, u.InBlacklist)
	if err != nil {
		return fmt.Errorf("save uploader %s: %w", u.Name, err)
	}
	return nil
}

// GetUploader loads one uploader, creating a default record for names
// never seen before.
func (s *Store) GetUploader(ctx context.Context, name string) (*Uploader, error) {
	ctx = ensureContext(ctx)
	u := &Uploader{}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, override_name, in_whitelist, in_blacklist FROM uploaders WHERE name = ?`,
		name).Scan(&u.Name, &u.OverrideName, &u.InWhitelist, &u.InBlacklist)
	if errors.Is(err, sql.ErrNoRows) {
		u = &Uploader{Name: name}
		if err := s.SaveUploader(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get uploader: %w", err)
	}
	return u, nil
}

const selectPost = `SELECT id, source, file_size, is_shown, is_pending, md5, ext, created_at,
	score, rating, sample_url, sample_file_size, uploader_name, posted, weibo_id, update_time
	FROM posts`

func (s *Store) collectPosts(ctx context.Context, rows *sql.Rows) ([]*Post, error) {
	defer rows.Close()
	var posts []*Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, post := range posts {
		if err := s.attachTags(ctx, post); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

func (s *Store) attachTags(ctx context.Context, post *Post) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag_name FROM post_tags WHERE post_id = ? ORDER BY tag_name`, post.ID)
	if err != nil {
		return fmt.Errorf("post tag names: %w", err)
	}
	defer rows.Close()
	post.Tags = post.Tags[:0]
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		post.Tags = append(post.Tags, name)
	}
	return rows.Err()
}

func scanPost(row rowScanner) (*Post, error) {
	var (
		post      Post
		createdAt sql.NullString
		uploader  sql.NullString
		weiboID   sql.NullString
		updated   string
	)
	if err := row.Scan(&post.ID, &post.Source, &post.FileSize, &post.IsShown, &post.IsPending,
		&post.MD5, &post.Ext, &createdAt, &post.Score, &post.Rating, &post.SampleURL,
		&post.SampleFileSize, &uploader, &post.Posted, &weiboID, &updated); err != nil {
		return nil, err
	}
	if createdAt.Valid {
		post.CreatedAt = parseTime(createdAt.String)
	}
	post.UploaderName = uploader.String
	post.WeiboID = weiboID.String
	post.UpdateTime = parseTime(updated)
	return &post, nil
}
