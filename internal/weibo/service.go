package weibo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"boorubot/internal/config"
	"boorubot/internal/hub"
	"boorubot/internal/logging"
	"boorubot/internal/services"
)

// Posting outcome markers. Skip means the post can never be published
// and should be marked done; Retry means a later attempt may succeed.
// Errors carrying neither marker abort the posting loop.
var (
	ErrSkip  = errors.New("skip post")
	ErrRetry = errors.New("retry post")
)

// IsSkip reports whether the post should be abandoned.
func IsSkip(err error) bool { return errors.Is(err, ErrSkip) }

// IsRetry reports whether the post should be retried later.
func IsRetry(err error) bool { return errors.Is(err, ErrRetry) }

// Service publishes mirrored posts as statuses and records the result.
type Service struct {
	store     *hub.Store
	client    *Client
	booruBase string
	logger    *slog.Logger
}

// NewService builds a posting service.
func NewService(cfg *config.Config, store *hub.Store, client *Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:     store,
		client:    client,
		booruBase: cfg.Booru.BaseURL,
		logger:    logger.With(logging.String(logging.FieldComponent, "weibo")),
	}
}

// PostStatus publishes one post with its prepared media file and marks
// it posted on success. Failures come back tagged Skip or Retry where
// the cause is classifiable.
func (s *Service) PostStatus(ctx context.Context, post *hub.Post, mediaPath string) (*hub.Weibo, error) {
	info, err := os.Stat(mediaPath)
	if err != nil || info.Size() == 0 {
		s.logger.Warn("media file invalid",
			logging.Int64(logging.FieldPostID, post.ID),
			logging.String("path", mediaPath))
		return nil, fmt.Errorf("%w: media file invalid: %s", ErrSkip, mediaPath)
	}

	tags, err := s.store.TagsForPost(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	var uploader *hub.Uploader
	if post.UploaderName != "" {
		uploader, err = s.store.GetUploader(ctx, post.UploaderName)
		if err != nil {
			return nil, err
		}
	}
	caption := Caption(post, tags, uploader, s.booruBase)

	status, err := s.client.Share(ctx, caption, mediaPath)
	if err != nil {
		return nil, s.classify(post.ID, err)
	}
	weibo := &hub.Weibo{WeiboID: status.IDStr, ImgURL: status.OriginalPic}
	if err := s.store.MarkPosted(ctx, post.ID, weibo); err != nil {
		return nil, err
	}
	s.logger.Info("status posted",
		logging.Int64(logging.FieldPostID, post.ID),
		logging.String("weibo_id", weibo.WeiboID))
	return weibo, nil
}

// classify maps a share failure onto the Skip/Retry taxonomy. Network
// failures and the media-store error are worth retrying; any other
// structured API rejection is permanent. Unrecognized errors pass
// through untagged so the posting loop halts on them.
func (s *Service) classify(postID int64, err error) error {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Code == uploadFailedCode {
			s.logger.Error("media upload rejected",
				logging.Int64(logging.FieldPostID, postID),
				logging.Error(err))
			return fmt.Errorf("%w: %v", ErrRetry, err)
		}
		s.logger.Error("status rejected",
			logging.Int64(logging.FieldPostID, postID),
			logging.Error(err))
		return fmt.Errorf("%w: %v", ErrSkip, err)
	case services.IsTransient(err):
		s.logger.Error("send failed",
			logging.Int64(logging.FieldPostID, postID),
			logging.Error(err))
		return fmt.Errorf("%w: %v", ErrRetry, err)
	default:
		return err
	}
}
