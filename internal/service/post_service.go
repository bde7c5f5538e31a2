package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/postmux/postmux/internal/models"
	"github.com/postmux/postmux/internal/repository"
	"github.com/postmux/postmux/internal/transfer"
)

// PublishEnqueuer hands a publish job to the work queue. Implemented by
// the queue package; a stub stands in for it in tests.
type PublishEnqueuer interface {
	EnqueuePost(ctx context.Context, postID int64, delay time.Duration) error
}

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.Post, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
}

type postService struct {
	db        *sql.DB
	pr        repository.PostRepository
	pp        repository.PostPlatformRepository
	ma        repository.MediaRepository
	enqueuer  PublishEnqueuer
	platforms map[string]struct{}
	now       func() time.Time
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	pp repository.PostPlatformRepository,
	ma repository.MediaRepository,
	enqueuer PublishEnqueuer,
	knownPlatforms []string) PostService {
	platforms := make(map[string]struct{}, len(knownPlatforms))
	for _, tag := range knownPlatforms {
		platforms[tag] = struct{}{}
	}
	return &postService{
		db:        db,
		pr:        pr,
		pp:        pp,
		ma:        ma,
		enqueuer:  enqueuer,
		platforms: platforms,
		now:       time.Now,
	}
}

// CreatePost validates the submission, persists media, post and one
// target row per platform in a single transaction, and enqueues the
// publish job immediately unless the post is scheduled for the future.
// Scheduled posts stay dormant until the promoter claims them.
func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.Post, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return nil, err
	}
	if pc.Content == "" && pc.Media == nil {
		err := errors.New("post needs content or media")
		slog.Info(err.Error())
		return nil, err
	}
	if len(pc.Platforms) == 0 {
		err := errors.New("no target platforms selected")
		slog.Info(err.Error())
		return nil, err
	}
	// The platform list is a set: a repeated tag must not produce a
	// second row, or the worker would publish to that account twice.
	seen := make(map[string]struct{}, len(pc.Platforms))
	platforms := make([]string, 0, len(pc.Platforms))
	for _, tag := range pc.Platforms {
		if _, ok := s.platforms[tag]; !ok {
			err := fmt.Errorf("unknown platform: %s", tag)
			slog.Info(err.Error())
			return nil, err
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		platforms = append(platforms, tag)
	}

	var scheduledAt *time.Time
	if pc.ScheduledAt != "" {
		t, err := time.Parse(time.RFC3339, pc.ScheduledAt)
		if err != nil {
			err = fmt.Errorf("invalid scheduled time format: %w", err)
			slog.Error(err.Error())
			return nil, err
		}
		// A past instant is accepted and treated as an immediate post.
		if t.After(s.now()) {
			scheduledAt = &t
		}
	}

	media, err := s.validateMedia(pc.Media)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	var mediaID *int64
	if media != nil {
		media.UserID = userID
		var id int64
		id, err = s.ma.Create(ctx, tx, media)
		if err != nil {
			return nil, fmt.Errorf("error saving media: %w", err)
		}
		media.ID = id
		mediaID = &id
	}

	post := models.Post{
		UserID:      userID,
		Content:     pc.Content,
		Title:       pc.Title,
		MediaID:     mediaID,
		IsScheduled: scheduledAt != nil,
		ScheduledAt: scheduledAt,
		Overrides:   pc.Overrides,
		Status:      models.PostStatusPending,
	}
	if post.IsScheduled {
		post.Status = models.PostStatusScheduled
	}

	postID, err := s.pr.Create(ctx, tx, &post)
	if err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}
	post.ID = postID

	for _, tag := range platforms {
		target := models.PostPlatform{
			PostID:   postID,
			Platform: tag,
			Status:   models.TargetStatusPending,
		}
		var id int64
		id, err = s.pp.Create(ctx, tx, &target)
		if err != nil {
			return nil, fmt.Errorf("error saving target platform %s: %w", tag, err)
		}
		target.ID = id
		post.Platforms = append(post.Platforms, &target)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if !post.IsScheduled {
		if err := s.enqueuer.EnqueuePost(ctx, postID, 0); err != nil {
			slog.Error(err.Error())
			return nil, fmt.Errorf("error enqueuing publish job: %w", err)
		}
	}

	return &post, nil
}

func (s *postService) validateMedia(md *transfer.MediaDescriptor) (*models.Media, error) {
	if md == nil {
		return nil, nil
	}

	if md.StorageKey == "" && md.FileURL == "" {
		err := errors.New("media descriptor needs a storage key or url")
		slog.Info(err.Error())
		return nil, err
	}
	if !filetype.IsMIMESupported(md.FileType) {
		err := fmt.Errorf("unsupported media type: %s", md.FileType)
		slog.Info(err.Error())
		return nil, err
	}

	mediaType := md.MediaType
	if mediaType == "" {
		if strings.HasPrefix(md.FileType, "video/") {
			mediaType = models.MediaTypeVideo
		} else {
			mediaType = models.MediaTypeImage
		}
	}
	switch mediaType {
	case models.MediaTypeImage, models.MediaTypeVideo, models.MediaTypeReel:
	default:
		err := fmt.Errorf("unknown media type: %s", mediaType)
		slog.Info(err.Error())
		return nil, err
	}

	return &models.Media{
		FileURL:    md.FileURL,
		StorageKey: md.StorageKey,
		FileType:   md.FileType,
		MediaType:  mediaType,
	}, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	var err error

	if userID == 0 {
		err = errors.New("user is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	if postID == 0 {
		err = errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post info")
	}

	targets, err := s.pp.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post targets")
	}
	post.Platforms = targets

	return post, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts")
	}
	for _, post := range posts {
		targets, err := s.pp.ListByPostID(ctx, post.ID)
		if err != nil {
			return nil, fmt.Errorf("error getting post targets")
		}
		post.Platforms = targets
	}
	return posts, nil
}
