package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/postmux/postmux/internal/models"
	"github.com/postmux/postmux/internal/platform"
)

func (w *Worker) HandlePublishTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid publish payload: %v: %w", err, asynq.SkipRetry)
	}

	return w.Publish(ctx, payload.PostID, payload.TraceID)
}

// Publish runs one fan-out pass over a post's target rows. Rows already
// published are never re-attempted, so redelivered jobs only touch the
// platforms that still need work. Returning an error makes the queue
// redeliver the job. traceID is the correlation id minted at enqueue.
func (w *Worker) Publish(ctx context.Context, postID int64, traceID string) error {
	post, err := w.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		slog.Info("publish job for missing post", "post_id", postID, "trace", traceID)
		return nil
	}

	targets, err := w.pp.ListByPostID(ctx, postID)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		slog.Error("post has no target platform rows", "post_id", postID, "trace", traceID)
		return nil
	}

	media, mediaURL := w.resolveMedia(ctx, post)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, w.concurrency)

	var mu sync.Mutex
	var storeErrs []error

	for _, target := range targets {
		if target.Status == models.TargetStatusPublished {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}
		go func(target *models.PostPlatform) {
			defer wg.Done()
			defer func() { <-semaphore }()

			externalID, err := w.publishTarget(ctx, post, target, media, mediaURL)
			if err != nil {
				slog.Info("publish failed", "post_id", postID, "platform", target.Platform, "trace", traceID, "error", err.Error())
				target.Status = models.TargetStatusFailed
				target.ErrorMessage = err.Error()
				if serr := w.pp.MarkFailed(ctx, target.ID, target.ErrorMessage); serr != nil {
					mu.Lock()
					storeErrs = append(storeErrs, serr)
					mu.Unlock()
				}
				return
			}

			target.Status = models.TargetStatusPublished
			target.ExternalID = externalID
			if serr := w.pp.MarkPublished(ctx, target.ID, externalID); serr != nil {
				mu.Lock()
				storeErrs = append(storeErrs, serr)
				mu.Unlock()
			}
		}(target)
	}
	wg.Wait()

	if len(storeErrs) > 0 {
		return fmt.Errorf("failed to persist %d target updates for post %d: %v", len(storeErrs), postID, storeErrs[0])
	}

	published, failed := 0, 0
	for _, target := range targets {
		switch target.Status {
		case models.TargetStatusPublished:
			published++
		case models.TargetStatusFailed:
			failed++
		}
	}

	// Aggregate only from terminal rows. A pass that somehow leaves a
	// row non-terminal keeps the post in publishing instead of calling
	// it a success.
	switch {
	case failed > 0:
		if err := w.pr.UpdateStatus(ctx, models.PostStatusPartial, postID); err != nil {
			return err
		}
		return fmt.Errorf("%d of %d platforms failed for post %d", failed, len(targets), postID)
	case published == len(targets):
		if err := w.pr.UpdateStatus(ctx, models.PostStatusPublished, postID); err != nil {
			return err
		}
		w.cleanupMedia(ctx, media)
		return nil
	default:
		slog.Error("post has non-terminal target rows after pass", "post_id", postID, "trace", traceID)
		return nil
	}
}

func (w *Worker) resolveMedia(ctx context.Context, post *models.Post) (*models.Media, string) {
	if post.MediaID == nil {
		return nil, ""
	}

	media, err := w.ma.GetByID(ctx, *post.MediaID)
	if err != nil || media == nil {
		slog.Error("failed to load media", "post_id", post.ID)
		return nil, ""
	}

	// Resolve failure is not fatal for the pass: platforms that need
	// media fail individually with their own message.
	url, err := w.storage.ResolveURL(ctx, media)
	if err != nil {
		slog.Error("failed to resolve media url", "post_id", post.ID, "error", err.Error())
		return media, ""
	}
	return media, url
}

func (w *Worker) publishTarget(ctx context.Context, post *models.Post, target *models.PostPlatform, media *models.Media, mediaURL string) (string, error) {
	adapter, ok := w.registry.Get(target.Platform)
	if !ok {
		return "", &platform.PublishError{Platform: target.Platform, Message: "no adapter registered"}
	}

	cred, err := w.creds.Lookup(ctx, post.UserID, target.Platform)
	if err != nil {
		return "", err
	}

	pub := platform.Publication{
		Content:   post.Content,
		Title:     post.Title,
		MediaURL:  mediaURL,
		Overrides: post.Overrides[target.Platform],
	}
	if media != nil {
		pub.MediaType = media.MediaType
	}

	callCtx, cancel := context.WithTimeout(ctx, w.adapterTimeout)
	defer cancel()

	return adapter.Publish(callCtx, cred, pub)
}

// cleanupMedia deletes the storage object once every target published.
// The flag flip elects a single deleting pass, so a concurrent or
// redelivered pass never deletes twice.
func (w *Worker) cleanupMedia(ctx context.Context, media *models.Media) {
	if media == nil || media.StorageKey == "" {
		return
	}

	claimed, err := w.ma.MarkStorageDeleted(ctx, media.ID)
	if err != nil {
		slog.Error("failed to claim media cleanup", "media_id", media.ID, "error", err.Error())
		return
	}
	if !claimed {
		return
	}

	if err := w.storage.Remove(ctx, media.StorageKey); err != nil {
		slog.Error("failed to delete media object", "media_id", media.ID, "error", err.Error())
	}
}
