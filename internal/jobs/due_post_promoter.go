package job

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/postmux/postmux/internal/models"
	"github.com/postmux/postmux/internal/repository"
	"github.com/postmux/postmux/internal/service"
)

// DuePostPromoter periodically promotes scheduled posts whose time has
// passed into the work queue. The claim is a conditional status flip,
// so overlapping ticks (or a second process) promote each post once.
type DuePostPromoter struct {
	pr       repository.PostRepository
	enqueuer service.PublishEnqueuer
	running  atomic.Bool
	now      func() time.Time
}

func NewDuePostPromoter(pr repository.PostRepository, enqueuer service.PublishEnqueuer) *DuePostPromoter {
	return &DuePostPromoter{
		pr:       pr,
		enqueuer: enqueuer,
		now:      time.Now,
	}
}

func (p *DuePostPromoter) PromoteDuePosts() {
	// Skip the tick if the previous one is still running.
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	defer p.running.Store(false)

	ctx := context.Background()

	posts, err := p.pr.ListDue(ctx, p.now())
	if err != nil {
		slog.Info(err.Error())
		return
	}

	for _, post := range posts {
		claimed, err := p.pr.ClaimForPublishing(ctx, post.ID)
		if err != nil {
			slog.Info(err.Error())
			continue
		}
		if !claimed {
			// Another tick got there first.
			continue
		}

		if err := p.enqueuer.EnqueuePost(ctx, post.ID, 0); err != nil {
			slog.Error("failed to enqueue due post, reverting claim", "post_id", post.ID, "error", err.Error())
			// Put the post back so the next tick retries it instead of
			// leaving it stuck in publishing with no job.
			if rerr := p.pr.UpdateStatus(ctx, models.PostStatusScheduled, post.ID); rerr != nil {
				slog.Error("failed to revert claim", "post_id", post.ID, "error", rerr.Error())
			}
			continue
		}

		slog.Info("promoted due post", "post_id", post.ID)
	}
}
