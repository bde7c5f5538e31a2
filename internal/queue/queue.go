package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Enqueuer wraps the asynq client. The task id is derived from the post
// id, so at most one publish job per post is in flight at a time; a
// conflicting enqueue means a job already exists and counts as success.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) EnqueuePost(ctx context.Context, postID int64, delay time.Duration) error {
	traceID, err := gonanoid.New()
	if err != nil {
		return err
	}

	taskPayload, err := json.Marshal(PublishPostPayload{PostID: postID, TraceID: traceID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, taskPayload)

	_, err = e.client.EnqueueContext(ctx, task,
		asynq.TaskID(fmt.Sprintf("publish:post:%d", postID)),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(10),
		asynq.Timeout(15*time.Minute),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		log.Printf("publish job for post %d already queued", postID)
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("publish job enqueued: post=%d delay=%s trace=%s", postID, delay, traceID)
	return nil
}
