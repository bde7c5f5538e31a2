package queue

import (
	"time"

	"github.com/postmux/postmux/internal/platform"
	"github.com/postmux/postmux/internal/repository"
	"github.com/postmux/postmux/internal/service"
)

const TaskTypePublishPost = "publish:post"

// PublishPostPayload carries the post id plus a correlation id minted at
// enqueue time, so one job's log lines can be tied together across the
// enqueuer and the worker.
type PublishPostPayload struct {
	PostID  int64  `json:"post_id"`
	TraceID string `json:"trace_id"`
}

// Worker consumes publish jobs. All state is re-read from the store on
// every attempt; the payload carries nothing but the post id.
type Worker struct {
	pr repository.PostRepository
	pp repository.PostPlatformRepository
	ma repository.MediaRepository

	registry *platform.Registry
	creds    service.CredentialSource
	storage  service.MediaStorage

	adapterTimeout time.Duration
	concurrency    int
}

func NewWorker(
	pr repository.PostRepository,
	pp repository.PostPlatformRepository,
	ma repository.MediaRepository,
	registry *platform.Registry,
	creds service.CredentialSource,
	storage service.MediaStorage) *Worker {
	return &Worker{
		pr:             pr,
		pp:             pp,
		ma:             ma,
		registry:       registry,
		creds:          creds,
		storage:        storage,
		adapterTimeout: 5 * time.Minute,
		concurrency:    10,
	}
}
