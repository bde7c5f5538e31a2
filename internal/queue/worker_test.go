package queue

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/postmux/postmux/internal/models"
	"github.com/postmux/postmux/internal/platform"
)

type postRepoStub struct {
	mu       sync.Mutex
	post     *models.Post
	statuses []string
}

func (s *postRepoStub) Create(_ context.Context, _ *sql.Tx, _ *models.Post) (int64, error) {
	return 0, errors.New("not implemented")
}

func (s *postRepoStub) GetByID(_ context.Context, id int64) (*models.Post, error) {
	if s.post == nil || s.post.ID != id {
		return nil, nil
	}
	return s.post, nil
}

func (s *postRepoStub) GetByUserID(_ context.Context, _ int64) ([]*models.Post, error) {
	return nil, nil
}

func (s *postRepoStub) ListDue(_ context.Context, _ time.Time) ([]*models.Post, error) {
	return nil, nil
}

func (s *postRepoStub) ClaimForPublishing(_ context.Context, _ int64) (bool, error) {
	return false, nil
}

func (s *postRepoStub) UpdateStatus(_ context.Context, status string, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *postRepoStub) CheckByUserID(_ context.Context, _, _ int64) (bool, error) {
	return true, nil
}

func (s *postRepoStub) lastStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

type targetRepoStub struct {
	mu        sync.Mutex
	targets   []*models.PostPlatform
	published map[int64]string
	failed    map[int64]string
	markErr   error
}

func newTargetRepoStub(targets ...*models.PostPlatform) *targetRepoStub {
	return &targetRepoStub{
		targets:   targets,
		published: make(map[int64]string),
		failed:    make(map[int64]string),
	}
}

func (s *targetRepoStub) Create(_ context.Context, _ *sql.Tx, _ *models.PostPlatform) (int64, error) {
	return 0, errors.New("not implemented")
}

func (s *targetRepoStub) ListByPostID(_ context.Context, _ int64) ([]*models.PostPlatform, error) {
	return s.targets, nil
}

func (s *targetRepoStub) MarkPublished(_ context.Context, id int64, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.published[id] = externalID
	return nil
}

func (s *targetRepoStub) MarkFailed(_ context.Context, id int64, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.failed[id] = errorMessage
	return nil
}

type mediaRepoStub struct {
	mu      sync.Mutex
	media   *models.Media
	claimed bool
	claims  int
}

func (s *mediaRepoStub) Create(_ context.Context, _ *sql.Tx, _ *models.Media) (int64, error) {
	return 0, errors.New("not implemented")
}

func (s *mediaRepoStub) GetByID(_ context.Context, id int64) (*models.Media, error) {
	if s.media == nil || s.media.ID != id {
		return nil, nil
	}
	return s.media, nil
}

func (s *mediaRepoStub) MarkStorageDeleted(_ context.Context, _ int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	if s.claimed {
		return false, nil
	}
	s.claimed = true
	return true, nil
}

type credsStub struct{}

func (credsStub) Lookup(_ context.Context, _ int64, platformTag string) (platform.Credential, error) {
	return platform.Credential{AccountID: "acc-" + platformTag, AccessToken: "token"}, nil
}

type storageStub struct {
	mu         sync.Mutex
	resolveErr error
	removed    []string
}

func (s *storageStub) ResolveURL(_ context.Context, media *models.Media) (string, error) {
	if s.resolveErr != nil {
		return "", s.resolveErr
	}
	return "https://cdn.example.com/" + media.StorageKey, nil
}

func (s *storageStub) Remove(_ context.Context, storageKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, storageKey)
	return nil
}

type adapterStub struct {
	tag   string
	mu    sync.Mutex
	calls int
	fn    func(pub platform.Publication) (string, error)
}

func (a *adapterStub) Tag() string { return a.tag }

func (a *adapterStub) Publish(_ context.Context, _ platform.Credential, pub platform.Publication) (string, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.fn != nil {
		return a.fn(pub)
	}
	return "ext-" + a.tag, nil
}

func (a *adapterStub) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func newTestWorker(pr *postRepoStub, pp *targetRepoStub, ma *mediaRepoStub, storage *storageStub, adapters ...platform.Adapter) *Worker {
	return NewWorker(pr, pp, ma, platform.NewRegistry(adapters...), credsStub{}, storage)
}

func publishingPost(id int64) *models.Post {
	return &models.Post{ID: id, UserID: 7, Content: "launch!", Status: models.PostStatusPublishing}
}

func TestPublishSkipsPublishedRows(t *testing.T) {
	pr := &postRepoStub{post: publishingPost(1)}
	pp := newTargetRepoStub(
		&models.PostPlatform{ID: 10, PostID: 1, Platform: "facebook", Status: models.TargetStatusPublished, ExternalID: "fb-1"},
		&models.PostPlatform{ID: 11, PostID: 1, Platform: "tiktok", Status: models.TargetStatusPublished, ExternalID: "tt-1"},
	)
	fb := &adapterStub{tag: "facebook"}
	tk := &adapterStub{tag: "tiktok"}

	w := newTestWorker(pr, pp, &mediaRepoStub{}, &storageStub{}, fb, tk)
	if err := w.Publish(context.Background(), 1, ""); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if fb.callCount() != 0 || tk.callCount() != 0 {
		t.Errorf("adapters invoked for already published rows: fb=%d tt=%d", fb.callCount(), tk.callCount())
	}
	if len(pp.published) != 0 || len(pp.failed) != 0 {
		t.Error("row statuses were rewritten on an idempotent pass")
	}
	if got := pr.lastStatus(); got != models.PostStatusPublished {
		t.Errorf("aggregate status = %q, want published", got)
	}
}

func TestPublishPartialIndependence(t *testing.T) {
	pr := &postRepoStub{post: publishingPost(2)}
	pp := newTargetRepoStub(
		&models.PostPlatform{ID: 20, PostID: 2, Platform: "facebook", Status: models.TargetStatusPending},
		&models.PostPlatform{ID: 21, PostID: 2, Platform: "tiktok", Status: models.TargetStatusPending},
	)
	fb := &adapterStub{tag: "facebook"}
	tk := &adapterStub{tag: "tiktok", fn: func(platform.Publication) (string, error) {
		return "", &platform.PublishError{Platform: "tiktok", Message: "daily post cap reached"}
	}}

	w := newTestWorker(pr, pp, &mediaRepoStub{}, &storageStub{}, fb, tk)
	err := w.Publish(context.Background(), 2, "")
	if err == nil {
		t.Fatal("Publish() = nil, want error so the job is retried")
	}

	if fb.callCount() != 1 {
		t.Errorf("facebook adapter called %d times, want 1", fb.callCount())
	}
	if got := pp.published[20]; got != "ext-facebook" {
		t.Errorf("facebook row external id = %q, want ext-facebook", got)
	}
	if msg := pp.failed[21]; msg == "" {
		t.Error("tiktok row was not marked failed with a message")
	}
	if got := pr.lastStatus(); got != models.PostStatusPartial {
		t.Errorf("aggregate status = %q, want partial", got)
	}
}

func TestPublishRetryConvergence(t *testing.T) {
	mediaID := int64(5)
	post := publishingPost(3)
	post.MediaID = &mediaID

	pr := &postRepoStub{post: post}
	pp := newTargetRepoStub(
		&models.PostPlatform{ID: 30, PostID: 3, Platform: "facebook", Status: models.TargetStatusPublished, ExternalID: "fb-3"},
		&models.PostPlatform{ID: 31, PostID: 3, Platform: "tiktok", Status: models.TargetStatusFailed, ErrorMessage: "daily post cap reached"},
	)
	ma := &mediaRepoStub{media: &models.Media{ID: mediaID, StorageKey: "obj-3", MediaType: models.MediaTypeVideo}}
	storage := &storageStub{}
	fb := &adapterStub{tag: "facebook"}
	tk := &adapterStub{tag: "tiktok"}

	w := newTestWorker(pr, pp, ma, storage, fb, tk)
	if err := w.Publish(context.Background(), 3, ""); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if fb.callCount() != 0 {
		t.Errorf("published row re-attempted: facebook called %d times", fb.callCount())
	}
	if tk.callCount() != 1 {
		t.Errorf("failed row attempted %d times, want 1", tk.callCount())
	}
	if got := pr.lastStatus(); got != models.PostStatusPublished {
		t.Errorf("aggregate status = %q, want published", got)
	}
	if len(storage.removed) != 1 || storage.removed[0] != "obj-3" {
		t.Errorf("storage removals = %v, want exactly [obj-3]", storage.removed)
	}

	// A redelivered pass after full success must not delete again.
	if err := w.Publish(context.Background(), 3, ""); err != nil {
		t.Fatalf("second Publish() error = %v", err)
	}
	if len(storage.removed) != 1 {
		t.Errorf("media deleted %d times, want once", len(storage.removed))
	}
}

func TestPublishMissingPostAcks(t *testing.T) {
	pr := &postRepoStub{}
	fb := &adapterStub{tag: "facebook"}

	w := newTestWorker(pr, newTargetRepoStub(), &mediaRepoStub{}, &storageStub{}, fb)
	if err := w.Publish(context.Background(), 99, ""); err != nil {
		t.Fatalf("Publish() error = %v, want nil for a missing post", err)
	}
	if fb.callCount() != 0 {
		t.Error("adapter invoked for a missing post")
	}
}

func TestHandlePublishTaskCarriesTraceID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	w := newTestWorker(&postRepoStub{}, newTargetRepoStub(), &mediaRepoStub{}, &storageStub{})

	payload, err := json.Marshal(PublishPostPayload{PostID: 42, TraceID: "trace-42"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if err := w.HandlePublishTask(context.Background(), asynq.NewTask(TaskTypePublishPost, payload)); err != nil {
		t.Fatalf("HandlePublishTask() error = %v", err)
	}

	if !strings.Contains(buf.String(), "trace-42") {
		t.Errorf("worker log does not carry the job's trace id: %s", buf.String())
	}
}

func TestPublishZeroRowsLeavesStatus(t *testing.T) {
	pr := &postRepoStub{post: publishingPost(4)}

	w := newTestWorker(pr, newTargetRepoStub(), &mediaRepoStub{}, &storageStub{})
	if err := w.Publish(context.Background(), 4, ""); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(pr.statuses) != 0 {
		t.Errorf("post status updated to %v for zero target rows, want unchanged", pr.statuses)
	}
}

func TestPublishUnregisteredPlatformFailsRow(t *testing.T) {
	pr := &postRepoStub{post: publishingPost(5)}
	pp := newTargetRepoStub(
		&models.PostPlatform{ID: 50, PostID: 5, Platform: "myspace", Status: models.TargetStatusPending},
	)

	w := newTestWorker(pr, pp, &mediaRepoStub{}, &storageStub{})
	if err := w.Publish(context.Background(), 5, ""); err == nil {
		t.Fatal("Publish() = nil, want error for a failed row")
	}

	if msg := pp.failed[50]; msg != "myspace: no adapter registered" {
		t.Errorf("error message = %q", msg)
	}
	if got := pr.lastStatus(); got != models.PostStatusPartial {
		t.Errorf("aggregate status = %q, want partial", got)
	}
}

func TestPublishStoreFailureRetriesJob(t *testing.T) {
	pr := &postRepoStub{post: publishingPost(6)}
	pp := newTargetRepoStub(
		&models.PostPlatform{ID: 60, PostID: 6, Platform: "facebook", Status: models.TargetStatusPending},
	)
	pp.markErr = errors.New("connection reset")
	fb := &adapterStub{tag: "facebook"}

	w := newTestWorker(pr, pp, &mediaRepoStub{}, &storageStub{}, fb)
	if err := w.Publish(context.Background(), 6, ""); err == nil {
		t.Fatal("Publish() = nil, want error when a row update cannot be persisted")
	}
	if len(pr.statuses) != 0 {
		t.Errorf("aggregate written despite store failure: %v", pr.statuses)
	}
}

func TestPublishMediaResolveFailureIsRowLocal(t *testing.T) {
	mediaID := int64(8)
	post := publishingPost(7)
	post.MediaID = &mediaID

	pr := &postRepoStub{post: post}
	pp := newTargetRepoStub(
		&models.PostPlatform{ID: 70, PostID: 7, Platform: "facebook", Status: models.TargetStatusPending},
		&models.PostPlatform{ID: 71, PostID: 7, Platform: "instagram", Status: models.TargetStatusPending},
	)
	ma := &mediaRepoStub{media: &models.Media{ID: mediaID, StorageKey: "obj-7", MediaType: models.MediaTypeImage}}
	storage := &storageStub{resolveErr: errors.New("presign failed")}

	// Facebook falls back to a text post without media; Instagram
	// cannot publish without one.
	fb := &adapterStub{tag: "facebook"}
	ig := &adapterStub{tag: "instagram", fn: func(pub platform.Publication) (string, error) {
		if pub.MediaURL == "" {
			return "", &platform.PublishError{Platform: "instagram", Message: "instagram posts require media"}
		}
		return "ig-7", nil
	}}

	w := newTestWorker(pr, pp, ma, storage, fb, ig)
	if err := w.Publish(context.Background(), 7, ""); err == nil {
		t.Fatal("Publish() = nil, want error for the failed instagram row")
	}

	if got := pp.published[70]; got != "ext-facebook" {
		t.Errorf("facebook row = %q, want published despite resolve failure", got)
	}
	if pp.failed[71] == "" {
		t.Error("instagram row should fail with its own message")
	}
	if got := pr.lastStatus(); got != models.PostStatusPartial {
		t.Errorf("aggregate status = %q, want partial", got)
	}
}
