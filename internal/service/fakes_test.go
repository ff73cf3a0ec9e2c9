package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/maheshrc27/screenpost/internal/metrics"
	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/progress"
	"github.com/maheshrc27/screenpost/internal/repository"
)

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
	done   bool
}

func (r *recorder) Send(e progress.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return false
	}
	r.events = append(r.events, e)
	r.done = e.Terminal()
	return true
}

func (r *recorder) types() []progress.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) last() progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fakeCredentialRepo struct {
	mu    sync.Mutex
	creds map[int64]*models.Credential
	sets  int
}

func newFakeCredentialRepo(creds ...*models.Credential) *fakeCredentialRepo {
	r := &fakeCredentialRepo{creds: map[int64]*models.Credential{}}
	for _, c := range creds {
		r.creds[c.UserID] = c
	}
	return r
}

func (r *fakeCredentialRepo) GetByUserID(_ context.Context, userID int64) (*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[userID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCredentialRepo) ListExpiring(_ context.Context, before time.Time) ([]*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Credential
	for _, c := range r.creds {
		if c.TokenExpiresAt.Before(before) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCredentialRepo) SetToken(_ context.Context, userID int64, oldAccessToken string, c *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.creds[userID]
	if !ok || cur.AccessToken != oldAccessToken {
		return repository.ErrNotUpdated
	}
	cur.AccessToken = c.AccessToken
	if c.RefreshToken != "" {
		cur.RefreshToken = c.RefreshToken
	}
	cur.TokenExpiresAt = c.TokenExpiresAt
	r.sets++
	return nil
}

type fakePostRepo struct {
	mu    sync.Mutex
	posts map[int64]*models.Post
	// markPostedFailures makes the next n MarkPosted calls fail.
	markPostedFailures int
	listErr            error
}

func newFakePostRepo(posts ...*models.Post) *fakePostRepo {
	r := &fakePostRepo{posts: map[int64]*models.Post{}}
	for _, p := range posts {
		if p.PublishStatus == "" {
			p.PublishStatus = models.PublishStatusPending
		}
		r.posts[p.ID] = p
	}
	return r
}

func (r *fakePostRepo) get(id int64) *models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.posts[id]
	return &cp
}

func (r *fakePostRepo) GetByID(_ context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakePostRepo) ListByThreadID(_ context.Context, threadID int64) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*models.Post
	for pos := 0; pos < len(r.posts); pos++ {
		for _, p := range r.posts {
			if p.ThreadID != nil && *p.ThreadID == threadID && p.ThreadPosition != nil && *p.ThreadPosition == pos {
				cp := *p
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (r *fakePostRepo) ClaimForPublish(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.posts[id]
	if p.PostedAt != nil || (p.PublishStatus != models.PublishStatusPending && p.PublishStatus != models.PublishStatusFailed) {
		return false, nil
	}
	now := time.Now()
	p.PublishStatus = models.PublishStatusPosting
	p.PublishAttempts++
	p.PublishStartedAt = &now
	return true, nil
}

func (r *fakePostRepo) MarkPosted(ctx context.Context, id int64, tweetID, replyTo string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markPostedFailures > 0 {
		r.markPostedFailures--
		return fmt.Errorf("connection reset")
	}
	p := r.posts[id]
	if p.PostedAt != nil {
		return repository.ErrNotUpdated
	}
	now := time.Now()
	p.PublishStatus = models.PublishStatusPosted
	p.PostedAt = &now
	p.TweetID = &tweetID
	if replyTo != "" {
		p.ReplyToTweetID = &replyTo
	}
	p.PublishError = nil
	return nil
}

func (r *fakePostRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.posts[id]
	if p.PostedAt != nil {
		return nil
	}
	now := time.Now()
	p.PublishStatus = models.PublishStatusFailed
	p.PublishError = &reason
	p.PublishErrorAt = &now
	return nil
}

func (r *fakePostRepo) ResetForRetry(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.posts[id]
	if p.PostedAt != nil || p.PublishStatus != models.PublishStatusFailed {
		return false, nil
	}
	p.PublishStatus = models.PublishStatusPending
	return true, nil
}

type fakeThreadRepo struct {
	mu      sync.Mutex
	threads map[int64]*models.Thread
}

func newFakeThreadRepo(threads ...*models.Thread) *fakeThreadRepo {
	r := &fakeThreadRepo{threads: map[int64]*models.Thread{}}
	for _, t := range threads {
		r.threads[t.ID] = t
	}
	return r
}

func (r *fakeThreadRepo) get(id int64) *models.Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.threads[id]
	return &cp
}

func (r *fakeThreadRepo) GetByID(_ context.Context, id int64) (*models.Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeThreadRepo) BeginPosting(_ context.Context, id, userID int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[id]
	if !ok || t.UserID != userID {
		return "", nil
	}
	if t.Status != models.ThreadStatusDraft && t.Status != models.ThreadStatusPartialFailed {
		return "", nil
	}
	previous := t.Status
	t.Status = models.ThreadStatusPosting
	return previous, nil
}

func (r *fakeThreadRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads[id].Status = status
	return nil
}

func (r *fakeThreadRepo) MarkPosted(ctx context.Context, id int64, firstTweetID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.threads[id]
	now := time.Now()
	t.Status = models.ThreadStatusPosted
	t.PostedAt = &now
	t.FirstTweetID = &firstTweetID
	return nil
}

type fakeCaptureRepo struct {
	captures map[int64]*models.Capture
}

func newFakeCaptureRepo(captures ...*models.Capture) *fakeCaptureRepo {
	r := &fakeCaptureRepo{captures: map[int64]*models.Capture{}}
	for _, c := range captures {
		r.captures[c.ID] = c
	}
	return r
}

func (r *fakeCaptureRepo) GetByID(_ context.Context, id int64) (*models.Capture, error) {
	return r.captures[id], nil
}

func (r *fakeCaptureRepo) GetByIDs(_ context.Context, userID int64, ids []int64) ([]*models.Capture, error) {
	var out []*models.Capture
	for _, id := range ids {
		if c, ok := r.captures[id]; ok && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCaptureRepo) ClaimNext(context.Context, models.ProcessingKind, int, time.Duration) (*models.Lease, error) {
	return nil, nil
}

func (r *fakeCaptureRepo) Complete(context.Context, *models.Lease, models.ProcessingOutput) error {
	return nil
}

func (r *fakeCaptureRepo) Fail(context.Context, *models.Lease, string) (int, error) {
	return 0, nil
}

func (r *fakeCaptureRepo) ListExhausted(_ context.Context, userID int64, kind models.ProcessingKind, maxAttempts int) ([]*models.Capture, error) {
	var out []*models.Capture
	for _, c := range r.captures {
		attempts := c.ThumbnailAttempts
		if kind == models.KindFrames {
			attempts = c.FrameAttempts
		}
		if c.UserID == userID && attempts >= maxAttempts {
			out = append(out, c)
		}
	}
	return out, nil
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s missing", key)
	}
	return data, nil
}

func (m *memStore) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

type createdPost struct {
	text     string
	replyTo  string
	mediaIDs []string
}

type fakeTwitter struct {
	mu       sync.Mutex
	uploads  []string
	posts    []createdPost
	nextIDs  []string
	failText map[string]error
	pending  bool
	waited   bool
	// cancelOn cancels the caller's context when a post with this text is
	// created, as a shutdown would mid-request.
	cancelOn string
	cancel   context.CancelFunc
}

func (f *fakeTwitter) UploadImage(_ context.Context, _ string, data []byte, mediaType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, mediaType)
	return fmt.Sprintf("m%d", len(f.uploads)), nil
}

func (f *fakeTwitter) UploadVideo(_ context.Context, _ string, data []byte, mediaType string, onSegment func(int, int)) (*UploadedMedia, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, mediaType)
	f.mu.Unlock()
	onSegment(1, 2)
	onSegment(2, 2)
	return &UploadedMedia{ID: "v1", Pending: f.pending}, nil
}

func (f *fakeTwitter) WaitForProcessing(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waited = true
	return nil
}

func (f *fakeTwitter) CreatePost(ctx context.Context, _ string, text, replyTo string, mediaIDs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil && text == f.cancelOn {
		f.cancel()
		return "", ctx.Err()
	}
	if err, ok := f.failText[text]; ok {
		return "", err
	}
	f.posts = append(f.posts, createdPost{text: text, replyTo: replyTo, mediaIDs: mediaIDs})
	if len(f.nextIDs) > 0 {
		id := f.nextIDs[0]
		f.nextIDs = f.nextIDs[1:]
		return id, nil
	}
	return fmt.Sprintf("tw%d", len(f.posts)), nil
}

type staticCredentials struct {
	token string
	err   error
}

func (s staticCredentials) EnsureValid(context.Context, int64) (string, error) {
	return s.token, s.err
}

func (s staticCredentials) Refresh(context.Context, *models.Credential) (string, error) {
	return s.token, s.err
}

type fakeCutter struct {
	calls int
}

func (c *fakeCutter) Cut(_ context.Context, data []byte, _, _ float64) ([]byte, error) {
	c.calls++
	return append([]byte("cut:"), data...), nil
}

func ptr[T any](v T) *T { return &v }
