package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/transfer"
)

func newTestTwitterClient(url string) *twitterClient {
	return &twitterClient{
		baseURL: url,
		http:    &http.Client{Timeout: 5 * time.Second},
		sleep:   func(context.Context, time.Duration) error { return nil },
	}
}

func TestTwitterClientUploadImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/media/upload", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "tweet_image", r.FormValue("media_category"))
		assert.Equal(t, "image/png", r.FormValue("media_type"))

		f, _, err := r.FormFile("media")
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "png-bytes", string(body))

		w.Write([]byte(`{"data":{"id":"m-1"}}`))
	}))
	defer srv.Close()

	id, err := newTestTwitterClient(srv.URL).UploadImage(context.Background(), "token-1", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "m-1", id)
}

func TestTwitterClientUploadVideoChunks(t *testing.T) {
	data := make([]byte, mediaChunkSize*2+10)

	var mu sync.Mutex
	var segments []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/media/upload/initialize":
			var req transfer.MediaInitRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "video/mp4", req.MediaType, "quicktime is uploaded as mp4")
			assert.Equal(t, "tweet_video", req.MediaCategory)
			assert.Equal(t, len(data), req.TotalBytes)
			w.Write([]byte(`{"data":{"id":"v-1"}}`))
		case "/2/media/upload/v-1/append":
			require.NoError(t, r.ParseMultipartForm(4<<20))
			mu.Lock()
			segments = append(segments, r.FormValue("segment_index"))
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		case "/2/media/upload/v-1/finalize":
			w.Write([]byte(`{"data":{"id":"v-1","processing_info":{"state":"pending","check_after_secs":1}}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	type seg struct{ n, total int }
	var seen []seg
	media, err := newTestTwitterClient(srv.URL).UploadVideo(context.Background(), "tok", data, "video/quicktime", func(n, total int) {
		seen = append(seen, seg{n, total})
	})
	require.NoError(t, err)
	assert.Equal(t, "v-1", media.ID)
	assert.True(t, media.Pending)
	assert.Equal(t, []string{"0", "1", "2"}, segments)
	assert.Equal(t, []seg{{1, 3}, {2, 3}, {3, 3}}, seen)
}

func TestTwitterClientUploadVideoFinalizeFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/media/upload/initialize":
			w.Write([]byte(`{"data":{"id":"v-2"}}`))
		case "/2/media/upload/v-2/finalize":
			w.Write([]byte(`{"data":{"id":"v-2","processing_info":{"state":"failed","error":{"message":"bad codec"}}}}`))
		}
	}))
	defer srv.Close()

	_, err := newTestTwitterClient(srv.URL).UploadVideo(context.Background(), "tok", []byte("x"), "video/mp4", nil)
	var pe *models.PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "bad codec", pe.Body)
}

func TestTwitterClientWaitForProcessing(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "STATUS", r.URL.Query().Get("command"))
		assert.Equal(t, "v-3", r.URL.Query().Get("media_id"))
		calls++
		if calls < 3 {
			w.Write([]byte(`{"data":{"id":"v-3","processing_info":{"state":"in_progress","check_after_secs":0}}}`))
			return
		}
		w.Write([]byte(`{"data":{"id":"v-3","processing_info":{"state":"succeeded"}}}`))
	}))
	defer srv.Close()

	c := newTestTwitterClient(srv.URL)
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	require.NoError(t, c.WaitForProcessing(context.Background(), "tok", "v-3"))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{0, 0}, waits)
}

func TestTwitterClientCreatePost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets", r.URL.Path)
		var req transfer.TweetRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Text)
		require.NotNil(t, req.Reply)
		assert.Equal(t, "100", req.Reply.InReplyToTweetID)
		require.NotNil(t, req.Media)
		assert.Equal(t, []string{"m-1", "m-2"}, req.Media.MediaIDs)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"abc123","text":"hello"}}`))
	}))
	defer srv.Close()

	id, err := newTestTwitterClient(srv.URL).CreatePost(context.Background(), "tok", "hello", "100", []string{"m-1", "m-2"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
}

func TestTwitterClientCreatePostOmitsEmptyReplyAndMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.NotContains(t, raw, "reply")
		assert.NotContains(t, raw, "media")
		w.Write([]byte(`{"data":{"id":"1"}}`))
	}))
	defer srv.Close()

	_, err := newTestTwitterClient(srv.URL).CreatePost(context.Background(), "tok", "plain", "", nil)
	require.NoError(t, err)
}

func TestTwitterClientRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"duplicate content"}`))
	}))
	defer srv.Close()

	_, err := newTestTwitterClient(srv.URL).CreatePost(context.Background(), "tok", "dup", "", nil)
	var pe *models.PlatformError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusForbidden, pe.StatusCode)
	assert.Contains(t, pe.Body, "duplicate content")
	assert.Equal(t, "platform_rejected", models.ErrorReason(err))
}
