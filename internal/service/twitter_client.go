package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	config "github.com/maheshrc27/screenpost/configs"
	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/transfer"
)

const (
	mediaChunkSize    = 1 << 20
	defaultCheckAfter = 5 * time.Second
	maxProcessingWait = 10 * time.Minute
	maxErrorBody      = 512
)

type UploadedMedia struct {
	ID string
	// Pending is set when the platform is still transcoding the upload.
	Pending bool
}

type TwitterClient interface {
	UploadImage(ctx context.Context, accessToken string, data []byte, mediaType string) (string, error)
	UploadVideo(ctx context.Context, accessToken string, data []byte, mediaType string, onSegment func(segment, total int)) (*UploadedMedia, error)
	WaitForProcessing(ctx context.Context, accessToken, mediaID string) error
	CreatePost(ctx context.Context, accessToken, text, replyTo string, mediaIDs []string) (string, error)
}

type twitterClient struct {
	baseURL string
	http    *http.Client
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewTwitterClient(cfg config.Config) TwitterClient {
	return &twitterClient{
		baseURL: strings.TrimRight(cfg.Twitter.APIURL, "/"),
		http:    &http.Client{Timeout: cfg.PlatformRequestTimeout},
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func mediaCategory(mediaType string) string {
	switch {
	case strings.HasPrefix(mediaType, "video/"):
		return "tweet_video"
	case mediaType == "image/gif":
		return "tweet_gif"
	default:
		return "tweet_image"
	}
}

func (c *twitterClient) do(ctx context.Context, op, accessToken, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(respBody)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return &models.PlatformError{Op: op, StatusCode: resp.StatusCode, Body: text}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

type formField struct {
	name  string
	value string
}

func multipartBody(fields []formField, fileField, mediaType string, data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="blob"`, fileField))
	h.Set("Content-Type", mediaType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *twitterClient) UploadImage(ctx context.Context, accessToken string, data []byte, mediaType string) (string, error) {
	body, contentType, err := multipartBody([]formField{
		{"media_category", mediaCategory(mediaType)},
		{"media_type", mediaType},
	}, "media", mediaType, data)
	if err != nil {
		return "", err
	}

	var resp transfer.MediaUploadResponse
	if err := c.do(ctx, "media upload", accessToken, http.MethodPost, "/2/media/upload", body, contentType, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", &models.PlatformError{Op: "media upload", Body: "response carried no media id"}
	}
	return resp.Data.ID, nil
}

// UploadVideo runs the chunked initialize/append/finalize sequence. onSegment
// is called after each appended segment with a 1-based index.
func (c *twitterClient) UploadVideo(ctx context.Context, accessToken string, data []byte, mediaType string, onSegment func(segment, total int)) (*UploadedMedia, error) {
	if len(data) == 0 {
		return nil, errors.New("media upload: empty video")
	}
	if mediaType == "video/quicktime" {
		mediaType = "video/mp4"
	}

	initBody, err := json.Marshal(transfer.MediaInitRequest{
		MediaType:     mediaType,
		TotalBytes:    len(data),
		MediaCategory: mediaCategory(mediaType),
	})
	if err != nil {
		return nil, err
	}

	var initResp transfer.MediaUploadResponse
	err = c.do(ctx, "media initialize", accessToken, http.MethodPost, "/2/media/upload/initialize",
		bytes.NewReader(initBody), "application/json", &initResp)
	if err != nil {
		return nil, err
	}
	mediaID := initResp.Data.ID
	if mediaID == "" {
		return nil, &models.PlatformError{Op: "media initialize", Body: "response carried no media id"}
	}

	total := (len(data) + mediaChunkSize - 1) / mediaChunkSize
	for i := 0; i < total; i++ {
		end := min((i+1)*mediaChunkSize, len(data))
		body, contentType, err := multipartBody([]formField{
			{"segment_index", strconv.Itoa(i)},
		}, "media", mediaType, data[i*mediaChunkSize:end])
		if err != nil {
			return nil, err
		}

		path := "/2/media/upload/" + url.PathEscape(mediaID) + "/append"
		if err := c.do(ctx, fmt.Sprintf("media append segment %d", i), accessToken, http.MethodPost, path, body, contentType, nil); err != nil {
			return nil, err
		}
		if onSegment != nil {
			onSegment(i+1, total)
		}
	}

	var finResp transfer.MediaUploadResponse
	path := "/2/media/upload/" + url.PathEscape(mediaID) + "/finalize"
	if err := c.do(ctx, "media finalize", accessToken, http.MethodPost, path, nil, "", &finResp); err != nil {
		return nil, err
	}

	info := finResp.Data.ProcessingInfo
	if info != nil && info.State == "failed" {
		return nil, processingFailure(info)
	}
	return &UploadedMedia{ID: mediaID, Pending: info != nil && info.State != "succeeded"}, nil
}

func processingFailure(info *transfer.MediaProcessingInfo) error {
	msg := "media processing failed"
	if info.Error != nil && info.Error.Message != "" {
		msg = info.Error.Message
	}
	return &models.PlatformError{Op: "media processing", Body: msg}
}

// WaitForProcessing polls upload status until the platform reports success,
// honouring its check_after_secs hint.
func (c *twitterClient) WaitForProcessing(ctx context.Context, accessToken, mediaID string) error {
	deadline := time.Now().Add(maxProcessingWait)
	path := "/2/media/upload?command=STATUS&media_id=" + url.QueryEscape(mediaID)

	for {
		var status transfer.MediaUploadResponse
		if err := c.do(ctx, "media status", accessToken, http.MethodGet, path, nil, "", &status); err != nil {
			return err
		}

		info := status.Data.ProcessingInfo
		if info == nil || info.State == "succeeded" {
			return nil
		}
		if info.State == "failed" {
			return processingFailure(info)
		}

		wait := defaultCheckAfter
		if info.CheckAfterSecs != nil {
			wait = time.Duration(*info.CheckAfterSecs) * time.Second
		}
		if time.Now().Add(wait).After(deadline) {
			return &models.PlatformError{Op: "media processing", Body: "timed out waiting for media processing"}
		}
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (c *twitterClient) CreatePost(ctx context.Context, accessToken, text, replyTo string, mediaIDs []string) (string, error) {
	reqBody := transfer.TweetRequest{Text: text}
	if replyTo != "" {
		reqBody.Reply = &transfer.TweetReply{InReplyToTweetID: replyTo}
	}
	if len(mediaIDs) > 0 {
		reqBody.Media = &transfer.TweetMedia{MediaIDs: mediaIDs}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	var resp transfer.TweetResponse
	err = c.do(ctx, "create tweet", accessToken, http.MethodPost, "/2/tweets", bytes.NewReader(payload), "application/json", &resp)
	if err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", &models.PlatformError{Op: "create tweet", Body: "response carried no tweet id"}
	}
	return resp.Data.ID, nil
}
