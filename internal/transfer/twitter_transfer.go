package transfer

type MediaInitRequest struct {
	MediaType     string `json:"media_type"`
	TotalBytes    int    `json:"total_bytes"`
	MediaCategory string `json:"media_category"`
}

type MediaUploadResponse struct {
	Data MediaUploadData `json:"data"`
}

type MediaUploadData struct {
	ID               string               `json:"id"`
	MediaKey         string               `json:"media_key,omitempty"`
	ExpiresAfterSecs int64                `json:"expires_after_secs,omitempty"`
	ProcessingInfo   *MediaProcessingInfo `json:"processing_info,omitempty"`
}

type MediaProcessingInfo struct {
	State           string          `json:"state"` // pending, in_progress, succeeded, failed
	ProgressPercent int             `json:"progress_percent,omitempty"`
	CheckAfterSecs  *int            `json:"check_after_secs,omitempty"`
	Error           *MediaStatusErr `json:"error,omitempty"`
}

type MediaStatusErr struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type TweetRequest struct {
	Text  string      `json:"text"`
	Reply *TweetReply `json:"reply,omitempty"`
	Media *TweetMedia `json:"media,omitempty"`
}

type TweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type TweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type TweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}
