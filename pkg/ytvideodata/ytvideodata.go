package ytvideodata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrVideoNotFound      = errors.New("video not found")
	ErrVideoNotEmbeddable = errors.New("video is not embeddable")
	ErrSearchDisabled     = errors.New("search is disabled: no api key configured")
)

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type Client struct {
	httpClient *http.Client
	apiKey     string
}

// NewClient returns a metadata client. apiKey is only required for Search;
// an empty key disables search without affecting Get.
func NewClient(apiKey string) *Client {
	return &Client{
		// metadata lookup is best-effort and must never hang a caller on a
		// dead network
		httpClient: &http.Client{Timeout: 5 * time.Second},
		apiKey:     apiKey,
	}
}

// Get resolves title, author and thumbnail for a video id. It tries the
// oEmbed endpoint first and falls back to scraping the watch page for
// non-embeddable videos.
func (c *Client) Get(ctx context.Context, videoId string) (*VideoData, error) {
	videoData, err := c.getWithEmbed(ctx, videoId)
	if err != nil {
		if !errors.Is(err, ErrVideoNotEmbeddable) {
			return nil, fmt.Errorf("failed to get video data with embed: %w", err)
		}

		videoData, err = c.getFromPage(ctx, videoId)
		if err != nil {
			return nil, fmt.Errorf("failed to get video data from page: %w", err)
		}
	}

	return videoData, nil
}
