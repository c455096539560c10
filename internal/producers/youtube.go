package producers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// VideoDetails is the subset of a published video's metadata the pipeline uses.
type VideoDetails struct {
	ID          string
	Title       string
	Channel     string
	Description string
	Tags        []string
	DurationSec float64
}

// VideoLookup fetches details of a published video.
type VideoLookup interface {
	LookupVideo(ctx context.Context, videoID string) (*VideoDetails, error)
}

// ErrVideoNotFound is returned when the platform has no video with the id.
var ErrVideoNotFound = errors.New("video not found")

var (
	videoIDPattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	videoURLPattern = regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/shorts/)([a-zA-Z0-9_-]{11})`)
	isoDuration     = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)
)

// YouTubeVideoID extracts the video id from a watch, short, embed or youtu.be URL,
// or accepts a bare id.
func YouTubeVideoID(s string) (string, bool) {
	if videoIDPattern.MatchString(s) {
		return s, true
	}
	if m := videoURLPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

// ParseISODuration converts an ISO 8601 duration such as PT12M34S to seconds.
func ParseISODuration(s string) (float64, error) {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var total float64
	for i, unit := range []float64{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		total += v * unit
	}
	return total, nil
}

// YouTubeVideos looks up videos with the YouTube Data API.
type YouTubeVideos struct {
	svc *youtube.Service
}

// NewYouTubeVideos creates an API-key authenticated lookup client.
func NewYouTubeVideos(ctx context.Context, apiKey string) (*YouTubeVideos, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("YouTube API key is required")
	}
	svc, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return &YouTubeVideos{svc: svc}, nil
}

// LookupVideo returns the snippet and duration of a video.
func (y *YouTubeVideos) LookupVideo(ctx context.Context, videoID string) (*VideoDetails, error) {
	resp, err := y.svc.Videos.List([]string{"snippet", "contentDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list video %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}

	item := resp.Items[0]
	details := &VideoDetails{ID: item.Id}
	if item.Snippet != nil {
		details.Title = item.Snippet.Title
		details.Channel = item.Snippet.ChannelTitle
		details.Description = item.Snippet.Description
		details.Tags = item.Snippet.Tags
	}
	if item.ContentDetails != nil && item.ContentDetails.Duration != "" {
		if d, err := ParseISODuration(item.ContentDetails.Duration); err == nil {
			details.DurationSec = d
		}
	}
	return details, nil
}

// UploadRequest is a finished video and its publishing metadata.
type UploadRequest struct {
	VideoPath     string
	ThumbnailPath string
	Title         string
	Description   string
	Tags          []string
	Privacy       string
}

// Uploader publishes a video and returns its platform id.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (string, error)
}

// OAuthCredentials authorize uploads with a long-lived refresh token.
type OAuthCredentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// CredentialsFromEnv reads YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET and
// YOUTUBE_REFRESH_TOKEN.
func CredentialsFromEnv() (OAuthCredentials, error) {
	c := OAuthCredentials{
		ClientID:     os.Getenv("YOUTUBE_CLIENT_ID"),
		ClientSecret: os.Getenv("YOUTUBE_CLIENT_SECRET"),
		RefreshToken: os.Getenv("YOUTUBE_REFRESH_TOKEN"),
	}
	if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
		return c, fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set")
	}
	return c, nil
}

// YouTubeUploader uploads with the YouTube Data API.
type YouTubeUploader struct {
	svc        *youtube.Service
	CategoryID string
}

// DefaultCategoryID is the "People & Blogs" category.
const DefaultCategoryID = "22"

// NewYouTubeUploader creates an uploader whose token source refreshes from creds.
func NewYouTubeUploader(ctx context.Context, creds OAuthCredentials) (*YouTubeUploader, error) {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	// Expired so the first call refreshes.
	token := &oauth2.Token{
		RefreshToken: creds.RefreshToken,
		Expiry:       time.Now().Add(-time.Hour),
	}
	client := oauth2.NewClient(ctx, conf.TokenSource(ctx, token))

	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return &YouTubeUploader{svc: svc, CategoryID: DefaultCategoryID}, nil
}

// Upload inserts the video, then sets its thumbnail. A thumbnail failure is
// logged; the video is already live.
func (u *YouTubeUploader) Upload(ctx context.Context, req UploadRequest) (string, error) {
	f, err := os.Open(req.VideoPath)
	if err != nil {
		return "", fmt.Errorf("failed to open video file: %w", err)
	}
	defer f.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
			CategoryId:  u.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           req.Privacy,
			SelfDeclaredMadeForKids: false,
		},
	}

	log.Printf("[upload] Uploading %q (%s)", req.Title, req.Privacy)
	uploaded, err := u.svc.Videos.Insert([]string{"snippet", "status"}, video).Media(f).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload video: %w", err)
	}

	if req.ThumbnailPath != "" {
		if err := u.setThumbnail(ctx, uploaded.Id, req.ThumbnailPath); err != nil {
			log.Printf("[upload] thumbnail for %s not set: %v", uploaded.Id, err)
		}
	}
	return uploaded.Id, nil
}

func (u *YouTubeUploader) setThumbnail(ctx context.Context, videoID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = u.svc.Thumbnails.Set(videoID).Media(f).Context(ctx).Do()
	return err
}

// WatchURL returns the public page of a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
