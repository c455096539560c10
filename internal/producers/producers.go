// Package producers provides the step producers the pipeline runner calls: source
// lookup, web research, LLM writing, screenshots, narration, assembly, subtitles,
// thumbnails and publishing.
package producers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/video-pipeline/internal/fetch"
	"github.com/jonathan/video-pipeline/internal/llm"
	"github.com/jonathan/video-pipeline/internal/media"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
)

// PageFetcher returns an extracted web page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.CachedResult, error)
}

// RenderFunc renders a page in a browser and returns its HTML.
type RenderFunc func(ctx context.Context, url string) (string, error)

// CaptureFunc takes a width x height PNG screenshot of url.
type CaptureFunc func(ctx context.Context, url string, width, height int) ([]byte, error)

// BrowserRender renders pages with headless Chrome.
func BrowserRender(timeout time.Duration) RenderFunc {
	return func(ctx context.Context, url string) (string, error) {
		return fetch.WithBrowser(ctx, url, timeout, false)
	}
}

// BrowserCapture screenshots pages with headless Chrome.
func BrowserCapture(timeout time.Duration) CaptureFunc {
	return func(ctx context.Context, url string, width, height int) ([]byte, error) {
		return fetch.Screenshot(ctx, url, width, height, timeout)
	}
}

// Config holds the collaborators shared by the standard producers. Optional
// fields disable the features that need them.
type Config struct {
	LLM      llm.Client
	Pages    PageFetcher
	Render   RenderFunc
	Capture  CaptureFunc
	Videos   VideoLookup
	Uploader Uploader
	Engine   *media.Engine
	Speech   *Speech

	OutlineBeats          int
	RelatedLinks          int
	ScreenshotConcurrency int
	ThumbnailAt           float64
	DefaultPrivacy        string
}

// Standard builds a producer for every step from cfg.
func Standard(cfg Config) pipeline.Producers {
	return pipeline.Producers{
		steps.Info:       &Info{Pages: cfg.Pages, Videos: cfg.Videos},
		steps.Transcribe: &Transcript{Pages: cfg.Pages, Render: cfg.Render, Videos: cfg.Videos, LLM: cfg.LLM},
		steps.Research:   &Research{Pages: cfg.Pages, Render: cfg.Render, Related: cfg.RelatedLinks},
		steps.Outline:    &Outline{LLM: cfg.LLM, Beats: cfg.OutlineBeats},
		steps.Script:     &Script{LLM: cfg.LLM},
		steps.Style:      &Style{},
		steps.Images:     &Screenshots{Capture: cfg.Capture, Concurrency: cfg.ScreenshotConcurrency},
		steps.Audio:      &Narration{Speech: cfg.Speech},
		steps.Video:      &Assemble{Engine: cfg.Engine},
		steps.Subtitles:  &Subtitles{Engine: cfg.Engine},
		steps.Metadata:   &Metadata{LLM: cfg.LLM},
		steps.Thumbnail:  &Thumbnail{Engine: cfg.Engine, At: cfg.ThumbnailAt},
		steps.Upload:     &Upload{Uploader: cfg.Uploader, DefaultPrivacy: cfg.DefaultPrivacy},
	}
}

// topic is the subject of the session: the requested topic, else the source title.
func topic(st *pipeline.State) string {
	if t := strings.TrimSpace(st.Input.Topic); t != "" {
		return t
	}
	if info, ok := pipeline.OutputAs[*pipeline.InfoOutput](st, steps.Info); ok {
		if info.Topic != "" {
			return info.Topic
		}
		return info.Title
	}
	return ""
}

func requireCollaborator(name string, ok bool) error {
	if !ok {
		return fmt.Errorf("no %s configured", name)
	}
	return nil
}
