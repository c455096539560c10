// Package media turns ordered narration segments into a single video with ffmpeg.
package media

import "time"

// Segment is one narrated unit of the final video.
type Segment struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	AudioPath string `json:"audio_path"`
	ImagePath string `json:"image_path,omitempty"`
	ClipPath  string `json:"clip_path,omitempty"`
}

// Visual names the source used to render a segment's picture.
type Visual string

const (
	VisualClip        Visual = "clip"
	VisualImage       Visual = "image"
	VisualPlaceholder Visual = "placeholder"
)

// RenderedSegment describes a segment that made it into the output.
type RenderedSegment struct {
	Index    int     `json:"index"`
	Duration float64 `json:"duration"`
	Visual   Visual  `json:"visual"`
	Text     string  `json:"text"`
}

// AssemblyResult summarizes an Assemble run.
type AssemblyResult struct {
	OutputPath string            `json:"output_path"`
	Duration   float64           `json:"duration"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Dropped    []int             `json:"dropped"`
	Errors     []SegmentError    `json:"errors,omitempty"`
	Segments   []RenderedSegment `json:"segments"`
}

// Options controls output format and assembly behavior.
type Options struct {
	Width  int
	Height int
	FPS    int

	// Motion
	Zoom       float64
	ZoomFPS    int
	PanSeconds float64

	Preset       string
	CRF          int
	AudioBitrate string

	PlaceholderColor    string
	PlaceholderFontSize int
	PlaceholderMaxChars int

	Concurrency    int
	ProgressEvery  int
	CommandTimeout time.Duration

	// WorkDir holds per-segment files; a temp dir is created when empty.
	WorkDir     string
	KeepWorkDir bool

	ShouldStop func() bool
	Progress   func(done, total int)
}

// DefaultOptions returns the canonical 1080p30 output settings.
func DefaultOptions() Options {
	return Options{
		Width:               1920,
		Height:              1080,
		FPS:                 30,
		Zoom:                1.15,
		ZoomFPS:             60,
		PanSeconds:          8,
		Preset:              "veryfast",
		CRF:                 23,
		AudioBitrate:        "192k",
		PlaceholderColor:    "0x1a1a2e",
		PlaceholderFontSize: 32,
		PlaceholderMaxChars: 30,
		Concurrency:         1,
		ProgressEvery:       20,
		CommandTimeout:      10 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = d.Width, d.Height
	}
	if o.FPS <= 0 {
		o.FPS = d.FPS
	}
	if o.Zoom <= 1 {
		o.Zoom = d.Zoom
	}
	if o.ZoomFPS <= 0 {
		o.ZoomFPS = d.ZoomFPS
	}
	if o.PanSeconds <= 0 {
		o.PanSeconds = d.PanSeconds
	}
	if o.Preset == "" {
		o.Preset = d.Preset
	}
	if o.CRF <= 0 {
		o.CRF = d.CRF
	}
	if o.AudioBitrate == "" {
		o.AudioBitrate = d.AudioBitrate
	}
	if o.PlaceholderColor == "" {
		o.PlaceholderColor = d.PlaceholderColor
	}
	if o.PlaceholderFontSize <= 0 {
		o.PlaceholderFontSize = d.PlaceholderFontSize
	}
	if o.PlaceholderMaxChars <= 0 {
		o.PlaceholderMaxChars = d.PlaceholderMaxChars
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = d.ProgressEvery
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = d.CommandTimeout
	}
	return o
}
