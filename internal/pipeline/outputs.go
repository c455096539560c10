package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/video-pipeline/internal/media"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
)

// Output is the typed result of one step.
type Output interface {
	Step() steps.Name
	// Validate rejects empty or unusable output before it is shown for approval.
	Validate() error
	// Summary is the preview text sent to approval channels.
	Summary() string
	// Artifacts returns binary files that must be uploaded with the output.
	Artifacts() []*Asset
}

// Asset is a binary file produced by a step. Path is local to one process and is
// never persisted; URL is the durable reference.
type Asset struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Caption string `json:"caption,omitempty"`
	Path    string `json:"-"`
}

func (a *Asset) usable() bool {
	return a != nil && (a.Path != "" || a.URL != "")
}

func assetPtrs(assets []Asset) []*Asset {
	out := make([]*Asset, 0, len(assets))
	for i := range assets {
		out = append(out, &assets[i])
	}
	return out
}

func validateAssets(kind string, assets []Asset) error {
	if len(assets) == 0 {
		return fmt.Errorf("no %s produced", kind)
	}
	for i := range assets {
		if !assets[i].usable() {
			return fmt.Errorf("%s %d has no file", kind, assets[i].Index)
		}
	}
	return nil
}

func preview(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

// InfoOutput describes the source material.
type InfoOutput struct {
	Title       string  `json:"title"`
	Channel     string  `json:"channel,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	Topic       string  `json:"topic"`
	SourceURL   string  `json:"source_url,omitempty"`
}

func (o *InfoOutput) Step() steps.Name { return steps.Info }

func (o *InfoOutput) Validate() error {
	if strings.TrimSpace(o.Title) == "" && strings.TrimSpace(o.Topic) == "" {
		return errors.New("info has neither title nor topic")
	}
	return nil
}

func (o *InfoOutput) Summary() string {
	s := fmt.Sprintf("Source: %s", o.Title)
	if o.Channel != "" {
		s += fmt.Sprintf(" (%s)", o.Channel)
	}
	if o.Topic != "" {
		s += "\nTopic: " + o.Topic
	}
	return s
}

func (o *InfoOutput) Artifacts() []*Asset { return nil }

// TranscriptOutput is the source text the script is written from.
type TranscriptOutput struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

func (o *TranscriptOutput) Step() steps.Name { return steps.Transcribe }

func (o *TranscriptOutput) Validate() error {
	if strings.TrimSpace(o.Text) == "" {
		return errors.New("transcript is empty")
	}
	return nil
}

func (o *TranscriptOutput) Summary() string {
	return fmt.Sprintf("Transcript: %d words\n\n%s", len(strings.Fields(o.Text)), preview(o.Text, 400))
}

func (o *TranscriptOutput) Artifacts() []*Asset { return nil }

// Article is one research source.
type Article struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Text    string `json:"text,omitempty"`
}

// ResearchOutput lists the sources gathered for the script.
type ResearchOutput struct {
	Articles []Article `json:"articles"`
}

func (o *ResearchOutput) Step() steps.Name { return steps.Research }

func (o *ResearchOutput) Validate() error {
	if len(o.Articles) == 0 {
		return errors.New("no research articles")
	}
	return nil
}

func (o *ResearchOutput) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research: %d articles", len(o.Articles))
	for i, a := range o.Articles {
		fmt.Fprintf(&b, "\n%d. %s", i+1, a.Title)
	}
	return b.String()
}

func (o *ResearchOutput) Artifacts() []*Asset { return nil }

// OutlineOutput is the ordered list of story beats.
type OutlineOutput struct {
	Beats []string `json:"beats"`
}

func (o *OutlineOutput) Step() steps.Name { return steps.Outline }

func (o *OutlineOutput) Validate() error {
	for _, b := range o.Beats {
		if strings.TrimSpace(b) != "" {
			return nil
		}
	}
	return errors.New("outline has no beats")
}

func (o *OutlineOutput) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Outline: %d beats", len(o.Beats))
	for i, beat := range o.Beats {
		fmt.Fprintf(&b, "\n%d. %s", i+1, beat)
	}
	return b.String()
}

func (o *OutlineOutput) Artifacts() []*Asset { return nil }

// Chunk is one narrated unit of the script; it becomes one video segment.
type Chunk struct {
	Index       int    `json:"index"`
	Text        string `json:"text"`
	ImageQuery  string `json:"image_query,omitempty"`
	SourceIndex int    `json:"source_index,omitempty"`
}

// ScriptOutput is the narration, split into chunks.
type ScriptOutput struct {
	FullText string  `json:"full_text"`
	Chunks   []Chunk `json:"chunks"`
}

func (o *ScriptOutput) Step() steps.Name { return steps.Script }

func (o *ScriptOutput) Validate() error {
	if strings.TrimSpace(o.FullText) == "" {
		return errors.New("script is empty")
	}
	if len(o.Chunks) == 0 {
		return errors.New("script has zero chunks")
	}
	for _, c := range o.Chunks {
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("script chunk %d is empty", c.Index)
		}
	}
	return nil
}

func (o *ScriptOutput) Summary() string {
	return fmt.Sprintf("Script: %d chunks, %d words\n\n%s",
		len(o.Chunks), len(strings.Fields(o.FullText)), preview(o.FullText, 600))
}

func (o *ScriptOutput) Artifacts() []*Asset { return nil }

// StyleOutput selects the visual and narration style.
type StyleOutput struct {
	StyleID string `json:"style_id"`
	Name    string `json:"name"`
	Voice   string `json:"voice,omitempty"`
}

func (o *StyleOutput) Step() steps.Name { return steps.Style }

func (o *StyleOutput) Validate() error {
	if strings.TrimSpace(o.StyleID) == "" {
		return errors.New("no style selected")
	}
	return nil
}

func (o *StyleOutput) Summary() string {
	return fmt.Sprintf("Style: %s (%s)", o.Name, o.StyleID)
}

func (o *StyleOutput) Artifacts() []*Asset { return nil }

// ImagesOutput holds one still per script chunk.
type ImagesOutput struct {
	Images []Asset `json:"images"`
}

func (o *ImagesOutput) Step() steps.Name    { return steps.Images }
func (o *ImagesOutput) Validate() error     { return validateAssets("images", o.Images) }
func (o *ImagesOutput) Summary() string     { return fmt.Sprintf("Images: %d generated", len(o.Images)) }
func (o *ImagesOutput) Artifacts() []*Asset { return assetPtrs(o.Images) }

// AudioOutput holds one narration clip per script chunk.
type AudioOutput struct {
	Clips []Asset `json:"clips"`
}

func (o *AudioOutput) Step() steps.Name    { return steps.Audio }
func (o *AudioOutput) Validate() error     { return validateAssets("audio clips", o.Clips) }
func (o *AudioOutput) Summary() string     { return fmt.Sprintf("Audio: %d narration clips", len(o.Clips)) }
func (o *AudioOutput) Artifacts() []*Asset { return assetPtrs(o.Clips) }

// VideoOutput is the assembled video.
type VideoOutput struct {
	Video       Asset                   `json:"video"`
	DurationSec float64                 `json:"duration_sec"`
	Successful  int                     `json:"successful"`
	Failed      int                     `json:"failed"`
	Dropped     []int                   `json:"dropped,omitempty"`
	Segments    []media.RenderedSegment `json:"segments,omitempty"`
}

func (o *VideoOutput) Step() steps.Name { return steps.Video }

func (o *VideoOutput) Validate() error {
	if !o.Video.usable() {
		return errors.New("no video file")
	}
	if o.Successful == 0 {
		return errors.New("video has no segments")
	}
	return nil
}

func (o *VideoOutput) Summary() string {
	s := fmt.Sprintf("Video: %.1fs, %d segments", o.DurationSec, o.Successful)
	if o.Failed > 0 || len(o.Dropped) > 0 {
		s += fmt.Sprintf(" (%d failed, %d dropped)", o.Failed, len(o.Dropped))
	}
	return s
}

func (o *VideoOutput) Artifacts() []*Asset { return []*Asset{&o.Video} }

// SubtitlesOutput holds the SRT and, when burned in, the subtitled video.
type SubtitlesOutput struct {
	SRT    string `json:"srt"`
	Cues   int    `json:"cues"`
	File   Asset  `json:"file"`
	Burned *Asset `json:"burned,omitempty"`
}

func (o *SubtitlesOutput) Step() steps.Name { return steps.Subtitles }

func (o *SubtitlesOutput) Validate() error {
	if strings.TrimSpace(o.SRT) == "" || o.Cues == 0 {
		return errors.New("subtitles are empty")
	}
	return nil
}

func (o *SubtitlesOutput) Summary() string {
	s := fmt.Sprintf("Subtitles: %d cues", o.Cues)
	if o.Burned != nil {
		s += " (burned into video)"
	}
	return s + "\n\n" + preview(o.SRT, 300)
}

func (o *SubtitlesOutput) Artifacts() []*Asset {
	out := []*Asset{}
	if o.File.usable() {
		out = append(out, &o.File)
	}
	if o.Burned != nil {
		out = append(out, o.Burned)
	}
	return out
}

// MaxTitleLength is the longest title accepted by the publishing platform.
const MaxTitleLength = 100

// MetadataOutput is the publishing title, description, and tags.
type MetadataOutput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (o *MetadataOutput) Step() steps.Name { return steps.Metadata }

func (o *MetadataOutput) Validate() error {
	title := strings.TrimSpace(o.Title)
	if title == "" {
		return errors.New("metadata has no title")
	}
	if len([]rune(title)) > MaxTitleLength {
		return fmt.Errorf("title exceeds %d characters", MaxTitleLength)
	}
	return nil
}

func (o *MetadataOutput) Summary() string {
	return fmt.Sprintf("Title: %s\nTags: %s\n\n%s", o.Title, strings.Join(o.Tags, ", "), preview(o.Description, 400))
}

func (o *MetadataOutput) Artifacts() []*Asset { return nil }

// ThumbnailOutput is the cover image.
type ThumbnailOutput struct {
	Image Asset `json:"image"`
}

func (o *ThumbnailOutput) Step() steps.Name { return steps.Thumbnail }

func (o *ThumbnailOutput) Validate() error {
	if !o.Image.usable() {
		return errors.New("no thumbnail file")
	}
	return nil
}

func (o *ThumbnailOutput) Summary() string     { return "Thumbnail ready" }
func (o *ThumbnailOutput) Artifacts() []*Asset { return []*Asset{&o.Image} }

// UploadOutput records the published video.
type UploadOutput struct {
	VideoID string `json:"video_id"`
	URL     string `json:"url"`
	Privacy string `json:"privacy,omitempty"`
}

func (o *UploadOutput) Step() steps.Name { return steps.Upload }

func (o *UploadOutput) Validate() error {
	if o.VideoID == "" {
		return errors.New("upload returned no video id")
	}
	return nil
}

func (o *UploadOutput) Summary() string     { return fmt.Sprintf("Uploaded: %s (%s)", o.URL, o.Privacy) }
func (o *UploadOutput) Artifacts() []*Asset { return nil }

// newOutput returns an empty output for a step kind.
func newOutput(kind steps.Name) (Output, error) {
	switch kind {
	case steps.Info:
		return &InfoOutput{}, nil
	case steps.Transcribe:
		return &TranscriptOutput{}, nil
	case steps.Research:
		return &ResearchOutput{}, nil
	case steps.Outline:
		return &OutlineOutput{}, nil
	case steps.Script:
		return &ScriptOutput{}, nil
	case steps.Style:
		return &StyleOutput{}, nil
	case steps.Images:
		return &ImagesOutput{}, nil
	case steps.Audio:
		return &AudioOutput{}, nil
	case steps.Video:
		return &VideoOutput{}, nil
	case steps.Subtitles:
		return &SubtitlesOutput{}, nil
	case steps.Metadata:
		return &MetadataOutput{}, nil
	case steps.Thumbnail:
		return &ThumbnailOutput{}, nil
	case steps.Upload:
		return &UploadOutput{}, nil
	default:
		return nil, &steps.UnknownStepError{Name: string(kind)}
	}
}

type envelope struct {
	Kind    steps.Name      `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeOutput serializes an output as {"kind": step, "payload": {...}}.
func EncodeOutput(o Output) (json.RawMessage, error) {
	payload, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s output: %w", o.Step(), err)
	}
	data, err := json.Marshal(envelope{Kind: o.Step(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", o.Step(), err)
	}
	return data, nil
}

// DecodeOutput parses an envelope into its concrete output type.
func DecodeOutput(data []byte) (Output, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse output envelope: %w", err)
	}
	o, err := newOutput(env.Kind)
	if err != nil {
		return nil, err
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, o); err != nil {
			return nil, fmt.Errorf("failed to parse %s output: %w", env.Kind, err)
		}
	}
	return o, nil
}

// DecodeOutputAs decodes raw JSON (not an envelope) into the output for kind.
func DecodeOutputAs(kind steps.Name, payload []byte) (Output, error) {
	o, err := newOutput(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, o); err != nil {
		return nil, fmt.Errorf("failed to parse %s output: %w", kind, err)
	}
	return o, nil
}
