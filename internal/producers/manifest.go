package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonathan/video-pipeline/internal/media"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/video-pipeline/internal/schemas"
)

// Manifest is an authored video: narration with its audio and visuals, plus any
// step content that should not be generated. Relative paths resolve against the
// manifest's directory.
type Manifest struct {
	Topic      string             `json:"topic,omitempty"`
	Title      string             `json:"title,omitempty"`
	SourceURL  string             `json:"source_url,omitempty"`
	Style      string             `json:"style,omitempty"`
	Privacy    string             `json:"privacy,omitempty"`
	Transcript string             `json:"transcript,omitempty"`
	Articles   []pipeline.Article `json:"articles,omitempty"`
	Outline    []string           `json:"outline,omitempty"`
	Segments   []ManifestSegment  `json:"segments"`
	Metadata   *ManifestMetadata  `json:"metadata,omitempty"`
	Thumbnail  string             `json:"thumbnail,omitempty"`

	dir string
}

// ManifestSegment is one narrated chunk.
type ManifestSegment struct {
	Text       string `json:"text"`
	Audio      string `json:"audio"`
	Image      string `json:"image,omitempty"`
	Clip       string `json:"clip,omitempty"`
	ImageQuery string `json:"image_query,omitempty"`
}

// ManifestMetadata is authored publishing metadata.
type ManifestMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// LoadManifest reads and schema-validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	if err := schemas.ValidateManifest(data); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	m.dir = filepath.Dir(abs)
	return &m, nil
}

// Input returns the session input a manifest run starts with.
func (m *Manifest) Input(path string) pipeline.Input {
	t := m.Topic
	if t == "" {
		t = m.Title
	}
	return pipeline.Input{
		Topic:        t,
		SourceURL:    m.SourceURL,
		Style:        m.Style,
		Privacy:      m.Privacy,
		ManifestPath: path,
	}
}

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.dir == "" {
		return p
	}
	return filepath.Join(m.dir, p)
}

// Apply replaces the producers of every step the manifest supplies content for.
// Script and audio always come from the manifest.
func (m *Manifest) Apply(p pipeline.Producers) pipeline.Producers {
	out := make(pipeline.Producers, len(p))
	for k, v := range p {
		out[k] = v
	}
	fixed := func(o pipeline.Output) pipeline.Producer {
		return pipeline.ProducerFunc(func(context.Context, *pipeline.State) (pipeline.Output, error) { return o, nil })
	}

	out[steps.Info] = fixed(&pipeline.InfoOutput{Title: m.title(), Topic: m.Input("").Topic, SourceURL: m.SourceURL})
	if strings.TrimSpace(m.Transcript) != "" {
		out[steps.Transcribe] = fixed(&pipeline.TranscriptOutput{Text: m.Transcript})
	} else if m.SourceURL == "" {
		out[steps.Transcribe] = fixed(&pipeline.TranscriptOutput{Text: m.narration()})
	}
	if len(m.Articles) > 0 {
		out[steps.Research] = fixed(&pipeline.ResearchOutput{Articles: m.Articles})
	}
	if len(m.Outline) > 0 {
		out[steps.Outline] = fixed(&pipeline.OutlineOutput{Beats: m.Outline})
	}
	out[steps.Script] = pipeline.ProducerFunc(func(context.Context, *pipeline.State) (pipeline.Output, error) {
		return m.script(), nil
	})
	if m.hasVisuals() {
		out[steps.Images] = pipeline.ProducerFunc(func(context.Context, *pipeline.State) (pipeline.Output, error) {
			return m.images(), nil
		})
	}
	out[steps.Audio] = pipeline.ProducerFunc(func(context.Context, *pipeline.State) (pipeline.Output, error) {
		return m.audio(), nil
	})
	if m.Metadata != nil {
		out[steps.Metadata] = fixed(&pipeline.MetadataOutput{
			Title:       m.Metadata.Title,
			Description: m.Metadata.Description,
			Tags:        NormalizeTags(m.Metadata.Tags, maxTags),
		})
	}
	if m.Thumbnail != "" {
		out[steps.Thumbnail] = pipeline.ProducerFunc(func(context.Context, *pipeline.State) (pipeline.Output, error) {
			path := m.resolve(m.Thumbnail)
			return &pipeline.ThumbnailOutput{Image: pipeline.Asset{Name: filepath.Base(path), Path: path}}, nil
		})
	}
	return out
}

// MediaSegments returns the manifest's narration as engine segments with
// resolved paths.
func (m *Manifest) MediaSegments() []media.Segment {
	out := make([]media.Segment, len(m.Segments))
	for i, s := range m.Segments {
		out[i] = media.Segment{
			Index:     i,
			Text:      strings.TrimSpace(s.Text),
			AudioPath: m.resolve(s.Audio),
			ImagePath: m.resolve(s.Image),
			ClipPath:  m.resolve(s.Clip),
		}
	}
	return out
}

// MissingFiles lists the referenced media files that do not exist, resolved
// against the manifest's directory.
func (m *Manifest) MissingFiles() []string {
	var missing []string
	check := func(p string) {
		if p == "" {
			return
		}
		p = m.resolve(p)
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	for _, s := range m.Segments {
		check(s.Audio)
		check(s.Image)
		check(s.Clip)
	}
	check(m.Thumbnail)
	return missing
}

func (m *Manifest) title() string {
	if m.Title != "" {
		return m.Title
	}
	return m.Topic
}

func (m *Manifest) narration() string {
	texts := make([]string, len(m.Segments))
	for i, s := range m.Segments {
		texts[i] = strings.TrimSpace(s.Text)
	}
	return strings.Join(texts, " ")
}

func (m *Manifest) hasVisuals() bool {
	for _, s := range m.Segments {
		if s.Image != "" || s.Clip != "" {
			return true
		}
	}
	return false
}

func (m *Manifest) script() *pipeline.ScriptOutput {
	out := &pipeline.ScriptOutput{FullText: m.narration()}
	for i, s := range m.Segments {
		out.Chunks = append(out.Chunks, pipeline.Chunk{Index: i, Text: strings.TrimSpace(s.Text), ImageQuery: s.ImageQuery})
	}
	return out
}

// images builds new assets on every call.
func (m *Manifest) images() *pipeline.ImagesOutput {
	out := &pipeline.ImagesOutput{}
	for i, s := range m.Segments {
		p := s.Clip
		if p == "" {
			p = s.Image
		}
		if p == "" {
			continue
		}
		p = m.resolve(p)
		out.Images = append(out.Images, pipeline.Asset{Index: i, Name: fmt.Sprintf("visual_%03d%s", i, filepath.Ext(p)), Path: p})
	}
	return out
}

func (m *Manifest) audio() *pipeline.AudioOutput {
	out := &pipeline.AudioOutput{}
	for i, s := range m.Segments {
		p := m.resolve(s.Audio)
		out.Clips = append(out.Clips, pipeline.Asset{Index: i, Name: fmt.Sprintf("audio_%03d%s", i, filepath.Ext(p)), Path: p})
	}
	return out
}

// WithManifests wraps base so sessions started from a manifest use the
// manifest's content. Sessions without a manifest path run base unchanged.
func WithManifests(base pipeline.Producers) pipeline.Producers {
	out := make(pipeline.Producers, len(base))
	for step := range base {
		step := step
		out[step] = pipeline.ProducerFunc(func(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
			if st.Input.ManifestPath == "" {
				return base[step].Produce(ctx, st)
			}
			m, err := LoadManifest(st.Input.ManifestPath)
			if err != nil {
				return nil, err
			}
			return m.Apply(base)[step].Produce(ctx, st)
		})
	}
	return out
}
