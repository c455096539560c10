package producers

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/jonathan/video-pipeline/internal/media"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
)

// DefaultThumbnailAt is the video position, in seconds, used for the thumbnail.
const DefaultThumbnailAt = 3.0

// Assemble builds one segment per narrated chunk and renders the video. A chunk
// without narration is left out; one without an image renders a placeholder.
type Assemble struct {
	Engine *media.Engine
}

// Segments pairs chunks with their narration and visuals by chunk index.
func Segments(script *pipeline.ScriptOutput, images *pipeline.ImagesOutput, audio *pipeline.AudioOutput) []media.Segment {
	clips := make(map[int]string)
	for _, a := range audio.Clips {
		clips[a.Index] = a.Path
	}
	visuals := make(map[int]string)
	if images != nil {
		for _, img := range images.Images {
			visuals[img.Index] = img.Path
		}
	}

	var segs []media.Segment
	for _, c := range script.Chunks {
		audioPath, ok := clips[c.Index]
		if !ok {
			continue
		}
		seg := media.Segment{Index: c.Index, Text: c.Text, AudioPath: audioPath}
		if v := visuals[c.Index]; IsClip(v) {
			seg.ClipPath = v
		} else {
			seg.ImagePath = v
		}
		segs = append(segs, seg)
	}
	return segs
}

func (p *Assemble) Produce(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
	if err := requireCollaborator("media engine", p.Engine != nil); err != nil {
		return nil, err
	}
	script, err := pipeline.Require[*pipeline.ScriptOutput](st, steps.Script)
	if err != nil {
		return nil, err
	}
	audio, err := pipeline.Require[*pipeline.AudioOutput](st, steps.Audio)
	if err != nil {
		return nil, err
	}
	images, _ := pipeline.OutputAs[*pipeline.ImagesOutput](st, steps.Images)

	segs := Segments(script, images, audio)
	if len(segs) == 0 {
		return nil, fmt.Errorf("no chunk has narration")
	}

	dir, err := st.StepDir(steps.Video)
	if err != nil {
		return nil, err
	}
	engine := *p.Engine
	engine.Options.WorkDir = filepath.Join(dir, "segments")
	engine.Options.Progress = func(done, total int) {
		log.Printf("[video %s] rendered %d/%d segments", st.JobID, done, total)
	}
	engine.Options.ShouldStop = st.CancelRequested

	outPath := filepath.Join(dir, "video.mp4")
	res, err := engine.Assemble(ctx, segs, outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble video: %w", err)
	}
	return &pipeline.VideoOutput{
		Video:       pipeline.Asset{Name: "video.mp4", Path: res.OutputPath},
		DurationSec: res.Duration,
		Successful:  res.Successful,
		Failed:      res.Failed,
		Dropped:     res.Dropped,
		Segments:    res.Segments,
	}, nil
}

// Subtitles writes one cue per rendered segment and, when requested, burns them
// into a copy of the video.
type Subtitles struct {
	Engine *media.Engine
}

func (p *Subtitles) Produce(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
	video, err := pipeline.Require[*pipeline.VideoOutput](st, steps.Video)
	if err != nil {
		return nil, err
	}
	cues := media.CuesFromSegments(video.Segments)
	if len(cues) == 0 {
		return nil, fmt.Errorf("video has no narrated segments to subtitle")
	}

	dir, err := st.StepDir(steps.Subtitles)
	if err != nil {
		return nil, err
	}
	srtPath := filepath.Join(dir, "subtitles.srt")
	if err := media.WriteSRT(srtPath, cues); err != nil {
		return nil, err
	}
	out := &pipeline.SubtitlesOutput{
		SRT:  media.RenderSRT(cues),
		Cues: len(cues),
		File: pipeline.Asset{Name: "subtitles.srt", Path: srtPath},
	}

	if st.Input.BurnSubtitles {
		if err := requireCollaborator("media engine", p.Engine != nil); err != nil {
			return nil, err
		}
		burned := filepath.Join(dir, "video_subtitled.mp4")
		if err := p.Engine.BurnSubtitles(ctx, video.Video.Path, srtPath, burned); err != nil {
			return nil, err
		}
		out.Burned = &pipeline.Asset{Name: "video_subtitled.mp4", Path: burned}
	}
	return out, nil
}

// Thumbnail grabs a frame of the assembled video.
type Thumbnail struct {
	Engine *media.Engine
	At     float64
}

func (p *Thumbnail) Produce(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
	if err := requireCollaborator("media engine", p.Engine != nil); err != nil {
		return nil, err
	}
	video, err := pipeline.Require[*pipeline.VideoOutput](st, steps.Video)
	if err != nil {
		return nil, err
	}
	dir, err := st.StepDir(steps.Thumbnail)
	if err != nil {
		return nil, err
	}
	at := p.At
	if at <= 0 {
		at = DefaultThumbnailAt
	}
	path := filepath.Join(dir, "thumbnail.jpg")
	if err := p.Engine.ExtractFrame(ctx, video.Video.Path, at, path); err != nil {
		return nil, err
	}
	return &pipeline.ThumbnailOutput{Image: pipeline.Asset{Name: "thumbnail.jpg", Path: path}}, nil
}

// Upload publishes the final video, preferring the subtitled copy.
type Upload struct {
	Uploader       Uploader
	DefaultPrivacy string
}

func (p *Upload) Produce(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
	if err := requireCollaborator("uploader", p.Uploader != nil); err != nil {
		return nil, err
	}
	meta, err := pipeline.Require[*pipeline.MetadataOutput](st, steps.Metadata)
	if err != nil {
		return nil, err
	}
	video, err := pipeline.Require[*pipeline.VideoOutput](st, steps.Video)
	if err != nil {
		return nil, err
	}

	req := UploadRequest{
		VideoPath:   video.Video.Path,
		Title:       meta.Title,
		Description: meta.Description,
		Tags:        meta.Tags,
		Privacy:     st.Input.Privacy,
	}
	if sub, ok := pipeline.OutputAs[*pipeline.SubtitlesOutput](st, steps.Subtitles); ok && sub.Burned != nil && sub.Burned.Path != "" {
		req.VideoPath = sub.Burned.Path
	}
	if thumb, ok := pipeline.OutputAs[*pipeline.ThumbnailOutput](st, steps.Thumbnail); ok {
		req.ThumbnailPath = thumb.Image.Path
	}
	if req.Privacy == "" {
		req.Privacy = p.DefaultPrivacy
	}
	if req.Privacy == "" {
		req.Privacy = "private"
	}

	id, err := p.Uploader.Upload(ctx, req)
	if err != nil {
		return nil, err
	}
	return &pipeline.UploadOutput{VideoID: id, URL: WatchURL(id), Privacy: req.Privacy}, nil
}
