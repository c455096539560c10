package producers

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/video-pipeline/internal/fsutil"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
)

const (
	screenshotWidth  = 1920
	screenshotHeight = 1080
)

// Screenshots captures one still per script chunk from the research article the
// chunk cites. Each distinct URL is captured once. Chunks whose capture fails get
// no image and fall back to a placeholder at assembly.
type Screenshots struct {
	Capture     CaptureFunc
	Concurrency int
}

func (p *Screenshots) Produce(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
	if err := requireCollaborator("screenshot capture", p.Capture != nil); err != nil {
		return nil, err
	}
	script, err := pipeline.Require[*pipeline.ScriptOutput](st, steps.Script)
	if err != nil {
		return nil, err
	}
	research, err := pipeline.Require[*pipeline.ResearchOutput](st, steps.Research)
	if err != nil {
		return nil, err
	}
	dir, err := st.StepDir(steps.Images)
	if err != nil {
		return nil, err
	}

	chunkURL := make([]string, len(script.Chunks))
	var urls []string
	seen := make(map[string]bool)
	for i, c := range script.Chunks {
		u := sourceURL(research.Articles, c, i)
		chunkURL[i] = u
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no research article has a URL to capture")
	}

	limit := p.Concurrency
	if limit <= 0 {
		limit = 2
	}
	var (
		mu       sync.Mutex
		captured = make(map[string][]byte)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, u := range urls {
		g.Go(func() error {
			data, err := p.Capture(gctx, u, screenshotWidth, screenshotHeight)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("[images] capture of %s failed: %v", u, err)
				return nil
			}
			mu.Lock()
			captured[u] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	style := st.Style()
	out := &pipeline.ImagesOutput{}
	for i, c := range script.Chunks {
		data, ok := captured[chunkURL[i]]
		if !ok {
			continue
		}
		name := fmt.Sprintf("image_%03d.png", c.Index)
		path := filepath.Join(dir, name)
		if err := fsutil.WriteFile(path, data); err != nil {
			return nil, fmt.Errorf("failed to save screenshot: %w", err)
		}
		out.Images = append(out.Images, pipeline.Asset{
			Index:   c.Index,
			Name:    name,
			Caption: ImagePrompt(style, c.ImageQuery),
			Path:    path,
		})
	}
	log.Printf("[images] %d images for %d chunks from %d of %d pages", len(out.Images), len(script.Chunks), len(captured), len(urls))
	return out, nil
}

// sourceURL is the URL of the article a chunk cites (1-based), else the articles
// taken in rotation.
func sourceURL(articles []pipeline.Article, c pipeline.Chunk, i int) string {
	if len(articles) == 0 {
		return ""
	}
	if c.SourceIndex >= 1 && c.SourceIndex <= len(articles) && articles[c.SourceIndex-1].URL != "" {
		return articles[c.SourceIndex-1].URL
	}
	for n := 0; n < len(articles); n++ {
		if u := articles[(i+n)%len(articles)].URL; u != "" {
			return u
		}
	}
	return ""
}

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".aac": true, ".ogg": true, ".flac": true,
}

var clipExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".webm": true, ".mkv": true,
}

// IsClip reports whether path names a video clip rather than a still.
func IsClip(path string) bool {
	return clipExtensions[strings.ToLower(filepath.Ext(path))]
}

// AudioDir pairs pre-recorded narration files with script chunks in file name
// order.
type AudioDir struct{}

func (p *AudioDir) Produce(_ context.Context, st *pipeline.State) (pipeline.Output, error) {
	if st.Input.AudioDir == "" {
		return nil, fmt.Errorf("no narration source: set an audio dir, a manifest or a tts command")
	}
	script, err := pipeline.Require[*pipeline.ScriptOutput](st, steps.Script)
	if err != nil {
		return nil, err
	}
	files, err := ListAudio(st.Input.AudioDir)
	if err != nil {
		return nil, err
	}
	if len(files) != len(script.Chunks) {
		log.Printf("[audio] %d narration files for %d chunks; pairing the first %d",
			len(files), len(script.Chunks), min(len(files), len(script.Chunks)))
	}

	out := &pipeline.AudioOutput{}
	for i, c := range script.Chunks {
		if i >= len(files) {
			break
		}
		out.Clips = append(out.Clips, pipeline.Asset{Index: c.Index, Name: filepath.Base(files[i]), Path: files[i]})
	}
	return out, nil
}

// ListAudio returns the audio files in dir sorted by name.
func ListAudio(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
