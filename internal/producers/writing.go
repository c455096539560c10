package producers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jonathan/video-pipeline/internal/fetch"
	"github.com/jonathan/video-pipeline/internal/llm"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/video-pipeline/internal/prompts"
)

const (
	// DefaultOutlineBeats is the outline length when none is configured.
	DefaultOutlineBeats = 8
	sourcePromptChars   = 6000
	scriptPromptChars   = 8000
	maxTags             = 15
)

// Outline asks the LLM for the story beats.
type Outline struct {
	LLM   llm.Client
	Beats int
}

func (p *Outline) Produce(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
	if err := requireCollaborator("LLM client", p.LLM != nil); err != nil {
		return nil, err
	}
	tr, err := pipeline.Require[*pipeline.TranscriptOutput](st, steps.Transcribe)
	if err != nil {
		return nil, err
	}
	beats := p.Beats
	if beats <= 0 {
		beats = DefaultOutlineBeats
	}

	task, err := prompts.Render(prompts.VideoFile, "outline", map[string]string{
		"Topic":  topic(st),
		"Source": fetch.Snippet(tr.Text, sourcePromptChars),
		"Beats":  strconv.Itoa(beats),
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Beats []string `json:"beats"`
	}
	if err := llm.GenerateInto(ctx, p.LLM, llm.BuildPrompt(task, llm.OutlineSchema()), llm.TierStandard, &resp); err != nil {
		return nil, err
	}

	out := &pipeline.OutlineOutput{}
	for _, b := range resp.Beats {
		if b = strings.TrimSpace(b); b != "" {
			out.Beats = append(out.Beats, b)
		}
	}
	return out, nil
}

// Script asks the LLM for the narration, split into chunks.
type Script struct {
	LLM llm.Client
}

type scriptResponse struct {
	FullText string `json:"full_text"`
	Chunks   []struct {
		Text        string `json:"text"`
		ImageQuery  string `json:"image_query"`
		SourceIndex int    `json:"source_index"`
	} `json:"chunks"`
}

func (p *Script) Produce(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
	if err := requireCollaborator("LLM client", p.LLM != nil); err != nil {
		return nil, err
	}
	outline, err := pipeline.Require[*pipeline.OutlineOutput](st, steps.Outline)
	if err != nil {
		return nil, err
	}

	var research strings.Builder
	if r, ok := pipeline.OutputAs[*pipeline.ResearchOutput](st, steps.Research); ok {
		for i, a := range r.Articles {
			fmt.Fprintf(&research, "[%d] %s\n%s\n\n", i+1, a.Title, a.Text)
		}
	}

	task, err := prompts.Render(prompts.VideoFile, "script", map[string]string{
		"Title":    topic(st),
		"Outline":  numbered(outline.Beats),
		"Research": fetch.Snippet(research.String(), scriptPromptChars),
	})
	if err != nil {
		return nil, err
	}

	var resp scriptResponse
	if err := llm.GenerateInto(ctx, p.LLM, llm.BuildPrompt(task, llm.ScriptSchema()), llm.TierAdvanced, &resp); err != nil {
		return nil, err
	}
	return resp.output(), nil
}

func (r scriptResponse) output() *pipeline.ScriptOutput {
	out := &pipeline.ScriptOutput{FullText: strings.TrimSpace(r.FullText)}
	var texts []string
	for _, c := range r.Chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		out.Chunks = append(out.Chunks, pipeline.Chunk{
			Index:       len(out.Chunks),
			Text:        text,
			ImageQuery:  strings.TrimSpace(c.ImageQuery),
			SourceIndex: c.SourceIndex,
		})
		texts = append(texts, text)
	}
	if out.FullText == "" {
		out.FullText = strings.Join(texts, " ")
	}
	return out
}

func numbered(items []string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}

// Metadata asks the LLM for the publishing title, description and tags.
type Metadata struct {
	LLM llm.Client
}

func (p *Metadata) Produce(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
	if err := requireCollaborator("LLM client", p.LLM != nil); err != nil {
		return nil, err
	}
	script, err := pipeline.Require[*pipeline.ScriptOutput](st, steps.Script)
	if err != nil {
		return nil, err
	}

	task, err := prompts.Render(prompts.VideoFile, "metadata", map[string]string{
		"Script":   fetch.Snippet(script.FullText, scriptPromptChars),
		"MaxTitle": strconv.Itoa(pipeline.MaxTitleLength),
	})
	if err != nil {
		return nil, err
	}

	var out pipeline.MetadataOutput
	if err := llm.GenerateInto(ctx, p.LLM, llm.BuildPrompt(task, llm.MetadataSchema()), llm.TierLite, &out); err != nil {
		return nil, err
	}
	out.Title = TruncateTitle(out.Title, pipeline.MaxTitleLength)
	out.Description = strings.TrimSpace(out.Description)
	out.Tags = NormalizeTags(out.Tags, maxTags)
	return &out, nil
}

// TruncateTitle trims a title to max runes, cutting on a word boundary when one
// is close to the limit.
func TruncateTitle(title string, max int) string {
	title = strings.Join(strings.Fields(title), " ")
	runes := []rune(title)
	if len(runes) <= max {
		return title
	}
	cut := string(runes[:max])
	if idx := strings.LastIndex(cut, " "); idx > max*2/3 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:-")
}

// NormalizeTags trims, strips leading '#', and drops duplicates case-insensitively.
func NormalizeTags(tags []string, max int) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "#"))
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) == max {
			break
		}
	}
	return out
}
