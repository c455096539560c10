package producers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-pipeline/internal/fetch"
	"github.com/jonathan/video-pipeline/internal/llm"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
)

func TestStandard_CoversEveryStep(t *testing.T) {
	p := Standard(Config{})
	require.NoError(t, p.Validate())
	assert.Len(t, p, len(steps.Order))
}

func TestInfo_TopicOnly(t *testing.T) {
	out, err := (&Info{}).Produce(context.Background(), newState(t, pipeline.Input{Topic: " Hydrothermal vents "}))
	require.NoError(t, err)

	info := out.(*pipeline.InfoOutput)
	assert.Equal(t, "Hydrothermal vents", info.Title)
	assert.Equal(t, "Hydrothermal vents", info.Topic)
}

func TestInfo_Video(t *testing.T) {
	videos := &fakeVideos{details: map[string]*VideoDetails{
		"dQw4w9WgXcQ": {ID: "dQw4w9WgXcQ", Title: "Life at the vents", Channel: "Ocean Lab", DurationSec: 754},
	}}
	st := newState(t, pipeline.Input{SourceURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"})

	out, err := (&Info{Videos: videos}).Produce(context.Background(), st)
	require.NoError(t, err)

	info := out.(*pipeline.InfoOutput)
	assert.Equal(t, "Life at the vents", info.Title)
	assert.Equal(t, "Ocean Lab", info.Channel)
	assert.Equal(t, 754.0, info.DurationSec)
	assert.Equal(t, "Life at the vents", info.Topic)
}

func TestInfo_Page(t *testing.T) {
	pages := &fakePages{pages: map[string]*fetch.Result{
		"https://example.com/vents": {Title: "Vents explained", Text: "..."},
	}}
	st := newState(t, pipeline.Input{Topic: "vents", SourceURL: "https://example.com/vents"})

	out, err := (&Info{Pages: pages}).Produce(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "Vents explained", out.(*pipeline.InfoOutput).Title)
	assert.Equal(t, "vents", out.(*pipeline.InfoOutput).Topic)

	_, err = (&Info{Pages: pages}).Produce(context.Background(), newState(t, pipeline.Input{SourceURL: "https://example.com/missing"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch source")
}

func TestTranscript_VideoDescription(t *testing.T) {
	videos := &fakeVideos{details: map[string]*VideoDetails{
		"dQw4w9WgXcQ": {Description: "  Chimneys on the sea floor.  "},
	}}
	st := newState(t, pipeline.Input{SourceURL: "https://youtu.be/dQw4w9WgXcQ"})

	out, err := (&Transcript{Videos: videos}).Produce(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "Chimneys on the sea floor.", out.(*pipeline.TranscriptOutput).Text)
}

func TestTranscript_BrowserFallbackForThinPages(t *testing.T) {
	pages := &fakePages{pages: map[string]*fetch.Result{
		"https://example.com/spa": {Title: "App", Text: "Loading..."},
	}}
	rendered := "<html><body><article>" + longText(200) + "</article></body></html>"
	render := func(context.Context, string) (string, error) { return rendered, nil }
	st := newState(t, pipeline.Input{SourceURL: "https://example.com/spa"})

	out, err := (&Transcript{Pages: pages, Render: render}).Produce(context.Background(), st)
	require.NoError(t, err)
	assert.Greater(t, len(out.(*pipeline.TranscriptOutput).Text), fetch.MinContentLength)
}

func TestTranscript_BriefFromTopic(t *testing.T) {
	model := &fakeLLM{responses: map[llm.ModelTier]string{llm.TierStandard: "Vents were found in 1977."}}
	st := newState(t, pipeline.Input{Topic: "Hydrothermal vents"})

	out, err := (&Transcript{LLM: model}).Produce(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "Vents were found in 1977.", out.(*pipeline.TranscriptOutput).Text)
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "Hydrothermal vents")
}

func TestTranscript_EmptyWithoutSources(t *testing.T) {
	out, err := (&Transcript{}).Produce(context.Background(), newState(t, pipeline.Input{Topic: "x"}))
	require.NoError(t, err)
	assert.Error(t, out.Validate())
}

func TestResearch_SkipsFailedPages(t *testing.T) {
	pages := &fakePages{pages: map[string]*fetch.Result{
		"https://example.com/a": {Title: "", Text: longText(150)},
		"https://example.com/b": {Title: "B", Text: longText(150)},
	}}
	st := newState(t, pipeline.Input{
		Topic:        "vents",
		SourceURL:    "https://example.com/a",
		ResearchURLs: []string{"https://example.com/a", "https://example.com/missing", "https://example.com/b"},
	})

	out, err := (&Research{Pages: pages}).Produce(context.Background(), st)
	require.NoError(t, err)

	research := out.(*pipeline.ResearchOutput)
	require.Len(t, research.Articles, 2)
	assert.Equal(t, "https://example.com/a", research.Articles[0].Title, "untitled pages are named by URL")
	assert.Equal(t, "B", research.Articles[1].Title)
	assert.LessOrEqual(t, len([]rune(research.Articles[1].Snippet)), articleSnippetChars+3)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/missing", "https://example.com/b"}, pages.calls)
}

func TestResearch_FollowsSourceLinks(t *testing.T) {
	pages := &fakePages{pages: map[string]*fetch.Result{
		"https://example.com/vents": {Title: "Vents", Text: longText(150), Links: []string{
			"https://example.com/about",
			"https://example.com/login",
			"https://example.com/blog/black-smokers",
			"https://example.com/blog/missing",
			"https://example.com/2023/tube-worms-without-sunlight-thrive",
		}},
		"https://example.com/blog/black-smokers":                      {Title: "Black smokers", Text: longText(150)},
		"https://example.com/2023/tube-worms-without-sunlight-thrive": {Title: "Tube worms", Text: longText(150)},
	}}
	st := newState(t, pipeline.Input{Topic: "vents", SourceURL: "https://example.com/vents"})

	out, err := (&Research{Pages: pages, Related: 3}).Produce(context.Background(), st)
	require.NoError(t, err)

	research := out.(*pipeline.ResearchOutput)
	titles := make([]string, len(research.Articles))
	for i, a := range research.Articles {
		titles[i] = a.Title
	}
	assert.Equal(t, []string{"Vents", "Black smokers", "Tube worms"}, titles)
	assert.Equal(t, []string{
		"https://example.com/vents",
		"https://example.com/blog/black-smokers",
		"https://example.com/blog/missing",
		"https://example.com/2023/tube-worms-without-sunlight-thrive",
	}, pages.calls)
}

func TestResearch_ExplicitURLsDisableLinkFollowing(t *testing.T) {
	pages := &fakePages{pages: map[string]*fetch.Result{
		"https://example.com/vents": {Title: "Vents", Text: longText(150), Links: []string{"https://example.com/blog/black-smokers"}},
		"https://example.com/other": {Title: "Other", Text: longText(150)},
	}}
	st := newState(t, pipeline.Input{
		Topic:        "vents",
		SourceURL:    "https://example.com/vents",
		ResearchURLs: []string{"https://example.com/other"},
	})

	_, err := (&Research{Pages: pages, Related: 3}).Produce(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/vents", "https://example.com/other"}, pages.calls)
}

func TestResearch_FallsBackToTranscript(t *testing.T) {
	st := newState(t, pipeline.Input{Topic: "vents", SourceURL: "https://youtu.be/dQw4w9WgXcQ"})
	st.SetOutput(&pipeline.TranscriptOutput{Text: "Chimneys on the sea floor."})

	out, err := (&Research{}).Produce(context.Background(), st)
	require.NoError(t, err)

	research := out.(*pipeline.ResearchOutput)
	require.Len(t, research.Articles, 1)
	assert.Equal(t, "vents", research.Articles[0].Title)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", research.Articles[0].URL)
}

func TestResearch_NothingToUse(t *testing.T) {
	out, err := (&Research{}).Produce(context.Background(), newState(t, pipeline.Input{Topic: "vents"}))
	require.NoError(t, err)
	assert.EqualError(t, out.Validate(), "no research articles")
}
