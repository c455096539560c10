package producers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/video-pipeline/internal/llm"
	"github.com/jonathan/video-pipeline/internal/pipeline"
)

func TestOutline(t *testing.T) {
	model := &fakeLLM{responses: map[llm.ModelTier]string{
		llm.TierStandard: "```json\n{\"beats\": [\"Discovery in 1977\", \"  \", \"Life without sunlight\"]}\n```",
	}}
	st := newState(t, pipeline.Input{Topic: "Hydrothermal vents"})
	st.SetOutput(&pipeline.TranscriptOutput{Text: "Chimneys on the sea floor."})

	out, err := (&Outline{LLM: model, Beats: 5}).Produce(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, []string{"Discovery in 1977", "Life without sunlight"}, out.(*pipeline.OutlineOutput).Beats)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "Write an outline of 5 story beats")
	assert.Contains(t, model.prompts[0], "Chimneys on the sea floor.")
	assert.Contains(t, model.prompts[0], `"beats": ["string"]`)
}

func TestOutline_RequiresTranscript(t *testing.T) {
	_, err := (&Outline{LLM: &fakeLLM{}}).Produce(context.Background(), newState(t, pipeline.Input{Topic: "x"}))
	assert.EqualError(t, err, "missing transcribe output")
}

func TestScript_NormalizesChunks(t *testing.T) {
	model := &fakeLLM{responses: map[llm.ModelTier]string{
		llm.TierAdvanced: `{"chunks": [
			{"text": " Deep down. ", "image_query": "sea floor", "source_index": 2},
			{"text": ""},
			{"text": "It is hot.", "image_query": "chimney"}
		]}`,
	}}
	st := newState(t, pipeline.Input{Topic: "Hydrothermal vents"})
	st.SetOutput(&pipeline.OutlineOutput{Beats: []string{"intro", "heat"}})
	st.SetOutput(&pipeline.ResearchOutput{Articles: []pipeline.Article{{Title: "NOAA", Text: "Vents host tube worms."}}})

	out, err := (&Script{LLM: model}).Produce(context.Background(), st)
	require.NoError(t, err)

	script := out.(*pipeline.ScriptOutput)
	require.NoError(t, script.Validate())
	assert.Equal(t, "Deep down. It is hot.", script.FullText)
	require.Len(t, script.Chunks, 2)
	assert.Equal(t, pipeline.Chunk{Index: 0, Text: "Deep down.", ImageQuery: "sea floor", SourceIndex: 2}, script.Chunks[0])
	assert.Equal(t, 1, script.Chunks[1].Index)

	assert.Contains(t, model.prompts[0], "1. intro\n2. heat")
	assert.Contains(t, model.prompts[0], "[1] NOAA")
}

func TestScript_LLMError(t *testing.T) {
	model := &fakeLLM{responses: map[llm.ModelTier]string{llm.TierAdvanced: "I cannot help with that."}}
	st := newState(t, pipeline.Input{Topic: "x"})
	st.SetOutput(&pipeline.OutlineOutput{Beats: []string{"intro"}})

	_, err := (&Script{LLM: model}).Produce(context.Background(), st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse fake-advanced response")
}

func TestMetadata(t *testing.T) {
	long := strings.Repeat("Vents ", 30)
	model := &fakeLLM{responses: map[llm.ModelTier]string{
		llm.TierLite: `{"title": "` + long + `", "description": " Two paragraphs. ", "tags": ["#ocean", "Ocean", " vents ", ""]}`,
	}}
	st := newState(t, pipeline.Input{Topic: "x"})
	st.SetOutput(&pipeline.ScriptOutput{FullText: "Deep down.", Chunks: []pipeline.Chunk{{Text: "Deep down."}}})

	out, err := (&Metadata{LLM: model}).Produce(context.Background(), st)
	require.NoError(t, err)

	meta := out.(*pipeline.MetadataOutput)
	require.NoError(t, meta.Validate())
	assert.LessOrEqual(t, len([]rune(meta.Title)), pipeline.MaxTitleLength)
	assert.False(t, strings.HasSuffix(meta.Title, " "))
	assert.Equal(t, "Two paragraphs.", meta.Description)
	assert.Equal(t, []string{"ocean", "vents"}, meta.Tags)
	assert.Contains(t, model.prompts[0], "at most 100 characters")
}

func TestTruncateTitle(t *testing.T) {
	assert.Equal(t, "Short title", TruncateTitle("  Short   title ", 100))
	assert.Equal(t, "alpha beta", TruncateTitle("alpha beta gamma", 12))
	assert.Equal(t, "abcdefghij", TruncateTitle("abcdefghijklmnop", 10))
}

func TestNormalizeTags_Limit(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, NormalizeTags([]string{"a", "b", "c"}, 2))
	assert.Equal(t, []string{}, NormalizeTags(nil, 5))
}

func TestStyle(t *testing.T) {
	tests := []struct {
		name    string
		input   pipeline.Input
		want    string
		wantErr bool
	}{
		{name: "requested", input: pipeline.Input{Topic: "x", Style: "impressionist_painting"}, want: "impressionist_painting"},
		{name: "picked from topic", input: pipeline.Input{Topic: "The Victorian railway boom"}, want: "impressionist_painting"},
		{name: "default", input: pipeline.Input{Topic: "Hydrothermal vents"}, want: DefaultStyle},
		{name: "unknown", input: pipeline.Input{Topic: "x", Style: "vaporwave"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := (&Style{}).Produce(context.Background(), newState(t, tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "ghibli_cartoon, impressionist_painting")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.(*pipeline.StyleOutput).StyleID)
		})
	}
}

func TestImagePrompt(t *testing.T) {
	assert.Equal(t, "", ImagePrompt(DefaultStyle, "  "))
	assert.True(t, strings.HasPrefix(ImagePrompt("nope", "a reef"), "Studio Ghibli"))
	assert.Contains(t, ImagePrompt("impressionist_painting", "a reef"), "Van Gogh, a reef, visible brushstrokes")
}
