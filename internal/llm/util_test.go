package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain object", input: `{"title": "Vents"}`, want: `{"title": "Vents"}`},
		{name: "json fence", input: "```json\n{\"beats\": [\"intro\"]}\n```", want: `{"beats": ["intro"]}`},
		{name: "bare fence", input: "```\n[\"a\", \"b\"]\n```", want: `["a", "b"]`},
		{name: "fence without newline tag", input: "```{\"x\": 1}```", want: `{"x": 1}`},
		{
			name:  "preamble and trailing prose",
			input: "Here is the outline you asked for:\n\n{\"beats\": [\"hook\", \"payoff\"]}\n\nLet me know if you want changes.",
			want:  `{"beats": ["hook", "payoff"]}`,
		},
		{
			name:  "braces inside strings",
			input: "Sure! {\"narration\": \"use {curly} and [square] brackets\", \"ok\": true} trailing",
			want:  `{"narration": "use {curly} and [square] brackets", "ok": true}`,
		},
		{
			name:  "escaped quote",
			input: `{"title": "The \"deep\" sea"} done`,
			want:  `{"title": "The \"deep\" sea"}`,
		},
		{name: "array first", input: "tags: [\"ocean\", \"science\"] thanks", want: `["ocean", "science"]`},
		{name: "no json", input: "I cannot help with that.", want: "I cannot help with that."},
		{name: "unterminated", input: "result: {\"title\": \"x\"", want: "result: {\"title\": \"x\""},
		{name: "empty", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.input))
		})
	}
}

func TestCleanJSONBlock_ScriptResponseDecodes(t *testing.T) {
	raw := "```json\n{\n  \"chunks\": [\n    {\"text\": \"Hydrothermal vents are hot.\"},\n    {\"text\": \"Life thrives there.\"}\n  ]\n}\n```"

	var out struct {
		Chunks []struct {
			Text string `json:"text"`
		} `json:"chunks"`
	}
	assert.NoError(t, json.Unmarshal([]byte(CleanJSONBlock(raw)), &out))
	assert.Len(t, out.Chunks, 2)
	assert.Equal(t, "Life thrives there.", out.Chunks[1].Text)
}

func TestExtractBalanced(t *testing.T) {
	assert.Equal(t, `{"a": {"b": 1}}`, extractJSONObject(`{"a": {"b": 1}} tail`))
	assert.Equal(t, `[[1], [2]]`, extractJSONArray(`[[1], [2]], more`))
	assert.Empty(t, extractJSONObject(`[1]`))
	assert.Empty(t, extractJSONArray(`{"a": 1}`))
	assert.Empty(t, extractJSONObject(""))
	assert.Empty(t, extractJSONObject(`{"a": "}`))
}
