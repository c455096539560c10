package producers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/video-pipeline/internal/pipeline"
)

// StylePreset is a named visual treatment applied to image prompts.
type StylePreset struct {
	ID       string
	Name     string
	Prefix   string
	Suffix   string
	Keywords []string
}

// DefaultStyle is used when neither the request nor the topic picks a style.
const DefaultStyle = "ghibli_cartoon"

// Styles lists the available presets by id.
var Styles = map[string]StylePreset{
	"ghibli_cartoon": {
		ID:     "ghibli_cartoon",
		Name:   "Ghibli Cartoon",
		Prefix: "Studio Ghibli style illustration, animated cartoon, ",
		Suffix: ", clean linework, expressive characters, detailed illustrated backgrounds",
	},
	"impressionist_painting": {
		ID:       "impressionist_painting",
		Name:     "Impressionist Oil Painting",
		Prefix:   "Impressionist oil painting style, like Renoir or Van Gogh, ",
		Suffix:   ", visible brushstrokes, muted warm color palette, fine art aesthetic",
		Keywords: []string{"history", "historical", "century", "empire", "europe", "war", "victorian", "revolution"},
	},
}

// StyleIDs returns the preset ids in sorted order.
func StyleIDs() []string {
	ids := make([]string, 0, len(Styles))
	for id := range Styles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ImagePrompt applies a style preset to an image description.
func ImagePrompt(styleID, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}
	preset, ok := Styles[styleID]
	if !ok {
		preset = Styles[DefaultStyle]
	}
	return preset.Prefix + query + preset.Suffix
}

// Style picks the requested preset, or one whose keywords match the topic.
type Style struct{}

func (p *Style) Produce(_ context.Context, st *pipeline.State) (pipeline.Output, error) {
	id := strings.TrimSpace(st.Input.Style)
	if id == "" {
		id = pickStyle(topic(st))
	}
	preset, ok := Styles[id]
	if !ok {
		return nil, fmt.Errorf("unknown style %q (available: %s)", id, strings.Join(StyleIDs(), ", "))
	}
	return &pipeline.StyleOutput{StyleID: preset.ID, Name: preset.Name}, nil
}

func pickStyle(subject string) string {
	subject = strings.ToLower(subject)
	for _, id := range StyleIDs() {
		for _, kw := range Styles[id].Keywords {
			if strings.Contains(subject, kw) {
				return id
			}
		}
	}
	return DefaultStyle
}
