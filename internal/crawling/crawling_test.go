package crawling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLinks(t *testing.T) {
	html := `
		<html>
			<body>
				<nav>
					<a href="/about">About</a>
					<a href="#top">Top</a>
					<a href="mailto:desk@example.com">Mail</a>
				</nav>
				<main>
					<a href="/blog/deep-sea-vents-explained/">Vents</a>
					<a href="https://www.example.com/blog/deep-sea-vents-explained#comments">Comments</a>
					<a href="related-story">Relative</a>
					<a href="/img/chimney.JPG">Photo</a>
					<a href="https://other.com/external">External</a>
					<a href="https://example.com/news/2024/vents">Self</a>
				</main>
			</body>
		</html>
	`

	links, err := ExtractLinks(html, "https://example.com/news/2024/vents")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/about",
		"https://example.com/blog/deep-sea-vents-explained",
		"https://www.example.com/blog/deep-sea-vents-explained",
		"https://example.com/news/2024/related-story",
	}, links)
}

func TestExtractLinks_InvalidBase(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
	}{
		{name: "no scheme", baseURL: "example.com"},
		{name: "unparseable", baseURL: "://bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractLinks("<a href='/x'>x</a>", tt.baseURL)
			require.Error(t, err)
			var perr *PageError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.baseURL, perr.Page)
		})
	}
}

func TestPathPriority(t *testing.T) {
	tests := []struct {
		url  string
		want float64
	}{
		{url: "https://example.com/blog/how-vents-work", want: 0.9},
		{url: "https://example.com/2024/05/life-without-sunlight-at-depth", want: 0.8},
		{url: "https://example.com/research", want: 0.6},
		{url: "https://example.com/shop", want: 0.4},
		{url: "https://example.com/tag/ocean/", want: 0.1},
		{url: "https://example.com/login", want: 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, PathPriority(tt.url))
		})
	}
}

func TestIsThirdParty(t *testing.T) {
	assert.True(t, IsThirdParty("https://twitter.com/share?u=x"))
	assert.True(t, IsThirdParty("https://www.facebook.com/sharer"))
	assert.False(t, IsThirdParty("https://example.com/blog/x-and-facebook"))
}

func TestRankLinks(t *testing.T) {
	links := []string{
		"https://example.com/shop",
		"https://example.com/privacy",
		"https://example.com/blog/first",
		"https://twitter.com/intent/tweet",
		"https://example.com/research",
		"https://example.com/blog/second",
	}

	assert.Equal(t, []string{
		"https://example.com/blog/first",
		"https://example.com/blog/second",
		"https://example.com/research",
	}, RankLinks(links, 3))
	assert.Len(t, RankLinks(links, -1), 4)
	assert.Empty(t, RankLinks(links, 0))
	assert.Empty(t, RankLinks(nil, 3))
}
