package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/jonathan/video-pipeline/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body><h1>Test</h1></body></html>"))
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, server.URL, result.URL)
	assert.Contains(t, result.HTML, "<h1>Test</h1>")
	assert.Equal(t, http.StatusOK, result.StatusCode)
}

func TestURL_InvalidURL(t *testing.T) {
	_, err := URL(context.Background(), "not-a-valid-url", nil)
	require.Error(t, err)

	var fetchErr *Error
	assert.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "invalid URL")
}

func TestURL_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)

	var fetchErr *Error
	assert.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "404")
}

func TestDownload_WritesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "nested", "clip.mp3")
	n, err := Download(context.Background(), server.URL+"/clip.mp3", dest, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len("audio-bytes")), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestDownload_HTTPErrorLeavesNoFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp3")
	_, err := Download(context.Background(), server.URL, dest, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.NoFileExists(t, dest)
}

func TestPage_ExtractsTitleAndArticle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Fallback</title>
			<meta property="og:title" content="Storm hits coast"></head>
			<body><nav>Menu <a href="/news/flood-warnings">Floods</a> <a href="https://other.example/x">Elsewhere</a></nav>
			<article><p>Winds reached 120 km/h.</p></article></body></html>`))
	}))
	defer server.Close()

	result, err := Page(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "Storm hits coast", result.Title)
	assert.Equal(t, "Winds reached 120 km/h.", result.Text)
	assert.Equal(t, []string{server.URL + "/news/flood-warnings"}, result.Links)
}

func TestExtractTitle_FallsBackToTitleTag(t *testing.T) {
	assert.Equal(t, "Plain title", ExtractTitle("<html><head><title> Plain title </title></head></html>"))
	assert.Equal(t, "", ExtractTitle("<html></html>"))
}

func TestExtractMainText_WithMainElement(t *testing.T) {
	html := `<html><body>
		<nav>Navigation</nav>
		<main><p>Main content here</p></main>
		<footer>Footer</footer>
	</body></html>`

	text, err := ExtractMainText(html, DefaultTextSelectors())
	require.NoError(t, err)
	assert.Equal(t, "Main content here", text)
	assert.NotContains(t, text, "Navigation")
	assert.NotContains(t, text, "Footer")
}

func TestExtractMainText_FallbackToBody(t *testing.T) {
	html := `<html><body><div>Just some text</div><script>var x = 1;</script></body></html>`

	text, err := ExtractMainText(html, ArticleSelectors())
	require.NoError(t, err)
	assert.Equal(t, "Just some text", text)
}

func TestExtractMainText_NoiseSelectors(t *testing.T) {
	html := `<html><body><article><p>Keep</p><div class="share">Share this</div></article></body></html>`

	text, err := ExtractMainText(html, ArticleSelectors(), ".share")
	require.NoError(t, err)
	assert.Equal(t, "Keep", text)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short text", Snippet("short   text", 50))
	assert.Equal(t, "the quick brown...", Snippet("the quick brown fox jumps", 18))
}

func TestShouldUseBrowser(t *testing.T) {
	assert.True(t, ShouldUseBrowser("   tiny   "))
	long := make([]byte, MinContentLength+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.False(t, ShouldUseBrowser(string(long)))
}

func TestCachedFetcher_ServesFromCache(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`<html><body><article>Cached body</article></body></html>`))
	}))
	defer server.Close()

	fetcher := NewCachedFetcher(store.NewMemory(), nil)
	ctx := context.Background()

	first, err := fetcher.Fetch(ctx, server.URL)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := fetcher.Fetch(ctx, server.URL)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, "Cached body", second.Text)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	require.NoError(t, fetcher.InvalidateCache(ctx, server.URL))
	third, err := fetcher.Fetch(ctx, server.URL)
	require.NoError(t, err)
	assert.False(t, third.FromCache)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestCachedFetcher_FetchMultipleKeepsOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`<html><body><main>` + r.URL.Path + `</main></body></html>`))
	}))
	defer server.Close()

	fetcher := NewCachedFetcher(nil, nil)
	results, errs := fetcher.FetchMultiple(context.Background(), []string{
		server.URL + "/a", server.URL + "/missing", server.URL + "/b",
	})

	require.Len(t, results, 3)
	assert.Equal(t, "/a", results[0].Text)
	assert.Nil(t, results[1])
	assert.Error(t, errs[1])
	assert.Equal(t, "/b", results[2].Text)
}

func TestPageCacheKey_Stable(t *testing.T) {
	assert.Equal(t, PageCacheKey("https://a.example/x"), PageCacheKey("https://a.example/x"))
	assert.NotEqual(t, PageCacheKey("https://a.example/x"), PageCacheKey("https://a.example/y"))
}
