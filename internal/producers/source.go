package producers

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jonathan/video-pipeline/internal/crawling"
	"github.com/jonathan/video-pipeline/internal/fetch"
	"github.com/jonathan/video-pipeline/internal/llm"
	"github.com/jonathan/video-pipeline/internal/pipeline"
	"github.com/jonathan/video-pipeline/internal/pipeline/steps"
	"github.com/jonathan/video-pipeline/internal/prompts"
)

const (
	articleSnippetChars = 280
	articleTextChars    = 4000
)

// Info describes the session's source: a published video, a web page, or just
// the requested topic.
type Info struct {
	Pages  PageFetcher
	Videos VideoLookup
}

func (p *Info) Produce(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
	in := st.Input
	out := &pipeline.InfoOutput{Topic: strings.TrimSpace(in.Topic), SourceURL: in.SourceURL}

	switch id, isVideo := YouTubeVideoID(in.SourceURL); {
	case in.SourceURL == "":
		out.Title = out.Topic
	case isVideo && p.Videos != nil:
		v, err := p.Videos.LookupVideo(ctx, id)
		if err != nil {
			return nil, err
		}
		out.Title, out.Channel, out.DurationSec = v.Title, v.Channel, v.DurationSec
	default:
		if err := requireCollaborator("page fetcher", p.Pages != nil); err != nil {
			return nil, err
		}
		page, err := p.Pages.Fetch(ctx, in.SourceURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch source: %w", err)
		}
		out.Title = page.Title
	}

	if out.Topic == "" {
		out.Topic = out.Title
	}
	return out, nil
}

// Transcript collects the source text: a video's description, a page's article
// text, or an LLM-written brief when the session has only a topic.
type Transcript struct {
	Pages  PageFetcher
	Render RenderFunc
	Videos VideoLookup
	LLM    llm.Client
}

func (p *Transcript) Produce(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
	src := st.Input.SourceURL
	var text string

	if id, isVideo := YouTubeVideoID(src); src != "" && isVideo && p.Videos != nil {
		v, err := p.Videos.LookupVideo(ctx, id)
		if err != nil {
			return nil, err
		}
		text = v.Description
	} else if src != "" && p.Pages != nil {
		pg, err := fetchPage(ctx, p.Pages, p.Render, src)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch source: %w", err)
		}
		text = pg.text
	}

	if strings.TrimSpace(text) == "" && p.LLM != nil {
		subject := topic(st)
		if subject == "" {
			return nil, fmt.Errorf("no source text and no topic")
		}
		prompt, err := prompts.Render(prompts.VideoFile, "brief", map[string]string{"Topic": subject})
		if err != nil {
			return nil, err
		}
		text, err = p.LLM.GenerateContent(ctx, prompt, llm.TierStandard)
		if err != nil {
			return nil, fmt.Errorf("failed to write brief: %w", err)
		}
	}

	return &pipeline.TranscriptOutput{Text: strings.TrimSpace(text)}, nil
}

// Research fetches the research URLs, plus a non-video source URL, into articles.
// Without explicit research URLs, up to Related of the source page's own
// article links are followed as well. Pages that fail are skipped. With
// nothing fetched, the transcript stands in as the only article.
type Research struct {
	Pages   PageFetcher
	Render  RenderFunc
	Related int
}

func (p *Research) Produce(ctx context.Context, st *pipeline.State) (pipeline.Output, error) {
	urls := researchURLs(st.Input)
	out := &pipeline.ResearchOutput{}

	if len(urls) > 0 {
		if err := requireCollaborator("page fetcher", p.Pages != nil); err != nil {
			return nil, err
		}
	}

	var sourceLinks []string
	fetched := func(u string) (*fetchedPage, error) {
		pg, err := fetchPage(ctx, p.Pages, p.Render, u)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			log.Printf("[research] skipping %s: %v", u, err)
			return nil, nil
		}
		out.Articles = append(out.Articles, pg.article(u))
		return pg, nil
	}

	for _, u := range urls {
		pg, err := fetched(u)
		if err != nil {
			return nil, err
		}
		if pg != nil && u == st.Input.SourceURL {
			sourceLinks = pg.links
		}
	}

	attempted := len(urls)
	if p.Related > 0 && len(st.Input.ResearchURLs) == 0 {
		related := crawling.RankLinks(sourceLinks, p.Related)
		attempted += len(related)
		for _, u := range related {
			if _, err := fetched(u); err != nil {
				return nil, err
			}
		}
	}

	if len(out.Articles) == 0 {
		if tr, ok := pipeline.OutputAs[*pipeline.TranscriptOutput](st, steps.Transcribe); ok && tr.Text != "" {
			out.Articles = append(out.Articles, pipeline.Article{
				Title:   topic(st),
				URL:     st.Input.SourceURL,
				Snippet: fetch.Snippet(tr.Text, articleSnippetChars),
				Text:    fetch.Snippet(tr.Text, articleTextChars),
			})
		}
	}
	log.Printf("[research] %d of %d sources fetched", len(out.Articles), attempted)
	return out, nil
}

func researchURLs(in pipeline.Input) []string {
	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}
	if _, isVideo := YouTubeVideoID(in.SourceURL); !isVideo {
		add(in.SourceURL)
	}
	for _, u := range in.ResearchURLs {
		add(u)
	}
	return urls
}

type fetchedPage struct {
	text  string
	title string
	links []string
}

func (pg *fetchedPage) article(url string) pipeline.Article {
	title := pg.title
	if title == "" {
		title = url
	}
	return pipeline.Article{
		Title:   title,
		URL:     url,
		Snippet: fetch.Snippet(pg.text, articleSnippetChars),
		Text:    fetch.Snippet(pg.text, articleTextChars),
	}
}

// fetchPage fetches a page and falls back to a browser render when the static
// HTML carries too little text.
func fetchPage(ctx context.Context, pages PageFetcher, render RenderFunc, url string) (*fetchedPage, error) {
	page, err := pages.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	pg := &fetchedPage{text: page.Text, title: page.Title, links: page.Links}

	if render != nil && fetch.ShouldUseBrowser(pg.text) {
		html, rerr := render(ctx, url)
		if rerr != nil {
			log.Printf("[research] browser render of %s failed: %v", url, rerr)
			return pg, nil
		}
		if rendered, xerr := fetch.ExtractMainText(html, fetch.ArticleSelectors()); xerr == nil && len(rendered) > len(pg.text) {
			pg.text = rendered
		}
		if pg.title == "" {
			pg.title = fetch.ExtractTitle(html)
		}
		if len(pg.links) == 0 {
			pg.links, _ = crawling.ExtractLinks(html, url)
		}
	}
	return pg, nil
}
