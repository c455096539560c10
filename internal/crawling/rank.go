package crawling

import (
	"sort"
	"strings"
)

// Priority floor below which a link is never followed.
const minPriority = 0.2

var (
	articlePatterns = []string{"/blog/", "/article", "/news/", "/posts/", "/post/", "/story/", "/stories/", "/learn/", "/guide", "/docs/", "/wiki/"}
	sectionPatterns = []string{"/blog", "/news", "/research", "/about", "/history", "/science", "/explain"}
	skipPatterns    = []string{
		"/login", "/signin", "/signup", "/register", "/account", "/cart", "/checkout", "/subscribe",
		"/privacy", "/terms", "/cookie", "/legal", "/contact", "/careers", "/jobs",
		"/tag/", "/tags/", "/category/", "/author/", "/search", "/feed", "/page/",
	}
	thirdPartyDomains = []string{
		"facebook.com", "twitter.com", "x.com", "instagram.com", "linkedin.com", "tiktok.com",
		"pinterest.com", "reddit.com", "youtube.com", "youtu.be", "t.me", "whatsapp.com",
		"addtoany.com", "sharethis.com", "doubleclick.net",
	}
)

// PathPriority scores how likely a link is to be a readable article.
func PathPriority(urlStr string) float64 {
	lower := strings.ToLower(urlStr)

	for _, p := range skipPatterns {
		if strings.Contains(lower, p) {
			return 0.1
		}
	}
	for _, p := range articlePatterns {
		if strings.Contains(lower, p) {
			return 0.9
		}
	}
	// Long hyphenated slugs are usually articles.
	if slug := lastSegment(lower); strings.Count(slug, "-") >= 3 {
		return 0.8
	}
	for _, p := range sectionPatterns {
		if strings.Contains(lower, p) {
			return 0.6
		}
	}
	return 0.4
}

// IsThirdParty reports links to social networks and share widgets.
func IsThirdParty(urlStr string) bool {
	lower := strings.ToLower(urlStr)
	for _, d := range thirdPartyDomains {
		if strings.Contains(lower, "://"+d) || strings.Contains(lower, "."+d) {
			return true
		}
	}
	return false
}

// RankLinks orders links by PathPriority and returns at most limit of them,
// skipping third-party links and those below the priority floor. Ties keep
// document order.
func RankLinks(links []string, limit int) []string {
	type scored struct {
		url      string
		priority float64
	}
	var candidates []scored
	for _, l := range links {
		if IsThirdParty(l) {
			continue
		}
		if p := PathPriority(l); p >= minPriority {
			candidates = append(candidates, scored{url: l, priority: p})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].priority > candidates[j].priority
	})

	if limit >= 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.url
	}
	return out
}

func lastSegment(u string) string {
	u = strings.TrimSuffix(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}
