package crawling

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// skippedExtensions are linked files that never hold article text.
var skippedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true, ".webp": true,
	".mp3": true, ".mp4": true, ".zip": true, ".css": true, ".js": true, ".xml": true,
}

// ExtractLinks returns the distinct same-site links of a page in document order.
// Fragments and trailing slashes are dropped; media and asset files are skipped.
func ExtractLinks(htmlContent string, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &PageError{Page: baseURL, Reason: "unparseable URL", Err: err}
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, &PageError{Page: baseURL, Reason: "URL needs a scheme and host"}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, &PageError{Page: baseURL, Reason: "unparseable HTML", Err: err}
	}

	self := normalize(base)
	seen := map[string]bool{self: true}
	links := make([]string, 0)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}

		abs := base.ResolveReference(linkURL)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if !sameSite(abs.Host, base.Host) {
			return
		}
		if skippedExtensions[strings.ToLower(path.Ext(abs.Path))] {
			return
		}

		u := normalize(abs)
		if !seen[u] {
			seen[u] = true
			links = append(links, u)
		}
	})

	return links, nil
}

func normalize(u *url.URL) string {
	c := *u
	c.Fragment = ""
	return strings.TrimSuffix(c.String(), "/")
}

// sameSite treats a www. prefix as the same host.
func sameSite(a, b string) bool {
	return strings.TrimPrefix(strings.ToLower(a), "www.") == strings.TrimPrefix(strings.ToLower(b), "www.")
}
