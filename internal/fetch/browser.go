package fetch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// MinContentLength is the minimum extracted text length for a plain HTTP fetch
// to count as successful before falling back to browser rendering.
const MinContentLength = 500

// ShouldUseBrowser reports whether extracted text is too short, which usually
// means the page renders its content with JavaScript.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

func newBrowser(ctx context.Context, timeout time.Duration, width, height int) (context.Context, func()) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if width > 0 && height > 0 {
		opts = append(opts, chromedp.WindowSize(width, height))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, timeout)

	return browserCtx, func() {
		cancelTimeout()
		cancelBrowser()
		cancelAlloc()
	}
}

func dismissBanners() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		// Best effort; most pages have no banner.
		_ = chromedp.Click(`button[id*="accept"], button[class*="accept"], button[aria-label*="Accept"]`, chromedp.NodeVisible, chromedp.AtLeast(0)).Do(ctx)
		return nil
	})
}

// WithBrowser renders a page in headless Chrome and returns the rendered HTML.
func WithBrowser(ctx context.Context, url string, timeout time.Duration, verbose bool) (string, error) {
	if verbose {
		log.Printf("[browser] Rendering %s", url)
	}

	browserCtx, cancel := newBrowser(ctx, timeout, 0, 0)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(3*time.Second),
		dismissBanners(),
		chromedp.Sleep(1*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}

	if verbose {
		log.Printf("[browser] Rendered HTML: %d bytes", len(html))
	}
	return html, nil
}

// Screenshot captures the visible viewport of url at width x height as PNG bytes.
func Screenshot(ctx context.Context, url string, width, height int, timeout time.Duration) ([]byte, error) {
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}

	browserCtx, cancel := newBrowser(ctx, timeout, width, height)
	defer cancel()

	var buf []byte
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2*time.Second),
		dismissBanners(),
		chromedp.CaptureScreenshot(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("screenshot of %s failed: %w", url, err)
	}
	return buf, nil
}
