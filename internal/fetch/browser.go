package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/company-brochure/internal/logging"
)

// MinContentLength is the minimum extracted text length to consider an HTTP fetch complete.
// Shorter pages are likely JavaScript-rendered.
const MinContentLength = 500

// DefaultRenderTimeout bounds a single browser render.
const DefaultRenderTimeout = 30 * time.Second

// Renderer renders a page and returns the resulting HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// ShouldUseBrowser reports whether extracted text is shorter than minLength.
func ShouldUseBrowser(extractedText string, minLength int) bool {
	return len(strings.TrimSpace(extractedText)) < minLength
}

// ChromeRenderer renders pages in headless Chrome. Requires Chrome or
// Chromium to be installed.
type ChromeRenderer struct {
	Timeout time.Duration
	Log     logrus.FieldLogger
}

// NewChromeRenderer creates a renderer with the given timeout.
func NewChromeRenderer(timeout time.Duration, log logrus.FieldLogger) *ChromeRenderer {
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	return &ChromeRenderer{Timeout: timeout, Log: logging.OrDiscard(log)}
}

// Render navigates to url, waits for scripts to settle and returns the outer HTML.
func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	log := logging.OrDiscard(r.Log).WithField("url", url)
	log.Debug("starting headless browser")

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2*time.Second),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Cookie banners hide content; a missing button is fine.
			clickCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			_ = chromedp.Click(`button[id*="accept"], button[class*="accept"]`, chromedp.NodeVisible).Do(clickCtx)
			return nil
		}),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}

	log.WithField("bytes", len(html)).Debug("rendered page")
	return html, nil
}
