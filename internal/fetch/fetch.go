// Package fetch retrieves web pages and turns them into plain text and links.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/company-brochure/internal/logging"
	"github.com/jonathan/company-brochure/internal/types"
)

// Fetch defaults
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxBytes   = 2 << 20
	DefaultRetryDelay = time.Second
	DefaultMaxRetries = 1
)

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36"

// PageFetcher fetches a single page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*types.PageContent, error)
}

// Options configures the fetch behavior.
type Options struct {
	Timeout    time.Duration
	MaxBytes   int64
	UserAgent  string
	RetryDelay time.Duration
	MaxRetries int
	Headers    map[string]string

	// UseBrowser enables rendering pages whose extracted text is shorter
	// than MinContentLength with the Renderer.
	UseBrowser       bool
	MinContentLength int
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:          DefaultTimeout,
		MaxBytes:         DefaultMaxBytes,
		UserAgent:        DefaultUserAgent,
		RetryDelay:       DefaultRetryDelay,
		MaxRetries:       DefaultMaxRetries,
		MinContentLength: MinContentLength,
	}
}

func (o *Options) withDefaults() *Options {
	out := *DefaultOptions()
	if o == nil {
		return &out
	}
	merged := *o
	if merged.Timeout <= 0 {
		merged.Timeout = out.Timeout
	}
	if merged.MaxBytes <= 0 {
		merged.MaxBytes = out.MaxBytes
	}
	if merged.UserAgent == "" {
		merged.UserAgent = out.UserAgent
	}
	if merged.RetryDelay < 0 {
		merged.RetryDelay = 0
	}
	if merged.MaxRetries < 0 {
		merged.MaxRetries = 0
	}
	if merged.MinContentLength <= 0 {
		merged.MinContentLength = out.MinContentLength
	}
	return &merged
}

// Result holds the raw content from a URL fetch.
type Result struct {
	URL         string
	HTML        string
	ContentType string
	StatusCode  int
}

// Fetcher fetches pages over HTTP with a timeout, a size limit, a
// content-type check and a single retry for transient failures.
type Fetcher struct {
	client   *http.Client
	opts     *Options
	renderer Renderer
	log      logrus.FieldLogger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithRenderer sets the renderer used for the SPA fallback.
func WithRenderer(r Renderer) Option {
	return func(f *Fetcher) {
		f.renderer = r
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(f *Fetcher) {
		f.log = log
	}
}

// NewFetcher creates a Fetcher. Nil opts uses DefaultOptions.
func NewFetcher(opts *Options, options ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{},
		opts:   opts.withDefaults(),
	}
	for _, o := range options {
		o(f)
	}
	f.log = logging.OrDiscard(f.log)
	return f
}

// Options returns the effective options.
func (f *Fetcher) Options() Options {
	return *f.opts
}

// Fetch retrieves a page and extracts its title, text and links.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*types.PageContent, error) {
	result, err := f.fetchWithRetry(ctx, urlStr)
	if err != nil {
		return nil, err
	}

	page, err := Extract(urlStr, result.HTML)
	if err != nil {
		return nil, &Error{Kind: KindFetchError, URL: urlStr, Message: "failed to extract content", Cause: err}
	}

	if f.opts.UseBrowser && f.renderer != nil && ShouldUseBrowser(page.Text, f.opts.MinContentLength) {
		page = f.render(ctx, urlStr, page)
	}
	return page, nil
}

// render re-extracts the page from browser-rendered HTML, keeping the HTTP
// result when rendering fails or yields less text.
func (f *Fetcher) render(ctx context.Context, urlStr string, httpPage *types.PageContent) *types.PageContent {
	log := f.log.WithField("url", urlStr)
	log.Debug("content too short, rendering with browser")

	rendered, err := f.renderer.Render(ctx, urlStr)
	if err != nil {
		log.WithError(err).Warn("browser rendering failed, keeping HTTP content")
		return httpPage
	}
	page, err := Extract(urlStr, rendered)
	if err != nil || len(page.Text) <= len(httpPage.Text) {
		return httpPage
	}
	return page
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, urlStr string) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			f.log.WithFields(logrus.Fields{"url": urlStr, "attempt": attempt + 1}).
				WithError(lastErr).Debug("retrying fetch")
			timer := time.NewTimer(f.opts.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		result, err := f.URL(ctx, urlStr)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var fetchErr *Error
		if !errors.As(err, &fetchErr) || !fetchErr.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

// URL performs a single GET and returns the raw HTML.
func (f *Fetcher) URL(ctx context.Context, urlStr string) (*Result, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Host == "" || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return nil, &Error{Kind: KindFetchError, URL: urlStr, Message: "invalid URL", Cause: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{Kind: KindFetchError, URL: urlStr, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	for key, value := range f.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.transportError(ctx, urlStr, "HTTP request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &Error{
			Kind:       KindFetchError,
			URL:        urlStr,
			Message:    fmt.Sprintf("HTTP status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	if resp.ContentLength > f.opts.MaxBytes {
		return nil, &Error{
			Kind:       KindContentTooLarge,
			URL:        urlStr,
			Message:    fmt.Sprintf("content length %d exceeds limit of %d bytes", resp.ContentLength, f.opts.MaxBytes),
			StatusCode: resp.StatusCode,
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !isHTML(contentType) {
		return nil, &Error{
			Kind:       KindUnsupportedContentType,
			URL:        urlStr,
			Message:    fmt.Sprintf("unsupported content type %q", contentType),
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, f.transportError(ctx, urlStr, "failed to read response body", err)
	}
	if int64(len(body)) > f.opts.MaxBytes {
		return nil, &Error{
			Kind:       KindContentTooLarge,
			URL:        urlStr,
			Message:    fmt.Sprintf("body exceeds limit of %d bytes", f.opts.MaxBytes),
			StatusCode: resp.StatusCode,
		}
	}

	if contentType == "" {
		contentType = http.DetectContentType(body)
		if !isHTML(contentType) {
			return nil, &Error{
				Kind:       KindUnsupportedContentType,
				URL:        urlStr,
				Message:    fmt.Sprintf("unsupported content type %q", contentType),
				StatusCode: resp.StatusCode,
			}
		}
	}

	return &Result{
		URL:         urlStr,
		HTML:        string(body),
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
	}, nil
}

// transportError maps a client or body-read error to a fetch error. Caller
// cancellation is returned as the context error itself.
func (f *Fetcher) transportError(ctx context.Context, urlStr, message string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{
			Kind:    KindFetchTimeout,
			URL:     urlStr,
			Message: fmt.Sprintf("timed out after %s", f.opts.Timeout),
			Cause:   err,
		}
	}
	return &Error{Kind: KindFetchError, URL: urlStr, Message: message, Cause: err}
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	mediaType = strings.ToLower(mediaType)
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
