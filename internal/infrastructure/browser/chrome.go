// Package browser renders JavaScript-heavy pages through a headless Chrome
// session and hands the settled HTML to the extractors.
package browser

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/arzwatch/arzwatch/internal/domain"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"

type Options struct {
	// ExecPath pins the Chrome binary. Empty lets chromedp discover one.
	ExecPath string

	// Timeout bounds the wait for the ready selector.
	Timeout time.Duration

	UserAgent string
}

// Chrome fetches rendered pages. Every Fetch call owns a fresh browser
// context and tears it down on all exit paths; sessions are never shared
// between concurrent extractor invocations.
type Chrome struct {
	opts Options
}

func New(opts Options) *Chrome {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Chrome{opts: opts}
}

// Fetch loads the URL, blocks until waitSelector (CSS or XPath) is present,
// waits the settle delay so async widgets can populate, and returns the full
// document HTML. Selector timeouts come back as retryable FetchErrors.
func (c *Chrome) Fetch(ctx context.Context, pageURL, waitSelector string, settle time.Duration) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	waitCtx, cancelWait := context.WithTimeout(tabCtx, c.opts.Timeout)
	defer cancelWait()

	slog.Debug("Fetching page", "url", pageURL, "wait_selector", waitSelector)

	err := chromedp.Run(waitCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady(waitSelector, chromedp.BySearch),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &domain.FetchError{URL: pageURL, Timeout: true, Err: err}
		}
		return "", &domain.FetchError{URL: pageURL, Err: err}
	}

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", &domain.FetchError{URL: pageURL, Err: err}
	}

	return html, nil
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.UserAgent(c.opts.UserAgent),
	)
	if c.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.ExecPath))
	}
	return opts
}
