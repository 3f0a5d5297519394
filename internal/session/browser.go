// Package session drives a Chromium instance through chromedp to refresh
// the portal session and to run the interactive login.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"hrwatch/internal/credential"
	appLog "hrwatch/internal/log"
)

const (
	DefaultPollInterval = 250 * time.Millisecond
	// DefaultReadyTimeout bounds WaitReady when ctx carries no deadline.
	DefaultReadyTimeout = 30 * time.Second
)

// Options configures the Chromium instance.
type Options struct {
	// Headless hides the browser window. Interactive login always shows it.
	Headless bool
	// ExecPath overrides Chromium discovery when non-empty.
	ExecPath string
	// UserDataDir keeps a persistent profile between launches when non-empty.
	UserDataDir string

	PollInterval time.Duration
	Clock        Clock
}

// Browser hands out one Chromium session at a time.
type Browser struct {
	opts Options
	sem  chan struct{}
}

func NewBrowser(opts Options) *Browser {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	return &Browser{
		opts: opts,
		sem:  make(chan struct{}, 1),
	}
}

// WithSession launches Chromium, runs fn against it and always tears the
// browser down afterward, including when fn fails or panics. A second caller
// blocks until the first session is released.
//
// The ctx passed to fn is a chromedp context; Session methods must be called
// with it or a context derived from it.
func (b *Browser) WithSession(ctx context.Context, fn func(ctx context.Context, s credential.Session) error) error {
	return b.withBrowser(ctx, b.opts.Headless, func(ctx context.Context, s *chromeSession) error {
		return fn(ctx, s)
	})
}

func (b *Browser) withBrowser(ctx context.Context, headless bool, fn func(ctx context.Context, s *chromeSession) error) error {
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("session: waiting for browser: %w", ctx.Err())
	}
	defer func() { <-b.sem }()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
	)
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}
	if b.opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(b.opts.UserDataDir))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	// An empty Run starts the browser so launch failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		return fmt.Errorf("session: launch browser: %w", err)
	}
	appLog.Debug("browser launched", "headless", headless)
	defer appLog.Debug("browser closed")

	return fn(browserCtx, &chromeSession{opts: b.opts})
}

// chromeSession implements credential.Session on a chromedp tab.
type chromeSession struct {
	opts Options
}

func (s *chromeSession) SetCookies(ctx context.Context, cookies []credential.Cookie) error {
	var failed int
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			if c.Domain == "" {
				failed++
				appLog.Warn("skipping saved cookie without domain", "name", c.Name)
				continue
			}
			p := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.SameSite != "" {
				p = p.WithSameSite(network.CookieSameSite(c.SameSite))
			}
			if err := p.Do(ctx); err != nil {
				failed++
				appLog.Warn("setting saved cookie failed", "name", c.Name, "err", err)
			}
		}
		return nil
	}))
	if err != nil {
		return err
	}
	if failed > 0 && failed == len(cookies) {
		return errors.New("session: no saved cookie could be set")
	}
	return nil
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return chromedp.Run(ctx, chromedp.Navigate(url))
}

// WaitReady polls until the document is complete and the URL has stopped
// changing between two polls, which covers client-side redirects after load.
func (s *chromeSession) WaitReady(ctx context.Context) error {
	var lastURL string
	return PollUntil(ctx, s.opts.Clock, s.opts.PollInterval, readyBudget(ctx, s.opts.Clock), func(ctx context.Context) (bool, error) {
		var state, loc string
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(`document.readyState`, &state),
			chromedp.Location(&loc),
		); err != nil {
			return false, err
		}
		stable := state == "complete" && loc == lastURL
		lastURL = loc
		return stable, nil
	})
}

// readyBudget is the time left before ctx's deadline on clock, or
// DefaultReadyTimeout when ctx has none.
func readyBudget(ctx context.Context, clock Clock) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return DefaultReadyTimeout
	}
	return dl.Sub(clock.Now())
}

func (s *chromeSession) Cookies(ctx context.Context) ([]credential.Cookie, error) {
	var out []credential.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		out = convertCookies(cookies)
		return nil
	}))
	return out, err
}

func convertCookies(cookies []*network.Cookie) []credential.Cookie {
	out := make([]credential.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		out = append(out, credential.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}
