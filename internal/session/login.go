package session

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"hrwatch/internal/credential"
	appLog "hrwatch/internal/log"
)

const (
	DefaultLoginTimeout = 5 * time.Minute
	loginPollInterval   = 2 * time.Second
)

// Login opens a visible browser on portalURL and waits for the user to sign
// in, i.e. until the access and XSRF cookies appear. It returns the full
// cookie snapshot for persistence.
func (b *Browser) Login(ctx context.Context, portalURL string, timeout time.Duration) ([]credential.Cookie, error) {
	if portalURL == "" {
		return nil, fmt.Errorf("session: portal URL is required")
	}
	if timeout <= 0 {
		timeout = DefaultLoginTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cookies []credential.Cookie
	err := b.withBrowser(ctx, false, func(ctx context.Context, s *chromeSession) error {
		if err := chromedp.Run(ctx, chromedp.Navigate(portalURL)); err != nil {
			return fmt.Errorf("session: open login page: %w", err)
		}
		appLog.Info("waiting for interactive login", "portal", portalURL, "timeout", timeout)

		return PollUntil(ctx, b.opts.Clock, loginPollInterval, timeout, func(ctx context.Context) (bool, error) {
			cs, err := s.Cookies(ctx)
			if err != nil {
				return false, err
			}
			if !HasSessionCookies(cs) {
				return false, nil
			}
			cookies = cs
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return cookies, nil
}

// HasSessionCookies reports whether the snapshot carries both required tokens.
func HasSessionCookies(cookies []credential.Cookie) bool {
	var atk, xsrf bool
	for _, c := range cookies {
		if c.Value == "" {
			continue
		}
		switch c.Name {
		case credential.CookieAccessToken:
			atk = true
		case credential.CookieXSRF:
			xsrf = true
		}
	}
	return atk && xsrf
}
