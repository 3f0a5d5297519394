package credential

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"golang.org/x/sync/singleflight"

	appLog "hrwatch/internal/log"
	"hrwatch/internal/model"
)

// DefaultRefreshTimeout bounds one automated refresh, browser launch included.
const DefaultRefreshTimeout = 60 * time.Second

// Session is a live browser session on the portal.
type Session interface {
	SetCookies(ctx context.Context, cookies []Cookie) error
	Navigate(ctx context.Context, url string) error
	// WaitReady blocks until the page has reached a stable loaded state.
	WaitReady(ctx context.Context) error
	Cookies(ctx context.Context) ([]Cookie, error)
}

// Launcher provides a Session for the duration of fn and always releases
// it afterward.
type Launcher interface {
	WithSession(ctx context.Context, fn func(ctx context.Context, s Session) error) error
}

// RefresherConfig configures a Refresher.
type RefresherConfig struct {
	PortalURL        string
	DefaultMappingID string
	Timeout          time.Duration
	Files            FileStore
	Now              func() time.Time
}

// Refresher re-establishes the portal session when the stored credential
// is no longer valid. At most one refresh runs at a time.
type Refresher struct {
	cfg   RefresherConfig
	group singleflight.Group
}

func NewRefresher(cfg RefresherConfig) *Refresher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRefreshTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Refresher{cfg: cfg}
}

// Bootstrap installs the credential found in the cookie file, if any, so a
// fresh process can skip the browser while the saved token is still valid.
// A missing file is not an error.
func (r *Refresher) Bootstrap(store *Store) error {
	cf, err := r.cfg.Files.Load()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Info("no saved cookies; a browser refresh will be needed", "path", r.cfg.Files.Path)
			return nil
		}
		return fmt.Errorf("load cookie file: %w", err)
	}

	cred, err := FromCookies(cf.Cookies, r.cfg.DefaultMappingID)
	if err != nil {
		appLog.Warn("saved cookies are incomplete", "path", r.cfg.Files.Path, "exported_at", cf.ExportedAt)
		return nil
	}
	if err := store.Replace(cred); err != nil {
		return err
	}
	appLog.Info("loaded saved credential",
		"exported_at", cf.ExportedAt.Format(time.RFC3339),
		"expires_at", formatExpiry(cred.ExpiresAt),
		"status", store.Status(),
	)
	return nil
}

// EnsureValid returns a usable credential, refreshing through launcher when
// the stored one is missing, expiring, expired or undecodable. Concurrent
// callers share a single in-flight refresh.
//
// The shared refresh is not tied to any one caller's ctx; it is bounded by
// the configured refresh timeout. Each caller stops waiting when its own ctx
// ends.
func (r *Refresher) EnsureValid(ctx context.Context, store *Store, launcher Launcher) (Credential, error) {
	if store.IsValid() {
		return store.Get(), nil
	}

	refreshCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan("refresh", func() (any, error) {
		// Another caller may have finished a refresh while we waited.
		if store.IsValid() {
			return store.Get(), nil
		}
		return r.refresh(refreshCtx, store, launcher)
	})

	select {
	case <-ctx.Done():
		return Credential{}, model.NewError(model.KindUnknown, "refresh session", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		if res.Shared {
			appLog.Debug("joined in-flight credential refresh")
		}
		return res.Val.(Credential), nil
	}
}

func (r *Refresher) refresh(ctx context.Context, store *Store, launcher Launcher) (Credential, error) {
	appLog.Info("refreshing portal session", "status", store.Status(), "portal", r.cfg.PortalURL)
	start := r.cfg.Now()

	var saved []Cookie
	if cf, err := r.cfg.Files.Load(); err == nil {
		saved = cf.Cookies
	} else if !errors.Is(err, fs.ErrNotExist) {
		appLog.Warn("cookie file unreadable; refreshing without saved cookies", "err", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var fresh []Cookie
	err := launcher.WithSession(ctx, func(ctx context.Context, s Session) error {
		if len(saved) > 0 {
			if err := s.SetCookies(ctx, saved); err != nil {
				// The required-cookie check below decides whether this mattered.
				appLog.Warn("seeding saved cookies failed", "err", err)
			}
		}
		if err := s.Navigate(ctx, r.cfg.PortalURL); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		if err := s.WaitReady(ctx); err != nil {
			return fmt.Errorf("wait for portal: %w", err)
		}
		cookies, err := s.Cookies(ctx)
		if err != nil {
			return fmt.Errorf("read cookies: %w", err)
		}
		fresh = cookies
		return nil
	})
	if err != nil {
		return Credential{}, sessionExpired(err)
	}

	cred, err := FromCookies(fresh, r.cfg.DefaultMappingID)
	if err != nil {
		return Credential{}, err
	}

	if err := store.Replace(cred); err != nil {
		return Credential{}, sessionExpired(err)
	}
	if err := r.cfg.Files.Save(fresh, r.cfg.Now()); err != nil {
		// The in-memory credential is still good for this run.
		appLog.Error("saving refreshed cookies failed", err, "path", r.cfg.Files.Path)
	}

	appLog.Info("portal session refreshed",
		"expires_at", formatExpiry(cred.ExpiresAt),
		"access_token", appLog.Redact(cred.AccessToken),
		"duration", r.cfg.Now().Sub(start),
	)
	return cred, nil
}

func sessionExpired(err error) error {
	var e *model.Error
	if errors.As(err, &e) && e.Kind == model.KindSessionExpired {
		return err
	}
	return model.NewError(model.KindSessionExpired, "refresh session", err)
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(time.RFC3339)
}
