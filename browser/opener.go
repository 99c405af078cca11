package browser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	storefront "beat-publish-pipeline/05_storefront"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the Chromium instances the opener starts.
type Config struct {
	ExecPath     string
	Headless     bool
	UserAgent    string
	Width        int
	Height       int
	ClickTimeout time.Duration
	// Origin is granted clipboard access, e.g. https://studio.beatstars.com.
	Origin string
}

func (c Config) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", c.Headless))
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}
	if c.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.UserAgent))
	}
	if c.Width > 0 && c.Height > 0 {
		opts = append(opts, chromedp.WindowSize(c.Width, c.Height))
	}
	return opts
}

// Opener starts one Chromium per attempt, seeded with the stored session.
// The session is only read; nothing captured during an attempt is written
// back.
type Opener struct {
	cfg   Config
	state *StorageState
	log   *zap.SugaredLogger
}

// NewOpener validates state and returns an opener for it.
func NewOpener(cfg Config, state *StorageState, log *zap.SugaredLogger) (*Opener, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Opener{cfg: cfg, state: state, log: log}, nil
}

// Open implements storefront.Opener.
func (o *Opener) Open(ctx context.Context) (storefront.Page, func(), error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, o.cfg.allocatorOptions()...)
	tab, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(o.log.Debugf))
	release := func() {
		cancelTab()
		cancelAlloc()
	}

	script, err := o.state.localStorageScript()
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("build local storage script: %w", err)
	}
	err = chromedp.Run(tab, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.SetCookies(o.state.cookieParams()).Do(ctx); err != nil {
			return fmt.Errorf("restore cookies: %w", err)
		}
		if script != "" {
			if _, err := cdppage.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("restore local storage: %w", err)
			}
		}
		if err := cdppage.SetInterceptFileChooserDialog(true).Do(ctx); err != nil {
			return fmt.Errorf("intercept file chooser: %w", err)
		}
		if origin := o.cfg.Origin; origin != "" {
			grant := cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{
				cdpbrowser.PermissionTypeClipboardReadWrite,
				cdpbrowser.PermissionTypeClipboardSanitizedWrite,
			}).WithOrigin(origin)
			if err := grant.Do(ctx); err != nil {
				return fmt.Errorf("grant clipboard: %w", err)
			}
		}
		return nil
	}))
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("start browser: %w", err)
	}
	o.log.Debugw("browser context opened", "cookies", len(o.state.Cookies), "headless", o.cfg.Headless)
	return newPage(tab, o.cfg.ClickTimeout, o.log), release, nil
}

// OriginOf returns the scheme and host of rawURL.
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no origin", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

var _ storefront.Opener = (*Opener)(nil)
