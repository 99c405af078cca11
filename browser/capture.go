package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"beat-publish-pipeline/poll"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// CaptureOptions drive an interactive login.
type CaptureOptions struct {
	LoginURL string
	// DonePrefix starts the page URL once the operator is logged in.
	DonePrefix string
	Timeout      time.Duration
	OutPath      string
}

// Capture opens a visible browser on the login page, waits for the operator
// to finish logging in and saves the resulting cookies and local storage.
func Capture(ctx context.Context, cfg Config, opts CaptureOptions, log *zap.SugaredLogger) (*StorageState, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cfg.Headless = false
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, cfg.allocatorOptions()...)
	defer cancelAlloc()
	tab, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Debugf))
	defer cancelTab()

	if err := chromedp.Run(tab, chromedp.Navigate(opts.LoginURL)); err != nil {
		return nil, fmt.Errorf("open login page: %w", err)
	}
	log.Infow("log in to the storefront in the browser window", "url", opts.LoginURL, "timeout", opts.Timeout)

	loggedIn := poll.Condition{Name: "url starts with " + opts.DonePrefix, Check: func(context.Context) (bool, error) {
		var u string
		if err := chromedp.Run(tab, chromedp.Location(&u)); err != nil {
			return false, err
		}
		return strings.HasPrefix(u, opts.DonePrefix), nil
	}}
	if err := poll.WaitFor(ctx, loggedIn, opts.Timeout, time.Second); err != nil {
		return nil, fmt.Errorf("wait for login: %w", err)
	}

	var (
		cookies []*network.Cookie
		origin  string
		entries string
	)
	err := chromedp.Run(tab,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
		chromedp.Evaluate(`location.origin`, &origin),
		chromedp.Evaluate(`JSON.stringify(Object.entries(localStorage))`, &entries),
	)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	st := &StorageState{Cookies: fromNetworkCookies(cookies)}
	var pairs [][2]string
	if err := json.Unmarshal([]byte(entries), &pairs); err != nil {
		return nil, fmt.Errorf("decode local storage: %w", err)
	}
	if len(pairs) > 0 {
		ov := OriginValues{Origin: origin}
		for _, kv := range pairs {
			ov.LocalStorage = append(ov.LocalStorage, NameValue{Name: kv[0], Value: kv[1]})
		}
		st.Origins = append(st.Origins, ov)
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	if err := st.Save(opts.OutPath); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	log.Infow("session saved", "path", opts.OutPath, "cookies", len(st.Cookies), "local_storage", len(pairs))
	return st, nil
}
