package storefront

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"beat-publish-pipeline/poll"

	"go.uber.org/zap"
)

// session is one attempt's view of a page.
type session struct {
	page   Page
	cfg    Config
	t      Timings
	log    *zap.SugaredLogger
	report *Report
}

func (s *session) visible(sel Selector) poll.Condition {
	return poll.Condition{Name: sel.String(), Check: func(ctx context.Context) (bool, error) {
		return s.page.Visible(ctx, sel)
	}}
}

func (s *session) present(sel Selector) poll.Condition {
	return poll.Condition{Name: sel.String(), Check: func(ctx context.Context) (bool, error) {
		n, err := s.page.Count(ctx, sel)
		return n > 0, err
	}}
}

func (s *session) textContains(sel Selector, substr string) poll.Condition {
	return poll.Condition{Name: fmt.Sprintf("%s contains %q", sel, substr), Check: func(ctx context.Context) (bool, error) {
		text, err := s.page.Text(ctx, sel)
		return strings.Contains(text, substr), err
	}}
}

func (s *session) textLacks(sel Selector, substr string) poll.Condition {
	return poll.Condition{Name: fmt.Sprintf("%s lacks %q", sel, substr), Check: func(ctx context.Context) (bool, error) {
		text, err := s.page.Text(ctx, sel)
		return !strings.Contains(text, substr), err
	}}
}

func (s *session) urlContains(fragment string) poll.Condition {
	return poll.Condition{Name: "url contains " + fragment, Check: func(ctx context.Context) (bool, error) {
		u, err := s.page.URL(ctx)
		return strings.Contains(u, fragment), err
	}}
}

func (s *session) waitFor(ctx context.Context, cond poll.Condition, timeout time.Duration) error {
	return poll.WaitFor(ctx, cond, timeout, s.t.Poll)
}

func (s *session) waitVisible(ctx context.Context, sel Selector, timeout time.Duration) error {
	return s.waitFor(ctx, s.visible(sel), timeout)
}

// waitHidden waits until sel is absent or not rendered.
func (s *session) waitHidden(ctx context.Context, sel Selector, timeout time.Duration) error {
	return poll.WaitUntilAllGone(ctx, []poll.Condition{s.visible(sel)}, timeout, s.t.Poll)
}

// waitAbsent waits until nothing in the document matches sel.
func (s *session) waitAbsent(ctx context.Context, sel Selector, timeout time.Duration) error {
	return poll.WaitUntilAllGone(ctx, []poll.Condition{s.present(sel)}, timeout, s.t.Poll)
}

// waitAnyVisible returns the first of sels to become visible.
func (s *session) waitAnyVisible(ctx context.Context, sels []Selector, timeout time.Duration) (string, error) {
	conds := make([]poll.Condition, len(sels))
	for i, sel := range sels {
		conds[i] = s.visible(sel)
	}
	c, err := poll.WaitForAny(ctx, conds, timeout, s.t.Poll)
	return c.Name, err
}

func (s *session) waitAllHidden(ctx context.Context, sels []Selector, timeout time.Duration) error {
	conds := make([]poll.Condition, len(sels))
	for i, sel := range sels {
		conds[i] = s.visible(sel)
	}
	return poll.WaitUntilAllGone(ctx, conds, timeout, s.t.Poll)
}

func (s *session) count(ctx context.Context, sel Selector) int {
	n, err := s.page.Count(ctx, sel)
	if err != nil {
		return 0
	}
	return n
}

func (s *session) click(ctx context.Context, sel Selector) error {
	return s.page.Click(ctx, sel, false)
}

func (s *session) clickWithRetry(ctx context.Context, sel Selector) error {
	return s.t.ClickRetry.Run(ctx, s.log, "click "+sel.String(), func(ctx context.Context) error {
		return s.click(ctx, sel)
	})
}

func (s *session) pause(ctx context.Context, d time.Duration) error {
	return poll.Sleep(ctx, d)
}

// waitChangesSaved blocks until the storefront confirms that edits are
// persisted: the processing banner clears (best effort) and the saved
// banner shows.
func (s *session) waitChangesSaved(ctx context.Context) error {
	if err := s.waitHidden(ctx, MetadataProcessing, s.t.ChangesSaved); err != nil {
		s.log.Debugw("metadata processing banner did not clear", "error", err)
	}
	if err := s.waitVisible(ctx, ChangesSaved, s.t.ChangesSaved); err != nil {
		return fmt.Errorf("changes not saved: %w", err)
	}
	return nil
}

// screenshot captures the page for diagnostics; failures are only logged.
func (s *session) screenshot(ctx context.Context, label string) {
	if s.cfg.DiagnosticsDir == "" {
		return
	}
	path := filepath.Join(s.cfg.DiagnosticsDir, fmt.Sprintf("%s-attempt%d.png", label, s.report.Attempt))
	if err := s.page.Screenshot(ctx, path); err != nil {
		s.log.Warnw("diagnostic screenshot failed", "path", path, "error", err)
		return
	}
	s.log.Infow("diagnostic screenshot saved", "path", path)
}
