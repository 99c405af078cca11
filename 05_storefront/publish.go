package storefront

import (
	"context"
	"fmt"
	"strings"
)

func (s *session) publish(ctx context.Context) error {
	if err := s.waitChangesSaved(ctx); err != nil {
		return err
	}
	if err := s.waitVisible(ctx, PublishButton.Nth(0), s.t.PublishVisible); err != nil {
		return fmt.Errorf("publish button: %w", err)
	}
	if err := s.page.Hide(ctx, SurveyOverlay); err != nil {
		s.log.Debugw("hide survey overlay failed", "error", err)
	}
	if err := s.page.Click(ctx, PublishButton.Nth(0), true); err != nil {
		return fmt.Errorf("click publish: %w", err)
	}
	s.log.Infow("publish clicked")
	return nil
}

// openShareLinks brings up the short link section of the post-publish
// share panel and triggers its copy action.
func (s *session) openShareLinks(ctx context.Context) error {
	if err := s.waitFor(ctx, s.present(SharePanel), s.t.SharePanel); err != nil {
		return fmt.Errorf("share panel: %w", err)
	}
	if s.count(ctx, ViewAllLinks) > 0 {
		if err := s.click(ctx, ViewAllLinks.Nth(0)); err != nil {
			return fmt.Errorf("open all links: %w", err)
		}
	} else {
		s.log.Warnw("view all links control not found")
	}
	if err := s.waitFor(ctx, s.present(ShortURLSection), s.t.ShortURLSection); err != nil {
		return fmt.Errorf("short url section: %w", err)
	}
	if err := s.click(ctx, CopyLinkButton.Nth(0)); err != nil {
		return fmt.Errorf("copy link: %w", err)
	}
	return s.pause(ctx, s.t.ClipboardSettle)
}

// LinkExtractor reads the short link from the share panel. Each strategy
// reports false when it found nothing usable.
type LinkExtractor interface {
	TryClipboard(ctx context.Context) (string, bool)
	TryDOMScrape(ctx context.Context) (string, bool)
}

type pageLinks struct {
	s      *session
	prefix string
}

func (p pageLinks) TryClipboard(ctx context.Context) (string, bool) {
	v, err := p.s.page.Clipboard(ctx)
	if err != nil {
		p.s.log.Debugw("clipboard read failed", "error", err)
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, ValidLink(v, p.prefix)
}

func (p pageLinks) TryDOMScrape(ctx context.Context) (string, bool) {
	sel := ShortURLInput(p.prefix)
	if p.s.count(ctx, sel) == 0 {
		return "", false
	}
	v, err := p.s.page.Attr(ctx, sel.Nth(0), "value")
	if err != nil {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, ValidLink(v, p.prefix)
}

// firstSome returns the first strategy result that reports a value.
func firstSome(ctx context.Context, strategies ...func(context.Context) (string, bool)) (string, bool) {
	for _, try := range strategies {
		if v, ok := try(ctx); ok {
			return v, true
		}
	}
	return "", false
}

// extractLink runs the share panel flow and then the extractor's
// strategies, clipboard first.
func (s *session) extractLink(ctx context.Context, ex LinkExtractor) error {
	if err := s.openShareLinks(ctx); err != nil {
		return err
	}
	link, ok := firstSome(ctx, ex.TryClipboard, func(ctx context.Context) (string, bool) {
		s.log.Warnw("clipboard empty or invalid; falling back to page scrape")
		return ex.TryDOMScrape(ctx)
	})
	if !ok {
		return fmt.Errorf("%w: no %s link in clipboard or panel", ErrExtractionFailure, s.cfg.LinkPrefix)
	}
	s.report.Link = link
	s.log.Infow("short link extracted", "link", link)
	return nil
}
