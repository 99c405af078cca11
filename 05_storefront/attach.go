package storefront

import (
	"context"
	"fmt"
	"time"

	"beat-publish-pipeline/poll"
)

// findFileInput polls for the widget's native file input. The widget keeps
// it hidden behind its own UI and may render several; the first one wins.
func (s *session) findFileInput(ctx context.Context, tries int, interval time.Duration) (Selector, error) {
	if tries < 1 {
		tries = 1
	}
	for i := 0; i < tries; i++ {
		if s.count(ctx, WidgetFileInput) > 0 {
			return WidgetFileInput.Nth(0), nil
		}
		if i < tries-1 {
			if err := poll.Sleep(ctx, interval); err != nil {
				return Selector{}, err
			}
		}
	}
	return Selector{}, fmt.Errorf("%w: %s after %d polls", ErrInputNotFound, WidgetFileInput.Name, tries)
}

// attachFile injects path into the widget's file input after forcing the
// input visible and enabled.
func (s *session) attachFile(ctx context.Context, path string, tries int, interval time.Duration) error {
	input, err := s.findFileInput(ctx, tries, interval)
	if err != nil {
		return err
	}
	if err := s.page.Reveal(ctx, input); err != nil {
		return fmt.Errorf("reveal file input: %w", err)
	}
	if err := s.page.SetFiles(ctx, input, path); err != nil {
		return fmt.Errorf("set input file: %w", err)
	}
	return nil
}

// attachInOpenWidget attaches path to the upload modal that is already
// open on the page.
func (s *session) attachInOpenWidget(ctx context.Context, path string) error {
	if err := s.waitVisible(ctx, UploadFileHeading, s.t.WidgetReady); err != nil {
		return fmt.Errorf("upload widget not ready: %w", err)
	}
	if err := s.click(ctx, BrowseFilesLink); err != nil {
		s.log.Debugw("browse files link not clickable", "error", err)
	}
	return s.attachFile(ctx, path, s.t.AttachTries, s.t.AttachInterval)
}
