package storefront

import (
	"context"
	"fmt"
	"os"
)

// openDraft navigates to the dashboard and starts a new track draft.
func (s *session) openDraft(ctx context.Context) error {
	if err := s.page.Navigate(ctx, s.cfg.DashboardURL); err != nil {
		return fmt.Errorf("open dashboard: %w", err)
	}
	if err := s.clickWithRetry(ctx, CreateButton); err != nil {
		return err
	}
	if err := s.pause(ctx, s.t.MenuSettle); err != nil {
		return err
	}
	if err := s.clickWithRetry(ctx, CreateTrackItem); err != nil {
		return err
	}
	if err := s.waitFor(ctx, s.urlContains(s.cfg.DraftPath), s.t.DraftURL); err != nil {
		return fmt.Errorf("draft page: %w", err)
	}
	if ok, _ := s.page.Visible(ctx, DismissButton); ok {
		if err := s.click(ctx, DismissButton); err != nil {
			s.log.Debugw("dismiss popup failed", "error", err)
		}
	}
	return nil
}

// attachAudio hands the beat to the widget opened by the new draft.
func (s *session) attachAudio(ctx context.Context, path string) error {
	s.report.transition(AssetAudio, StateIdle)
	if err := s.attachInOpenWidget(ctx, path); err != nil {
		s.report.transition(AssetAudio, StateFailed)
		return err
	}
	s.report.transition(AssetAudio, StateUploading)
	return nil
}

// awaitAudio follows the master track section until its uploading marker
// has come and gone, then waits for the form to take control back.
func (s *session) awaitAudio(ctx context.Context) error {
	if err := s.waitFor(ctx, s.textContains(MasterTrackSection, uploadingText), s.t.UploadStart); err != nil {
		s.report.transition(AssetAudio, StateFailed)
		return fmt.Errorf("audio upload never started: %w", err)
	}
	s.log.Infow("audio upload started")
	if err := s.waitFor(ctx, s.textLacks(MasterTrackSection, uploadingText), s.t.UploadComplete); err != nil {
		s.report.transition(AssetAudio, StateFailed)
		return fmt.Errorf("audio upload did not complete: %w", err)
	}
	s.report.transition(AssetAudio, StateUploaded)
	if err := s.waitVisible(ctx, AudioNextStep, s.t.AudioHandback); err != nil {
		return fmt.Errorf("form did not resume after audio upload: %w", err)
	}
	return nil
}

// uploadArtwork drives the artwork modal: attach, crop and save, upload,
// then wait for the upload panel to finish. Failures leave a screenshot.
func (s *session) uploadArtwork(ctx context.Context, path string) error {
	s.report.transition(AssetArtwork, StateIdle)
	if err := s.artworkFlow(ctx, path); err != nil {
		s.report.transition(AssetArtwork, StateFailed)
		s.screenshot(ctx, "artwork-failure")
		return err
	}
	s.report.transition(AssetArtwork, StateUploaded)
	return nil
}

func (s *session) artworkFlow(ctx context.Context, path string) error {
	if err := s.click(ctx, EditArtworkButton.Nth(0)); err != nil {
		return fmt.Errorf("open artwork menu: %w", err)
	}
	if err := s.pause(ctx, s.t.ArtworkMenuSettle); err != nil {
		return err
	}
	if err := s.click(ctx, UploadFileItem.Nth(0)); err != nil {
		return fmt.Errorf("choose upload file: %w", err)
	}
	if err := s.waitVisible(ctx, WidgetDashboard, s.t.WidgetDashboard); err != nil {
		return fmt.Errorf("artwork widget: %w", err)
	}
	if err := s.attachFile(ctx, path, s.t.ArtworkAttachTries, s.t.ArtworkAttachInterval); err != nil {
		return err
	}

	s.report.transition(AssetArtwork, StateCropping)
	if err := s.waitVisible(ctx, CropSaveButton, s.t.CropAppear); err != nil {
		return fmt.Errorf("crop editor: %w", err)
	}
	err := s.t.CropClick.Run(ctx, s.log, "crop save", func(ctx context.Context) error {
		clickCtx, cancel := context.WithTimeout(ctx, s.t.CropClickTimeout)
		defer cancel()
		return s.click(clickCtx, CropSaveButton)
	})
	if err != nil {
		return err
	}
	if err := s.waitAbsent(ctx, CropSaveButton, s.t.CropGone); err != nil {
		return fmt.Errorf("crop editor did not close: %w", err)
	}

	upload := UploadFilesButton.Nth(0)
	if err := s.waitVisible(ctx, upload, s.t.UploadButton); err != nil {
		return fmt.Errorf("upload button: %w", err)
	}
	if err := s.click(ctx, upload); err != nil {
		return fmt.Errorf("click upload: %w", err)
	}
	s.report.transition(AssetArtwork, StateUploading)

	if err := s.waitFor(ctx, s.present(UploadPanel), s.t.PanelAppear); err != nil {
		s.log.Warnw("upload panel never appeared; watching for it to clear anyway", "error", err)
	}
	if err := s.waitAbsent(ctx, UploadPanel, s.t.PanelGone); err != nil {
		return fmt.Errorf("artwork processing: %w", err)
	}
	if err := s.waitAbsent(ctx, WidgetDashboard, s.t.WidgetClose); err != nil {
		return fmt.Errorf("artwork widget did not close: %w", err)
	}
	if err := s.waitVisible(ctx, ChangesSaved, s.t.ArtworkSaved); err != nil {
		s.log.Debugw("no save confirmation after artwork", "error", err)
	}
	return nil
}

// uploadStems attaches the optional stems archive. A missing file skips
// the step.
func (s *session) uploadStems(ctx context.Context, path string) error {
	s.report.transition(AssetStems, StateIdle)
	if path == "" {
		s.report.transition(AssetStems, StateSkipped)
		return fmt.Errorf("%w: no stems configured", errStepSkipped)
	}
	if _, err := os.Stat(path); err != nil {
		s.report.transition(AssetStems, StateSkipped)
		return fmt.Errorf("%w: stems file %s not found", errStepSkipped, path)
	}
	if err := s.stemsFlow(ctx, path); err != nil {
		s.report.transition(AssetStems, StateFailed)
		return err
	}
	s.report.transition(AssetStems, StateUploaded)
	return nil
}

func (s *session) stemsFlow(ctx context.Context, path string) error {
	if err := s.waitVisible(ctx, StemSection, s.t.StemSection); err != nil {
		return fmt.Errorf("stem section: %w", err)
	}
	if err := s.click(ctx, StemAddButton.Nth(0)); err != nil {
		return fmt.Errorf("open stems widget: %w", err)
	}
	if err := s.attachInOpenWidget(ctx, path); err != nil {
		return err
	}
	s.report.transition(AssetStems, StateUploading)
	markers := []Selector{ProcessingMarker, UploadingMarker}
	if _, err := s.waitAnyVisible(ctx, markers, s.t.StemStart); err != nil {
		return fmt.Errorf("stems upload never started: %w", err)
	}
	if err := s.waitAllHidden(ctx, markers, s.t.StemComplete); err != nil {
		return fmt.Errorf("stems upload did not complete: %w", err)
	}
	return nil
}
