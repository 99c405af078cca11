package storefront_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	storefront "beat-publish-pipeline/05_storefront"
	"beat-publish-pipeline/05_storefront/storefronttest"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newRequest(t *testing.T) storefront.UploadRequest {
	t.Helper()
	dir := t.TempDir()
	stems := filepath.Join(dir, "beat.zip")
	if err := os.WriteFile(stems, []byte("zip"), 0o644); err != nil {
		t.Fatalf("write stems: %v", err)
	}
	return storefront.UploadRequest{
		AudioPath:     filepath.Join(dir, "beat.mp3"),
		ArtworkPath:   filepath.Join(dir, "art.png"),
		StemsPath:     stems,
		Title:         "[FREE] Don Toliver Type Beat - Night",
		Tags:          []string{"don toliver type beat", "trap", "free beat", "extra"},
		Collaborators: []string{"kai", "mo"},
	}
}

func newPublisher(opener storefront.Opener, cfg storefront.Config) (*storefront.Publisher, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	pub := storefront.New(cfg, opener, zap.New(core).Sugar(), storefront.WithTimings(storefronttest.Timings()))
	return pub, logs
}

func TestPublishFirstAttemptSuccess(t *testing.T) {
	opener := &storefronttest.Opener{}
	pub, logs := newPublisher(opener, storefronttest.Config())
	req := newRequest(t)

	out, err := pub.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if out.ShortURL != "https://bsta.rs/abc123" || out.Attempt != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(opener.Opened) != 1 || opener.Released != 1 {
		t.Fatalf("opened %d contexts, released %d", len(opener.Opened), opener.Released)
	}

	sim := opener.Opened[0]
	if sim.Title != req.Title {
		t.Fatalf("title = %q", sim.Title)
	}
	if want := req.Tags[:3]; !reflect.DeepEqual(sim.Tags, want) {
		t.Fatalf("tags = %v, want %v", sim.Tags, want)
	}
	if !reflect.DeepEqual(sim.Collaborators, []string{"kai", "mo"}) {
		t.Fatalf("collaborators = %v", sim.Collaborators)
	}
	if want := []string{req.AudioPath, req.ArtworkPath, req.StemsPath}; !reflect.DeepEqual(sim.Attached, want) {
		t.Fatalf("attached = %v, want %v", sim.Attached, want)
	}
	if !sim.Autofilled || !sim.Published || !sim.PanelSeen() {
		t.Fatalf("autofilled=%v published=%v panel=%v", sim.Autofilled, sim.Published, sim.PanelSeen())
	}
	if failed := out.Report.Failed(); len(failed) != 0 {
		t.Fatalf("failed steps: %+v", failed)
	}
	if n := len(logs.FilterLevelExact(zapcore.WarnLevel).All()); n != 0 {
		t.Fatalf("unexpected warnings: %d", n)
	}
}

func TestAudioUploadTransitionsOnce(t *testing.T) {
	opener := &storefronttest.Opener{}
	pub, _ := newPublisher(opener, storefronttest.Config())

	out, err := pub.Publish(context.Background(), newRequest(t))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	want := []storefront.AssetState{storefront.StateIdle, storefront.StateUploading, storefront.StateUploaded}
	if got := out.Report.Assets[storefront.AssetAudio]; !reflect.DeepEqual(got, want) {
		t.Fatalf("audio states = %v, want %v", got, want)
	}
	wantArt := []storefront.AssetState{storefront.StateIdle, storefront.StateCropping, storefront.StateUploading, storefront.StateUploaded}
	if got := out.Report.Assets[storefront.AssetArtwork]; !reflect.DeepEqual(got, wantArt) {
		t.Fatalf("artwork states = %v, want %v", got, wantArt)
	}
}

func TestMissingUploadingMarkerIsNotFatal(t *testing.T) {
	opener := &storefronttest.Opener{Factory: func(int) *storefronttest.Simulator {
		sim := storefronttest.New()
		sim.SkipUploadingMarker = true
		sim.NoSharePanel = true
		return sim
	}}
	pub, logs := newPublisher(opener, storefronttest.Config())
	req := newRequest(t)

	_, err := pub.Publish(context.Background(), req)
	var attempts *storefront.AttemptsError
	if !errors.As(err, &attempts) {
		t.Fatalf("err = %v, want *AttemptsError", err)
	}
	if len(attempts.Reports) != 3 || len(opener.Opened) != 3 {
		t.Fatalf("reports=%d opened=%d", len(attempts.Reports), len(opener.Opened))
	}
	for i, sim := range opener.Opened {
		if sim.Title != req.Title || len(sim.Tags) != 3 {
			t.Fatalf("attempt %d: metadata not filled: title=%q tags=%v", i+1, sim.Title, sim.Tags)
		}
	}
	res, ok := attempts.Reports[0].Result(storefront.StepAudioUpload)
	if !ok || !errors.Is(res.Err, storefront.ErrTimeoutExceeded) {
		t.Fatalf("audio upload result = %+v", res)
	}
	if got := attempts.Reports[0].State(storefront.AssetAudio); got != storefront.StateFailed {
		t.Fatalf("audio state = %s", got)
	}
	if len(logs.FilterMessage("step failed").All()) == 0 {
		t.Fatal("swallowed failures were not logged")
	}
}

func TestMissingUploadingMarkerWithLinkSucceeds(t *testing.T) {
	opener := &storefronttest.Opener{Factory: func(int) *storefronttest.Simulator {
		sim := storefronttest.New()
		sim.SkipUploadingMarker = true
		return sim
	}}
	pub, _ := newPublisher(opener, storefronttest.Config())

	out, err := pub.Publish(context.Background(), newRequest(t))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res, _ := out.Report.Result(storefront.StepAudioUpload); res.OK() {
		t.Fatal("audio upload should be recorded as failed")
	}
}

func TestClipboardFallsBackToPage(t *testing.T) {
	opener := &storefronttest.Opener{Factory: func(int) *storefronttest.Simulator {
		sim := storefronttest.New()
		sim.ShortURL = "https://bsta.rs/"
		sim.DOMValue = "https://bsta.rs/abc"
		return sim
	}}
	pub, logs := newPublisher(opener, storefronttest.Config())

	out, err := pub.Publish(context.Background(), newRequest(t))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if out.ShortURL != "https://bsta.rs/abc" {
		t.Fatalf("short url = %q", out.ShortURL)
	}
	if logs.FilterMessageSnippet("falling back").Len() != 1 {
		t.Fatal("fallback was not logged")
	}
}

func TestInvalidLinkRetriesFromTheTop(t *testing.T) {
	opener := &storefronttest.Opener{Factory: func(n int) *storefronttest.Simulator {
		sim := storefronttest.New()
		if n == 1 {
			sim.ShortURL = "http://evil.com"
			sim.DOMValue = "http://evil.com/x"
		}
		return sim
	}}
	pub, _ := newPublisher(opener, storefronttest.Config())

	out, err := pub.Publish(context.Background(), newRequest(t))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if out.Attempt != 2 || len(opener.Opened) != 2 {
		t.Fatalf("attempt=%d opened=%d", out.Attempt, len(opener.Opened))
	}
	if len(opener.Opened[1].Attached) == 0 {
		t.Fatal("second attempt did not re-upload")
	}
}

func TestFatalDraftFailureExhaustsAttempts(t *testing.T) {
	opener := &storefronttest.Opener{Factory: func(int) *storefronttest.Simulator {
		sim := storefronttest.New()
		sim.NoDraft = true
		return sim
	}}
	pub, _ := newPublisher(opener, storefronttest.Config())

	_, err := pub.Publish(context.Background(), newRequest(t))
	if !errors.Is(err, storefront.ErrAllAttemptsFailed) || !errors.Is(err, storefront.ErrTimeoutExceeded) {
		t.Fatalf("err = %v", err)
	}
	var attempts *storefront.AttemptsError
	if !errors.As(err, &attempts) || len(attempts.Reports) != 3 {
		t.Fatalf("reports = %v", attempts)
	}
	for _, r := range attempts.Reports {
		if len(r.Steps) != 1 || r.Steps[0].Step != storefront.StepOpenDraft {
			t.Fatalf("attempt %d ran past the fatal step: %+v", r.Attempt, r.Steps)
		}
	}
	if opener.Released != 3 {
		t.Fatalf("released %d contexts", opener.Released)
	}
}

func TestCropSaveIsRetried(t *testing.T) {
	opener := &storefronttest.Opener{Factory: func(int) *storefronttest.Simulator {
		sim := storefronttest.New()
		sim.CropFailClicks = 2
		return sim
	}}
	pub, logs := newPublisher(opener, storefronttest.Config())

	out, err := pub.Publish(context.Background(), newRequest(t))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := out.Report.State(storefront.AssetArtwork); got != storefront.StateUploaded {
		t.Fatalf("artwork state = %s", got)
	}
	if n := logs.FilterMessage("attempt failed").FilterField(zap.String("action", "crop save")).Len(); n != 2 {
		t.Fatalf("crop retries logged = %d", n)
	}
}

func TestMissedUploadPanelIsOnlyLogged(t *testing.T) {
	opener := &storefronttest.Opener{Factory: func(int) *storefronttest.Simulator {
		sim := storefronttest.New()
		sim.PanelTicks = 0
		return sim
	}}
	pub, logs := newPublisher(opener, storefronttest.Config())

	out, err := pub.Publish(context.Background(), newRequest(t))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if out.Attempt != 1 || out.ShortURL != "https://bsta.rs/abc123" {
		t.Fatalf("outcome = %+v", out)
	}
	if got := out.Report.State(storefront.AssetArtwork); got != storefront.StateUploaded {
		t.Fatalf("artwork state = %s", got)
	}
	if opener.Opened[0].PanelSeen() {
		t.Fatal("panel should never have been shown")
	}
	if n := logs.FilterLevelExact(zapcore.WarnLevel).FilterMessageSnippet("upload panel never appeared").Len(); n != 1 {
		t.Fatalf("panel warnings = %d, want 1", n)
	}
}

func TestArtworkFailureTakesScreenshotAndContinues(t *testing.T) {
	opener := &storefronttest.Opener{Factory: func(int) *storefronttest.Simulator {
		sim := storefronttest.New()
		sim.CropFailClicks = 10
		return sim
	}}
	cfg := storefronttest.Config()
	cfg.DiagnosticsDir = t.TempDir()
	pub, _ := newPublisher(opener, cfg)
	req := newRequest(t)

	out, err := pub.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	res, _ := out.Report.Result(storefront.StepArtwork)
	if !errors.Is(res.Err, storefront.ErrActionFailed) {
		t.Fatalf("artwork err = %v", res.Err)
	}
	sim := opener.Opened[0]
	want := filepath.Join(cfg.DiagnosticsDir, "artwork-failure-attempt1.png")
	if !reflect.DeepEqual(sim.Screenshots, []string{want}) {
		t.Fatalf("screenshots = %v", sim.Screenshots)
	}
	if sim.Title != req.Title {
		t.Fatal("title step did not run after artwork failure")
	}
}

func TestMissingStemsAreSkipped(t *testing.T) {
	opener := &storefronttest.Opener{}
	pub, _ := newPublisher(opener, storefronttest.Config())
	req := newRequest(t)
	req.StemsPath = filepath.Join(t.TempDir(), "missing.zip")

	out, err := pub.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	res, ok := out.Report.Result(storefront.StepStems)
	if !ok || !res.Skipped || res.Err != nil {
		t.Fatalf("stems result = %+v", res)
	}
	if got := out.Report.State(storefront.AssetStems); got != storefront.StateSkipped {
		t.Fatalf("stems state = %s", got)
	}
	if len(opener.Opened[0].Attached) != 2 {
		t.Fatalf("attached = %v", opener.Opened[0].Attached)
	}
}

func TestMissingInputsAreLogged(t *testing.T) {
	opener := &storefronttest.Opener{Factory: func(int) *storefronttest.Simulator {
		sim := storefronttest.New()
		sim.NoTitleInput = true
		sim.NoTagInput = true
		return sim
	}}
	pub, _ := newPublisher(opener, storefronttest.Config())

	out, err := pub.Publish(context.Background(), newRequest(t))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for _, step := range []storefront.Step{storefront.StepTitle, storefront.StepTags} {
		res, _ := out.Report.Result(step)
		if !errors.Is(res.Err, storefront.ErrInputNotFound) {
			t.Fatalf("%s err = %v", step, res.Err)
		}
	}
}

func TestPublishHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub, _ := newPublisher(&storefronttest.Opener{}, storefronttest.Config())

	_, err := pub.Publish(ctx, newRequest(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
