package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	storefront "beat-publish-pipeline/05_storefront"
	"beat-publish-pipeline/05_storefront/storefronttest"
	"beat-publish-pipeline/config"
	"beat-publish-pipeline/logger"
	"beat-publish-pipeline/types"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type fixedSelector struct{ sel *types.BeatSelection }

func (f fixedSelector) Run(context.Context) (*types.BeatSelection, error) { return f.sel, nil }

type fixedAnalyzer struct{}

func (fixedAnalyzer) Run(context.Context, string) (*types.AudioMeta, error) {
	return &types.AudioMeta{BPM: 148, Key: "C#m", Source: "filename"}, nil
}

type fixedTags struct{ err error }

func (f fixedTags) Run(context.Context, string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []string{"don toliver type beat", "trap beat"}, nil
}

type fakeMetadata struct{ gotTrending []string }

func (f *fakeMetadata) Run(_ context.Context, artist string, audio types.AudioMeta, trending []string, _ types.Contact) (*types.GeneratedMetadata, error) {
	f.gotTrending = trending
	return &types.GeneratedMetadata{
		Title:          "[FREE] " + strings.ToUpper(artist) + " TYPE BEAT - NIGHT",
		StorefrontTags: []string{"trap", "melodic", "dark"},
		PlatformTags:   trending,
		Description:    "Beat inspired by " + artist + "\n\nDownload/Purchase: STOREFRONT_LINK",
	}, nil
}

type fakeRender struct{ out string }

func (f fakeRender) Run(context.Context, *types.BeatSelection) (string, error) {
	return f.out, os.WriteFile(f.out, []byte("mp4"), 0o644)
}

type fakeUpload struct {
	calls int
	got   *types.GeneratedMetadata
	err   error
}

func (f *fakeUpload) Run(_ context.Context, _ string, md *types.GeneratedMetadata) (string, error) {
	f.calls++
	f.got = md
	if f.err != nil {
		return "", f.err
	}
	return "https://youtu.be/vid123", nil
}

type fixture struct {
	cfg     *config.Config
	sel     *types.BeatSelection
	video   string
	meta    *fakeMetadata
	upload  *fakeUpload
	opener  *storefronttest.Opener
	removed []string
	p       *Pipeline
}

func newFixture(t *testing.T, sim func(*storefronttest.Simulator)) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Output = filepath.Join(dir, "output")
	cfg.Paths.LastMetadata = filepath.Join(dir, "last_gen_metadata.json")
	cfg.Paths.LastLink = filepath.Join(dir, "last_published_link.txt")

	f := &fixture{cfg: &cfg, video: filepath.Join(dir, "beat.mp4"), meta: &fakeMetadata{}, upload: &fakeUpload{}}
	f.sel = &types.BeatSelection{
		Folder:    "don_toliver",
		Artist:    "Don Toliver",
		BeatPath:  filepath.Join(dir, "beat.mp3"),
		ImagePath: filepath.Join(dir, "art.png"),
		StemsPath: filepath.Join(dir, "missing.zip"),
	}
	for _, path := range []string{f.sel.BeatPath, f.sel.ImagePath} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	f.opener = &storefronttest.Opener{Factory: func(int) *storefronttest.Simulator {
		s := storefronttest.New()
		if sim != nil {
			sim(s)
		}
		return s
	}}
	pub := storefront.New(storefronttest.Config(), f.opener, zap.NewNop().Sugar(), storefront.WithTimings(storefronttest.Timings()))
	f.p = New(&cfg, Stages{
		Select:     fixedSelector{f.sel},
		Analyze:    fixedAnalyzer{},
		Trending:   fixedTags{},
		Metadata:   f.meta,
		Render:     fakeRender{f.video},
		Storefront: pub,
		Upload:     f.upload,
	}, zap.NewNop().Sugar())
	f.p.remove = func(path string) error {
		f.removed = append(f.removed, path)
		return os.Remove(path)
	}
	return f
}

func TestRunEndToEnd(t *testing.T) {
	f := newFixture(t, nil)
	state, err := f.p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.ShortURL != "https://bsta.rs/abc123" || state.Attempts != 1 || state.WatchURL != "https://youtu.be/vid123" {
		t.Fatalf("state = %+v", state)
	}
	want := []string{f.sel.BeatPath, f.sel.ImagePath, f.video}
	if !reflect.DeepEqual(f.removed, want) || !reflect.DeepEqual(state.Deleted, want) {
		t.Fatalf("removed %v, deleted %v, want %v once each", f.removed, state.Deleted, want)
	}
	for _, path := range want {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s still exists", path)
		}
	}
	if f.upload.calls != 1 || !strings.Contains(f.upload.got.Description, "Download/Purchase: https://bsta.rs/abc123") {
		t.Fatalf("upload got %+v", f.upload.got)
	}
	if sim := f.opener.Opened[0]; !reflect.DeepEqual(sim.Tags, []string{"trap", "melodic", "dark"}) {
		t.Fatalf("storefront tags = %v", sim.Tags)
	}

	link, err := os.ReadFile(f.cfg.Paths.LastLink)
	if err != nil || strings.TrimSpace(string(link)) != "https://bsta.rs/abc123" {
		t.Fatalf("last link = %q, %v", link, err)
	}
	if _, err := os.Stat(f.cfg.Paths.LastMetadata); err != nil {
		t.Fatalf("last metadata: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(f.cfg.Paths.Output, state.RunID, "pipeline_state.json"))
	if err != nil {
		t.Fatalf("run state: %v", err)
	}
	var saved types.PipelineState
	if err := json.Unmarshal(data, &saved); err != nil || saved.WatchURL != state.WatchURL || saved.CompletedAt == "" {
		t.Fatalf("saved state = %s", data)
	}
}

func TestRunKeepsFilesWhenStorefrontFails(t *testing.T) {
	f := newFixture(t, func(s *storefronttest.Simulator) {
		s.SkipUploadingMarker = true
		s.NoSharePanel = true
	})
	state, err := f.p.Run(context.Background())
	if !errors.Is(err, storefront.ErrAllAttemptsFailed) {
		t.Fatalf("err = %v", err)
	}
	if state.Attempts != 3 || state.Error == "" {
		t.Fatalf("state = %+v", state)
	}
	if f.upload.calls != 0 || len(f.removed) != 0 {
		t.Fatalf("upload calls %d, removed %v", f.upload.calls, f.removed)
	}
	if _, err := os.Stat(f.sel.BeatPath); err != nil {
		t.Fatal("beat must survive a failed run")
	}
	if _, err := os.Stat(f.video); !errors.Is(err, os.ErrNotExist) || state.VideoFile != "" {
		t.Fatalf("video composed before a store link existed: %v %q", err, state.VideoFile)
	}
}

func TestRunSkipsRenderWithoutDraft(t *testing.T) {
	f := newFixture(t, func(s *storefronttest.Simulator) {
		s.NoDraft = true
	})
	if _, err := f.p.Run(context.Background()); err == nil {
		t.Fatal("expected storefront failure")
	}
	if _, err := os.Stat(f.video); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("video should not exist: %v", err)
	}
	if f.upload.calls != 0 {
		t.Fatalf("upload calls = %d", f.upload.calls)
	}
}

func TestRunKeepsFilesWhenVideoUploadFails(t *testing.T) {
	f := newFixture(t, nil)
	f.upload.err = errors.New("quota exceeded")
	state, err := f.p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err = %v", err)
	}
	if state.ShortURL == "" || len(f.removed) != 0 {
		t.Fatalf("short url %q, removed %v", state.ShortURL, f.removed)
	}
}

func TestRunContinuesWithoutTrendingTags(t *testing.T) {
	f := newFixture(t, nil)
	core, logs := logger.NewTestLogger()
	f.p.log = core
	f.p.stages.Trending = fixedTags{err: errors.New("search: 403")}
	if _, err := f.p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.meta.gotTrending == nil || len(f.meta.gotTrending) != 0 {
		t.Fatalf("trending = %#v", f.meta.gotTrending)
	}
	if logs.FilterMessage("trending tags failed; continuing without them").Len() != 1 {
		t.Fatal("expected a trending warning")
	}
}

func TestCleanupSkipsMissingFiles(t *testing.T) {
	f := newFixture(t, nil)
	gone := filepath.Join(t.TempDir(), "gone.mp4")
	got := f.p.cleanup(zap.NewNop().Sugar(), f.sel.BeatPath, gone, f.sel.ImagePath)
	if !reflect.DeepEqual(got, []string{f.sel.BeatPath, f.sel.ImagePath}) {
		t.Fatalf("deleted = %v", got)
	}
}

type tokenFunc func() (*oauth2.Token, error)

func (f tokenFunc) Token() (*oauth2.Token, error) { return f() }

func validToken() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)}, nil
}

func writeSession(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	body := `{"cookies":[{"name":"sid","value":"v","domain":".beatstars.com","path":"/","expires":-1}],"origins":[]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPreflight(t *testing.T) {
	log := zap.NewNop().Sugar()
	session := writeSession(t)
	if _, err := Preflight(session, tokenFunc(validToken), log); err != nil {
		t.Fatalf("Preflight: %v", err)
	}

	if _, err := Preflight(filepath.Join(t.TempDir(), "none.json"), tokenFunc(validToken), log); !errors.Is(err, ErrPreflight) {
		t.Fatalf("missing session err = %v", err)
	}

	empty := filepath.Join(t.TempDir(), "empty.json")
	os.WriteFile(empty, []byte(`{"cookies":[],"origins":[]}`), 0o600)
	if _, err := Preflight(empty, tokenFunc(validToken), log); !errors.Is(err, ErrPreflight) {
		t.Fatalf("empty session err = %v", err)
	}

	revoked := tokenFunc(func() (*oauth2.Token, error) { return nil, errors.New("invalid_grant") })
	if _, err := Preflight(session, revoked, log); !errors.Is(err, ErrPreflight) {
		t.Fatalf("revoked token err = %v", err)
	}
}

func TestLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", ".pipeline.lock")
	unlock, err := Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := Lock(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("second lock err = %v", err)
	}
	if err := unlock(); err != nil {
		t.Fatal(err)
	}
	again, err := Lock(path)
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}
