package selection

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"beat-publish-pipeline/config"
	"beat-publish-pipeline/logger"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestExtractCollaborators(t *testing.T) {
	known := map[string]string{"kai": "Kai Beats", "moprod": "mo"}
	cases := []struct {
		name string
		want []string
	}{
		{"night drive 148 @kai _moprod.mp3", []string{"kai", "moprod"}},
		{"night drive 148bpm kai stranger.wav", []string{"kai"}},
		{"night drive bpm148 mo.mp3", []string{"mo"}},
		{"night drive bpm 150 12kai.mp3", []string{"kai"}},
		{"night drive kai.mp3", nil},
	}
	for _, tc := range cases {
		if got := ExtractCollaborators(tc.name, known); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ExtractCollaborators(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestArtistName(t *testing.T) {
	if got := ArtistName("don_toliver"); got != "Don Toliver" {
		t.Fatalf("ArtistName = %q", got)
	}
	if got := ArtistName("travis-scott"); got != "Travis Scott" {
		t.Fatalf("ArtistName = %q", got)
	}
}

func TestStemsPath(t *testing.T) {
	got := StemsPath("/stems", "don_toliver", "/beats/don_toliver/night 148.mp3")
	if want := filepath.Join("/stems", "don_toliver", "night 148.zip"); got != want {
		t.Fatalf("StemsPath = %q, want %q", got, want)
	}
}

func TestPickBeatSkipsEmptyFolders(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "empty", ".hidden.mp3"))
	touch(t, filepath.Join(root, "empty", "notes.txt"))
	touch(t, filepath.Join(root, "don_toliver", "night 148.MP3"))

	folder, path, err := PickBeat(root, config.Default().Select.AudioExtensions, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("PickBeat: %v", err)
	}
	if folder != "don_toliver" || filepath.Base(path) != "night 148.MP3" {
		t.Fatalf("picked %s / %s", folder, path)
	}
}

func TestPickBeatNoFiles(t *testing.T) {
	_, _, err := PickBeat(t.TempDir(), []string{".mp3"}, rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrNoBeats) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunBuildsSelection(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Beats = filepath.Join(dir, "beats")
	cfg.Paths.Images = filepath.Join(dir, "images")
	cfg.Paths.Stems = filepath.Join(dir, "stems")
	cfg.Paths.Collaborators = filepath.Join(dir, "collaborators.json")
	touch(t, filepath.Join(cfg.Paths.Beats, "don_toliver", "night 148 kai.mp3"))
	touch(t, filepath.Join(cfg.Paths.Images, "don_toliver", "cover.png"))
	if err := os.WriteFile(cfg.Paths.Collaborators, []byte(`{"kai":"Kai"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	log, _ := logger.NewTestLogger()
	sel, err := New(&cfg, rand.New(rand.NewSource(7)), log).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sel.Artist != "Don Toliver" || filepath.Base(sel.ImagePath) != "cover.png" {
		t.Fatalf("selection = %+v", sel)
	}
	if !reflect.DeepEqual(sel.Collaborators, []string{"kai"}) {
		t.Fatalf("collaborators = %v", sel.Collaborators)
	}
	if want := filepath.Join(cfg.Paths.Stems, "don_toliver", "night 148 kai.zip"); sel.StemsPath != want {
		t.Fatalf("stems = %q", sel.StemsPath)
	}
}

func TestRunMissingImages(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Beats = filepath.Join(dir, "beats")
	cfg.Paths.Images = filepath.Join(dir, "images")
	touch(t, filepath.Join(cfg.Paths.Beats, "a", "b.mp3"))

	log, logs := logger.NewTestLogger()
	_, err := New(&cfg, nil, log).Run(context.Background())
	if !errors.Is(err, ErrNoImages) {
		t.Fatalf("err = %v", err)
	}
	if logs.Len() != 0 {
		t.Fatalf("unexpected logs: %v", logs.All())
	}
}
