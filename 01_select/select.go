package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"beat-publish-pipeline/config"
	"beat-publish-pipeline/types"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrNoBeats  = errors.New("no beat files found")
	ErrNoImages = errors.New("no image files found")
)

// Picker chooses the beat, artwork and stems for a run
type Picker struct {
	cfg *config.Config
	rng *rand.Rand
	log *zap.SugaredLogger
}

// New creates a Picker. A nil rng seeds one from the clock.
func New(cfg *config.Config, rng *rand.Rand, log *zap.SugaredLogger) *Picker {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Picker{cfg: cfg, rng: rng, log: log}
}

// Run picks a random beat from a random non-empty artist folder, an image
// from the matching image folder and resolves stems and collaborators.
func (p *Picker) Run(ctx context.Context) (*types.BeatSelection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	folder, beat, err := PickBeat(p.cfg.Paths.Beats, p.cfg.Select.AudioExtensions, p.rng)
	if err != nil {
		return nil, err
	}
	image, err := PickImage(p.cfg.Paths.Images, folder, p.cfg.Select.ImageExtensions, p.rng)
	if err != nil {
		return nil, err
	}

	known, err := LoadCollaborators(p.cfg.Paths.Collaborators)
	if err != nil {
		p.log.Warnw("collaborator list unavailable", "path", p.cfg.Paths.Collaborators, "error", err)
	}

	artist := p.cfg.Select.Artist
	if artist == "" {
		artist = ArtistName(folder)
	}
	sel := &types.BeatSelection{
		Folder:        folder,
		Artist:        artist,
		BeatPath:      beat,
		ImagePath:     image,
		StemsPath:     StemsPath(p.cfg.Paths.Stems, folder, beat),
		Collaborators: ExtractCollaborators(filepath.Base(beat), known),
	}
	p.log.Infow("beat selected",
		"artist", sel.Artist,
		"beat", filepath.Base(sel.BeatPath),
		"image", filepath.Base(sel.ImagePath),
		"collaborators", sel.Collaborators,
	)
	return sel, nil
}

// listFiles returns the visible regular files in dir with one of exts,
// sorted so a seeded rng picks reproducibly.
func listFiles(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if hasExt(name, exts) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// PickBeat chooses a folder under root that holds at least one audio file,
// then a file inside it.
func PickBeat(root string, exts []string, rng *rand.Rand) (folder, path string, err error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", "", fmt.Errorf("read beats dir: %w", err)
	}
	type candidate struct {
		folder string
		files  []string
	}
	var candidates []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := listFiles(filepath.Join(root, e.Name()), exts)
		if err != nil || len(files) == 0 {
			continue
		}
		candidates = append(candidates, candidate{folder: e.Name(), files: files})
	}
	if len(candidates) == 0 {
		return "", "", fmt.Errorf("%w under %s", ErrNoBeats, root)
	}
	c := candidates[rng.Intn(len(candidates))]
	return c.folder, filepath.Join(root, c.folder, c.files[rng.Intn(len(c.files))]), nil
}

// PickImage chooses an image from the folder of the same name under root.
func PickImage(root, folder string, exts []string, rng *rand.Rand) (string, error) {
	dir := filepath.Join(root, folder)
	files, err := listFiles(dir, exts)
	if err != nil || len(files) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoImages, dir)
	}
	return filepath.Join(dir, files[rng.Intn(len(files))]), nil
}

// StemsPath is where the stems archive for beat is expected.
func StemsPath(root, folder, beat string) string {
	base := strings.TrimSuffix(filepath.Base(beat), filepath.Ext(beat))
	return filepath.Join(root, folder, base+".zip")
}

// ArtistName turns a folder name like don_toliver into Don Toliver.
func ArtistName(folder string) string {
	name := strings.NewReplacer("_", " ", "-", " ").Replace(folder)
	name = strings.Join(strings.Fields(name), " ")
	return cases.Title(language.English).String(name)
}

// LoadCollaborators reads the handle to display-name map of known producers.
func LoadCollaborators(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]string{}, err
	}
	known := map[string]string{}
	if err := json.Unmarshal(data, &known); err != nil {
		return map[string]string{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return known, nil
}

var (
	bpmToken    = regexp.MustCompile(`^(bpm)?\d+(bpm)?$`)
	digits      = regexp.MustCompile(`^\d+$`)
	handleNoise = regexp.MustCompile(`^[@_\d]+`)
)

// BPMIndex returns the index of the tempo token among the space separated
// parts of a file name, or -1.
func BPMIndex(parts []string) int {
	for i, part := range parts {
		token := strings.ToLower(part)
		if bpmToken.MatchString(token) {
			return i
		}
		if token == "bpm" && i+1 < len(parts) && digits.MatchString(parts[i+1]) {
			return i + 1
		}
	}
	return -1
}

// ExtractCollaborators returns the producer handles that follow the BPM
// token in filename and appear in known, either as a key or a value.
func ExtractCollaborators(filename string, known map[string]string) []string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Fields(name)
	idx := BPMIndex(parts)
	if idx < 0 {
		return nil
	}
	set := make(map[string]bool, 2*len(known))
	for k, v := range known {
		set[strings.ToLower(k)] = true
		set[strings.ToLower(v)] = true
	}
	var out []string
	for _, p := range parts[idx+1:] {
		handle := strings.ToLower(handleNoise.ReplaceAllString(p, ""))
		if handle != "" && set[handle] {
			out = append(out, handle)
		}
	}
	return out
}
