package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"beat-publish-pipeline/01_select"
	"beat-publish-pipeline/config"
	"beat-publish-pipeline/types"

	"github.com/bogem/id3v2"
	"go.uber.org/zap"
)

// ErrNoTempo is returned when no detector could determine a BPM.
var ErrNoTempo = errors.New("no detectable tempo")

const unknownKey = "unknown"

// Detector derives tempo and key from one source of information.
type Detector interface {
	Name() string
	Detect(ctx context.Context, path string) (types.AudioMeta, error)
}

// Analyzer runs detectors in order and keeps the first that finds a tempo
type Analyzer struct {
	detectors []Detector
	log       *zap.SugaredLogger
}

// New builds the default chain: external analyzer command (when
// configured), ID3 frames, then the BPM token in the file name.
func New(cfg *config.Config, log *zap.SugaredLogger) *Analyzer {
	var ds []Detector
	if len(cfg.Analyze.Command) > 0 {
		ds = append(ds, CommandDetector{Args: cfg.Analyze.Command, Timeout: cfg.Analyze.Timeout})
	}
	ds = append(ds, ID3Detector{}, FilenameDetector{})
	return NewWithDetectors(log, ds...)
}

func NewWithDetectors(log *zap.SugaredLogger, ds ...Detector) *Analyzer {
	return &Analyzer{detectors: ds, log: log}
}

// Run returns the audio metadata of path. It fails if the file cannot be
// read or if no detector reports a tempo.
func (a *Analyzer) Run(ctx context.Context, path string) (*types.AudioMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open beat: %w", err)
	}
	f.Close()

	var errs []error
	for _, d := range a.detectors {
		meta, err := d.Detect(ctx, path)
		if err == nil && meta.BPM <= 0 {
			err = ErrNoTempo
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.log.Debugw("detector found nothing", "detector", d.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
			continue
		}
		if strings.TrimSpace(meta.Key) == "" {
			meta.Key = unknownKey
		}
		meta.Source = d.Name()
		a.log.Infow("audio analysed", "bpm", meta.BPM, "key", meta.Key, "confidence", meta.Confidence, "source", meta.Source)
		return &meta, nil
	}
	return nil, fmt.Errorf("%w in %s: %w", ErrNoTempo, filepath.Base(path), errors.Join(errs...))
}

// CommandDetector runs an external analyzer with the beat path appended to
// Args. It must print {"bpm":..,"key":..,"confidence":..} on stdout.
type CommandDetector struct {
	Args    []string
	Timeout time.Duration
}

func (CommandDetector) Name() string { return "analyzer" }

func (c CommandDetector) Detect(ctx context.Context, path string) (types.AudioMeta, error) {
	if len(c.Args) == 0 {
		return types.AudioMeta{}, errors.New("no analyzer command")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	args := append(append([]string{}, c.Args[1:]...), path)
	cmd := exec.CommandContext(ctx, c.Args[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return types.AudioMeta{}, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	var res struct {
		BPM        float64 `json:"bpm"`
		Key        string  `json:"key"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(out), &res); err != nil {
		return types.AudioMeta{}, fmt.Errorf("parse analyzer output: %w", err)
	}
	return types.AudioMeta{BPM: int(math.Round(res.BPM)), Key: res.Key, Confidence: res.Confidence}, nil
}

// ID3Detector reads the TBPM and TKEY frames.
type ID3Detector struct{}

func (ID3Detector) Name() string { return "id3" }

func (ID3Detector) Detect(_ context.Context, path string) (types.AudioMeta, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true, ParseFrames: []string{"BPM", "Initial key"}})
	if err != nil {
		return types.AudioMeta{}, err
	}
	defer tag.Close()

	raw := strings.TrimSpace(tag.GetTextFrame(tag.CommonID("BPM")).Text)
	if raw == "" {
		return types.AudioMeta{}, ErrNoTempo
	}
	bpm, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return types.AudioMeta{}, fmt.Errorf("TBPM %q: %w", raw, err)
	}
	key := strings.TrimSpace(tag.GetTextFrame(tag.CommonID("Initial key")).Text)
	return types.AudioMeta{BPM: int(math.Round(bpm)), Key: key, Confidence: 1}, nil
}

// FilenameDetector takes the tempo from the BPM token producers put in
// file names ("night 148 kai.mp3", "night 148bpm.wav").
type FilenameDetector struct{}

func (FilenameDetector) Name() string { return "filename" }

func (FilenameDetector) Detect(_ context.Context, path string) (types.AudioMeta, error) {
	name := filepath.Base(path)
	parts := strings.Fields(strings.TrimSuffix(name, filepath.Ext(name)))
	idx := selection.BPMIndex(parts)
	if idx < 0 {
		return types.AudioMeta{}, ErrNoTempo
	}
	token := strings.Trim(strings.ToLower(parts[idx]), "bpm")
	bpm, err := strconv.Atoi(token)
	if err != nil || bpm <= 0 {
		return types.AudioMeta{}, fmt.Errorf("%w: token %q", ErrNoTempo, parts[idx])
	}
	return types.AudioMeta{BPM: bpm, Key: unknownKey}, nil
}
