package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"beat-publish-pipeline/config"
	"beat-publish-pipeline/types"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// CommandRunner runs an external program.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Renderer turns the beat and its artwork into a still-image video
type Renderer struct {
	cfg *config.Config
	run CommandRunner
	log *zap.SugaredLogger
}

// New creates a new Renderer
func New(cfg *config.Config, log *zap.SugaredLogger) *Renderer {
	return &Renderer{cfg: cfg, run: execRunner, log: log}
}

// WithRunner replaces the ffmpeg runner.
func (r *Renderer) WithRunner(run CommandRunner) *Renderer {
	r.run = run
	return r
}

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w\n%s", name, err, tail(string(out), 2000))
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Run letterboxes the artwork and composes <videos>/<beat name>.mp4.
func (r *Renderer) Run(ctx context.Context, sel *types.BeatSelection) (string, error) {
	base := strings.TrimSuffix(filepath.Base(sel.BeatPath), filepath.Ext(sel.BeatPath))
	frame := filepath.Join(r.cfg.Paths.Output, "frames", base+".jpg")
	if err := Letterbox(sel.ImagePath, frame, r.cfg.Render.Width, r.cfg.Render.Height); err != nil {
		return "", fmt.Errorf("prepare image: %w", err)
	}
	r.log.Debugw("image letterboxed", "src", sel.ImagePath, "frame", frame)

	out := filepath.Join(r.cfg.Paths.Videos, base+".mp4")
	if err := os.MkdirAll(r.cfg.Paths.Videos, 0o755); err != nil {
		return "", err
	}
	r.log.Infow("composing video", "audio", sel.BeatPath, "out", out)
	if err := r.run(ctx, r.cfg.Render.FFmpeg, FFmpegArgs(r.cfg.Render, frame, sel.BeatPath, out)...); err != nil {
		return "", fmt.Errorf("compose video: %w", err)
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("compose video: no output: %w", err)
	}
	r.log.Infow("video ready", "file", out)
	return out, nil
}

// FFmpegArgs loops one frame over the audio until the audio ends.
func FFmpegArgs(rc config.RenderConfig, frame, audio, out string) []string {
	return []string{
		"-y",
		"-loop", "1",
		"-framerate", strconv.Itoa(rc.FPS),
		"-i", frame,
		"-i", audio,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-crf", strconv.Itoa(rc.CRF),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", rc.AudioBitrate,
		"-shortest",
		out,
	}
}

// Fit returns the size of a w×h image scaled down, never up, to fit
// inside maxW×maxH with its aspect ratio kept.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	if w*maxH > h*maxW {
		return maxW, max(1, h*maxW/w)
	}
	return max(1, w*maxH/h), maxH
}

// Letterbox centers the image at src on a black w×h canvas and writes it to
// dst as JPEG.
func Letterbox(src, dst string, w, h int) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", src, err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	b := img.Bounds()
	fw, fh := Fit(b.Dx(), b.Dy(), w, h)
	x, y := (w-fw)/2, (h-fh)/2
	draw.CatmullRom.Scale(canvas, image.Rect(x, y, x+fw, y+fh), img, b, draw.Over, nil)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(out, canvas, &jpeg.Options{Quality: 95}); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
