// Package pipeline runs one beat from the local library to both storefronts:
// pick, analyze, tag, describe, publish to the beat store, render and upload
// the video, then clean up the local files.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	metadata "beat-publish-pipeline/04_metadata"
	storefront "beat-publish-pipeline/05_storefront"
	"beat-publish-pipeline/config"
	"beat-publish-pipeline/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Selector interface {
	Run(ctx context.Context) (*types.BeatSelection, error)
}

type Analyzer interface {
	Run(ctx context.Context, path string) (*types.AudioMeta, error)
}

type TagSource interface {
	Run(ctx context.Context, artist string) ([]string, error)
}

type MetadataGenerator interface {
	Run(ctx context.Context, artist string, audio types.AudioMeta, trending []string, contact types.Contact) (*types.GeneratedMetadata, error)
}

type Renderer interface {
	Run(ctx context.Context, sel *types.BeatSelection) (string, error)
}

type Storefront interface {
	Publish(ctx context.Context, req storefront.UploadRequest) (storefront.Outcome, error)
}

type VideoUploader interface {
	Run(ctx context.Context, videoFile string, md *types.GeneratedMetadata) (string, error)
}

// Stages are the collaborators of one run, in execution order.
type Stages struct {
	Select     Selector
	Analyze    Analyzer
	Trending   TagSource
	Metadata   MetadataGenerator
	Render     Renderer
	Storefront Storefront
	Upload     VideoUploader
}

// Pipeline drives the stages for one beat
type Pipeline struct {
	cfg    *config.Config
	stages Stages
	log    *zap.SugaredLogger
	remove func(string) error
	now    func() time.Time
}

// New creates a Pipeline.
func New(cfg *config.Config, stages Stages, log *zap.SugaredLogger) *Pipeline {
	return &Pipeline{cfg: cfg, stages: stages, log: log, remove: os.Remove, now: time.Now}
}

// Run executes every stage once. The returned state is always non-nil and is
// also written to <output>/<run id>/pipeline_state.json.
func (p *Pipeline) Run(ctx context.Context) (state *types.PipelineState, err error) {
	runID := uuid.NewString()[:8]
	runDir := filepath.Join(p.cfg.Paths.Output, runID)
	log := p.log.With("run", runID)
	state = &types.PipelineState{RunID: runID, StartedAt: p.now().UTC().Format(time.RFC3339)}

	defer func() {
		state.CompletedAt = p.now().UTC().Format(time.RFC3339)
		if err != nil {
			state.Error = err.Error()
		}
		if serr := saveJSON(filepath.Join(runDir, "pipeline_state.json"), state); serr != nil {
			log.Warnw("could not save run state", "error", serr)
		}
	}()
	log.Infow("pipeline starting", "output", runDir)

	sel, err := p.stages.Select.Run(ctx)
	if err != nil {
		return state, fmt.Errorf("select: %w", err)
	}
	state.Selection = sel

	audio, err := p.stages.Analyze.Run(ctx, sel.BeatPath)
	if err != nil {
		return state, fmt.Errorf("analyze: %w", err)
	}
	state.Audio = audio

	trending, err := p.stages.Trending.Run(ctx, sel.Artist)
	if err != nil {
		if ctx.Err() != nil {
			return state, ctx.Err()
		}
		log.Warnw("trending tags failed; continuing without them", "error", err)
		trending = []string{}
	}
	state.Trending = trending

	contact := types.Contact{Instagram: p.cfg.Secrets.Instagram, Email: p.cfg.Secrets.Email}
	md, err := p.stages.Metadata.Run(ctx, sel.Artist, *audio, trending, contact)
	if err != nil {
		return state, fmt.Errorf("metadata: %w", err)
	}
	state.Metadata = md
	if err := metadata.Save(p.cfg.Paths.LastMetadata, md); err != nil {
		log.Warnw("could not save generated metadata", "path", p.cfg.Paths.LastMetadata, "error", err)
	}

	outcome, err := p.stages.Storefront.Publish(ctx, storefront.UploadRequest{
		AudioPath:     sel.BeatPath,
		ArtworkPath:   sel.ImagePath,
		StemsPath:     sel.StemsPath,
		Title:         md.Title,
		Tags:          md.StorefrontTags,
		Collaborators: sel.Collaborators,
	})
	var attemptsErr *storefront.AttemptsError
	switch {
	case errors.As(err, &attemptsErr):
		state.Attempts = len(attemptsErr.Reports)
		return state, fmt.Errorf("storefront: %w", err)
	case err != nil:
		return state, fmt.Errorf("storefront: %w", err)
	}
	state.Attempts = outcome.Attempt
	state.ShortURL = outcome.ShortURL
	if err := writeFile(p.cfg.Paths.LastLink, []byte(outcome.ShortURL+"\n")); err != nil {
		log.Warnw("could not save published link", "path", p.cfg.Paths.LastLink, "error", err)
	}

	video, err := p.stages.Render.Run(ctx, sel)
	if err != nil {
		return state, fmt.Errorf("render: %w", err)
	}
	state.VideoFile = video

	withLink := *md
	withLink.Description = strings.ReplaceAll(md.Description, p.cfg.Metadata.LinkPlaceholder, outcome.ShortURL)
	watch, err := p.stages.Upload.Run(ctx, video, &withLink)
	if err != nil {
		return state, fmt.Errorf("video upload: %w", err)
	}
	state.WatchURL = watch

	state.Deleted = p.cleanup(log, sel.BeatPath, sel.ImagePath, video)
	log.Infow("pipeline complete", "short_url", state.ShortURL, "watch_url", watch, "deleted", len(state.Deleted))
	return state, nil
}

// cleanup removes paths in order. A missing file is skipped and a failed
// removal is only logged.
func (p *Pipeline) cleanup(log *zap.SugaredLogger, paths ...string) []string {
	var deleted []string
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			log.Debugw("nothing to delete", "path", path)
			continue
		}
		if err := p.remove(path); err != nil {
			log.Warnw("could not delete file", "path", path, "error", err)
			continue
		}
		deleted = append(deleted, path)
		log.Infow("deleted", "path", path)
	}
	return deleted
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
