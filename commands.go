package main

import (
	"context"
	"fmt"

	"beat-publish-pipeline/01_select"
	"beat-publish-pipeline/02_analyze"
	trending "beat-publish-pipeline/03_tags"
	metadata "beat-publish-pipeline/04_metadata"
	storefront "beat-publish-pipeline/05_storefront"
	render "beat-publish-pipeline/06_render"
	upload "beat-publish-pipeline/07_upload"
	"beat-publish-pipeline/browser"
	"beat-publish-pipeline/pipeline"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Pick a beat and publish it end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return a.run(ctx)
		},
	}
}

func (a *app) run(ctx context.Context) error {
	cfg, log := a.cfg, a.log
	if err := cfg.Validate(); err != nil {
		return err
	}
	unlock, err := pipeline.Lock(cfg.Paths.Lock)
	if err != nil {
		return err
	}
	defer unlock()

	ts, err := upload.TokenSource(ctx, cfg.Secrets, oauth2.Endpoint{})
	if err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrPreflight, err)
	}
	session, err := pipeline.Preflight(cfg.Paths.Session, ts, log.Named("preflight"))
	if err != nil {
		return err
	}

	bc, err := browserConfig(cfg)
	if err != nil {
		return err
	}
	opener, err := browser.NewOpener(bc, session, log.Named("browser"))
	if err != nil {
		return err
	}
	yt, err := trending.NewYouTube(ctx, cfg.Secrets.YouTubeAPIKey)
	if err != nil {
		return err
	}

	stages := pipeline.Stages{
		Select:     selection.New(cfg, nil, log.Named("select")),
		Analyze:    analyze.New(cfg, log.Named("analyze")),
		Trending:   trending.New(cfg, yt, log.Named("tags")),
		Metadata:   metadata.New(cfg, log.Named("metadata")),
		Render:     render.New(cfg, log.Named("render")),
		Storefront: storefront.New(storefrontConfig(cfg), opener, log.Named("storefront"), storefront.WithTimings(storefrontTimings(cfg))),
		Upload:     upload.New(cfg, oauth2.NewClient(ctx, ts), log.Named("upload")),
	}
	state, err := pipeline.New(cfg, stages, log).Run(ctx)
	if err != nil {
		log.Errorw("pipeline failed", "run", state.RunID, "error", err)
		return err
	}
	fmt.Printf("beat store: %s\nvideo:      %s\n", state.ShortURL, state.WatchURL)
	return nil
}

func newAuthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Log in to the beat store in a browser and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			bc, err := browserConfig(a.cfg)
			if err != nil {
				return err
			}
			_, err = browser.Capture(ctx, bc, browser.CaptureOptions{
				LoginURL:   a.cfg.Storefront.LoginURL,
				DonePrefix: bc.Origin,
				Timeout:    a.cfg.Storefront.LoginTimeout,
				OutPath:    a.cfg.Paths.Session,
			}, a.log.Named("auth"))
			return err
		},
	}
}

func newCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate config and credentials without publishing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ts, err := upload.TokenSource(cmd.Context(), a.cfg.Secrets, oauth2.Endpoint{})
			if err != nil {
				return fmt.Errorf("%w: %v", pipeline.ErrPreflight, err)
			}
			if _, err := pipeline.Preflight(a.cfg.Paths.Session, ts, a.log.Named("preflight")); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}
