package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	storefront "beat-publish-pipeline/05_storefront"
	"beat-publish-pipeline/browser"
	"beat-publish-pipeline/config"
	"beat-publish-pipeline/logger"
	"beat-publish-pipeline/poll"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	envPath    string
	cfg        *config.Config
	log        *zap.SugaredLogger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "beat-publish",
		Short:         "Publish a beat to the beat store and the video platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config.yaml", "Configuration file path")
	root.PersistentFlags().StringVar(&a.envPath, "env", ".env", "Dotenv file with secrets (optional)")

	root.AddCommand(newRunCommand(a))
	root.AddCommand(newAuthCommand(a))
	root.AddCommand(newCheckCommand(a))
	return root
}

func (a *app) setup() error {
	// .env is for local runs only; CI passes secrets in the environment.
	if err := godotenv.Load(a.envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", a.envPath, err)
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func browserConfig(cfg *config.Config) (browser.Config, error) {
	origin, err := browser.OriginOf(cfg.Storefront.DashboardURL)
	if err != nil {
		return browser.Config{}, fmt.Errorf("storefront.dashboard_url: %w", err)
	}
	bc := cfg.Browser
	return browser.Config{
		ExecPath:     bc.ExecPath,
		Headless:     bc.Headless,
		UserAgent:    bc.UserAgent,
		Width:        bc.Width,
		Height:       bc.Height,
		ClickTimeout: bc.ClickTimeout,
		Origin:       origin,
	}, nil
}

func storefrontConfig(cfg *config.Config) storefront.Config {
	sc := cfg.Storefront
	return storefront.Config{
		DashboardURL: sc.DashboardURL,
		DraftPath:    sc.DraftPath,
		LinkPrefix:   sc.LinkPrefix,
		Limits: storefront.Limits{
			TitleMax:   sc.TitleMax,
			TagMax:     sc.TagMax,
			FreePrefix: sc.FreePrefix,
		},
		Retry:          poll.RetryPolicy{MaxAttempts: sc.Attempts, Delay: sc.AttemptDelay},
		DiagnosticsDir: cfg.Paths.Diagnostics,
	}
}

func storefrontTimings(cfg *config.Config) storefront.Timings {
	t := storefront.DefaultTimings()
	o := cfg.Storefront.Timings
	for _, f := range []struct {
		dst *time.Duration
		v   time.Duration
	}{
		{&t.Poll, o.Poll},
		{&t.DraftURL, o.DraftURL},
		{&t.UploadStart, o.UploadStart},
		{&t.UploadComplete, o.UploadComplete},
		{&t.PanelAppear, o.PanelAppear},
		{&t.PanelGone, o.PanelGone},
		{&t.ChangesSaved, o.ChangesSaved},
		{&t.StemComplete, o.StemComplete},
		{&t.PublishVisible, o.PublishVisible},
		{&t.SharePanel, o.SharePanel},
	} {
		if f.v > 0 {
			*f.dst = f.v
		}
	}
	return t
}
