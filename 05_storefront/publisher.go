// Package storefront drives the beat storefront's web UI through one upload:
// draft creation, asset transfer, metadata entry, publish and short link
// extraction. Every attempt runs start to finish in a fresh browser context;
// attempts are never resumed.
package storefront

import (
	"context"
	"fmt"
	"time"

	"beat-publish-pipeline/poll"

	"go.uber.org/zap"
)

// Config holds the storefront endpoints and limits.
type Config struct {
	DashboardURL   string
	DraftPath      string
	LinkPrefix     string
	Limits         Limits
	Retry          poll.RetryPolicy
	DiagnosticsDir string
}

// DefaultConfig returns the live storefront settings.
func DefaultConfig() Config {
	return Config{
		DashboardURL: "https://studio.beatstars.com/dashboard",
		DraftPath:    "/content/tracks/uploaded",
		LinkPrefix:   "https://bsta.rs/",
		Limits:       DefaultLimits(),
		Retry:        poll.RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Second},
	}
}

// Outcome is a successful publish.
type Outcome struct {
	ShortURL string
	Attempt  int
	Report   Report
}

// Publisher runs upload attempts against pages from an Opener.
type Publisher struct {
	cfg    Config
	opener Opener
	log    *zap.SugaredLogger
	t      Timings
	policy Policy
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTimings replaces the wait budgets.
func WithTimings(t Timings) Option {
	return func(p *Publisher) { p.t = t }
}

// WithPolicy replaces the step fatality policy.
func WithPolicy(policy Policy) Option {
	return func(p *Publisher) { p.policy = policy }
}

// New builds a Publisher.
func New(cfg Config, opener Opener, log *zap.SugaredLogger, opts ...Option) *Publisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Publisher{
		cfg:    cfg,
		opener: opener,
		log:    log,
		t:      DefaultTimings(),
		policy: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish uploads req, retrying the whole interaction until an attempt
// yields a valid short link or the attempt budget runs out. Exhaustion is
// reported as an *AttemptsError.
func (p *Publisher) Publish(ctx context.Context, req UploadRequest) (Outcome, error) {
	req, err := req.Normalize(p.cfg.Limits)
	if err != nil {
		return Outcome{}, err
	}
	attempts := p.cfg.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		reports []Report
		last    error
	)
	for i := 1; i <= attempts; i++ {
		log := p.log.With("attempt", i, "attempts", attempts)
		log.Infow("starting storefront upload", "title", req.Title)

		report, err := p.runAttempt(ctx, i, req, log)
		reports = append(reports, *report)
		if err == nil && ValidLink(report.Link, p.cfg.LinkPrefix) {
			log.Infow("storefront upload complete", "link", report.Link)
			return Outcome{ShortURL: report.Link, Attempt: i, Report: *report}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, &AttemptsError{Reports: reports, Last: ctxErr}
		}

		if err != nil {
			last = err
			log.Warnw("attempt failed", "error", err)
			if i < attempts {
				if err := poll.Sleep(ctx, p.cfg.Retry.Delay); err != nil {
					return Outcome{}, &AttemptsError{Reports: reports, Last: err}
				}
			}
			continue
		}
		last = linkError(report)
		log.Warnw("attempt finished without a valid short link", "link", report.Link, "error", last)
	}
	return Outcome{}, &AttemptsError{Reports: reports, Last: last}
}

func linkError(r *Report) error {
	if res, ok := r.Result(StepExtractLink); ok && res.Err != nil {
		return res.Err
	}
	return fmt.Errorf("%w: attempt %d produced %q", ErrExtractionFailure, r.Attempt, r.Link)
}

type step struct {
	name Step
	run  func(context.Context) error
}

func (p *Publisher) runAttempt(ctx context.Context, attempt int, req UploadRequest, log *zap.SugaredLogger) (*Report, error) {
	report := newReport(attempt)
	page, release, err := p.opener.Open(ctx)
	if err != nil {
		return report, fmt.Errorf("open browser context: %w", err)
	}
	defer release()

	s := &session{page: page, cfg: p.cfg, t: p.t, log: log, report: report}
	links := pageLinks{s: s, prefix: p.cfg.LinkPrefix}
	steps := []step{
		{StepOpenDraft, s.openDraft},
		{StepAttachAudio, func(ctx context.Context) error { return s.attachAudio(ctx, req.AudioPath) }},
		{StepAudioUpload, s.awaitAudio},
		{StepArtwork, func(ctx context.Context) error { return s.uploadArtwork(ctx, req.ArtworkPath) }},
		{StepTitle, func(ctx context.Context) error { return s.fillTitle(ctx, req.Title) }},
		{StepTags, func(ctx context.Context) error { return s.fillTags(ctx, req.Tags) }},
		{StepAutofill, s.autofill},
		{StepStems, func(ctx context.Context) error { return s.uploadStems(ctx, req.StemsPath) }},
		{StepCollaborators, func(ctx context.Context) error { return s.fillCollaborators(ctx, req.Collaborators) }},
		{StepPublish, s.publish},
		{StepExtractLink, func(ctx context.Context) error { return s.extractLink(ctx, links) }},
	}

	for _, st := range steps {
		start := time.Now()
		res := report.record(st.name, st.run(ctx), time.Since(start))
		switch {
		case res.Skipped:
			log.Infow("step skipped", "step", st.name)
		case res.Err == nil:
			log.Debugw("step done", "step", st.name, "took", res.Duration)
		case p.policy.For(st.name) == Fatal:
			log.Errorw("step failed", "step", st.name, "policy", Fatal, "error", res.Err)
			return report, fmt.Errorf("%s: %w", st.name, res.Err)
		default:
			log.Warnw("step failed", "step", st.name, "policy", Logged, "error", res.Err)
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}
	return report, nil
}
