package storefront

import (
	"time"

	"beat-publish-pipeline/poll"
)

// Timings holds every wait budget used by the protocol.
type Timings struct {
	Poll time.Duration

	MenuSettle time.Duration
	DraftURL   time.Duration
	ClickRetry poll.RetryPolicy

	WidgetReady           time.Duration
	AttachTries           int
	AttachInterval        time.Duration
	ArtworkAttachTries    int
	ArtworkAttachInterval time.Duration

	UploadStart    time.Duration
	UploadComplete time.Duration
	AudioHandback  time.Duration

	ArtworkMenuSettle time.Duration
	WidgetDashboard   time.Duration
	CropAppear        time.Duration
	CropClick         poll.RetryPolicy
	CropClickTimeout  time.Duration
	CropGone          time.Duration
	UploadButton      time.Duration
	PanelAppear       time.Duration
	PanelGone         time.Duration
	WidgetClose       time.Duration
	ArtworkSaved      time.Duration

	TagVisible time.Duration
	TagPause   time.Duration

	ChangesSaved       time.Duration
	StemSection        time.Duration
	StemStart          time.Duration
	StemComplete       time.Duration
	CollaboratorSettle time.Duration

	PublishVisible  time.Duration
	SharePanel      time.Duration
	ShortURLSection time.Duration
	ClipboardSettle time.Duration
}

// DefaultTimings returns budgets tuned for the live storefront.
func DefaultTimings() Timings {
	return Timings{
		Poll: 500 * time.Millisecond,

		MenuSettle: 400 * time.Millisecond,
		DraftURL:   60 * time.Second,
		ClickRetry: poll.RetryPolicy{MaxAttempts: 3, Delay: 1500 * time.Millisecond},

		WidgetReady:           20 * time.Second,
		AttachTries:           3,
		AttachInterval:        500 * time.Millisecond,
		ArtworkAttachTries:    12,
		ArtworkAttachInterval: 250 * time.Millisecond,

		UploadStart:    90 * time.Second,
		UploadComplete: 10 * time.Minute,
		AudioHandback:  60 * time.Second,

		ArtworkMenuSettle: 300 * time.Millisecond,
		WidgetDashboard:   30 * time.Second,
		CropAppear:        60 * time.Second,
		CropClick:         poll.RetryPolicy{MaxAttempts: 4, Delay: 500 * time.Millisecond},
		CropClickTimeout:  2 * time.Second,
		CropGone:          60 * time.Second,
		UploadButton:      30 * time.Second,
		PanelAppear:       30 * time.Second,
		PanelGone:         6 * time.Minute,
		WidgetClose:       2 * time.Minute,
		ArtworkSaved:      2 * time.Minute,

		TagVisible: 20 * time.Second,
		TagPause:   200 * time.Millisecond,

		ChangesSaved:       3 * time.Minute,
		StemSection:        30 * time.Second,
		StemStart:          3 * time.Minute,
		StemComplete:       10 * time.Minute,
		CollaboratorSettle: 800 * time.Millisecond,

		PublishVisible:  3 * time.Minute,
		SharePanel:      60 * time.Second,
		ShortURLSection: 20 * time.Second,
		ClipboardSettle: time.Second,
	}
}
