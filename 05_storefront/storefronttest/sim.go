// Package storefronttest provides a scripted stand-in for the storefront's
// upload pages. A Simulator reacts to the same named selectors the upload
// protocol uses and advances its widget state on clicks, file injection and
// poll counts, so whole attempts run in milliseconds.
package storefronttest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	storefront "beat-publish-pipeline/05_storefront"
	"beat-publish-pipeline/poll"
)

// ErrNoElement is returned when acting on a control the page does not show.
var ErrNoElement = errors.New("storefronttest: no such element")

const draftURL = "https://studio.beatstars.com/content/tracks/uploaded/sim-1"

// Simulator is an in-memory storefront page. Set the knobs before handing
// it to a Publisher; read the observations afterwards.
type Simulator struct {
	// Knobs.
	SkipUploadingMarker bool
	UploadTicks         int
	PanelTicks          int
	StemTicks           int
	CropFailClicks      int
	NoTitleInput        bool
	NoTagInput          bool
	NoDraft             bool
	NoSharePanel        bool
	ClipboardEmpty      bool
	ShortURL            string
	DOMValue            string

	// Observations.
	Title         string
	Tags          []string
	Collaborators []string
	Attached      []string
	Autofilled    bool
	Published     bool
	Clicks        []string
	Screenshots   []string

	mu          sync.Mutex
	url         string
	menuOpen    bool
	widget      string
	attached    map[string]bool
	audioPolls  int
	audioDone   bool
	artworkMenu bool
	cropShown   bool
	cropClicks  int
	uploadBtn   bool
	panelLeft   int
	panelSeen   bool
	artworkDone bool
	stemLeft    int
	collabs     []string
	pendingTag  string
	linksOpen   bool
	copied      bool
}

// New returns a simulator whose widget always succeeds quickly.
func New() *Simulator {
	return &Simulator{
		UploadTicks: 2,
		PanelTicks:  2,
		StemTicks:   2,
		ShortURL:    "https://bsta.rs/abc123",
		attached:    make(map[string]bool),
	}
}

func (s *Simulator) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
	return nil
}

func (s *Simulator) URL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

// count reports how many elements named name are in the document. The
// caller holds mu.
func (s *Simulator) count(name string) int {
	b := func(v bool) int {
		if v {
			return 1
		}
		return 0
	}
	switch name {
	case "create-button":
		return b(s.url != "")
	case "create-track-item":
		return b(s.menuOpen)
	case "upload-file-heading", "browse-files":
		return b((s.widget == "audio" || s.widget == "stems") && !s.attached[s.widget])
	case "widget-file-input":
		return b(s.widget != "" && !s.attached[s.widget])
	case "widget-dashboard":
		return b(s.widget == "artwork" && !s.artworkDone)
	case "master-track-section":
		return b(strings.Contains(s.url, "/content/tracks/uploaded"))
	case "audio-next-step":
		return b(s.audioDone)
	case "edit-artwork":
		return b(s.audioDone || s.SkipUploadingMarker)
	case "upload-file-item":
		return b(s.artworkMenu)
	case "crop-save":
		return b(s.cropShown)
	case "upload-files":
		return b(s.uploadBtn)
	case "upload-panel":
		if s.panelLeft > 0 {
			s.panelLeft--
			s.panelSeen = true
			if s.panelLeft == 0 {
				s.artworkDone = true
				s.widget = ""
			}
			return 1
		}
		return 0
	case "changes-saved":
		return 1
	case "title-input":
		return b(!s.NoTitleInput)
	case "tag-input-placeholder":
		return b(!s.NoTagInput)
	case "autofill-text":
		return 1
	case "stem-section", "stem-add":
		return b(s.url != "")
	case "processing-marker":
		if s.stemLeft > 0 {
			s.stemLeft--
			return 1
		}
		return 0
	case "collaborator-input":
		return len(s.collabs)
	case "add-collaborator":
		return 1
	case "publish-track":
		return 1
	case "share-panel":
		return b(s.Published && !s.NoSharePanel)
	case "view-all-links":
		return b(s.Published)
	case "short-url-section", "copy-link":
		return b(s.linksOpen)
	case "short-url-input":
		return b(s.linksOpen && s.DOMValue != "")
	}
	return 0
}

func (s *Simulator) Count(_ context.Context, sel storefront.Selector) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count(sel.Name), nil
}

func (s *Simulator) Visible(_ context.Context, sel storefront.Selector) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count(sel.Name) > 0, nil
}

func (s *Simulator) Text(_ context.Context, sel storefront.Selector) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count(sel.Name) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoElement, sel)
	}
	if sel.Name != "master-track-section" {
		return sel.Name, nil
	}
	if !s.attached["audio"] {
		return "Master Track", nil
	}
	s.audioPolls++
	if !s.SkipUploadingMarker && s.audioPolls <= s.UploadTicks {
		return "Master Track Uploading 40%", nil
	}
	if !s.SkipUploadingMarker {
		s.audioDone = true
	}
	return "Master Track beat.mp3", nil
}

func (s *Simulator) Value(_ context.Context, sel storefront.Selector) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sel.Name != "collaborator-input" {
		return "", nil
	}
	i, err := s.index(sel, len(s.collabs))
	if err != nil {
		return "", err
	}
	return s.collabs[i], nil
}

func (s *Simulator) Attr(_ context.Context, sel storefront.Selector, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sel.Name == "short-url-input" && name == "value" && s.count(sel.Name) > 0 {
		return s.DOMValue, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoElement, sel)
}

func (s *Simulator) index(sel storefront.Selector, n int) (int, error) {
	i := sel.Index
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("%w: %s", ErrNoElement, sel)
	}
	return i, nil
}

func (s *Simulator) Click(_ context.Context, sel storefront.Selector, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count(sel.Name) == 0 {
		return fmt.Errorf("%w: %s", ErrNoElement, sel)
	}
	s.Clicks = append(s.Clicks, sel.Name)
	switch sel.Name {
	case "create-button":
		s.menuOpen = true
	case "create-track-item":
		s.menuOpen = false
		if !s.NoDraft {
			s.url = draftURL
			s.widget = "audio"
		}
	case "edit-artwork":
		s.artworkMenu = true
	case "upload-file-item":
		s.artworkMenu = false
		s.widget = "artwork"
	case "crop-save":
		s.cropClicks++
		if s.cropClicks <= s.CropFailClicks {
			return fmt.Errorf("crop save click %d intercepted", s.cropClicks)
		}
		s.cropShown = false
		s.uploadBtn = true
	case "upload-files":
		s.uploadBtn = false
		s.panelLeft = s.PanelTicks
		if s.panelLeft == 0 {
			s.artworkDone = true
			s.widget = ""
		}
	case "autofill-text", "autofill-button":
		s.Autofilled = true
	case "stem-add":
		s.widget = "stems"
	case "add-collaborator":
		s.collabs = append(s.collabs, "")
	case "publish-track":
		s.Published = true
		if s.DOMValue == "" {
			s.DOMValue = s.ShortURL
		}
	case "view-all-links":
		s.linksOpen = true
	case "copy-link":
		s.copied = true
	}
	return nil
}

func (s *Simulator) Fill(_ context.Context, sel storefront.Selector, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count(sel.Name) == 0 {
		return fmt.Errorf("%w: %s", ErrNoElement, sel)
	}
	switch sel.Name {
	case "title-input":
		s.Title = value
	case "tag-input-placeholder":
		s.pendingTag = value
	case "collaborator-input":
		i, err := s.index(sel, len(s.collabs))
		if err != nil {
			return err
		}
		s.collabs[i] = value
		s.Collaborators = append(s.Collaborators, value)
		// The form grows a fresh row once the last one is filled.
		if i == len(s.collabs)-1 {
			s.collabs = append(s.collabs, "")
		}
	}
	return nil
}

func (s *Simulator) Press(_ context.Context, sel storefront.Selector, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sel.Name == "tag-input-placeholder" && key == "Enter" && s.pendingTag != "" {
		s.Tags = append(s.Tags, s.pendingTag)
		s.pendingTag = ""
	}
	return nil
}

func (s *Simulator) Reveal(_ context.Context, sel storefront.Selector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count(sel.Name) == 0 {
		return fmt.Errorf("%w: %s", ErrNoElement, sel)
	}
	return nil
}

func (s *Simulator) Hide(context.Context, storefront.Selector) error { return nil }

func (s *Simulator) SetFiles(_ context.Context, sel storefront.Selector, paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sel.Name != "widget-file-input" || s.count(sel.Name) == 0 {
		return fmt.Errorf("%w: %s", ErrNoElement, sel)
	}
	s.Attached = append(s.Attached, paths...)
	s.attached[s.widget] = true
	switch s.widget {
	case "artwork":
		s.cropShown = true
	case "stems":
		s.stemLeft = s.StemTicks
	}
	return nil
}

func (s *Simulator) Clipboard(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ClipboardEmpty || !s.copied {
		return "", nil
	}
	return s.ShortURL, nil
}

func (s *Simulator) Screenshot(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Screenshots = append(s.Screenshots, path)
	return nil
}

// PanelSeen reports whether the artwork upload panel was ever shown.
func (s *Simulator) PanelSeen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panelSeen
}

// Opener hands out one Simulator per attempt.
type Opener struct {
	// Factory builds the page for attempt n, starting at 1. Nil means New.
	Factory  func(n int) *Simulator
	Opened   []*Simulator
	Released int
}

func (o *Opener) Open(context.Context) (storefront.Page, func(), error) {
	build := o.Factory
	if build == nil {
		build = func(int) *Simulator { return New() }
	}
	sim := build(len(o.Opened) + 1)
	o.Opened = append(o.Opened, sim)
	return sim, func() { o.Released++ }, nil
}

// Timings returns wait budgets small enough for unit tests.
func Timings() storefront.Timings {
	short := 200 * time.Millisecond
	t := storefront.DefaultTimings()
	t.Poll = time.Millisecond
	t.MenuSettle = 0
	t.DraftURL = short
	t.ClickRetry = poll.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}
	t.WidgetReady = short
	t.AttachInterval = time.Millisecond
	t.ArtworkAttachInterval = time.Millisecond
	t.UploadStart = short
	t.UploadComplete = short
	t.AudioHandback = short
	t.ArtworkMenuSettle = 0
	t.WidgetDashboard = short
	t.CropAppear = short
	t.CropClick = poll.RetryPolicy{MaxAttempts: 4, Delay: time.Millisecond}
	t.CropClickTimeout = short
	t.CropGone = short
	t.UploadButton = short
	t.PanelAppear = short
	t.PanelGone = short
	t.WidgetClose = short
	t.ArtworkSaved = short
	t.TagVisible = short
	t.TagPause = 0
	t.ChangesSaved = short
	t.StemSection = short
	t.StemStart = short
	t.StemComplete = short
	t.CollaboratorSettle = 0
	t.PublishVisible = short
	t.SharePanel = short
	t.ShortURLSection = short
	t.ClipboardSettle = 0
	return t
}

// Config returns the live storefront config with a near-zero retry delay.
func Config() storefront.Config {
	cfg := storefront.DefaultConfig()
	cfg.Retry.Delay = time.Millisecond
	return cfg
}
