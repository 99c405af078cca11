package storefront

import (
	"errors"
	"time"
)

// Step names one sub-step of an attempt.
type Step string

const (
	StepOpenDraft     Step = "open-draft"
	StepAttachAudio   Step = "attach-audio"
	StepAudioUpload   Step = "audio-upload"
	StepArtwork       Step = "artwork"
	StepTitle         Step = "title"
	StepTags          Step = "tags"
	StepAutofill      Step = "autofill"
	StepStems         Step = "stems"
	StepCollaborators Step = "collaborators"
	StepPublish       Step = "publish"
	StepExtractLink   Step = "extract-link"
)

// Fatality says what a failed step does to its attempt.
type Fatality int

const (
	// Logged failures are recorded and the attempt continues.
	Logged Fatality = iota
	// Fatal failures end the attempt.
	Fatal
)

func (f Fatality) String() string {
	if f == Fatal {
		return "fatal"
	}
	return "logged"
}

// Policy maps each step to its fatality.
type Policy map[Step]Fatality

// DefaultPolicy returns the storefront step policy. Only opening the draft
// and attaching the audio end an attempt; everything else is worth
// continuing past because a partly filled draft is still useful.
func DefaultPolicy() Policy {
	return Policy{
		StepOpenDraft:     Fatal,
		StepAttachAudio:   Fatal,
		StepAudioUpload:   Logged,
		StepArtwork:       Logged,
		StepTitle:         Logged,
		StepTags:          Logged,
		StepAutofill:      Logged,
		StepStems:         Logged,
		StepCollaborators: Logged,
		StepPublish:       Logged,
		StepExtractLink:   Logged,
	}
}

// For returns the fatality of s; unknown steps are fatal.
func (p Policy) For(s Step) Fatality {
	f, ok := p[s]
	if !ok {
		return Fatal
	}
	return f
}

// StepResult is the outcome of a single step.
type StepResult struct {
	Step     Step
	Err      error
	Skipped  bool
	Duration time.Duration
}

// OK reports whether the step completed.
func (r StepResult) OK() bool { return r.Err == nil && !r.Skipped }

// Asset names a file the protocol transfers.
type Asset string

const (
	AssetAudio   Asset = "audio"
	AssetArtwork Asset = "artwork"
	AssetStems   Asset = "stems"
)

// AssetState is a node of the per-asset upload state machine.
type AssetState string

const (
	StateIdle      AssetState = "idle"
	StateCropping  AssetState = "cropping"
	StateUploading AssetState = "uploading"
	StateUploaded  AssetState = "uploaded"
	StateSkipped   AssetState = "skipped"
	StateFailed    AssetState = "failed"
)

// Report is the partial state of one attempt. It exists for diagnostics;
// attempts are never resumed from it.
type Report struct {
	Attempt int
	Steps   []StepResult
	Assets  map[Asset][]AssetState
	Link    string
}

func newReport(attempt int) *Report {
	return &Report{Attempt: attempt, Assets: make(map[Asset][]AssetState)}
}

func (r *Report) record(step Step, err error, took time.Duration) StepResult {
	res := StepResult{Step: step, Err: err, Duration: took}
	if errors.Is(err, errStepSkipped) {
		res.Err = nil
		res.Skipped = true
	}
	r.Steps = append(r.Steps, res)
	return res
}

func (r *Report) transition(a Asset, s AssetState) {
	r.Assets[a] = append(r.Assets[a], s)
}

// State returns the latest state of a, or "" if it was never touched.
func (r Report) State(a Asset) AssetState {
	states := r.Assets[a]
	if len(states) == 0 {
		return ""
	}
	return states[len(states)-1]
}

// Completed lists the steps that finished without error.
func (r Report) Completed() []Step {
	var out []Step
	for _, s := range r.Steps {
		if s.OK() {
			out = append(out, s.Step)
		}
	}
	return out
}

// Failed lists the steps that returned an error.
func (r Report) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Result returns the recorded result for step, if it ran.
func (r Report) Result(step Step) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepResult{}, false
}
