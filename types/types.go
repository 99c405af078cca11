package types

// BeatSelection is the set of local files chosen for one run
type BeatSelection struct {
	Folder        string   `json:"folder"`
	Artist        string   `json:"artist"`
	BeatPath      string   `json:"beat_path"`
	ImagePath     string   `json:"image_path"`
	StemsPath     string   `json:"stems_path"`
	Collaborators []string `json:"collaborators"`
}

// AudioMeta is the musical metadata detected for a beat
type AudioMeta struct {
	BPM        int     `json:"bpm"`
	Key        string  `json:"key"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"` // analyzer | id3 | filename
}

// Contact is printed at the end of every description
type Contact struct {
	Instagram string `json:"instagram"`
	Email     string `json:"email"`
}

// GeneratedMetadata is the generated text for both targets
type GeneratedMetadata struct {
	Title          string   `json:"title"`
	StorefrontTags []string `json:"bs_tags"`
	PlatformTags   []string `json:"yt_tags"`
	Description    string   `json:"description"`
	Tags           []string `json:"tags"`
	Hashtags       string   `json:"short_hashtags"`
}

// PipelineState tracks the full state of one pipeline run
type PipelineState struct {
	RunID       string             `json:"run_id"`
	StartedAt   string             `json:"started_at"`
	CompletedAt string             `json:"completed_at"`
	Selection   *BeatSelection     `json:"selection"`
	Audio       *AudioMeta         `json:"audio"`
	Trending    []string           `json:"trending"`
	Metadata    *GeneratedMetadata `json:"metadata"`
	ShortURL    string             `json:"short_url"`
	Attempts    int                `json:"storefront_attempts"`
	VideoFile   string             `json:"video_file"`
	WatchURL    string             `json:"watch_url"`
	Deleted     []string           `json:"deleted,omitempty"`
	Error       string             `json:"error,omitempty"`
}
