package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Select     SelectConfig     `yaml:"select"`
	Analyze    AnalyzeConfig    `yaml:"analyze"`
	Tags       TagsConfig       `yaml:"tags"`
	Metadata   MetadataConfig   `yaml:"metadata"`
	Storefront StorefrontConfig `yaml:"storefront"`
	Browser    BrowserConfig    `yaml:"browser"`
	Render     RenderConfig     `yaml:"render"`
	Upload     UploadConfig     `yaml:"upload"`
	Logging    LoggingConfig    `yaml:"logging"`

	// Secrets come from the environment, never from config.yaml.
	Secrets Secrets `yaml:"-"`
}

type PathsConfig struct {
	Beats         string `yaml:"beats"`
	Images        string `yaml:"images"`
	Stems         string `yaml:"stems"`
	Videos        string `yaml:"videos"`
	Collaborators string `yaml:"collaborators"`
	Session       string `yaml:"session"`
	Output        string `yaml:"output"`
	LastMetadata  string `yaml:"last_metadata"`
	LastLink      string `yaml:"last_link"`
	Lock          string `yaml:"lock"`
	Diagnostics   string `yaml:"diagnostics"`
}

type SelectConfig struct {
	// Artist overrides the name derived from the beat's folder.
	Artist          string   `yaml:"artist"`
	AudioExtensions []string `yaml:"audio_extensions"`
	ImageExtensions []string `yaml:"image_extensions"`
}

type AnalyzeConfig struct {
	// Command runs with the beat path appended and prints
	// {"bpm":..,"key":..,"confidence":..} on stdout. Empty disables it.
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

type TagsConfig struct {
	PerQuery int           `yaml:"per_query"`
	Top      int           `yaml:"top"`
	Keywords []string      `yaml:"keywords"`
	Timeout  time.Duration `yaml:"timeout"`
}

type MetadataConfig struct {
	BaseURL          string        `yaml:"base_url"`
	Model            string        `yaml:"model"`
	Temperature      float64       `yaml:"temperature"`
	Timeout          time.Duration `yaml:"timeout"`
	PlatformTagChars int           `yaml:"platform_tag_chars"`
	UsageTerms       string        `yaml:"usage_terms"`
	LinkPlaceholder  string        `yaml:"link_placeholder"`
}

type StorefrontConfig struct {
	DashboardURL string        `yaml:"dashboard_url"`
	DraftPath    string        `yaml:"draft_path"`
	LoginURL     string        `yaml:"login_url"`
	LinkPrefix   string        `yaml:"link_prefix"`
	TitleMax     int           `yaml:"title_max"`
	TagMax       int           `yaml:"tag_max"`
	FreePrefix   string        `yaml:"free_prefix"`
	Attempts     int           `yaml:"attempts"`
	AttemptDelay time.Duration `yaml:"attempt_delay"`
	LoginTimeout time.Duration `yaml:"login_timeout"`
	Timings      TimingsConfig `yaml:"timings"`
}

// TimingsConfig overrides storefront wait budgets. Zero keeps the built-in value.
type TimingsConfig struct {
	Poll           time.Duration `yaml:"poll"`
	DraftURL       time.Duration `yaml:"draft_url"`
	UploadStart    time.Duration `yaml:"upload_start"`
	UploadComplete time.Duration `yaml:"upload_complete"`
	PanelAppear    time.Duration `yaml:"panel_appear"`
	PanelGone      time.Duration `yaml:"panel_gone"`
	ChangesSaved   time.Duration `yaml:"changes_saved"`
	StemComplete   time.Duration `yaml:"stem_complete"`
	PublishVisible time.Duration `yaml:"publish_visible"`
	SharePanel     time.Duration `yaml:"share_panel"`
}

type BrowserConfig struct {
	ExecPath     string        `yaml:"exec_path"`
	Headless     bool          `yaml:"headless"`
	UserAgent    string        `yaml:"user_agent"`
	Width        int           `yaml:"width"`
	Height       int           `yaml:"height"`
	ClickTimeout time.Duration `yaml:"click_timeout"`
}

type RenderConfig struct {
	FFmpeg       string `yaml:"ffmpeg"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	FPS          int    `yaml:"fps"`
	CRF          int    `yaml:"crf"`
	AudioBitrate string `yaml:"audio_bitrate"`
}

type UploadConfig struct {
	Privacy           string `yaml:"privacy"`
	CategoryID        string `yaml:"category_id"`
	DefaultLanguage   string `yaml:"default_language"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	Embeddable        bool   `yaml:"embeddable"`
	License           string `yaml:"license"`
	PublicStats       bool   `yaml:"public_stats"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`

	// PublishAt schedules the video (RFC 3339, UTC).
	PublishAt string `yaml:"publish_at"`
	ChunkSize int    `yaml:"chunk_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// Secrets are read from the environment. Each variable may also be given
// with a BSP_ prefix, which wins over the plain name.
type Secrets struct {
	LLMAPIKey           string `envconfig:"GROQ_API_KEY"`
	YouTubeAPIKey       string `envconfig:"YOUTUBE_API_KEY"`
	YouTubeClientID     string `envconfig:"YOUTUBE_CLIENT_ID"`
	YouTubeClientSecret string `envconfig:"YOUTUBE_CLIENT_SECRET"`
	YouTubeRefreshToken string `envconfig:"YOUTUBE_REFRESH_TOKEN"`
	Instagram           string `envconfig:"INSTAGRAM_LINK"`
	Email               string `envconfig:"CONTACT_EMAIL"`
}

// Default returns a config that runs against the live services with the
// conventional data/ layout.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			Beats:         "data/beats",
			Images:        "data/images",
			Stems:         "data/stems",
			Videos:        "data/vids",
			Collaborators: "data/collaborators/collaborators.json",
			Session:       "secrets/storefront_state.json",
			Output:        "output",
			LastMetadata:  "last_gen_metadata.json",
			LastLink:      "last_published_link.txt",
			Lock:          "output/.pipeline.lock",
			Diagnostics:   "output/diagnostics",
		},
		Select: SelectConfig{
			AudioExtensions: []string{".mp3", ".wav", ".flac", ".m4a", ".aac", ".ogg", ".aiff", ".wma"},
			ImageExtensions: []string{".jpg", ".jpeg", ".png", ".webp", ".bmp", ".gif", ".tiff"},
		},
		Analyze: AnalyzeConfig{Timeout: 2 * time.Minute},
		Tags: TagsConfig{
			PerQuery: 15,
			Top:      40,
			Keywords: []string{"beat", "trap", "instrumental", "type"},
			Timeout:  30 * time.Second,
		},
		Metadata: MetadataConfig{
			BaseURL:          "https://api.groq.com/openai/v1",
			Model:            "llama-3.3-70b-versatile",
			Temperature:      0.8,
			Timeout:          60 * time.Second,
			PlatformTagChars: 500,
			UsageTerms:       "You may use this beat only for writing lyrics and creating demo. If you want to use this beat commercially you can buy a lease at my beat store.",
			LinkPlaceholder:  "STOREFRONT_LINK",
		},
		Storefront: StorefrontConfig{
			DashboardURL: "https://studio.beatstars.com/dashboard",
			DraftPath:    "/content/tracks/uploaded",
			LoginURL:     "https://oauth.beatstars.com/login?app=WEB_STUDIO&origin=https://studio.beatstars.com&send_callback=true",
			LinkPrefix:   "https://bsta.rs/",
			TitleMax:     60,
			TagMax:       3,
			FreePrefix:   "[FREE] ",
			Attempts:     3,
			AttemptDelay: 5 * time.Second,
			LoginTimeout: 10 * time.Minute,
		},
		Browser: BrowserConfig{
			Headless:     true,
			Width:        1440,
			Height:       900,
			ClickTimeout: 10 * time.Second,
		},
		Render: RenderConfig{
			FFmpeg:       "ffmpeg",
			Width:        1920,
			Height:       1080,
			FPS:          30,
			CRF:          18,
			AudioBitrate: "320k",
		},
		Upload: UploadConfig{
			Privacy:           "private",
			CategoryID:        "10",
			DefaultLanguage:   "en",
			Embeddable:        true,
			License:           "youtube",
			PublicStats:       true,
			NotifySubscribers: true,
			ChunkSize:         8 << 20,
		},
		Logging: LoggingConfig{Level: "info", Encoding: "console"},
	}
}

// Load reads config.yaml over the defaults and then the secrets from the
// environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := envconfig.Process("bsp", &cfg.Secrets); err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}
	return &cfg, nil
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	req := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	req("paths.beats", c.Paths.Beats)
	req("paths.images", c.Paths.Images)
	req("paths.videos", c.Paths.Videos)
	req("paths.session", c.Paths.Session)
	req("storefront.dashboard_url", c.Storefront.DashboardURL)
	req("storefront.link_prefix", c.Storefront.LinkPrefix)
	req("metadata.link_placeholder", c.Metadata.LinkPlaceholder)
	req("GROQ_API_KEY", c.Secrets.LLMAPIKey)
	req("YOUTUBE_API_KEY", c.Secrets.YouTubeAPIKey)
	req("YOUTUBE_CLIENT_ID", c.Secrets.YouTubeClientID)
	req("YOUTUBE_CLIENT_SECRET", c.Secrets.YouTubeClientSecret)
	req("YOUTUBE_REFRESH_TOKEN", c.Secrets.YouTubeRefreshToken)
	if c.Storefront.Attempts < 1 {
		missing = append(missing, "storefront.attempts (>= 1)")
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		missing = append(missing, "render.width/height")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing or invalid: %s", strings.Join(missing, ", "))
	}
	return nil
}
