package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"

	"beat-publish-pipeline/config"
	"beat-publish-pipeline/types"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/text/unicode/norm"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// ErrAuth marks a credential that cannot be refreshed.
var ErrAuth = errors.New("video platform credentials rejected")

// WatchURLPrefix is prepended to the uploaded video's ID.
const WatchURLPrefix = "https://youtu.be/"

// TokenSource refreshes an access token from the stored refresh token.
// A zero endpoint means Google's.
func TokenSource(ctx context.Context, s config.Secrets, endpoint oauth2.Endpoint) (oauth2.TokenSource, error) {
	if s.YouTubeClientID == "" || s.YouTubeClientSecret == "" || s.YouTubeRefreshToken == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set: %w", ErrAuth)
	}
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	conf := &oauth2.Config{
		ClientID:     s.YouTubeClientID,
		ClientSecret: s.YouTubeClientSecret,
		Endpoint:     endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: s.YouTubeRefreshToken}), nil
}

// CheckToken forces a refresh so a revoked token fails before any upload.
func CheckToken(ts oauth2.TokenSource) error {
	tok, err := ts.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if !tok.Valid() {
		return fmt.Errorf("%w: refreshed token is not valid", ErrAuth)
	}
	return nil
}

// Uploader publishes the rendered video through the YouTube Data API
type Uploader struct {
	cfg      *config.Config
	client   *http.Client
	opts     []option.ClientOption
	progress io.Writer
	log      *zap.SugaredLogger
}

// New creates an Uploader that authenticates through client, usually
// oauth2.NewClient over TokenSource.
func New(cfg *config.Config, client *http.Client, log *zap.SugaredLogger, opts ...option.ClientOption) *Uploader {
	return &Uploader{cfg: cfg, client: client, opts: opts, progress: os.Stderr, log: log}
}

// WithProgress sends the progress bar to w.
func (u *Uploader) WithProgress(w io.Writer) *Uploader {
	u.progress = w
	return u
}

// Run uploads videoFile with md and returns the watch URL.
func (u *Uploader) Run(ctx context.Context, videoFile string, md *types.GeneratedMetadata) (string, error) {
	opts := append([]option.ClientOption{option.WithHTTPClient(u.client)}, u.opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("youtube service: %w", err)
	}

	f, err := os.Open(videoFile)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", err
	}

	video := u.video(md)
	u.log.Infow("uploading video", "title", md.Title, "file", videoFile,
		"size_mb", float64(fi.Size())/1024/1024, "tags", len(video.Snippet.Tags), "privacy", video.Status.PrivacyStatus)

	bar := progressbar.NewOptions64(fi.Size(),
		progressbar.OptionSetWriter(u.progress),
		progressbar.OptionSetDescription("uploading"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Close()

	call := svc.Videos.Insert([]string{"snippet", "status"}, video).
		NotifySubscribers(u.cfg.Upload.NotifySubscribers).
		Media(f, googleapi.ChunkSize(u.cfg.Upload.ChunkSize)).
		ProgressUpdater(func(current, _ int64) { bar.Set64(current) }).
		Context(ctx)

	uploaded, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}
	bar.Finish()

	watch := WatchURLPrefix + uploaded.Id
	u.log.Infow("video uploaded", "id", uploaded.Id, "url", watch)
	return watch, nil
}

func (u *Uploader) video(md *types.GeneratedMetadata) *youtube.Video {
	uc := u.cfg.Upload
	status := &youtube.VideoStatus{
		PrivacyStatus:           uc.Privacy,
		SelfDeclaredMadeForKids: uc.MadeForKids,
		Embeddable:              uc.Embeddable,
		License:                 uc.License,
		PublicStatsViewable:     uc.PublicStats,
	}
	// False values are dropped from the request otherwise.
	status.ForceSendFields = []string{"SelfDeclaredMadeForKids", "Embeddable", "PublicStatsViewable"}
	if uc.PublishAt != "" {
		// Scheduled videos must stay private until publishAt.
		status.PrivacyStatus = "private"
		status.PublishAt = uc.PublishAt
	}
	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                md.Title,
			Description:          md.Description,
			Tags:                 SanitizeTags(md.PlatformTags),
			CategoryId:           uc.CategoryID,
			DefaultLanguage:      uc.DefaultLanguage,
			DefaultAudioLanguage: uc.DefaultLanguage,
		},
		Status: status,
	}
}

const (
	maxTagLen   = 30
	maxTagTotal = 500
)

var (
	invisible = regexp.MustCompile(`[\x{200B}-\x{200F}\x{202A}-\x{202E}]`)
	nonASCII  = regexp.MustCompile(`[^A-Za-z0-9 _-]`)
)

// SanitizeTags reduces tags to what the platform accepts: ASCII letters,
// digits, spaces, underscores and hyphens, at most 30 characters each and
// 500 in total. Duplicates and empty tags are dropped; the first tag that
// would exceed the total ends the list.
func SanitizeTags(tags []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	total := 0
	for _, tag := range tags {
		tag = norm.NFKD.String(tag)
		tag = invisible.ReplaceAllString(tag, "")
		tag = strings.TrimSpace(nonASCII.ReplaceAllString(tag, ""))
		if tag == "" || len(tag) > maxTagLen || seen[tag] {
			continue
		}
		if total+len(tag) > maxTagTotal {
			break
		}
		out = append(out, tag)
		seen[tag] = true
		total += len(tag)
	}
	return out
}
