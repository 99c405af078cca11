package trending

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"beat-publish-pipeline/config"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Video is one search hit.
type Video struct {
	ID          string
	PublishedAt time.Time
}

// Source is the video platform's search surface.
type Source interface {
	Search(ctx context.Context, query, order string, limit int) ([]Video, error)
	// Tags returns the tags of each video by ID.
	Tags(ctx context.Context, ids []string) (map[string][]string, error)
}

// Fetcher ranks the tags of videos currently competing for an artist's
// "type beat" searches
type Fetcher struct {
	cfg *config.Config
	src Source
	now func() time.Time
	log *zap.SugaredLogger
}

// New creates a Fetcher over src.
func New(cfg *config.Config, src Source, log *zap.SugaredLogger) *Fetcher {
	return &Fetcher{cfg: cfg, src: src, now: time.Now, log: log}
}

// Run returns up to cfg.Tags.Top trending tags for artist, best first. No
// search results is not an error: the list is simply empty.
func (f *Fetcher) Run(ctx context.Context, artist string) ([]string, error) {
	if f.cfg.Tags.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Tags.Timeout)
		defer cancel()
	}
	query := artist + " type beat"
	per := f.cfg.Tags.PerQuery

	var relevance, recent []Video
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		relevance, err = f.src.Search(gctx, query, "relevance", per)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = f.src.Search(gctx, query, "date", per)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	videos := append(relevance, recent...)
	if len(videos) == 0 {
		f.log.Warnw("no videos found", "query", query)
		return []string{}, nil
	}
	ids := make([]string, 0, len(videos))
	for _, v := range videos {
		ids = append(ids, v.ID)
	}
	tags, err := f.src.Tags(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("video tags: %w", err)
	}

	keywords := append([]string{strings.ToLower(artist)}, f.cfg.Tags.Keywords...)
	ranked := Rank(videos, tags, keywords, f.now(), f.cfg.Tags.Top)
	f.log.Infow("trending tags fetched", "query", query, "videos", len(videos), "tags", len(ranked))
	return ranked, nil
}

var (
	tagNoise = regexp.MustCompile(`[\[\]()|#]`)
	spaces   = regexp.MustCompile(`\s+`)
)

// NormalizeTag lower-cases tag, drops brackets, pipes and hashes and
// collapses whitespace.
func NormalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	tag = tagNoise.ReplaceAllString(tag, "")
	tag = spaces.ReplaceAllString(tag, " ")
	return strings.TrimSpace(tag)
}

// RecencyWeight favours newer uploads: 1.5 for today, falling linearly to a
// floor of 0.5 at 90 days.
func RecencyWeight(published, now time.Time) float64 {
	age := float64(int(now.Sub(published).Hours() / 24))
	return max(0.5, 1.5-age/90)
}

// Rank scores each normalized tag containing one of keywords by the
// recency weight of every video carrying it, counting a tag once per
// video, and returns the top tags. Ties keep first-seen order.
func Rank(videos []Video, tags map[string][]string, keywords []string, now time.Time, top int) []string {
	score := make(map[string]float64)
	var order []string
	for _, v := range videos {
		w := RecencyWeight(v.PublishedAt, now)
		seen := make(map[string]bool)
		for _, t := range tags[v.ID] {
			norm := NormalizeTag(t)
			if norm == "" || seen[norm] || !containsAny(norm, keywords) {
				continue
			}
			seen[norm] = true
			if _, ok := score[norm]; !ok {
				order = append(order, norm)
			}
			score[norm] += w
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return score[order[i]] > score[order[j]] })
	if top > 0 && len(order) > top {
		order = order[:top]
	}
	return order
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// YouTube is a Source backed by the YouTube Data API with an API key.
type YouTube struct {
	svc *youtube.Service
}

// NewYouTube creates the API client. Extra options override the defaults,
// which lets tests point it at a local server.
func NewYouTube(ctx context.Context, apiKey string, opts ...option.ClientOption) (*YouTube, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &YouTube{svc: svc}, nil
}

func (y *YouTube) Search(ctx context.Context, query, order string, limit int) ([]Video, error) {
	res, err := y.svc.Search.List([]string{"id", "snippet"}).
		Q(query).
		Type("video").
		Order(order).
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	videos := make([]Video, 0, len(res.Items))
	for _, item := range res.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		published, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if err != nil {
			continue
		}
		videos = append(videos, Video{ID: item.Id.VideoId, PublishedAt: published})
	}
	return videos, nil
}

// videosPerCall is the API's maximum number of IDs per videos.list call.
const videosPerCall = 50

func (y *YouTube) Tags(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	unique := dedupe(ids)
	for start := 0; start < len(unique); start += videosPerCall {
		end := min(start+videosPerCall, len(unique))
		res, err := y.svc.Videos.List([]string{"snippet"}).Id(unique[start:end]...).Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		for _, v := range res.Items {
			if v.Snippet != nil {
				out[v.Id] = v.Snippet.Tags
			}
		}
	}
	return out, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
