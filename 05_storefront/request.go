package storefront

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// UploadRequest describes one beat to publish. Publish works on a
// normalized copy; the caller's value is never modified.
type UploadRequest struct {
	AudioPath     string
	ArtworkPath   string
	StemsPath     string
	Title         string
	Tags          []string
	Collaborators []string
}

// Limits are the storefront's metadata constraints.
type Limits struct {
	TitleMax   int
	TagMax     int
	FreePrefix string
}

// DefaultLimits returns the storefront's published limits.
func DefaultLimits() Limits {
	return Limits{TitleMax: 60, TagMax: 3, FreePrefix: "[FREE] "}
}

// Normalize validates the request and applies the title and tag limits.
func (r UploadRequest) Normalize(l Limits) (UploadRequest, error) {
	if strings.TrimSpace(r.AudioPath) == "" {
		return UploadRequest{}, fmt.Errorf("%w: audio path required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.ArtworkPath) == "" {
		return UploadRequest{}, fmt.Errorf("%w: artwork path required", ErrInvalidRequest)
	}
	out := r
	out.Title = NormalizeTitle(strings.TrimSpace(r.Title), l)
	out.Tags = LimitTags(cleanList(r.Tags), l.TagMax)
	out.Collaborators = dedupe(cleanList(r.Collaborators))
	return out, nil
}

// NormalizeTitle removes a leading free-beat marker from titles over the
// limit. It never truncates: an oversized title that does not start with
// the marker is left as is.
func NormalizeTitle(title string, l Limits) string {
	if l.TitleMax <= 0 || utf8.RuneCountInString(title) <= l.TitleMax {
		return title
	}
	if l.FreePrefix == "" {
		return title
	}
	return strings.TrimPrefix(title, l.FreePrefix)
}

// LimitTags keeps the first limit tags in order.
func LimitTags(tags []string, limit int) []string {
	if limit <= 0 || len(tags) <= limit {
		return append([]string(nil), tags...)
	}
	return append([]string(nil), tags[:limit]...)
}

// ValidLink reports whether link is a short link under prefix.
func ValidLink(link, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(link, prefix) {
		return false
	}
	slug := strings.TrimPrefix(link, prefix)
	return slug != "" && !strings.ContainsFunc(slug, unicode.IsSpace)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
