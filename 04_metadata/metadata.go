package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"beat-publish-pipeline/config"
	"beat-publish-pipeline/types"

	"go.uber.org/zap"
)

const systemPrompt = `You are a YouTube SEO specialist for type beat producers.
You MUST respond with ONLY valid JSON, no markdown and no explanation.

The JSON must have exactly these fields:
- "title": string
- "bs_tags": array of strings
- "yt_tags": array of strings
- "description": string
- "tags": array of strings
- "short_hashtags": string`

// ErrEmptyResponse is returned when the model produced no usable JSON.
var ErrEmptyResponse = errors.New("model returned no metadata")

// Generator writes titles, tags and descriptions through an
// OpenAI-compatible chat completion API
type Generator struct {
	cfg        *config.Config
	httpClient *http.Client
	log        *zap.SugaredLogger
}

// Option customizes the generator.
type Option func(*Generator)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Generator) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// New creates a new metadata Generator
func New(cfg *config.Config, log *zap.SugaredLogger, opts ...Option) *Generator {
	g := &Generator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Metadata.Timeout},
		log:        log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Run generates metadata for a beat by artist. The description carries the
// usage terms, the storefront link placeholder, key and BPM, the contact
// lines, the trending tags and the hashtags.
func (g *Generator) Run(ctx context.Context, artist string, audio types.AudioMeta, trending []string, contact types.Contact) (*types.GeneratedMetadata, error) {
	apiKey := g.cfg.Secrets.LLMAPIKey
	if apiKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY not set")
	}
	g.log.Infow("generating metadata", "artist", artist, "trending", len(trending), "model", g.cfg.Metadata.Model)

	content, err := g.complete(ctx, apiKey, BuildPrompt(artist, trending))
	if err != nil {
		return nil, err
	}
	md, err := ParseMetadata(content)
	if err != nil {
		return nil, err
	}

	md.PlatformTags = LimitPlatformTags(md.PlatformTags, g.cfg.Metadata.PlatformTagChars)
	md.Description = BuildDescription(md, Footer{
		UsageTerms:  g.cfg.Metadata.UsageTerms,
		Placeholder: g.cfg.Metadata.LinkPlaceholder,
		Audio:       audio,
		Contact:     contact,
	})
	g.log.Infow("metadata generated", "title", md.Title, "platform_tag_chars", tagChars(md.PlatformTags))
	return md, nil
}

func (g *Generator) complete(ctx context.Context, apiKey, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.cfg.Metadata.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    g.cfg.Metadata.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", err
	}
	endpoint := strings.TrimRight(g.cfg.Metadata.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()
	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("parse chat response (http %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat error (http %d): %s", resp.StatusCode, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat request: http %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat returned no choices: %w", ErrEmptyResponse)
	}
	return parsed.Choices[0].Message.Content, nil
}

// BuildPrompt asks for metadata built from the trending tags.
func BuildPrompt(artist string, trending []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "These are the most trending tags for %s right now: %s\n\n", artist, strings.Join(trending, ", "))
	sb.WriteString("Generate a JSON object using those tags with fields:\n")
	fmt.Fprintf(&sb, "1) title: (at most 60 chars) Example title: \"[FREE] %s TYPE BEAT - 'ASTROVIBES'\" (generate a random name, all caps)\n", strings.ToUpper(artist))
	sb.WriteString("2) bs_tags: 3 relevant short tags for the beat store\n")
	sb.WriteString("3) yt_tags: use supplied tags only, do NOT generate new ones; total char count excluding commas at most 500; pick some tags with years\n")
	fmt.Fprintf(&sb, "4) description: Beat inspired by %s, Hope y'all like it!\n", artist)
	sb.WriteString("5) tags: list all trending tags provided\n")
	sb.WriteString("6) short_hashtags: 2-3 short relevant hashtags\n")
	sb.WriteString("Only output valid JSON and nothing else.")
	return sb.String()
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseMetadata decodes the model's reply, tolerating code fences and text
// around the JSON object.
func ParseMetadata(content string) (*types.GeneratedMetadata, error) {
	obj := jsonObject.FindString(cleanJSON(content))
	if obj == "" {
		return nil, ErrEmptyResponse
	}
	var md types.GeneratedMetadata
	if err := json.Unmarshal([]byte(obj), &md); err != nil {
		return nil, fmt.Errorf("parse metadata JSON: %w\ncontent: %s", err, obj[:min(300, len(obj))])
	}
	if strings.TrimSpace(md.Title) == "" {
		return nil, fmt.Errorf("metadata has no title: %w", ErrEmptyResponse)
	}
	return &md, nil
}

func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// LimitPlatformTags keeps the longest prefix of tags whose combined length,
// commas excluded, stays within limit.
func LimitPlatformTags(tags []string, limit int) []string {
	out := make([]string, 0, len(tags))
	total := 0
	for _, tag := range tags {
		n := utf8.RuneCountInString(strings.ReplaceAll(tag, ",", ""))
		if total+n > limit {
			break
		}
		out = append(out, tag)
		total += n
	}
	return out
}

func tagChars(tags []string) int {
	n := 0
	for _, t := range tags {
		n += utf8.RuneCountInString(strings.ReplaceAll(t, ",", ""))
	}
	return n
}

// Footer is the fixed text appended to every description.
type Footer struct {
	UsageTerms  string
	Placeholder string
	Audio       types.AudioMeta
	Contact     types.Contact
}

var descriptionNoise = regexp.MustCompile(`[\[\]'"]`)

// BuildDescription appends the footer, the tag list and the hashtags to the
// generated description and strips brackets and quotes.
func BuildDescription(md *types.GeneratedMetadata, f Footer) string {
	var sb strings.Builder
	sb.WriteString(md.Description)
	fmt.Fprintf(&sb, "\n\nUSAGE TERMS\n%s\n\nDownload/Purchase: %s\n\n", f.UsageTerms, f.Placeholder)
	fmt.Fprintf(&sb, "Key: %s\nBpm: %d\n\n", f.Audio.Key, f.Audio.BPM)
	fmt.Fprintf(&sb, "Instagram: %s\nEmail: %s\n\n", f.Contact.Instagram, f.Contact.Email)
	fmt.Fprintf(&sb, "\n\nTags\n%s\n\n%s", strings.Join(md.Tags, ", "), md.Hashtags)
	return descriptionNoise.ReplaceAllString(sb.String(), "")
}

// Save writes md as indented JSON, replacing any previous file.
func Save(path string, md *types.GeneratedMetadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
