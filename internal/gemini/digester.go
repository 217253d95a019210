package gemini

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/news"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-flash"
	// maxPromptTitles bounds the prompt size for very busy reports.
	maxPromptTitles = 120
	maxDigestBytes  = 1500
)

// ErrNothingToDigest is returned for reports without matches or new titles.
var ErrNothingToDigest = errors.New("report has nothing to digest")

// Digester summarises a report in a few sentences.
type Digester struct {
	client GeminiClient
	model  string
	log    logger.Logger
}

// NewDigester creates a digester using model.
func NewDigester(client GeminiClient, model string, log logger.Logger) *Digester {
	if model == "" {
		model = DefaultModel
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Digester{client: client, model: model, log: log}
}

// Digest asks the model for a short overview of the report's matched and new titles.
func (d *Digester) Digest(ctx context.Context, r news.Report) (string, error) {
	input, n := promptInput(r)
	if n == 0 {
		return "", ErrNothingToDigest
	}

	text, err := d.client.GenerateText(ctx, d.model, buildPrompt(input))
	if err != nil {
		return "", fmt.Errorf("generate digest: %w", err)
	}

	digest := truncate(stripCodeFence(text), maxDigestBytes)
	if digest == "" {
		return "", errors.New("model returned an empty digest")
	}
	d.log.Debug("Digest generated", logger.Int("titles", n), logger.Int("bytes", len(digest)))
	return digest, nil
}

// promptInput lists the report's titles grouped by interest group, followed
// by new titles not matched by any group. It returns the number of titles listed.
func promptInput(r news.Report) (string, int) {
	var sb strings.Builder
	n := 0
	listed := make(map[string]bool)

	for _, st := range r.Stats {
		if st.Count == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s (%d)\n", st.Group, st.Count)
		for _, t := range st.Titles {
			if n >= maxPromptTitles {
				break
			}
			fmt.Fprintf(&sb, "- [%s] %s (rank %d)\n", t.PlatformName, t.Title, t.MinRank)
			listed[t.Platform+"\x00"+t.Title] = true
			n++
		}
	}

	var fresh []string
	for platform, obs := range r.NewTitles {
		for _, o := range obs {
			if listed[platform+"\x00"+o.Title] || n >= maxPromptTitles {
				continue
			}
			fresh = append(fresh, fmt.Sprintf("- [%s] %s", r.PlatformName(platform), o.Title))
			n++
		}
	}
	if len(fresh) > 0 {
		sort.Strings(fresh)
		sb.WriteString("## New titles\n")
		sb.WriteString(strings.Join(fresh, "\n"))
		sb.WriteString("\n")
	}
	return sb.String(), n
}

func buildPrompt(input string) string {
	return fmt.Sprintf(`You are the editor of a trending-topics briefing.
Below are headlines currently trending on several platforms, grouped by the reader's interest groups.
Write a neutral overview of 3 to 5 short sentences covering the most important themes.
Do not invent facts that are not in the headlines. Do not use headings or lists. Reply with plain text only.

Headlines:
%s`, input)
}

// stripCodeFence removes a surrounding Markdown code block the model may add.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.Contains(text[:nl], " ") {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
