// Package formatter renders reports as Markdown text split into messages that
// fit a channel's byte budget.
//
// The output targets Telegram's legacy Markdown, which is also accepted by the
// Markdown webhooks. Report text is escaped outside entities. Inside an entity
// (bold, italic, link text) escaping is not supported, so markup characters are
// replaced with their fullwidth forms.
package formatter

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/maine/trendradar/internal/news"
	"github.com/maine/trendradar/internal/report"
)

const (
	// DefaultMaxBytes fits a Telegram message.
	DefaultMaxBytes = 4000
	// DefaultMaxMessages caps how many parts one report is split into.
	DefaultMaxMessages = 10

	partHeaderTemplate = "(%d/%d)\n"
	// headerReserve leaves room for the part header.
	headerReserve  = 16
	blockSeparator = "\n\n"
	ellipsis       = "..."
	timeLayout     = "15:04"
)

// Formatter turns a report into one or more messages.
type Formatter struct {
	maxBytes    int
	maxMessages int
	location    *time.Location
}

// New creates a formatter. Non-positive limits use the defaults; a nil
// location renders times in UTC.
func New(maxBytes, maxMessages int, loc *time.Location) *Formatter {
	if maxBytes <= headerReserve+len(ellipsis) {
		maxBytes = DefaultMaxBytes
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{maxBytes: maxBytes, maxMessages: maxMessages, location: loc}
}

// BuildMessages renders r and splits it into messages no longer than the
// configured byte budget. Group blocks are only broken when a single block
// does not fit in one message.
func (f *Formatter) BuildMessages(r news.Report) []string {
	return f.split(f.blocks(r))
}

var (
	markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)
	markdownPlain   = strings.NewReplacer(`\_`, "_", `\*`, "*", "\\`", "`", `\[`, "[")
	entitySanitizer = strings.NewReplacer("_", "＿", "*", "＊", "`", "｀", "[", "［", "]", "］")
	urlSanitizer    = strings.NewReplacer(")", "%29", " ", "%20")
)

// escape makes s literal outside Markdown entities.
func escape(s string) string { return markdownEscaper.Replace(s) }

// entityText makes s safe inside a bold, italic or link-text entity.
func entityText(s string) string { return entitySanitizer.Replace(s) }

// Unescape removes the escapes added by the formatter, for channels that
// show messages as plain text.
func Unescape(message string) string { return markdownPlain.Replace(message) }

func (f *Formatter) blocks(r news.Report) []string {
	blocks := []string{f.header(r)}

	if r.Digest != "" {
		blocks = append(blocks, "*Digest*\n"+escape(strings.TrimSpace(r.Digest)))
	}

	for i, st := range r.Stats {
		if st.Count == 0 {
			continue
		}
		blocks = append(blocks, f.groupBlock(i+1, len(r.Stats), st, r.RankThreshold))
	}

	if total := r.NewTitles.Total(); total > 0 {
		blocks = append(blocks, f.newTitlesBlock(r, total))
	}

	if len(r.Failed) > 0 {
		names := make([]string, 0, len(r.Failed))
		for _, id := range r.Failed {
			names = append(names, escape(r.PlatformName(id)))
		}
		blocks = append(blocks, "*Failed platforms*\n"+strings.Join(names, ", "))
	}

	if len(blocks) == 1 {
		blocks = append(blocks, "No matching titles.")
	}
	return blocks
}

func (f *Formatter) header(r news.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n", headerTitle(r.Kind))
	fmt.Fprintf(&sb, "Matches: %d", r.TotalMatches())
	if n := r.NewTitles.Total(); n > 0 {
		fmt.Fprintf(&sb, " | New: %d", n)
	}
	if !r.GeneratedAt.IsZero() {
		fmt.Fprintf(&sb, "\n%s", r.GeneratedAt.In(f.location).Format("2006-01-02 15:04"))
	}
	return sb.String()
}

func headerTitle(kind news.ReportKind) string {
	s := string(kind)
	if s == "" {
		return "Trend report"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (f *Formatter) groupBlock(idx, total int, st news.MatchStat, threshold int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s* : %d \\[%d/%d]", entityText(st.Group), st.Count, idx, total)
	for i, t := range st.Titles {
		sb.WriteString("\n")
		sb.WriteString(f.titleLine(i+1, t, threshold))
	}
	return sb.String()
}

func (f *Formatter) newTitlesBlock(r news.Report, total int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*New titles* (%d)", total)

	platforms := make([]string, 0, len(r.NewTitles))
	for p := range r.NewTitles {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	for _, p := range platforms {
		obs := append([]news.TitleObservation(nil), r.NewTitles[p]...)
		news.SortByRank(obs)
		fmt.Fprintf(&sb, "\n_%s_ (%d)", entityText(r.PlatformName(p)), len(obs))
		for i, o := range obs {
			sb.WriteString("\n")
			sb.WriteString(f.entry(i+1, nil, o.Title, pickURL(o.URL, o.MobileURL), []string{rankLabel(o.Ranks, r.RankThreshold)}))
		}
	}
	return sb.String()
}

func (f *Formatter) titleLine(n int, t news.MatchedTitle, threshold int) string {
	before := []string{`\[` + escape(t.PlatformName) + "]"}
	if t.IsNew {
		before = append(before, "NEW")
	}

	after := []string{rankLabel([]int{t.MinRank, t.MaxRank}, threshold)}
	if !t.FirstSeen.IsZero() {
		first := t.FirstSeen.In(f.location).Format(timeLayout)
		last := t.LastSeen.In(f.location).Format(timeLayout)
		span := first
		if last != first {
			span = first + "~" + last
		}
		after = append(after, "- "+span)
	}
	if t.Appearances > 1 {
		after = append(after, fmt.Sprintf("(%d)", t.Appearances))
	}
	return f.entry(n, before, t.Title, pickURL(t.URL, t.MobileURL), after)
}

// entry renders one numbered title line that fits in a message. The title is
// linked when the whole line fits; otherwise it is shortened and left unlinked.
func (f *Formatter) entry(n int, before []string, title, url string, after []string) string {
	prefix := joinNonEmpty(append([]string{fmt.Sprintf("%d.", n)}, before...))
	suffix := joinNonEmpty(after)
	line := func(titlePart string) string {
		return joinNonEmpty([]string{prefix, titlePart, suffix})
	}

	limit := f.maxBytes - headerReserve
	if url != "" {
		linked := line("[" + entityText(title) + "](" + urlSanitizer.Replace(url) + ")")
		if len(linked) <= limit {
			return linked
		}
	}
	if plain := line(escape(title)); len(plain) <= limit {
		return plain
	}
	// Escaping at most doubles the title.
	room := (limit - len(prefix) - len(suffix) - 2) / 2
	return line(escape(truncate(title, room)))
}

func pickURL(url, mobileURL string) string {
	if url != "" {
		return url
	}
	return mobileURL
}

func joinNonEmpty(parts []string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// rankLabel renders the rank range; top and high ranks are bolded.
func rankLabel(ranks []int, threshold int) string {
	lo, hi := 0, 0
	for _, r := range ranks {
		if r <= 0 {
			continue
		}
		if lo == 0 || r < lo {
			lo = r
		}
		if r > hi {
			hi = r
		}
	}
	if lo == 0 {
		return ""
	}

	label := fmt.Sprintf("[%d]", lo)
	if hi != lo {
		label = fmt.Sprintf("[%d - %d]", lo, hi)
	}
	if report.ClassifyRank(lo, threshold) != report.RankNormal {
		return "*" + label + "*"
	}
	return `\` + label
}

// split packs blocks into messages. An oversized block is broken by lines and
// an oversized line is truncated.
func (f *Formatter) split(blocks []string) []string {
	limit := f.maxBytes - headerReserve

	var (
		messages []string
		current  strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			messages = append(messages, strings.TrimRight(current.String(), "\n"))
			current.Reset()
		}
	}
	appendPiece := func(piece, sep string) {
		if current.Len() > 0 && current.Len()+len(sep)+len(piece) > limit {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(piece)
	}

	for _, block := range blocks {
		if len(block) <= limit {
			appendPiece(block, blockSeparator)
			continue
		}
		flush()
		for _, line := range strings.Split(block, "\n") {
			appendPiece(truncate(line, limit), "\n")
		}
	}
	flush()

	if len(messages) > f.maxMessages {
		messages = messages[:f.maxMessages]
		messages[len(messages)-1] = f.markCut(messages[len(messages)-1], limit)
	}

	if len(messages) > 1 {
		total := len(messages)
		for i := range messages {
			messages[i] = fmt.Sprintf(partHeaderTemplate, i+1, total) + messages[i]
		}
	}
	return messages
}

// markCut appends the ellipsis line to the last kept message, dropping whole
// lines so no Markdown entity is left open.
func (f *Formatter) markCut(last string, limit int) string {
	marker := "\n" + ellipsis
	for len(last)+len(marker) > limit {
		i := strings.LastIndexByte(last, '\n')
		if i < 0 {
			return truncate(last, limit-len(marker)) + marker
		}
		last = last[:i]
	}
	return last + marker
}

// truncate cuts s to at most n bytes on a rune boundary, marking the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - len(ellipsis)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
