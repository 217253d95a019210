package email

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"

	"github.com/maine/trendradar/internal/news"
	"github.com/maine/trendradar/internal/report"
)

// Renderer renders a report as an HTML document.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer creates a renderer with the built-in template.
func NewRenderer() *Renderer {
	return &Renderer{tmpl: template.Must(template.New("report").Parse(reportTemplate))}
}

type titleView struct {
	news.MatchedTitle
	Class string
}

type groupView struct {
	Name   string
	Count  int
	Titles []titleView
}

type platformView struct {
	Name   string
	Titles []news.TitleObservation
}

type reportView struct {
	Subject   string
	Digest    string
	Groups    []groupView
	NewTitles []platformView
	Failed    []string
}

// Render produces the HTML body of r.
func (rd *Renderer) Render(r news.Report) (string, error) {
	view := reportView{Subject: Subject(r), Digest: r.Digest}

	for _, st := range r.Stats {
		if st.Count == 0 {
			continue
		}
		g := groupView{Name: st.Group, Count: st.Count}
		for _, t := range st.Titles {
			g.Titles = append(g.Titles, titleView{
				MatchedTitle: t,
				Class:        string(report.ClassifyRank(t.MinRank, r.RankThreshold)),
			})
		}
		view.Groups = append(view.Groups, g)
	}

	platforms := make([]string, 0, len(r.NewTitles))
	for p := range r.NewTitles {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	for _, p := range platforms {
		view.NewTitles = append(view.NewTitles, platformView{Name: r.PlatformName(p), Titles: r.NewTitles[p]})
	}
	for _, id := range r.Failed {
		view.Failed = append(view.Failed, r.PlatformName(id))
	}

	var buf bytes.Buffer
	if err := rd.tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render email template: %w", err)
	}
	return buf.String(), nil
}

const reportTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Subject}}</title>
<style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; color: #222; max-width: 720px; margin: 0 auto; }
h2 { border-bottom: 1px solid #ddd; padding-bottom: 4px; }
.top { color: #c0392b; font-weight: bold; }
.high { color: #d35400; font-weight: bold; }
.normal { color: #777; }
.new { background: #27ae60; color: #fff; font-size: 11px; padding: 1px 4px; border-radius: 3px; }
</style>
</head>
<body>
<h1>{{.Subject}}</h1>
{{if .Digest}}<h2>Digest</h2>
<p>{{.Digest}}</p>
{{end}}{{range .Groups}}<h2>{{.Name}} ({{.Count}})</h2>
<ol>
{{range .Titles}}<li>[{{.PlatformName}}] {{if .IsNew}}<span class="new">NEW</span> {{end}}{{if .URL}}<a href="{{.URL}}">{{.Title}}</a>{{else}}{{.Title}}{{end}} <span class="{{.Class}}">[{{.MinRank}}{{if ne .MinRank .MaxRank}} - {{.MaxRank}}{{end}}]</span></li>
{{end}}</ol>
{{else}}<p>No matching titles.</p>
{{end}}{{if .NewTitles}}<h2>New titles</h2>
{{range .NewTitles}}<h3>{{.Name}}</h3>
<ul>
{{range .Titles}}<li>{{if .URL}}<a href="{{.URL}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}</li>
{{end}}</ul>
{{end}}{{end}}{{if .Failed}}<h2>Failed platforms</h2>
<p>{{range $i, $p := .Failed}}{{if $i}}, {{end}}{{$p}}{{end}}</p>
{{end}}</body>
</html>
`
