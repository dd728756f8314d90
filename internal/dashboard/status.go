package dashboard

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/resultsdash/internal/config"
)

var md = goldmark.New()

// Panel is a static, severity-tagged notice.
type Panel struct {
	Severity string
	HTML     template.HTML
}

// Progress is a single progress indicator with a caption.
type Progress struct {
	Label    string
	Text     string
	Fraction float64
	Percent  float64
}

func newPanels(cfg []config.Panel) []Panel {
	panels := make([]Panel, 0, len(cfg))
	for _, p := range cfg {
		panels = append(panels, Panel{Severity: p.Severity, HTML: renderMarkdown(p.Markdown)})
	}
	return panels
}

func newProgress(cfg config.Progress) Progress {
	f := clamp(cfg.Fraction, 0, 1)
	return Progress{
		Label:    cfg.Label,
		Text:     cfg.Text,
		Fraction: f,
		Percent:  f * 100,
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}
