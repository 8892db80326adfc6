// Package markdown implements the templating collaborator: named templates
// produce markdown which goldmark converts to standalone HTML documents.
package markdown

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.md.tmpl
var templateFS embed.FS

// Renderer renders named templates to HTML. It holds no mutable state after
// construction, so one instance is safely shared across render workers.
type Renderer struct {
	templates *template.Template
	md        goldmark.Markdown
}

// NewRenderer parses the embedded template set.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Renderer{
		templates: tmpl,
		md:        goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}, nil
}

// Render executes the named template and converts the result to HTML.
func (r *Renderer) Render(_ context.Context, name string, data any) ([]byte, error) {
	var md bytes.Buffer
	if err := r.templates.ExecuteTemplate(&md, name+".md.tmpl", data); err != nil {
		return nil, fmt.Errorf("executing template %s: %w", name, err)
	}

	var html bytes.Buffer
	html.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"></head><body>\n")
	if err := r.md.Convert(md.Bytes(), &html); err != nil {
		return nil, fmt.Errorf("converting markdown for %s: %w", name, err)
	}
	html.WriteString("</body></html>\n")
	return html.Bytes(), nil
}
