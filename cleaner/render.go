// Package cleaner turns the HTML of a notice's detail view into the text
// stored on the notice.
package cleaner

import (
	"fmt"

	"github.com/andybalholm/cascadia"
)

// Body formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// Renderer renders detail HTML in one format, optionally narrowed to the
// region matching a CSS selector first.
type Renderer struct {
	format string
	sel    cascadia.Sel
}

// NewRenderer validates format and compiles selector (which may be empty).
func NewRenderer(format, selector string) (*Renderer, error) {
	switch format {
	case "", FormatText:
		format = FormatText
	case FormatMarkdown:
	default:
		return nil, fmt.Errorf("cleaner: unknown body format %q", format)
	}

	r := &Renderer{format: format}
	if selector != "" {
		sel, err := cascadia.Parse(selector)
		if err != nil {
			return nil, fmt.Errorf("cleaner: body selector %q: %w", selector, err)
		}
		r.sel = sel
	}
	return r, nil
}

// Render converts htmlContent to the configured format.
func (r *Renderer) Render(htmlContent string) (string, error) {
	if r.sel != nil {
		narrowed, err := Narrow(htmlContent, r.sel)
		if err != nil {
			return "", err
		}
		htmlContent = narrowed
	}
	if r.format == FormatMarkdown {
		return Markdown(htmlContent)
	}
	return Text(htmlContent)
}
