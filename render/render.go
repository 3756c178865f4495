// Package render turns a template and its data into an HTML fragment and
// wraps fragments into complete documents.
package render

import (
	"context"
	"io"

	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/eringen/pubrender/publication"
)

var (
	// ErrTemplateMissing is returned when the template file does not exist.
	ErrTemplateMissing = errors.New("template missing")
	// ErrTemplateRender is returned when a template fails to parse or run.
	ErrTemplateRender = errors.New("template render failed")
	// ErrExternalRenderer covers every failure of the external collaborator.
	ErrExternalRenderer = errors.New("external renderer failed")
	// ErrAllRenderersFailed is returned by a Chain whose every tier failed.
	ErrAllRenderersFailed = errors.New("all renderers failed")
)

// Renderer renders the template at templatePath with data.
type Renderer interface {
	Name() string
	Render(ctx context.Context, templatePath string, data TemplateData) (string, error)
}

// Meta is the publication metadata handed to templates.
type Meta struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Desc      string              `json:"desc,omitempty"`
	Category  string              `json:"category,omitempty"`
	Tags      []string            `json:"tags"`
	Author    *publication.Author `json:"author,omitempty"`
	Dates     publication.Dates   `json:"dates"`
	Thumbnail string              `json:"thumbnail,omitempty"`
}

// TemplateData is the uniform record every renderer receives.
type TemplateData struct {
	Meta    Meta   `json:"meta"`
	Content string `json:"content"`
}

// Chain tries its renderers in order and returns the first success.
type Chain struct {
	Renderers []Renderer
	Logger    *log.Logger
}

// NewChain returns a chain over rs in order.
func NewChain(lg *log.Logger, rs ...Renderer) Chain {
	return Chain{Renderers: rs, Logger: lg}
}

// Name implements Renderer.
func (c Chain) Name() string { return "chain" }

// Render implements Renderer.
func (c Chain) Render(ctx context.Context, templatePath string, data TemplateData) (string, error) {
	lg := c.Logger
	if lg == nil {
		lg = discard
	}
	last := errors.New("no renderers configured")
	for i, r := range c.Renderers {
		out, err := r.Render(ctx, templatePath, data)
		if err == nil {
			return out, nil
		}
		last = err
		if i < len(c.Renderers)-1 {
			lg.Warnf("%s renderer failed on %s, falling back to %s: %v",
				r.Name(), templatePath, c.Renderers[i+1].Name(), err)
		}
	}
	return "", errors.Wrapf(ErrAllRenderersFailed, "%s: %v", templatePath, last)
}

var discard = func() *log.Logger {
	l := log.New("render")
	l.SetOutput(io.Discard)
	return l
}()
