package engine

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/eringen/pubrender/asset"
	"github.com/eringen/pubrender/config"
	"github.com/eringen/pubrender/content"
	"github.com/eringen/pubrender/markdown"
	"github.com/eringen/pubrender/publication"
	"github.com/eringen/pubrender/render"
	"github.com/eringen/pubrender/scene"
)

// Status of a render.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not found"
	default:
		return "error"
	}
}

// Outcome of Controller.Render. HTML is set for StatusOK and StatusNotFound,
// Err only for StatusError.
type Outcome struct {
	Status Status
	HTML   string
	Err    error
}

// ErrNothingToServe is returned when neither the requested id nor the
// not-found publication exist.
var ErrNothingToServe = errors.New("no publication to serve")

// Controller renders publications. The manifest is re-read on every call.
type Controller struct {
	Context  *ServerContext
	Builtin  render.Renderer
	Minifier asset.Minifier
	Client   *http.Client
	Logger   *log.Logger
	Version  string
}

var discard = func() *log.Logger {
	l := log.New("engine")
	l.SetOutput(io.Discard)
	return l
}()

func (c *Controller) logger() *log.Logger {
	if c.Logger == nil {
		return discard
	}
	return c.Logger
}

// Render resolves id and renders it. The empty id is the root page.
func (c *Controller) Render(ctx context.Context, id string) Outcome {
	lg := c.logger()
	cfg := c.Context.Config()
	list := publication.Load(cfg.ManifestPath(), lg)

	var p publication.Publication
	status := StatusOK
	switch list.Check(id, cfg.Pages.NotFound, cfg.Scenes) {
	case publication.CheckOK:
		p, _ = list.GetByID(id)
	case publication.CheckNotFound:
		lg.Debugf("publication %q not found, serving %q", id, cfg.Pages.NotFound)
		p, _ = list.GetNotFound(cfg.Pages.NotFound)
		status = StatusNotFound
	default:
		err := list.Validate(cfg.Scenes)
		if err == nil {
			err = errors.Wrapf(ErrNothingToServe, "%q and not-found page %q", id, cfg.Pages.NotFound)
		}
		return Outcome{Status: StatusError, Err: err}
	}

	html, err := c.renderPublication(ctx, cfg, list, p)
	if err != nil {
		return Outcome{Status: StatusError, Err: errors.Wrapf(err, "render %q", p.Base().ID)}
	}
	return Outcome{Status: status, HTML: html}
}

func (c *Controller) renderPublication(ctx context.Context, cfg config.SiteConfig, list publication.List, p publication.Publication) (string, error) {
	sc, err := scene.Resolve(p, cfg.Scenes)
	if err != nil {
		return "", err
	}

	data := templateData(p)
	fetcher := content.Fetcher{Root: cfg.ContentRoot(), Client: c.Client}
	switch p := p.(type) {
	case publication.Page:
		data.Content, err = fetcher.Normalize(ctx, p.Content)
	case publication.Post:
		data.Content, err = fetcher.Normalize(ctx, p.Content)
	case publication.PostList:
		data.Content = postListTable(list.Posts(p.Filter))
	}
	if err != nil {
		return "", err
	}

	templatePath := cfg.TemplatePath(sc.Kind, sc.Template)
	if _, err := os.Stat(templatePath); err != nil {
		return "", errors.Wrapf(render.ErrTemplateMissing, "%s", templatePath)
	}
	body, err := c.renderers().Render(ctx, templatePath, data)
	if err != nil {
		return "", err
	}

	inliner := &asset.Inliner{
		Cache:     c.Context.Store(),
		Minifier:  c.Minifier,
		Lifetimes: cfg.AssetLifetimes(),
		Logger:    c.Logger,
	}
	doc := render.Document{
		Title:   markdown.Plain(data.Meta.Title),
		Meta:    data.Meta,
		Kind:    sc.Kind,
		Version: c.Version,
		Body:    body,
	}
	doc.Meta.Desc = markdown.Plain(doc.Meta.Desc)
	if sc.Stylesheet != "" {
		if doc.Style, err = inliner.Inline(ctx, cfg.AssetPath(sc.Stylesheet), asset.Style); err != nil {
			return "", err
		}
	}
	if sc.Script != "" {
		if doc.Script, err = inliner.Inline(ctx, cfg.AssetPath(sc.Script), asset.Script); err != nil {
			return "", err
		}
	}
	return doc.HTML()
}

// renderers is the external collaborator, when one runs, then the builtin
// engine.
func (c *Controller) renderers() render.Chain {
	var tiers []render.Renderer
	if ext := c.Context.External(); ext != nil {
		tiers = append(tiers, ext)
	}
	if c.Builtin != nil {
		tiers = append(tiers, c.Builtin)
	}
	return render.NewChain(c.Logger, tiers...)
}

func templateData(p publication.Publication) render.TemplateData {
	base := p.Base()
	meta := render.Meta{
		ID:        base.ID,
		Title:     base.Title,
		Tags:      []string{},
		Dates:     base.Dates,
		Thumbnail: base.Thumbnail,
	}
	switch p := p.(type) {
	case publication.Page:
		meta.Desc = p.Description
	case publication.Post:
		meta.Desc = p.Short
		meta.Category = p.Category
		meta.Author = p.Author
		if p.Tags != nil {
			meta.Tags = p.Tags
		}
	}
	return render.TemplateData{Meta: meta}
}
