package pubrender

import (
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/eringen/pubrender/engine"
	"github.com/eringen/pubrender/publication"
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func (a *App) handleRoot(c echo.Context) error {
	return a.renderOutcome(c, a.Controller.Render(c.Request().Context(), publication.RootID))
}

func (a *App) handlePublication(c echo.Context) error {
	return a.renderOutcome(c, a.Controller.Render(c.Request().Context(), c.Param("id")))
}

// renderOutcome maps a render outcome to a response: ok is 200, not found
// is 404 with the rendered not-found document, and error is 500.
func (a *App) renderOutcome(c echo.Context, out engine.Outcome) error {
	switch out.Status {
	case engine.StatusOK:
		return RenderStatus(c, http.StatusOK, templ.Raw(out.HTML))
	case engine.StatusNotFound:
		return RenderStatus(c, http.StatusNotFound, templ.Raw(out.HTML))
	default:
		a.logRenderError(c, out.Err)
		return RenderStatus(c, http.StatusInternalServerError, ServerError())
	}
}

func (a *App) logRenderError(c echo.Context, err error) {
	c.Logger().Errorf("render %s: %v", c.Request().URL.Path, err)
	if st, ok := err.(stackTracer); ok && a.Logger.Level() == log.DEBUG {
		c.Logger().Debugf("%+v", st.StackTrace())
	}
}

func (a *App) handleSitemap(c echo.Context) error {
	cfg := a.Context.Config()
	return a.renderSitemap(c, publication.Load(cfg.ManifestPath(), a.Logger))
}

func (a *App) handleFeed(c echo.Context) error {
	cfg := a.Context.Config()
	list := publication.Load(cfg.ManifestPath(), a.Logger)
	return a.renderRSS(c, list.Posts(publication.Filter{}))
}

func (a *App) handleRobots(c echo.Context) error {
	var b strings.Builder
	b.WriteString("User-agent: *\nAllow: /\n")
	b.WriteString("Sitemap: " + BuildURL(a.Config.URL, "sitemap.xml") + "\n")
	return c.String(http.StatusOK, b.String())
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	if ok && he.Code == http.StatusNotFound && a.Controller != nil {
		out := a.Controller.Render(c.Request().Context(), a.Context.Config().Pages.NotFound)
		if out.Status != engine.StatusError {
			_ = RenderStatus(c, http.StatusNotFound, templ.Raw(out.HTML))
			return
		}
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
		_ = RenderStatus(c, code, ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
