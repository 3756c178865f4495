package pubrender

import (
	"encoding/xml"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pubrender/publication"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// renderSitemap lists every publication except the not-found page.
func (a *App) renderSitemap(c echo.Context, list publication.List) error {
	base := a.Config.URL
	notFound := a.Config.Pages.NotFound
	urls := make([]sitemapURL, 0, len(list))
	for _, p := range list {
		if p.Base().ID == notFound {
			continue
		}
		u := sitemapURL{Loc: PublicationURL(base, p)}
		if t := lastModified(p.Base().Dates); !t.IsZero() {
			u.LastMod = t.Format("2006-01-02")
		}
		urls = append(urls, u)
	}
	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(sitemap)
}
