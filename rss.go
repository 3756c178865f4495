package pubrender

import (
	"encoding/xml"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pubrender/markdown"
	"github.com/eringen/pubrender/publication"
)

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Generator   string    `xml:"generator"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Author      string   `xml:"author,omitempty"`
	Categories  []string `xml:"category"`
	PubDate     string   `xml:"pubDate,omitempty"`
	GUID        string   `xml:"guid"`
}

func (a *App) renderRSS(c echo.Context, posts []publication.Post) error {
	base := a.Config.URL
	items := make([]rssItem, 0, len(posts))
	for _, p := range posts {
		postURL := PublicationURL(base, p)
		item := rssItem{
			Title:       markdown.Plain(p.Title),
			Link:        postURL,
			Description: markdown.Plain(p.Short),
			GUID:        postURL,
		}
		if p.Dates.Published > 0 {
			item.PubDate = time.Unix(p.Dates.Published, 0).UTC().Format(time.RFC1123Z)
		}
		if p.Author != nil {
			item.Author = p.Author.Name
		}
		if p.Category != "" {
			item.Categories = append(item.Categories, p.Category)
		}
		item.Categories = append(item.Categories, p.Tags...)
		items = append(items, item)
	}
	feed := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       a.Config.Name,
			Link:        BuildURL(base),
			Description: a.Config.Description,
			Generator:   "pubrender " + Version,
			Items:       items,
		},
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(feed)
}
