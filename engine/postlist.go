package engine

import (
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eringen/pubrender/markdown"
	"github.com/eringen/pubrender/publication"
)

// postListTable renders the listing a post list publication shows as its
// content.
func postListTable(posts []publication.Post) string {
	if len(posts) == 0 {
		return "<p>No results.</p>"
	}
	var b strings.Builder
	b.WriteString(`<table class="post-listpreview"><tr id="post-listpreview-h">` +
		`<th id="h-post-date">Posted on</th><th id="h-post-title">Title</th>` +
		`<th id="h-post-category">Category</th></tr>`)
	for _, p := range posts {
		published := p.Dates.Published
		b.WriteString(`<tr><td class="post-date"><time datetime="`)
		b.WriteString(time.Unix(published, 0).UTC().Format(time.RFC3339))
		b.WriteString(`" data-timestamp="` + strconv.FormatInt(published, 10) + `">`)
		b.WriteString(time.Unix(published, 0).UTC().Format("2006-01-02"))
		b.WriteString(`</time></td><td><a href="/p/` + html.EscapeString(url.PathEscape(p.ID)) + `"><span class="post-title">`)
		b.WriteString(markdown.FormatInline(p.Title))
		b.WriteString(`</span></a></td><td class="post-category">`)
		b.WriteString(html.EscapeString(p.Category))
		b.WriteString(`</td></tr><tr><td></td><td class="post-desc"><p>`)
		b.WriteString(markdown.FormatInline(p.Short))
		b.WriteString(`</p></td></tr>`)
	}
	b.WriteString("</table>")
	return b.String()
}
