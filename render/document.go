package render

import (
	"encoding/json"
	"html"
	"strings"
)

// Document is a complete page around a rendered fragment. Style and Script
// are already inlined elements.
type Document struct {
	Title   string
	Meta    Meta
	Kind    string
	Version string
	Style   string
	Body    string
	Script  string
}

type pageData struct {
	Version         string `json:"version"`
	PublicationData Meta   `json:"publicationdata"`
	Kind            string `json:"kind"`
}

// HTML assembles the document.
func (d Document) HTML() (string, error) {
	data, err := json.Marshal(pageData{Version: d.Version, PublicationData: d.Meta, Kind: d.Kind})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<!--\n\nGenerated and hosted through pubrender v")
	b.WriteString(d.Version)
	b.WriteString(".\n-->\n\t<head>")
	b.WriteString("\n\t\t<meta charset=\"utf-8\" />")
	b.WriteString("\n\t\t<title>" + html.EscapeString(d.Title) + "</title>")
	b.WriteString("\n\t\t<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\" />")
	b.WriteString("\n\t\t<meta name=\"generator\" content=\"pubrender\" />")
	b.WriteString("\n\t\t<meta name=\"robots\" content=\"index, follow\" />")
	if d.Style != "" {
		b.WriteString("\n\t\t" + d.Style)
	}
	b.WriteString("\n\t\t<script>const pubrender = " + string(data) + ";</script>")
	if d.Meta.Author != nil && d.Meta.Author.Name != "" {
		metaTag(&b, "name", "author", d.Meta.Author.Name)
	}
	if d.Meta.Category != "" {
		metaTag(&b, "name", "category", d.Meta.Category)
	}
	if d.Meta.Desc != "" {
		metaTag(&b, "name", "description", d.Meta.Desc)
	}
	if d.Meta.Thumbnail != "" {
		metaTag(&b, "property", "og:image", d.Meta.Thumbnail)
	}
	b.WriteString("\n\t</head>\n<body>")
	b.WriteString(d.Body)
	b.WriteString(d.Script)
	b.WriteString("</body></html>")
	return b.String(), nil
}

func metaTag(b *strings.Builder, attr, name, content string) {
	b.WriteString("\n\t\t<meta " + attr + "=\"" + name + "\" content=\"" + html.EscapeString(content) + "\" />")
}
