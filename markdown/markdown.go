// Package markdown formats the inline subset of Markdown that appears in
// titles and short descriptions: emphasis, code spans and links. Block
// content goes through the content package instead.
package markdown

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	reBold             = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBoldUnderscore   = regexp.MustCompile(`__(.+?)__`)
	reItalic           = regexp.MustCompile(`\*([^*]+)\*`)
	reItalicUnderscore = regexp.MustCompile(`_([^_]+)_`)
	reStrike           = regexp.MustCompile(`~~(.+?)~~`)
	reInlineCode       = regexp.MustCompile("`([^`]+)`")
	reLink             = regexp.MustCompile(`\[(.*?)\]\((.*?)\)(\^)?`)
	reTag              = regexp.MustCompile(`<[^>]*>`)
)

// FormatInline escapes s and applies inline formatting. A link followed by
// ^ opens in a new tab.
func FormatInline(s string) string {
	escaped := html.EscapeString(s)
	escaped = reLink.ReplaceAllStringFunc(escaped, func(m string) string {
		match := reLink.FindStringSubmatch(m)
		href := SafeURL(match[2])
		if href == "" {
			return match[1]
		}
		attrs := ""
		if match[3] == "^" {
			attrs = ` target="_blank" rel="noopener noreferrer"`
		}
		return `<a href="` + href + `"` + attrs + `>` + match[1] + `</a>`
	})

	// Code spans are swapped for placeholders so emphasis never reaches
	// inside them.
	var spans []string
	escaped = reInlineCode.ReplaceAllStringFunc(escaped, func(m string) string {
		match := reInlineCode.FindStringSubmatch(m)
		spans = append(spans, "<code>"+match[1]+"</code>")
		return "\x00C" + strconv.Itoa(len(spans)-1) + "\x00"
	})
	escaped = ApplyOutsideTags(escaped, func(seg string) string {
		seg = reBold.ReplaceAllString(seg, "<strong>$1</strong>")
		seg = reBoldUnderscore.ReplaceAllString(seg, "<strong>$1</strong>")
		seg = reItalic.ReplaceAllString(seg, "<em>$1</em>")
		seg = reItalicUnderscore.ReplaceAllString(seg, "<em>$1</em>")
		seg = reStrike.ReplaceAllString(seg, "<del>$1</del>")
		return seg
	})
	for i, code := range spans {
		escaped = strings.Replace(escaped, "\x00C"+strconv.Itoa(i)+"\x00", code, 1)
	}
	return escaped
}

// Plain returns the text of s with inline formatting removed, for places
// that only take text such as meta tags and feed items.
func Plain(s string) string {
	return html.UnescapeString(reTag.ReplaceAllString(FormatInline(s), ""))
}

// ApplyOutsideTags applies fn only to text segments outside HTML tags, so
// that href values are never rewritten.
func ApplyOutsideTags(s string, fn func(string) string) string {
	var buf strings.Builder
	for len(s) > 0 {
		lt := strings.Index(s, "<")
		if lt < 0 {
			buf.WriteString(fn(s))
			break
		}
		if lt > 0 {
			buf.WriteString(fn(s[:lt]))
		}
		gt := strings.Index(s[lt:], ">")
		if gt < 0 {
			buf.WriteString(s[lt:])
			break
		}
		buf.WriteString(s[lt : lt+gt+1])
		s = s[lt+gt+1:]
	}
	return buf.String()
}

// SafeURL validates raw for use in an attribute. Relative paths, fragments
// and http(s), mailto and tel URLs pass; anything else yields "".
func SafeURL(raw string) string {
	val := strings.TrimSpace(html.UnescapeString(raw))
	if val == "" {
		return ""
	}
	if strings.HasPrefix(val, "/") || strings.HasPrefix(val, "#") {
		return html.EscapeString(val)
	}
	parsed, err := url.Parse(val)
	if err != nil || parsed.Scheme == "" {
		return ""
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "mailto", "tel":
		return html.EscapeString(val)
	default:
		return ""
	}
}
