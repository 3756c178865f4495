package pubrender

import (
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/eringen/pubrender/publication"
)

// BuildURL joins a base URL with path segments. A trailing slash is added
// unless the last segment names a file.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && path.Ext(u.Path) == "" && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// PublicationURL is the canonical URL of p.
func PublicationURL(base string, p publication.Publication) string {
	id := p.Base().ID
	if id == publication.RootID {
		return BuildURL(base)
	}
	return BuildURL(base, "p", id)
}

// lastModified is the altered date, else the published date, else zero.
func lastModified(d publication.Dates) time.Time {
	switch {
	case d.Altered > 0:
		return time.Unix(d.Altered, 0).UTC()
	case d.Published > 0:
		return time.Unix(d.Published, 0).UTC()
	default:
		return time.Time{}
	}
}
