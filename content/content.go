// Package content fetches publication bodies from their source and turns
// them into HTML.
package content

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	bm "github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	bf "github.com/russross/blackfriday"

	"github.com/eringen/pubrender/publication"
)

// ErrFetch wraps every failure to obtain or convert a body.
var ErrFetch = errors.New("content fetch failed")

// maxBody caps how much of a local file or remote response is read.
const maxBody = 8 << 20

const markdownExtensions = bf.EXTENSION_NO_INTRA_EMPHASIS |
	bf.EXTENSION_TABLES |
	bf.EXTENSION_FENCED_CODE |
	bf.EXTENSION_AUTOLINK |
	bf.EXTENSION_STRIKETHROUGH |
	bf.EXTENSION_SPACE_HEADERS

// Fetcher resolves Local content below Root and External content with
// Client. A nil Client uses a client with a 10 second timeout.
type Fetcher struct {
	Root   string
	Client *http.Client
}

var defaultClient = &http.Client{Timeout: 10 * time.Second}

// Fetch returns the body of c. The declared content type is kept, only the
// text changes.
func (f Fetcher) Fetch(ctx context.Context, c publication.Content) (publication.ContentType, error) {
	switch c := c.(type) {
	case publication.Inline:
		return c.Body, nil
	case publication.Local:
		text, err := f.readLocal(c.Source.Text())
		if err != nil {
			return nil, err
		}
		return publication.Retag(c.Source, text), nil
	case publication.External:
		text, err := f.get(ctx, c.Source.Text())
		if err != nil {
			return nil, err
		}
		return publication.Retag(c.Source, text), nil
	default:
		return nil, errors.Wrapf(ErrFetch, "unknown content source %T", c)
	}
}

// Normalize fetches c and converts it to HTML.
func (f Fetcher) Normalize(ctx context.Context, c publication.Content) (string, error) {
	ct, err := f.Fetch(ctx, c)
	if err != nil {
		return "", err
	}
	return ToHTML(ct)
}

// Path maps a manifest path to a file below Root. The result never leaves
// Root.
func (f Fetcher) Path(rel string) string {
	return filepath.Join(f.Root, filepath.Clean("/"+rel))
}

func (f Fetcher) readLocal(rel string) (string, error) {
	path := f.Path(rel)
	fh, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(ErrFetch, "local content %q: %v", rel, err)
	}
	defer fh.Close()
	b, err := io.ReadAll(io.LimitReader(fh, maxBody))
	if err != nil {
		return "", errors.Wrapf(ErrFetch, "read %q: %v", path, err)
	}
	return string(b), nil
}

func (f Fetcher) get(ctx context.Context, url string) (string, error) {
	client := f.Client
	if client == nil {
		client = defaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrapf(ErrFetch, "external content %q: %v", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrapf(ErrFetch, "external content %q: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.Wrapf(ErrFetch, "external content %q: %s", url, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", errors.Wrapf(ErrFetch, "external content %q: %v", url, err)
	}
	return string(b), nil
}

// ToHTML converts a body to HTML. Markdown drops raw HTML and is sanitized;
// plain text is wrapped in a pre block as is, without escaping.
func ToHTML(ct publication.ContentType) (string, error) {
	switch ct := ct.(type) {
	case publication.HTML:
		return string(ct), nil
	case publication.Markdown:
		out := bf.Markdown([]byte(ct), bf.HtmlRenderer(bf.HTML_SKIP_HTML, "", ""), markdownExtensions)
		return string(bm.UGCPolicy().SanitizeBytes(out)), nil
	case publication.PlainText:
		return "<pre>" + string(ct) + "</pre>", nil
	default:
		return "", errors.Wrapf(ErrFetch, "unknown content type %T", ct)
	}
}
