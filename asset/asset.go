// Package asset inlines scene stylesheets and scripts into documents,
// minifying them once and caching the result.
package asset

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
)

// ErrAssetMissing is returned when a declared asset file does not exist.
var ErrAssetMissing = errors.New("asset missing")

// Kind of asset.
type Kind int

const (
	Script Kind = iota
	Style
)

func (k Kind) String() string {
	if k == Script {
		return "script"
	}
	return "style"
}

func (k Kind) mediaType() string {
	if k == Script {
		return "application/javascript"
	}
	return "text/css"
}

// Store is the cache the inliner reads and fills.
type Store interface {
	Get(key string, ttl time.Duration) ([]byte, bool, error)
	Put(key string, value []byte, ttl time.Duration) error
}

// Lifetimes of cached minified assets by kind.
type Lifetimes struct {
	Stylesheets time.Duration
	Javascript  time.Duration
}

func (l Lifetimes) of(k Kind) time.Duration {
	if k == Script {
		return l.Javascript
	}
	return l.Stylesheets
}

var discard = func() *log.Logger {
	l := log.New("asset")
	l.SetOutput(io.Discard)
	return l
}()

// Inliner turns asset files into style and script elements.
type Inliner struct {
	Cache     Store
	Minifier  Minifier
	Lifetimes Lifetimes
	Logger    *log.Logger
}

// Inline returns the element for the asset at path. Only a missing file is
// an error; minifier and cache failures fall back to the raw file.
func (in *Inliner) Inline(ctx context.Context, path string, kind Kind) (string, error) {
	lg := in.Logger
	if lg == nil {
		lg = discard
	}
	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrapf(ErrAssetMissing, "%s %q: %v", kind, path, err)
	}
	key := canonical(path)
	ttl := in.Lifetimes.of(kind)

	if in.Cache != nil {
		b, ok, err := in.Cache.Get(key, ttl)
		switch {
		case err != nil:
			lg.Warnf("asset cache read %s: %v", key, err)
		case ok:
			lg.Debugf("asset cache hit %s", key)
			return minified(kind, string(b)), nil
		}
	}

	m := in.Minifier
	if m == nil {
		m = Passthrough{}
	}
	out, err := m.Minify(ctx, kind, path)
	if err != nil {
		lg.Warnf("%s %s could not be minified, inlining it as is: %v", kind, path, err)
		raw, rerr := os.ReadFile(path)
		if rerr != nil {
			return "", errors.Wrapf(ErrAssetMissing, "%s %q: %v", kind, path, rerr)
		}
		return degraded(kind, string(raw)), nil
	}
	if in.Cache != nil {
		if err := in.Cache.Put(key, []byte(out), ttl); err != nil {
			lg.Warnf("asset cache write %s: %v", key, err)
		}
	}
	return minified(kind, out), nil
}

func canonical(path string) string {
	if p, err := filepath.EvalSymlinks(path); err == nil {
		path = p
	}
	if p, err := filepath.Abs(path); err == nil {
		return p
	}
	return path
}

func minified(kind Kind, body string) string {
	if kind == Script {
		return "<script>\n// Minified by pubrender\n\n" + body +
			"\n\n// Cached after minifying, so might be somewhat behind.\n</script>"
	}
	return "<style>\n/* Minified by pubrender */\n\n" + body +
		"\n\n/* Cached after minifying, so might be somewhat behind. */\n</style>"
}

func degraded(kind Kind, body string) string {
	if kind == Script {
		return "<script>\n// Scriptfile could not be minified, so was instead inlined 1:1.\n\n" + body + "</script>"
	}
	return "<style>\n/* Stylefile could not be minified, so was instead inlined 1:1. */\n\n" + body + "</style>"
}
