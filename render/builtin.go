package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aymerick/raymond"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// Builtin renders handlebars templates in process. Parsed templates are kept
// in an LRU keyed by path, modification time and size, so edits on disk are
// picked up on the next render.
type Builtin struct {
	parsed *lru.Cache
}

// NewBuiltin returns a Builtin that keeps up to size parsed templates.
func NewBuiltin(size int) (*Builtin, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Builtin{parsed: c}, nil
}

// Name implements Renderer.
func (b *Builtin) Name() string { return "builtin" }

// Render implements Renderer.
func (b *Builtin) Render(_ context.Context, templatePath string, data TemplateData) (string, error) {
	tpl, err := b.template(templatePath)
	if err != nil {
		return "", err
	}
	ctx, err := asMap(data)
	if err != nil {
		return "", errors.Wrapf(ErrTemplateRender, "%s: %v", templatePath, err)
	}
	out, err := tpl.Exec(ctx)
	if err != nil {
		return "", errors.Wrapf(ErrTemplateRender, "%s: %v", templatePath, err)
	}
	return out, nil
}

func (b *Builtin) template(path string) (*raymond.Template, error) {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return nil, errors.Wrapf(ErrTemplateMissing, "%s", path)
	}
	key := fmt.Sprintf("%s|%d|%d", path, fi.ModTime().UnixNano(), fi.Size())
	if v, ok := b.parsed.Get(key); ok {
		return v.(*raymond.Template), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrTemplateMissing, "%s: %v", path, err)
	}
	tpl, err := raymond.Parse(string(src))
	if err != nil {
		return nil, errors.Wrapf(ErrTemplateRender, "%s: %v", path, err)
	}
	tpl.RegisterHelper("streq", streq)
	b.parsed.Add(key, tpl)
	return tpl, nil
}

// streq reports whether two values render to the same string.
func streq(a, b interface{}) bool {
	return raymond.Str(a) == raymond.Str(b)
}

// asMap gives templates the same field names the external renderer sees.
func asMap(data TemplateData) (map[string]interface{}, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
