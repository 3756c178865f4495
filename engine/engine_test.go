package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pubrender/asset"
	"github.com/eringen/pubrender/config"
	"github.com/eringen/pubrender/content"
	"github.com/eringen/pubrender/render"
	"github.com/eringen/pubrender/scene"
)

const manifest = `
- kind: page
  id: root
  title: Home
  description: The **home** page
  content: {source: inline, type: markdown, value: "**hi**"}
- kind: page
  id: "404"
  title: Lost
  content: {source: inline, type: html, value: "<p>nothing here</p>"}
- kind: post
  id: hello
  title: Hello
  short: First *post*
  category: news
  tags: [go]
  author: {name: Jane}
  dates: {published: 1700000000}
  content: {source: local, type: markdown, value: hello.md}
- kind: post
  id: older
  title: Older
  category: life
  dates: {published: 1600000000}
  content: {source: inline, type: plaintext, value: old}
- kind: post
  id: broken
  title: Broken
  content: {source: local, type: html, value: missing.html}
- kind: postlist
  id: blog
  title: Blog
- kind: postlist
  id: empty
  title: Empty
  filter: {tag: rust}
`

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// site lays out a complete site below a temp dir and returns its config.
func site(t *testing.T) config.SiteConfig {
	t.Helper()
	dir := t.TempDir()
	write(t, filepath.Join(dir, "publications.yaml"), manifest)
	write(t, filepath.Join(dir, "publications", "hello.md"), "Hello *world*")
	write(t, filepath.Join(dir, "templates", "page", "default.hbs"), "<main><h1>{{meta.title}}</h1>{{{content}}}</main>")
	write(t, filepath.Join(dir, "templates", "post", "default.hbs"), "<article><h1>{{meta.title}}</h1><i>{{meta.category}}</i>{{{content}}}</article>")
	write(t, filepath.Join(dir, "templates", "postlist", "default.hbs"), "<section>{{{content}}}</section>")
	write(t, filepath.Join(dir, "assets", "style.css"), "main { color : red ; }")
	write(t, filepath.Join(dir, "assets", "app.js"), "console.log('app');")

	cfg := config.Default()
	cfg.Root = dir
	cfg.Scenes = scene.Collection{{
		Name:       scene.DefaultName,
		Templates:  scene.Templates{Page: "default", Post: "default", PostList: "default"},
		Stylesheet: "style.css",
		Script:     "app.js",
	}}
	return cfg
}

func controller(t *testing.T, cfg config.SiteConfig, ext *render.External) *Controller {
	t.Helper()
	builtin, err := render.NewBuiltin(8)
	require.NoError(t, err)
	sc := NewServerContext(cfg, nil, ext)
	t.Cleanup(func() { sc.Close() })
	return &Controller{
		Context:  sc,
		Builtin:  builtin,
		Minifier: asset.Passthrough{},
		Version:  "test",
	}
}

func TestRenderRoot(t *testing.T) {
	c := controller(t, site(t), nil)
	out := c.Render(context.Background(), "")
	require.Equal(t, StatusOK, out.Status, "%v", out.Err)
	assert.Contains(t, out.HTML, "<title>Home</title>")
	assert.Contains(t, out.HTML, "<main><h1>Home</h1><p><strong>hi</strong></p>")
	assert.Contains(t, out.HTML, `<meta name="description" content="The home page" />`)
	assert.Contains(t, out.HTML, "main { color : red ; }")
	assert.Contains(t, out.HTML, "console.log('app');")
}

func TestRenderPostFromLocalFile(t *testing.T) {
	c := controller(t, site(t), nil)
	out := c.Render(context.Background(), "hello")
	require.Equal(t, StatusOK, out.Status, "%v", out.Err)
	assert.Contains(t, out.HTML, "<article><h1>Hello</h1><i>news</i><p>Hello <em>world</em></p>")
	assert.Contains(t, out.HTML, `<meta name="author" content="Jane" />`)
	assert.Contains(t, out.HTML, `<meta name="category" content="news" />`)
}

func TestRenderPlainTextIsPreformatted(t *testing.T) {
	c := controller(t, site(t), nil)
	out := c.Render(context.Background(), "older")
	require.Equal(t, StatusOK, out.Status, "%v", out.Err)
	assert.Contains(t, out.HTML, "<pre>old</pre>")
}

func TestRenderNotFound(t *testing.T) {
	c := controller(t, site(t), nil)
	out := c.Render(context.Background(), "does-not-exist")
	assert.Equal(t, StatusNotFound, out.Status)
	assert.NoError(t, out.Err)
	assert.Contains(t, out.HTML, "<main><h1>Lost</h1><p>nothing here</p></main>")
	assert.Contains(t, out.HTML, "</html>")
}

func TestRenderNothingToServe(t *testing.T) {
	cfg := site(t)
	cfg.Pages.NotFound = "gone"
	out := controller(t, cfg, nil).Render(context.Background(), "does-not-exist")
	assert.Equal(t, StatusError, out.Status)
	assert.ErrorIs(t, out.Err, ErrNothingToServe)
	assert.Empty(t, out.HTML)
}

func TestRenderMissingSceneIsError(t *testing.T) {
	cfg := site(t)
	write(t, cfg.ManifestPath(), manifest+`
- kind: page
  id: ghostly
  title: Ghost
  scene: ghost
  content: {source: inline, type: html, value: "<p>boo</p>"}
`)
	out := controller(t, cfg, nil).Render(context.Background(), "ghostly")
	assert.Equal(t, StatusError, out.Status)
	assert.Empty(t, out.HTML)
}

func TestRenderMissingAssetIsError(t *testing.T) {
	cfg := site(t)
	require.NoError(t, os.Remove(cfg.AssetPath("app.js")))
	out := controller(t, cfg, nil).Render(context.Background(), "root")
	assert.Equal(t, StatusError, out.Status)
	assert.ErrorIs(t, out.Err, asset.ErrAssetMissing)
}

func TestRenderMissingTemplateIsError(t *testing.T) {
	cfg := site(t)
	require.NoError(t, os.Remove(cfg.TemplatePath("post", "default")))
	out := controller(t, cfg, nil).Render(context.Background(), "hello")
	assert.Equal(t, StatusError, out.Status)
	assert.ErrorIs(t, out.Err, render.ErrTemplateMissing)
}

func TestRenderMissingContentIsError(t *testing.T) {
	out := controller(t, site(t), nil).Render(context.Background(), "broken")
	assert.Equal(t, StatusError, out.Status)
	assert.ErrorIs(t, out.Err, content.ErrFetch)
}

func TestRenderInvalidManifestIsError(t *testing.T) {
	cfg := site(t)
	write(t, cfg.ManifestPath(), "- {kind: nope}")
	out := controller(t, cfg, nil).Render(context.Background(), "root")
	assert.Equal(t, StatusError, out.Status)
}

func TestRenderPostList(t *testing.T) {
	c := controller(t, site(t), nil)
	out := c.Render(context.Background(), "blog")
	require.Equal(t, StatusOK, out.Status, "%v", out.Err)
	assert.Contains(t, out.HTML, `<table class="post-listpreview">`)
	assert.Contains(t, out.HTML, `<p>First <em>post</em></p>`)
	assert.Less(t, strings.Index(out.HTML, "/p/hello"), strings.Index(out.HTML, "/p/older"))

	out = c.Render(context.Background(), "empty")
	require.Equal(t, StatusOK, out.Status, "%v", out.Err)
	assert.Contains(t, out.HTML, "<section><p>No results.</p></section>")
}

func TestRenderAssetDegrade(t *testing.T) {
	c := controller(t, site(t), nil)
	c.Minifier = asset.External{Runner: []string{filepath.Join(t.TempDir(), "no-such-runner")}}
	out := c.Render(context.Background(), "root")
	require.Equal(t, StatusOK, out.Status, "%v", out.Err)
	assert.Contains(t, out.HTML, "main { color : red ; }")
	assert.Contains(t, out.HTML, "Stylefile could not be minified")
	assert.Contains(t, out.HTML, "Scriptfile could not be minified")
}

func TestRenderIsIdempotent(t *testing.T) {
	c := controller(t, site(t), nil)
	first := c.Render(context.Background(), "hello")
	second := c.Render(context.Background(), "hello")
	require.Equal(t, StatusOK, first.Status, "%v", first.Err)
	assert.Equal(t, first.HTML, second.HTML)
}

func TestRenderFallsBackWhenExternalFails(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go io.Copy(io.Discard, reqR)
	respW.Close()
	ext := render.NewExternal(respR, reqW, time.Second, nil)

	out := controller(t, site(t), ext).Render(context.Background(), "root")
	require.Equal(t, StatusOK, out.Status, "%v", out.Err)
	assert.Contains(t, out.HTML, "<main><h1>Home</h1>")
}

func TestRenderUsesExternalWithoutHoldingLock(t *testing.T) {
	var sc *ServerContext
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go func() {
		s := bufio.NewScanner(reqR)
		for s.Scan() {
			var req struct {
				ID int64 `json:"id"`
			}
			if err := json.Unmarshal(s.Bytes(), &req); err != nil {
				continue
			}
			// Blocks forever if the render holds the context lock.
			n := sc.CountRequest()
			v, _ := json.Marshal(fmt.Sprintf("<p>external %d</p>", n))
			fmt.Fprintf(respW, "parse: {\"id\":%d,\"body\":{\"as\":\"OkString\",\"value\":%s}}\n", req.ID, v)
		}
		respW.Close()
	}()
	ext := render.NewExternal(respR, reqW, 2*time.Second, nil)
	c := controller(t, site(t), ext)
	sc = c.Context

	out := c.Render(context.Background(), "root")
	require.Equal(t, StatusOK, out.Status, "%v", out.Err)
	assert.Contains(t, out.HTML, "<p>external 1</p>")
}

func TestServerContext(t *testing.T) {
	sc := NewServerContext(config.Default(), nil, nil)
	defer sc.Close()
	sc.CountRequest()
	assert.Equal(t, uint64(2), sc.CountRequest())

	require.NoError(t, sc.CachePut("k", []byte("v"), time.Minute))
	v, ok, err := sc.Store().Get("k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	cfg := sc.Config()
	cfg.Name = "changed"
	assert.NotEqual(t, "changed", sc.Config().Name)

	assert.Contains(t, sc.Summary(), "served 2 requests in 0h 0m 0s")
}
