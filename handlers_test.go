package pubrender

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/pubrender/asset"
	"github.com/eringen/pubrender/config"
	"github.com/eringen/pubrender/scene"
)

const testManifest = `
- kind: page
  id: root
  title: Home
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
  content: {source: inline, type: markdown, value: "Hello *world*"}
- kind: postlist
  id: blog
  title: Blog
`

func writeFile(t *testing.T, path string, body []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, body, 0o644))
}

func testConfig(t *testing.T) config.SiteConfig {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "publications.yaml"), []byte(testManifest))
	for _, kind := range []string{"page", "post", "postlist"} {
		writeFile(t, filepath.Join(dir, "templates", kind, "default.hbs"),
			[]byte("<main><h1>{{meta.title}}</h1>{{{content}}}</main>"))
	}
	writeFile(t, filepath.Join(dir, "assets", "style.css"), []byte("main{color:red}"))

	cfg := config.Default()
	cfg.Root = dir
	cfg.Runtimes.Minifier = asset.MinifierNone
	cfg.Scenes = scene.Collection{{
		Name:       scene.DefaultName,
		Templates:  scene.Templates{Page: "default", Post: "default", PostList: "default"},
		Stylesheet: "style.css",
	}}
	return cfg
}

func testApp(t *testing.T, cfg config.SiteConfig) *App {
	t.Helper()
	a := New(cfg)
	a.Logger.SetOutput(&bytes.Buffer{})
	require.NoError(t, a.Setup())
	t.Cleanup(func() { a.Close() })
	return a
}

func get(a *App, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleRoot(t *testing.T) {
	a := testApp(t, testConfig(t))
	rec := get(a, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<main><h1>Home</h1><p><strong>hi</strong></p>")
	assert.Contains(t, rec.Body.String(), "main{color:red}")
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, echo.MIMETextHTMLCharsetUTF8, rec.Header().Get(echo.HeaderContentType))
}

func TestHandlePublication(t *testing.T) {
	a := testApp(t, testConfig(t))
	for _, target := range []string{"/p/hello", "/p/hello/"} {
		rec := get(a, target)
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Contains(t, rec.Body.String(), "<p>Hello <em>world</em></p>", target)
	}

	rec := get(a, "/p/blog/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<a href="/p/hello"><span class="post-title">Hello</span></a>`)
}

func TestHandleNotFound(t *testing.T) {
	a := testApp(t, testConfig(t))
	for _, target := range []string{"/p/nope/", "/no/such/route"} {
		rec := get(a, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Contains(t, rec.Body.String(), "<p>nothing here</p>", target)
		assert.Equal(t, echo.MIMETextHTMLCharsetUTF8, rec.Header().Get(echo.HeaderContentType), target)
	}
}

func TestHandleBrokenManifest(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.ManifestPath(), []byte("- {kind: nope}"))
	a := testApp(t, cfg)

	rec := get(a, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Server error")
	assert.NotContains(t, rec.Body.String(), "<main>")
}

func TestHandleSitemap(t *testing.T) {
	a := testApp(t, testConfig(t))
	rec := get(a, "/sitemap.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<loc>http://localhost:3000</loc>")
	assert.Contains(t, body, "<loc>http://localhost:3000/p/hello/</loc>")
	assert.Contains(t, body, "<lastmod>2023-11-14</lastmod>")
	assert.NotContains(t, body, "/p/404/")
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
}

func TestHandleFeed(t *testing.T) {
	a := testApp(t, testConfig(t))
	rec := get(a, "/feed.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Hello</title>")
	assert.Contains(t, body, "<description>First post</description>")
	assert.Contains(t, body, "<category>news</category>")
	assert.Contains(t, body, "<category>go</category>")
	assert.Contains(t, body, "<guid>http://localhost:3000/p/hello/</guid>")
	assert.NotContains(t, body, "Blog")
}

func TestHandleRobots(t *testing.T) {
	a := testApp(t, testConfig(t))
	rec := get(a, "/robots.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sitemap: http://localhost:3000/sitemap.xml")
}

func TestHandleAssets(t *testing.T) {
	a := testApp(t, testConfig(t))
	rec := get(a, "/assets/style.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "main{color:red}", rec.Body.String())
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
}

func TestHandleImage(t *testing.T) {
	cfg := testConfig(t)
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, x%20, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	writeFile(t, cfg.AssetPath("pic.png"), buf.Bytes())
	writeFile(t, cfg.AssetPath("notes.txt"), []byte("not an image"))
	a := testApp(t, cfg)

	for i := 0; i < 2; i++ {
		rec := get(a, "/images/pic.png?w=10")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
		out, err := jpeg.Decode(rec.Body)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 10, 5), out.Bounds())
	}

	rec := get(a, "/images/pic.png")
	require.Equal(t, http.StatusOK, rec.Code)
	out, err := jpeg.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 40, out.Bounds().Dx(), "narrow images are not enlarged")

	assert.Equal(t, http.StatusUnsupportedMediaType, get(a, "/images/notes.txt").Code)
	assert.Equal(t, http.StatusNotFound, get(a, "/images/missing.png").Code)
}

func TestImageWidth(t *testing.T) {
	assert.Equal(t, defaultImageWidth, imageWidth(""))
	assert.Equal(t, defaultImageWidth, imageWidth("-3"))
	assert.Equal(t, 320, imageWidth("320"))
	assert.Equal(t, maxImageWidth, imageWidth("99999"))
}

func TestRenderRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Limits.Renders = 2
	a := testApp(t, cfg)

	assert.Equal(t, http.StatusOK, get(a, "/").Code)
	assert.Equal(t, http.StatusOK, get(a, "/p/hello/").Code)
	rec := get(a, "/")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Feeds and assets are not rendered, so they are not limited.
	assert.Equal(t, http.StatusOK, get(a, "/robots.txt").Code)
}

func TestRequestsAreCounted(t *testing.T) {
	a := testApp(t, testConfig(t))
	get(a, "/")
	get(a, "/robots.txt")
	get(a, "/p/nope/")
	assert.Contains(t, a.Context.Summary(), "served 3 requests")
}

func TestOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fetched *remotely*"))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	writeFile(t, cfg.ManifestPath(), []byte(testManifest+`
- kind: post
  id: remote
  title: Remote
  content: {source: external, type: markdown, value: "`+srv.URL+`/remote.md"}
`))
	a := New(cfg,
		WithHTTPClient(srv.Client()),
		WithCustomRoutes(func(a *App) {
			a.Echo.GET("/healthz", func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})
		}),
	)
	a.Logger.SetOutput(&bytes.Buffer{})
	require.NoError(t, a.Setup())
	defer a.Close()

	rec := get(a, "/p/remote/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<p>fetched <em>remotely</em></p>")
	assert.Equal(t, "ok", get(a, "/healthz").Body.String())
}

func TestSetupRefusesWorkDirCoveringSite(t *testing.T) {
	cfg := testConfig(t)
	cfg.WorkDir = "."
	a := New(cfg)
	a.Logger.SetOutput(&bytes.Buffer{})
	assert.ErrorIs(t, a.Setup(), config.ErrInvalidConfig)
	assert.FileExists(t, cfg.ManifestPath())
	assert.FileExists(t, cfg.AssetPath("style.css"))
}

func TestSetupClearsOnlyItsRunDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "sqlite"
	other := filepath.Join(cfg.WorkPath(), "other-run", "cache.db")
	writeFile(t, other, []byte("busy"))
	stale := filepath.Join(cfg.RunPath(), "leftover")
	writeFile(t, stale, []byte("old"))

	a := New(cfg)
	a.Logger.SetOutput(&bytes.Buffer{})
	require.NoError(t, a.Setup())
	assert.FileExists(t, other)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(cfg.RunPath(), "cache.db"))
	assert.Equal(t, http.StatusOK, get(a, "/").Code)

	require.NoError(t, a.Close())
	assert.NoDirExists(t, cfg.RunPath())
	assert.FileExists(t, other)
}
