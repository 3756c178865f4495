package publication

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestYAML = `
- kind: page
  id: root
  title: Home
  description: Welcome
  content: {source: inline, type: markdown, value: "**hi**"}
- kind: page
  id: "404"
  title: Not found
  scene: plain
  content: {source: local, type: html, value: 404.html}
- kind: post
  id: hello
  title: Hello
  short: First post
  category: news
  author: {name: Jane}
  tags: [intro, go]
  dates: {published: 100, altered: 200}
  content: {source: external, type: plaintext, value: "https://example.org/hello.txt"}
- kind: postlist
  id: blog
  title: Blog
  filter: {tag: go}
`

type sceneSet map[string]bool

func (s sceneSet) Has(name string) bool { return s[name] }

func TestParse(t *testing.T) {
	list, err := Parse([]byte(manifestYAML))
	require.NoError(t, err)
	require.Len(t, list, 4)

	root, ok := list.GetRoot()
	require.True(t, ok)
	page, ok := root.(Page)
	require.True(t, ok)
	assert.Equal(t, "Welcome", page.Description)
	assert.Equal(t, Inline{Body: Markdown("**hi**")}, page.Content)

	p, ok := list.GetByID("hello")
	require.True(t, ok)
	post := p.(Post)
	assert.Equal(t, "news", post.Category)
	assert.Equal(t, []string{"intro", "go"}, post.Tags)
	assert.Equal(t, "Jane", post.Author.Name)
	assert.Equal(t, Dates{Published: 100, Altered: 200}, post.Dates)
	assert.Equal(t, External{Source: PlainText("https://example.org/hello.txt")}, post.Content)

	nf, ok := list.GetNotFound("404")
	require.True(t, ok)
	assert.Equal(t, "plain", nf.SceneName())
	assert.Equal(t, Local{Source: HTML("404.html")}, nf.(Page).Content)

	bl, ok := list.GetByID("blog")
	require.True(t, ok)
	assert.Equal(t, KindPostList, bl.Kind())
	assert.Equal(t, Filter{Tag: "go"}, bl.(PostList).Filter)
}

func TestParseJSON(t *testing.T) {
	list, err := Parse([]byte(`[{"kind":"page","id":"root","title":"Home","content":{"source":"inline","type":"html","value":"<p>x</p>"}}]`))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, Inline{Body: HTML("<p>x</p>")}, list[0].(Page).Content)
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		`- {kind: page, id: x}`,
		`- {kind: video, id: x}`,
		`- {kind: page, id: x, content: {source: ftp, type: html, value: a}}`,
		`- {kind: page, id: x, content: {source: inline, type: rtf, value: a}}`,
		`- {kind: page, content: {source: inline, type: html, value: a}}`,
		`{not: [a list`,
	}
	for _, in := range tests {
		_, err := Parse([]byte(in))
		assert.ErrorIs(t, err, ErrInvalidManifest, in)
	}
}

func TestLoadBrokenManifestIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "publications.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- {kind: nope, id: x}"), 0o644))

	var buf bytes.Buffer
	lg := log.New("test")
	lg.SetOutput(&buf)

	list := Load(path, lg)
	assert.Empty(t, list)
	assert.Contains(t, buf.String(), "content manifest")

	assert.Empty(t, Load(filepath.Join(t.TempDir(), "missing.yaml"), nil))
}

func TestValidate(t *testing.T) {
	list, err := Parse([]byte(manifestYAML))
	require.NoError(t, err)
	assert.NoError(t, list.Validate(sceneSet{"plain": true}))
	assert.ErrorIs(t, list.Validate(sceneSet{}), ErrInvalidManifest)

	dup := append(list, list[0])
	assert.ErrorIs(t, dup.Validate(sceneSet{"plain": true}), ErrInvalidManifest)
}

func TestCheck(t *testing.T) {
	list, err := Parse([]byte(manifestYAML))
	require.NoError(t, err)
	scenes := sceneSet{"plain": true}

	assert.Equal(t, CheckOK, list.Check("hello", "404", scenes))
	assert.Equal(t, CheckOK, list.Check("", "404", scenes))
	assert.Equal(t, CheckNotFound, list.Check("missing", "404", scenes))
	assert.Equal(t, CheckError, list.Check("missing", "gone", scenes))
	assert.Equal(t, CheckError, list.Check("hello", "404", sceneSet{}), "invalid manifest")
	assert.Equal(t, CheckError, List{}.Check("root", "404", scenes))
}

func TestRetagKeepsVariant(t *testing.T) {
	assert.Equal(t, Markdown("b"), Retag(Markdown("a"), "b"))
	assert.Equal(t, HTML("b"), Retag(HTML("a"), "b"))
	assert.Equal(t, PlainText("b"), Retag(PlainText("a"), "b"))
}
