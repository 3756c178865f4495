// Package publication holds the content records a site serves and resolves
// them from the content manifest.
package publication

// Publication kinds.
const (
	KindPage     = "page"
	KindPost     = "post"
	KindPostList = "postlist"
)

// Publication is one of Page, Post or PostList.
type Publication interface {
	Base() Common
	Kind() string
	SceneName() string
	sealed()
}

// Dates are unix timestamps in seconds.
type Dates struct {
	Published int64 `yaml:"published" json:"published"`
	Altered   int64 `yaml:"altered" json:"altered"`
}

// Author of a post.
type Author struct {
	Name      string `yaml:"name" json:"name,omitempty"`
	Link      string `yaml:"link" json:"link,omitempty"`
	Thumbnail string `yaml:"thumbnail" json:"thumbnail,omitempty"`
}

// Common carries the fields every publication has. Empty strings mean the
// optional field is absent.
type Common struct {
	ID        string
	Title     string
	Thumbnail string
	Scene     string
	Dates     Dates
}

// Base returns the shared fields.
func (c Common) Base() Common { return c }

// SceneName returns the scene override, if any.
func (c Common) SceneName() string { return c.Scene }

func (Common) sealed() {}

// Page is a standalone page.
type Page struct {
	Common
	Description string
	Content     Content
}

// Kind implements Publication.
func (Page) Kind() string { return KindPage }

// Post is a dated, categorised entry.
type Post struct {
	Common
	Short    string
	Category string
	Author   *Author
	Tags     []string
	Content  Content
}

// Kind implements Publication.
func (Post) Kind() string { return KindPost }

// Filter narrows a post listing. Category wins over Tag, Tag over Search.
type Filter struct {
	Category string `yaml:"category"`
	Tag      string `yaml:"tag"`
	Search   string `yaml:"search"`
}

// PostList is a generated listing of posts.
type PostList struct {
	Common
	Filter Filter
}

// Kind implements Publication.
func (PostList) Kind() string { return KindPostList }

// ContentType is one of HTML, Markdown or PlainText.
type ContentType interface {
	Text() string
	Tag() string
	contentType()
}

// Content type tags as written in the manifest.
const (
	TagHTML      = "html"
	TagMarkdown  = "markdown"
	TagPlainText = "plaintext"
)

// HTML content.
type HTML string

// Markdown content.
type Markdown string

// PlainText content.
type PlainText string

func (h HTML) Text() string      { return string(h) }
func (m Markdown) Text() string  { return string(m) }
func (p PlainText) Text() string { return string(p) }

func (HTML) Tag() string      { return TagHTML }
func (Markdown) Tag() string  { return TagMarkdown }
func (PlainText) Tag() string { return TagPlainText }

func (HTML) contentType()      {}
func (Markdown) contentType()  {}
func (PlainText) contentType() {}

// Retag returns a value of the same variant as ct holding text.
func Retag(ct ContentType, text string) ContentType {
	switch ct.(type) {
	case HTML:
		return HTML(text)
	case Markdown:
		return Markdown(text)
	case PlainText:
		return PlainText(text)
	}
	panic("publication: unknown content type")
}

// Content is one of Inline, Local or External.
type Content interface {
	Declared() ContentType
	content()
}

// Inline content is held in the manifest itself.
type Inline struct {
	Body ContentType
}

// Local content lives in a file below the content root. The text of Source
// is the relative path.
type Local struct {
	Source ContentType
}

// External content is fetched over HTTP. The text of Source is the URL.
type External struct {
	Source ContentType
}

func (c Inline) Declared() ContentType   { return c.Body }
func (c Local) Declared() ContentType    { return c.Source }
func (c External) Declared() ContentType { return c.Source }

func (Inline) content()   {}
func (Local) content()    {}
func (External) content() {}
