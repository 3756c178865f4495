package publication

import (
	"os"

	"github.com/goccy/go-yaml"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
)

// RootID is the id of the home page. An empty id also resolves to it.
const RootID = "root"

// ErrInvalidManifest wraps every manifest parse and validation failure.
var ErrInvalidManifest = errors.New("invalid content manifest")

// SceneLookup reports whether a scene name is configured.
type SceneLookup interface {
	Has(name string) bool
}

// List is an ordered manifest snapshot.
type List []Publication

type contentRecord struct {
	Source string `yaml:"source"`
	Type   string `yaml:"type"`
	Value  string `yaml:"value"`
}

type record struct {
	Kind        string         `yaml:"kind"`
	ID          string         `yaml:"id"`
	Title       string         `yaml:"title"`
	Scene       string         `yaml:"scene"`
	Thumbnail   string         `yaml:"thumbnail"`
	Description string         `yaml:"description"`
	Short       string         `yaml:"short"`
	Category    string         `yaml:"category"`
	Author      *Author        `yaml:"author"`
	Tags        []string       `yaml:"tags"`
	Dates       Dates          `yaml:"dates"`
	Content     *contentRecord `yaml:"content"`
	Filter      Filter         `yaml:"filter"`
}

// Parse decodes a YAML or JSON manifest.
func Parse(b []byte) (List, error) {
	var records []record
	if err := yaml.Unmarshal(b, &records); err != nil {
		return nil, errors.Wrap(ErrInvalidManifest, err.Error())
	}
	list := make(List, 0, len(records))
	for i, r := range records {
		p, err := r.publication()
		if err != nil {
			return nil, errors.Wrapf(err, "record #%d", i)
		}
		list = append(list, p)
	}
	return list, nil
}

// Read parses the manifest at path.
func Read(path string) (List, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidManifest, "read %q: %v", path, err)
	}
	return Parse(b)
}

// Load reads the manifest at path. Failures are logged and yield an empty
// list so that callers fall through to their not-found handling.
func Load(path string, lg *log.Logger) List {
	list, err := Read(path)
	if err != nil {
		if lg != nil {
			lg.Errorf("content manifest: %v", err)
		}
		return List{}
	}
	return list
}

func (r record) publication() (Publication, error) {
	if r.ID == "" {
		return nil, errors.Wrap(ErrInvalidManifest, "missing id")
	}
	common := Common{
		ID:        r.ID,
		Title:     r.Title,
		Thumbnail: r.Thumbnail,
		Scene:     r.Scene,
		Dates:     r.Dates,
	}
	switch r.Kind {
	case KindPage:
		c, err := r.content()
		if err != nil {
			return nil, err
		}
		return Page{Common: common, Description: r.Description, Content: c}, nil
	case KindPost:
		c, err := r.content()
		if err != nil {
			return nil, err
		}
		return Post{
			Common:   common,
			Short:    r.Short,
			Category: r.Category,
			Author:   r.Author,
			Tags:     r.Tags,
			Content:  c,
		}, nil
	case KindPostList:
		return PostList{Common: common, Filter: r.Filter}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidManifest, "%q: unknown kind %q", r.ID, r.Kind)
	}
}

func (r record) content() (Content, error) {
	if r.Content == nil {
		return nil, errors.Wrapf(ErrInvalidManifest, "%q: missing content", r.ID)
	}
	var ct ContentType
	switch r.Content.Type {
	case TagHTML:
		ct = HTML(r.Content.Value)
	case TagMarkdown:
		ct = Markdown(r.Content.Value)
	case TagPlainText:
		ct = PlainText(r.Content.Value)
	default:
		return nil, errors.Wrapf(ErrInvalidManifest, "%q: unknown content type %q", r.ID, r.Content.Type)
	}
	switch r.Content.Source {
	case "inline":
		return Inline{Body: ct}, nil
	case "local":
		return Local{Source: ct}, nil
	case "external":
		return External{Source: ct}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidManifest, "%q: unknown content source %q", r.ID, r.Content.Source)
	}
}

// GetByID returns the publication with the given id. The empty id is the
// root page.
func (l List) GetByID(id string) (Publication, bool) {
	if id == "" {
		id = RootID
	}
	for _, p := range l {
		if p.Base().ID == id {
			return p, true
		}
	}
	return nil, false
}

// GetRoot returns the home page.
func (l List) GetRoot() (Publication, bool) {
	return l.GetByID(RootID)
}

// GetNotFound returns the configured not-found publication.
func (l List) GetNotFound(notFoundID string) (Publication, bool) {
	if notFoundID == "" {
		return nil, false
	}
	return l.GetByID(notFoundID)
}

// Validate checks id uniqueness and that every scene override exists.
func (l List) Validate(scenes SceneLookup) error {
	seen := make(map[string]struct{}, len(l))
	for _, p := range l {
		id := p.Base().ID
		if _, dup := seen[id]; dup {
			return errors.Wrapf(ErrInvalidManifest, "duplicate id %q", id)
		}
		seen[id] = struct{}{}
		if name := p.SceneName(); name != "" && !scenes.Has(name) {
			return errors.Wrapf(ErrInvalidManifest, "%q: scene %q is not configured", id, name)
		}
	}
	return nil
}

// CheckResult is the outcome of Check.
type CheckResult int

const (
	// CheckOK means the requested id resolves.
	CheckOK CheckResult = iota
	// CheckNotFound means only the not-found publication resolves.
	CheckNotFound
	// CheckError means nothing can be served.
	CheckError
)

func (c CheckResult) String() string {
	switch c {
	case CheckOK:
		return "ok"
	case CheckNotFound:
		return "not found"
	default:
		return "error"
	}
}

// Check runs the page id check for a request.
func (l List) Check(id, notFoundID string, scenes SceneLookup) CheckResult {
	if err := l.Validate(scenes); err != nil {
		return CheckError
	}
	if _, ok := l.GetByID(id); ok {
		return CheckOK
	}
	if _, ok := l.GetNotFound(notFoundID); ok {
		return CheckNotFound
	}
	return CheckError
}
