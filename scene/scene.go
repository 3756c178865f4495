// Package scene maps publications to the templates and assets that present
// them.
package scene

import (
	"github.com/pkg/errors"
)

var (
	// ErrSceneNotFound is returned when a publication names a scene that is
	// not configured.
	ErrSceneNotFound = errors.New("scene not found")
	// ErrNoDefaultScene is returned when no scene is configured at all.
	ErrNoDefaultScene = errors.New("no default scene configured")
	// ErrInvalidScenes is returned by Collection.Validate.
	ErrInvalidScenes = errors.New("invalid scene configuration")
)

// DefaultName is the name of the scene used when a publication does not
// request one. Without it the first configured scene is the default.
const DefaultName = "default"

// Templates names one template per publication kind.
type Templates struct {
	Page     string `yaml:"page"`
	Post     string `yaml:"post"`
	PostList string `yaml:"postlist"`
}

// Scene is a named bundle of templates and optional assets.
type Scene struct {
	Name       string    `yaml:"name"`
	Templates  Templates `yaml:"templates"`
	Stylesheet string    `yaml:"stylefile"`
	Script     string    `yaml:"script"`
}

// Collection is the configured set of scenes.
type Collection []Scene

// ByName returns the scene called name.
func (c Collection) ByName(name string) (Scene, bool) {
	for _, s := range c {
		if s.Name == name {
			return s, true
		}
	}
	return Scene{}, false
}

// Has reports whether a scene called name exists.
func (c Collection) Has(name string) bool {
	_, ok := c.ByName(name)
	return ok
}

// Default returns the scene named DefaultName, or the first scene.
func (c Collection) Default() (Scene, bool) {
	if s, ok := c.ByName(DefaultName); ok {
		return s, true
	}
	if len(c) == 0 {
		return Scene{}, false
	}
	return c[0], true
}

// Validate checks that at least one scene exists, names are unique and every
// scene names a template for each kind.
func (c Collection) Validate() error {
	if len(c) == 0 {
		return errors.Wrap(ErrInvalidScenes, "no scenes")
	}
	seen := make(map[string]struct{}, len(c))
	for i, s := range c {
		if s.Name == "" {
			return errors.Wrapf(ErrInvalidScenes, "scene #%d has no name", i)
		}
		if _, dup := seen[s.Name]; dup {
			return errors.Wrapf(ErrInvalidScenes, "duplicate scene %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.Templates.Page == "" || s.Templates.Post == "" || s.Templates.PostList == "" {
			return errors.Wrapf(ErrInvalidScenes, "scene %q is missing a template", s.Name)
		}
	}
	return nil
}

// Named is what the resolver needs to know about a publication.
type Named interface {
	SceneName() string
	Kind() string
}

// Publication is the reduced view of a scene for one publication: the
// template for its kind plus the shared assets.
type Publication struct {
	Kind       string
	Template   string
	Stylesheet string
	Script     string
}

// Resolve picks the scene for p. An explicitly named scene must exist;
// otherwise the collection's default is used.
func Resolve(p Named, scenes Collection) (Publication, error) {
	var s Scene
	if name := p.SceneName(); name != "" {
		var ok bool
		if s, ok = scenes.ByName(name); !ok {
			return Publication{}, errors.Wrapf(ErrSceneNotFound, "%q", name)
		}
	} else {
		var ok bool
		if s, ok = scenes.Default(); !ok {
			return Publication{}, ErrNoDefaultScene
		}
	}

	out := Publication{
		Kind:       p.Kind(),
		Stylesheet: s.Stylesheet,
		Script:     s.Script,
	}
	switch p.Kind() {
	case "page":
		out.Template = s.Templates.Page
	case "post":
		out.Template = s.Templates.Post
	case "postlist":
		out.Template = s.Templates.PostList
	default:
		return Publication{}, errors.Errorf("scene: unknown publication kind %q", p.Kind())
	}
	return out, nil
}
