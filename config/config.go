// Package config loads the site configuration from YAML with environment
// overrides.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/eringen/pubrender/asset"
	"github.com/eringen/pubrender/cache"
	"github.com/eringen/pubrender/scene"
)

// ErrInvalidConfig wraps every load and validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "site.yaml"

// SiteConfig holds all configuration for a site.
type SiteConfig struct {
	Name        string `yaml:"name"`        // Site name (default "My site")
	URL         string `yaml:"url"`         // Canonical URL (default "http://localhost:3000")
	Description string `yaml:"description"` // Used by the feed

	Addr string `yaml:"addr"` // Listen address (default ":3000")
	Root string `yaml:"root"` // Site root; relative directories below resolve against it

	Manifest     string `yaml:"manifest"`      // default "publications.yaml"
	ContentDir   string `yaml:"content_dir"`   // default "publications"
	TemplatesDir string `yaml:"templates_dir"` // default "templates"
	AssetsDir    string `yaml:"assets_dir"`    // default "assets"
	WorkDir      string `yaml:"work_dir"`      // default ".pubrender"; each run owns <work_dir>/<pid>

	Pages    Pages            `yaml:"pages"`
	Scenes   scene.Collection `yaml:"scenes"`
	Cache    Cache            `yaml:"cache"`
	Runtimes Runtimes         `yaml:"runtimes"`
	Limits   Limits           `yaml:"limits"`
	Logs     Logs             `yaml:"logs"`
}

// Pages names special publications.
type Pages struct {
	NotFound string `yaml:"notfound"` // default "404"
}

// Cache selects the cache backend and asset lifetimes.
type Cache struct {
	Backend   string    `yaml:"backend"` // memory, disk or sqlite
	Lifetimes Lifetimes `yaml:"lifetimes"`
}

// Lifetimes are in seconds.
type Lifetimes struct {
	Stylesheets int64 `yaml:"stylesheets"` // default 72000
	Javascript  int64 `yaml:"javascript"`  // default 1200
	Images      int64 `yaml:"images"`      // default 72000
}

// Runtimes configures the external tools.
type Runtimes struct {
	JS            string   `yaml:"js"`             // node or bun
	Minifier      string   `yaml:"minifier"`       // external, native or none
	Renderer      []string `yaml:"renderer"`       // collaborator argv; empty disables it
	RenderTimeout int64    `yaml:"render_timeout"` // seconds, default 10
}

// Limits bounds renders per client.
type Limits struct {
	Renders int   `yaml:"renders"` // per window, default 120
	Window  int64 `yaml:"window"`  // seconds, default 60
}

// Logs configures the logger.
type Logs struct {
	Level string `yaml:"level"` // debug, info, warn, error or off
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "My site"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.Root == "" {
		c.Root = "."
	}
	if c.Manifest == "" {
		c.Manifest = "publications.yaml"
	}
	if c.ContentDir == "" {
		c.ContentDir = "publications"
	}
	if c.TemplatesDir == "" {
		c.TemplatesDir = "templates"
	}
	if c.AssetsDir == "" {
		c.AssetsDir = "assets"
	}
	if c.WorkDir == "" {
		c.WorkDir = ".pubrender"
	}
	if c.Pages.NotFound == "" {
		c.Pages.NotFound = "404"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = cache.BackendMemory
	}
	if c.Cache.Lifetimes.Stylesheets == 0 {
		c.Cache.Lifetimes.Stylesheets = 72000
	}
	if c.Cache.Lifetimes.Javascript == 0 {
		c.Cache.Lifetimes.Javascript = 1200
	}
	if c.Cache.Lifetimes.Images == 0 {
		c.Cache.Lifetimes.Images = 72000
	}
	if c.Runtimes.JS == "" {
		c.Runtimes.JS = "node"
	}
	if c.Runtimes.Minifier == "" {
		c.Runtimes.Minifier = asset.MinifierExternal
	}
	if c.Runtimes.RenderTimeout == 0 {
		c.Runtimes.RenderTimeout = 10
	}
	if c.Limits.Renders == 0 {
		c.Limits.Renders = 120
	}
	if c.Limits.Window == 0 {
		c.Limits.Window = 60
	}
	if c.Logs.Level == "" {
		c.Logs.Level = "info"
	}
}

// Default returns a configuration with every default applied.
func Default() SiteConfig {
	var c SiteConfig
	c.setDefaults()
	return c
}

// Parse decodes YAML, applies defaults and validates. Environment overrides
// are not applied.
func Parse(b []byte) (SiteConfig, error) {
	var c SiteConfig
	if err := yaml.Unmarshal(b, &c); err != nil {
		return SiteConfig{}, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return SiteConfig{}, err
	}
	return c, nil
}

// Load reads path, applies environment overrides and defaults, and
// validates. A relative root resolves against the directory of path.
func Load(path string) (SiteConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return SiteConfig{}, errors.Wrapf(ErrInvalidConfig, "read %q: %v", path, err)
	}
	var c SiteConfig
	if err := yaml.Unmarshal(b, &c); err != nil {
		return SiteConfig{}, errors.Wrapf(ErrInvalidConfig, "%s: %v", path, err)
	}
	if c.Root == "" || !filepath.IsAbs(c.Root) {
		c.Root = filepath.Join(filepath.Dir(path), c.Root)
	}
	c.applyEnv()
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return SiteConfig{}, errors.Wrapf(err, "%s", path)
	}
	return c, nil
}

func (c *SiteConfig) applyEnv() {
	if v := os.Getenv("PUBRENDER_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("PUBRENDER_ROOT"); v != "" {
		c.Root = v
	}
	if v := os.Getenv("PUBRENDER_LOG_LEVEL"); v != "" {
		c.Logs.Level = v
	}
	if v, ok := os.LookupEnv("PUBRENDER_RENDERER"); ok {
		c.Runtimes.Renderer = strings.Fields(v)
	}
}

// Validate checks the configuration after defaults are applied.
func (c SiteConfig) Validate() error {
	if err := c.Scenes.Validate(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if c.Addr == "" {
		return errors.Wrap(ErrInvalidConfig, "addr is empty")
	}
	if c.Cache.Lifetimes.Stylesheets < 0 || c.Cache.Lifetimes.Javascript < 0 || c.Cache.Lifetimes.Images < 0 {
		return errors.Wrap(ErrInvalidConfig, "cache lifetimes must not be negative")
	}
	switch c.Cache.Backend {
	case cache.BackendMemory, cache.BackendDisk, cache.BackendSQLite:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Runtimes.Minifier {
	case asset.MinifierExternal, asset.MinifierNative, asset.MinifierNone:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown minifier %q", c.Runtimes.Minifier)
	}
	if c.Runtimes.RenderTimeout < 0 {
		return errors.Wrap(ErrInvalidConfig, "render_timeout must not be negative")
	}
	if _, ok := levels[c.Logs.Level]; !ok {
		return errors.Wrapf(ErrInvalidConfig, "unknown log level %q", c.Logs.Level)
	}
	return c.checkWorkDir()
}

var levels = map[string]log.Lvl{
	"debug": log.DEBUG,
	"info":  log.INFO,
	"warn":  log.WARN,
	"error": log.ERROR,
	"off":   log.OFF,
}

// LogLevel returns the gommon level for Logs.Level.
func (c SiteConfig) LogLevel() log.Lvl {
	if l, ok := levels[c.Logs.Level]; ok {
		return l
	}
	return log.INFO
}

// Path resolves dir against Root unless it is absolute.
func (c SiteConfig) Path(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Root, dir)
}

// ManifestPath is the content manifest file.
func (c SiteConfig) ManifestPath() string { return c.Path(c.Manifest) }

// ContentRoot is the directory Local content is read from.
func (c SiteConfig) ContentRoot() string { return c.Path(c.ContentDir) }

// TemplatePath returns the template file for a kind and template name.
func (c SiteConfig) TemplatePath(kind, name string) string {
	return filepath.Join(c.Path(c.TemplatesDir), kind, name+".hbs")
}

// AssetPath returns an asset file below the assets directory.
func (c SiteConfig) AssetPath(name string) string {
	return filepath.Join(c.Path(c.AssetsDir), filepath.Clean("/"+name))
}

// WorkPath is the directory holding per-run scratch directories.
func (c SiteConfig) WorkPath() string { return c.Path(c.WorkDir) }

// RunPath is the scratch directory owned by this process. It is the only
// directory pubrender clears.
func (c SiteConfig) RunPath() string {
	return filepath.Join(c.WorkPath(), strconv.Itoa(os.Getpid()))
}

// checkWorkDir rejects a work directory that would cover site files.
func (c SiteConfig) checkWorkDir() error {
	work, err := filepath.Abs(c.WorkPath())
	if err != nil {
		return errors.Wrapf(ErrInvalidConfig, "work_dir: %v", err)
	}
	site := map[string]string{
		"root":          c.Root,
		"content_dir":   c.Path(c.ContentDir),
		"templates_dir": c.Path(c.TemplatesDir),
		"assets_dir":    c.Path(c.AssetsDir),
		"manifest":      c.ManifestPath(),
	}
	for name, p := range site {
		abs, err := filepath.Abs(p)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "%s: %v", name, err)
		}
		if within(work, abs) {
			return errors.Wrapf(ErrInvalidConfig, "work_dir %q contains %s", c.WorkDir, name)
		}
	}
	return nil
}

// within reports whether p is dir or lies below it.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// AssetLifetimes converts the configured lifetimes.
func (c SiteConfig) AssetLifetimes() asset.Lifetimes {
	return asset.Lifetimes{
		Stylesheets: time.Duration(c.Cache.Lifetimes.Stylesheets) * time.Second,
		Javascript:  time.Duration(c.Cache.Lifetimes.Javascript) * time.Second,
	}
}

// ImageLifetime is how long a resized image stays cached.
func (c SiteConfig) ImageLifetime() time.Duration {
	return time.Duration(c.Cache.Lifetimes.Images) * time.Second
}

// RenderTimeout converts Runtimes.RenderTimeout.
func (c SiteConfig) RenderTimeout() time.Duration {
	return time.Duration(c.Runtimes.RenderTimeout) * time.Second
}

// LimitWindow converts Limits.Window.
func (c SiteConfig) LimitWindow() time.Duration {
	return time.Duration(c.Limits.Window) * time.Second
}

// Clone returns a deep copy, safe to hand out as a snapshot.
func (c SiteConfig) Clone() SiteConfig {
	c.Scenes = append(scene.Collection(nil), c.Scenes...)
	c.Runtimes.Renderer = append([]string(nil), c.Runtimes.Renderer...)
	return c
}
