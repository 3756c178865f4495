// Package pubrender serves a small site whose pages are rendered on request
// from a content manifest, handlebars templates and inlined assets.
//
// The App wires the configuration, the shared server context, the render
// controller and the HTTP layer together.
package pubrender

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/eringen/pubrender/asset"
	"github.com/eringen/pubrender/cache"
	"github.com/eringen/pubrender/config"
	"github.com/eringen/pubrender/engine"
	"github.com/eringen/pubrender/render"
)

// Version is set at build time via ldflags.
var Version = "dev"

// App is the central pubrender application.
type App struct {
	Config     config.SiteConfig
	Echo       *echo.Echo
	Logger     *log.Logger
	Context    *engine.ServerContext
	Controller *engine.Controller

	limiter      *RenderLimiter
	client       *http.Client
	customRoutes []func(*App)
	ready        bool
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback runs after the built-in routes are registered.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithHTTPClient sets the client used to fetch external content.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) {
		a.client = c
	}
}

// New creates an App for cfg. Nothing is started until Setup or Start.
func New(cfg config.SiteConfig, opts ...Option) *App {
	lg := NewLogger(cfg.LogLevel())
	e := echo.New()
	e.HideBanner = true
	e.Logger = lg

	a := &App{
		Config: cfg,
		Echo:   e,
		Logger: lg,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewLogger returns the logger shared by echo and every component.
func NewLogger(level log.Lvl) *log.Logger {
	lg := log.New("pubrender")
	lg.SetHeader("${time_rfc3339} ${level} ${prefix}")
	lg.SetLevel(level)
	return lg
}

// Setup prepares the work directory, cache, renderers, middleware and
// routes. It is called by Start and may be called directly to serve
// through Echo.ServeHTTP.
func (a *App) Setup() error {
	if a.ready {
		return nil
	}
	cfg := a.Config

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "pubrender")
	}

	// Working storage only lives for one run.
	run := cfg.RunPath()
	if err := os.RemoveAll(run); err != nil {
		return errors.Wrapf(err, "pubrender: clear %s", run)
	}
	if err := os.MkdirAll(run, 0o755); err != nil {
		return errors.Wrapf(err, "pubrender: create %s", run)
	}

	store, err := cache.Open(cfg.Cache.Backend, run)
	if err != nil {
		return errors.Wrap(err, "pubrender: open cache")
	}

	minifier, err := asset.NewMinifier(cfg.Runtimes.Minifier, cfg.Runtimes.JS)
	if err != nil {
		store.Close()
		return errors.Wrap(err, "pubrender")
	}

	builtin, err := render.NewBuiltin(64)
	if err != nil {
		store.Close()
		return errors.Wrap(err, "pubrender: builtin renderer")
	}

	var ext *render.External
	if argv := cfg.Runtimes.Renderer; len(argv) > 0 {
		ext, err = render.StartExternal(argv, cfg.Root, cfg.RenderTimeout(), a.Logger)
		if err != nil {
			a.Logger.Warnf("external renderer unavailable, using builtin only: %v", err)
			ext = nil
		} else {
			a.Logger.Infof("external renderer started: %v", argv)
		}
	}

	a.Context = engine.NewServerContext(cfg, store, ext)
	a.Controller = &engine.Controller{
		Context:  a.Context,
		Builtin:  builtin,
		Minifier: minifier,
		Client:   a.client,
		Logger:   a.Logger,
		Version:  Version,
	}
	a.limiter = NewRenderLimiter(cfg.Limits.Renders, cfg.LimitWindow())

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.ready = true
	return nil
}

// Start sets the app up and serves until the server stops.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Run serves until SIGINT or SIGTERM, then logs a summary and shuts down.
func (a *App) Run() error {
	errc := make(chan error, 1)
	go func() { errc <- a.Start() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errc:
		a.Close()
		return err
	case s := <-sig:
		a.Logger.Infof("received %s, shutting down", s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Echo.Shutdown(ctx); err != nil {
		a.Logger.Warnf("shutdown: %v", err)
	}
	return a.Close()
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/assets", a.Config.Path(a.Config.AssetsDir))
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/images/*", a.handleImage)

	pages := e.Group("", a.limitRenders)
	pages.GET("/", a.handleRoot)
	pages.GET("/p/:id", a.handlePublication)
	pages.GET("/p/:id/", a.handlePublication)
}

// Close stops the collaborator, closes the cache and reports the run.
func (a *App) Close() error {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.Context == nil {
		return nil
	}
	a.Logger.Info(a.Context.Summary())
	err := a.Context.Close()
	a.Context = nil
	if rerr := os.RemoveAll(a.Config.RunPath()); rerr != nil && err == nil {
		err = errors.Wrap(rerr, "pubrender: remove run directory")
	}
	return err
}
