// Package engine owns the shared server state and turns a requested
// publication id into a rendered document.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/eringen/pubrender/asset"
	"github.com/eringen/pubrender/cache"
	"github.com/eringen/pubrender/config"
	"github.com/eringen/pubrender/render"
)

// State is everything shared between requests. It is only reachable inside
// ServerContext.With.
type State struct {
	Config   config.SiteConfig
	Cache    cache.Engine
	Requests uint64
	Started  time.Time
	// Renderer is the external collaborator, nil when none is configured.
	Renderer *render.External
}

// ServerContext guards State with one exclusive lock. Callers copy out what
// they need and release it before any fetch, render round trip or
// subprocess call.
type ServerContext struct {
	mu    sync.Mutex
	state State
}

// NewServerContext returns a context over the given state. A nil cache is
// replaced by an in-memory one.
func NewServerContext(cfg config.SiteConfig, c cache.Engine, ext *render.External) *ServerContext {
	if c == nil {
		c = cache.NewMemory()
	}
	return &ServerContext{state: State{
		Config:   cfg,
		Cache:    c,
		Started:  time.Now(),
		Renderer: ext,
	}}
}

// With runs fn under the lock. fn must not block.
func (s *ServerContext) With(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// Config returns a snapshot of the configuration.
func (s *ServerContext) Config() config.SiteConfig {
	var cfg config.SiteConfig
	s.With(func(st *State) { cfg = st.Config.Clone() })
	return cfg
}

// External returns the collaborator handle, or nil.
func (s *ServerContext) External() *render.External {
	var ext *render.External
	s.With(func(st *State) { ext = st.Renderer })
	return ext
}

// CountRequest increments the request counter and returns the new value.
func (s *ServerContext) CountRequest() uint64 {
	var n uint64
	s.With(func(st *State) {
		st.Requests++
		n = st.Requests
	})
	return n
}

// CacheGet reads the cache under the lock.
func (s *ServerContext) CacheGet(key string, ttl time.Duration) (b []byte, ok bool, err error) {
	s.With(func(st *State) { b, ok, err = st.Cache.Get(key, ttl) })
	return b, ok, err
}

// CachePut writes the cache under the lock.
func (s *ServerContext) CachePut(key string, value []byte, ttl time.Duration) (err error) {
	s.With(func(st *State) { err = st.Cache.Put(key, value, ttl) })
	return err
}

// Store adapts the context's cache to asset.Store.
func (s *ServerContext) Store() asset.Store { return store{s} }

type store struct{ s *ServerContext }

func (c store) Get(key string, ttl time.Duration) ([]byte, bool, error) {
	return c.s.CacheGet(key, ttl)
}

func (c store) Put(key string, value []byte, ttl time.Duration) error {
	return c.s.CachePut(key, value, ttl)
}

// Summary reports requests served and uptime.
func (s *ServerContext) Summary() string {
	var n uint64
	var started time.Time
	var entries int
	s.With(func(st *State) {
		n, started, entries = st.Requests, st.Started, st.Cache.Len()
	})
	noun := "requests"
	if n == 1 {
		noun = "request"
	}
	return fmt.Sprintf("served %s %s in %s, %s cache entries",
		humanize.Comma(int64(n)), noun, uptime(time.Since(started)), humanize.Comma(int64(entries)))
}

func uptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%dh %dm %ds", h, m, d/time.Second)
}

// Close stops the collaborator and closes the cache.
func (s *ServerContext) Close() error {
	var ext *render.External
	var c cache.Engine
	s.With(func(st *State) {
		ext, c = st.Renderer, st.Cache
		st.Renderer = nil
	})
	if ext != nil {
		_ = ext.Close()
	}
	return c.Close()
}
