package render

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
)

const parsePrefix = "parse: "

type request struct {
	ID   int64       `json:"id"`
	Body requestBody `json:"body"`
}

type requestBody struct {
	For          string       `json:"for"`
	TemplatePath string       `json:"template_path"`
	TemplateData TemplateData `json:"template_data"`
}

type response struct {
	ID   int64 `json:"id"`
	Body struct {
		As      string          `json:"as"`
		Value   json.RawMessage `json:"value"`
		Message json.RawMessage `json:"message"`
	} `json:"body"`
}

// External talks to a long-running collaborator process over its standard
// streams. Each request is one JSON line; replies come back as lines
// prefixed "parse: " and are matched to callers by id. Every other line is
// forwarded to the logger.
type External struct {
	lg      *log.Logger
	timeout time.Duration
	cmd     *exec.Cmd
	w       io.WriteCloser

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan response
	closed  error
	done    chan struct{}
}

// StartExternal launches argv in dir and returns a renderer speaking to it.
func StartExternal(argv []string, dir string, timeout time.Duration, lg *log.Logger) (*External, error) {
	if len(argv) == 0 {
		return nil, errors.Wrap(ErrExternalRenderer, "empty command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrapf(ErrExternalRenderer, "stdin: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrapf(ErrExternalRenderer, "stdout: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(ErrExternalRenderer, "start %s: %v", argv[0], err)
	}
	e := NewExternal(stdout, stdin, timeout, lg)
	e.cmd = cmd
	return e, nil
}

// NewExternal returns a renderer over an already connected collaborator.
func NewExternal(r io.Reader, w io.WriteCloser, timeout time.Duration, lg *log.Logger) *External {
	if lg == nil {
		lg = discard
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	e := &External{
		lg:      lg,
		timeout: timeout,
		w:       w,
		pending: make(map[int64]chan response),
		done:    make(chan struct{}),
	}
	go e.read(r)
	return e
}

// Name implements Renderer.
func (e *External) Name() string { return "external" }

// Render implements Renderer.
func (e *External) Render(ctx context.Context, templatePath string, data TemplateData) (string, error) {
	ch := make(chan response, 1)

	e.mu.Lock()
	if e.closed != nil {
		err := e.closed
		e.mu.Unlock()
		return "", err
	}
	e.nextID++
	id := e.nextID
	e.pending[id] = ch
	line, err := json.Marshal(request{
		ID: id,
		Body: requestBody{
			For:          "ContentRenderRequest",
			TemplatePath: templatePath,
			TemplateData: data,
		},
	})
	if err == nil {
		_, err = e.w.Write(append(line, '\n'))
	}
	if err != nil {
		delete(e.pending, id)
		e.mu.Unlock()
		return "", errors.Wrapf(ErrExternalRenderer, "send request %d: %v", id, err)
	}
	e.mu.Unlock()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp.text()
	case <-e.done:
		return "", e.closeErr()
	case <-timer.C:
		e.forget(id)
		return "", errors.Wrapf(ErrExternalRenderer, "request %d timed out after %s", id, e.timeout)
	case <-ctx.Done():
		e.forget(id)
		return "", errors.Wrapf(ErrExternalRenderer, "request %d: %v", id, ctx.Err())
	}
}

func (r response) text() (string, error) {
	switch r.Body.As {
	case "OkString":
		var s string
		if err := json.Unmarshal(r.Body.Value, &s); err != nil {
			return "", errors.Wrapf(ErrExternalRenderer, "request %d: bad OkString value: %v", r.ID, err)
		}
		return s, nil
	case "Error":
		return "", errors.Wrapf(ErrExternalRenderer, "request %d: %s", r.ID, string(r.Body.Message))
	default:
		return "", errors.Wrapf(ErrExternalRenderer, "request %d: unexpected %q response", r.ID, r.Body.As)
	}
}

func (e *External) forget(id int64) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

func (e *External) closeErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *External) read(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 32<<20)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, parsePrefix) {
			e.deliver(line[len(parsePrefix):])
			continue
		}
		e.forward(line)
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	e.mu.Lock()
	e.closed = errors.Wrapf(ErrExternalRenderer, "collaborator gone: %v", err)
	e.pending = map[int64]chan response{}
	e.mu.Unlock()
	close(e.done)
}

func (e *External) deliver(payload string) {
	var resp response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		e.lg.Warnf("external renderer: unreadable response: %v", err)
		return
	}
	e.mu.Lock()
	ch, ok := e.pending[resp.ID]
	delete(e.pending, resp.ID)
	e.mu.Unlock()
	if !ok {
		e.lg.Debugf("external renderer: response for unknown request %d", resp.ID)
		return
	}
	ch <- resp
}

func (e *External) forward(line string) {
	tag, msg, found := strings.Cut(line, ": ")
	if !found {
		e.lg.Info("external renderer: " + line)
		return
	}
	switch tag {
	case "error":
		e.lg.Error("external renderer: " + msg)
	case "warn":
		e.lg.Warn("external renderer: " + msg)
	case "debug":
		e.lg.Debug("external renderer: " + msg)
	case "log", "info":
		e.lg.Info("external renderer: " + msg)
	default:
		e.lg.Info("external renderer: " + line)
	}
}

// Close stops the collaborator.
func (e *External) Close() error {
	err := e.w.Close()
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
		_ = e.cmd.Wait()
	}
	return err
}
