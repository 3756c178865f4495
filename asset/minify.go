package asset

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
)

// ErrMinify wraps minifier failures. Callers degrade to the raw file.
var ErrMinify = errors.New("minify failed")

// Minifier compresses the asset file at path.
type Minifier interface {
	Minify(ctx context.Context, kind Kind, path string) (string, error)
}

// Minifier names accepted by NewMinifier.
const (
	MinifierExternal = "external"
	MinifierNative   = "native"
	MinifierNone     = "none"
)

// NewMinifier returns the minifier called name. runtime selects the package
// runner of the external one.
func NewMinifier(name, runtime string) (Minifier, error) {
	switch name {
	case "", MinifierExternal:
		return External{Runtime: runtime}, nil
	case MinifierNative:
		return NewNative(), nil
	case MinifierNone:
		return Passthrough{}, nil
	default:
		return nil, errors.Errorf("unknown minifier %q", name)
	}
}

// External runs terser or clean-css through the JavaScript runtime's package
// runner: bunx for bun, npx otherwise.
type External struct {
	Runtime string
	// Runner replaces the package runner argv prefix when set.
	Runner []string
}

// Command returns the argv used for an asset.
func (e External) Command(kind Kind, path string) []string {
	runner := e.Runner
	if len(runner) == 0 {
		if strings.HasPrefix(e.Runtime, "bun") {
			runner = []string{"bunx"}
		} else {
			runner = []string{"npx", "--yes"}
		}
	}
	argv := append([]string{}, runner...)
	if kind == Script {
		return append(argv, "terser", path, "--compress", "--keep-fnames", "--keep-classnames")
	}
	return append(argv, "clean-css-cli@4", "-O2", "--inline", "none", path)
}

// Minify runs the tool and returns its standard output.
func (e External) Minify(ctx context.Context, kind Kind, path string) (string, error) {
	argv := e.Command(kind, path)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(ErrMinify, "%s: %v: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Native minifies in process.
type Native struct {
	m *minify.M
}

// NewNative returns a Native minifier for scripts and stylesheets.
func NewNative() Native {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("application/javascript", js.Minify)
	return Native{m: m}
}

// Minify implements Minifier.
func (n Native) Minify(_ context.Context, kind Kind, path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(ErrMinify, "read %q: %v", path, err)
	}
	out, err := n.m.Bytes(kind.mediaType(), b)
	if err != nil {
		return "", errors.Wrapf(ErrMinify, "%q: %v", path, err)
	}
	return string(out), nil
}

// Passthrough returns the file unchanged.
type Passthrough struct{}

// Minify implements Minifier.
func (Passthrough) Minify(_ context.Context, _ Kind, path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(ErrMinify, "read %q: %v", path, err)
	}
	return string(b), nil
}
