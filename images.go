package pubrender

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

const (
	defaultImageWidth = 800
	maxImageWidth     = 1600
	jpegQuality       = 80
)

var errUndecodable = errors.New("image: cannot decode")

// resizeImage decodes src and, if it is wider than width, scales it down
// keeping the aspect ratio. The result is always JPEG.
func resizeImage(src io.Reader, width int) ([]byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, errors.Wrap(errUndecodable, err.Error())
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > width {
		dst := image.NewRGBA(image.Rect(0, 0, width, h*width/w))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, errors.Wrap(err, "image: encode jpeg")
	}
	return buf.Bytes(), nil
}

// imageWidth parses the w query parameter, clamped to maxImageWidth.
func imageWidth(q string) int {
	w, err := strconv.Atoi(q)
	if err != nil || w <= 0 {
		return defaultImageWidth
	}
	if w > maxImageWidth {
		return maxImageWidth
	}
	return w
}

// handleImage serves an image from the assets directory scaled to at most
// the requested width. Results are cached per file version and width.
func (a *App) handleImage(c echo.Context) error {
	cfg := a.Context.Config()
	path := cfg.AssetPath(c.Param("*"))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return echo.ErrNotFound
	}
	width := imageWidth(c.QueryParam("w"))
	key := fmt.Sprintf("image:%s|%d|%d|%d", path, info.ModTime().UnixNano(), info.Size(), width)
	ttl := cfg.ImageLifetime()

	if b, ok, err := a.Context.CacheGet(key, ttl); err != nil {
		c.Logger().Warnf("image cache read %s: %v", path, err)
	} else if ok {
		return c.Blob(http.StatusOK, "image/jpeg", b)
	}

	f, err := os.Open(path)
	if err != nil {
		return echo.ErrNotFound
	}
	defer f.Close()

	b, err := resizeImage(f, width)
	if errors.Is(err, errUndecodable) {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, "not an image")
	}
	if err != nil {
		return err
	}
	if err := a.Context.CachePut(key, b, ttl); err != nil {
		c.Logger().Warnf("image cache write %s: %v", path, err)
	}
	return c.Blob(http.StatusOK, "image/jpeg", b)
}
