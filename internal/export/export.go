// Package export writes captured viewer frames to disk.
package export

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/image/draw"
)

// ThumbnailWidth is the width of generated thumbnails.
const ThumbnailWidth = 320

// ErrEmptyImage is returned for images without pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// Result names the files written for one snapshot.
type Result struct {
	Image     string `json:"image"`
	Thumbnail string `json:"thumbnail"`
}

// FileName returns a timestamped base name for a building's snapshot.
func FileName(buildingID string, t time.Time) string {
	prefix := sanitize(buildingID)
	if prefix == "" {
		prefix = "snapshot"
	}
	return fmt.Sprintf("%s_%s", prefix, t.Format("2006-01-02_15-04-05"))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(s))
}

// Snapshot writes img as <dir>/<name>.png plus a <name>_thumb.png scaled to
// ThumbnailWidth.
func Snapshot(dir, name string, img image.Image) (Result, error) {
	if img == nil || img.Bounds().Empty() {
		return Result{}, ErrEmptyImage
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("creating output dir: %w", err)
		}
	}

	res := Result{
		Image:     filepath.Join(dir, name+".png"),
		Thumbnail: filepath.Join(dir, name+"_thumb.png"),
	}
	if err := writePNG(res.Image, img); err != nil {
		return Result{}, err
	}
	if err := writePNG(res.Thumbnail, Thumbnail(img, ThumbnailWidth)); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Thumbnail scales img to width, keeping the aspect ratio. Images narrower
// than width are copied unscaled.
func Thumbnail(img image.Image, width int) *image.RGBA {
	b := img.Bounds()
	if width <= 0 || b.Dx() <= width {
		dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func writePNG(path string, img image.Image) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, file.Close())
	}()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}
