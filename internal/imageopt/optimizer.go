// Package imageopt re-encodes images to shrink them without visible change.
package imageopt

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
)

const svgMediaType = "image/svg+xml"

// Optimizer shrinks one image. name is used to pick the format.
type Optimizer interface {
	Optimize(name string, src []byte) ([]byte, error)
}

// Options tunes the default optimizer.
type Options struct {
	// JPEGQuality is the re-encoding quality for lossy JPEG output (1-100).
	JPEGQuality int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{JPEGQuality: 85}
}

// Codec optimizes PNG, JPEG, GIF and SVG images.
type Codec struct {
	opts     Options
	minifier *minify.M
}

// New creates a Codec.
func New(opts Options) *Codec {
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultOptions().JPEGQuality
	}
	m := minify.New()
	m.AddFunc(svgMediaType, svg.Minify)
	return &Codec{opts: opts, minifier: m}
}

// Optimize re-encodes src. The original bytes are returned when the
// re-encoded image is not smaller.
func (c *Codec) Optimize(name string, src []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)

	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".png":
		out, err = c.optimizePNG(src)
	case ".jpg", ".jpeg":
		out, err = c.optimizeJPEG(src)
	case ".gif":
		out, err = c.optimizeGIF(src)
	case ".svg":
		out, err = c.minifier.Bytes(svgMediaType, src)
	default:
		return nil, fmt.Errorf("unsupported image format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("optimizing %s: %w", filepath.Base(name), err)
	}

	if len(out) >= len(src) {
		return src, nil
	}
	return out, nil
}

func (c *Codec) optimizePNG(src []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Codec) optimizeJPEG(src []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.opts.JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Codec) optimizeGIF(src []byte) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Supported reports whether name has an extension the Codec handles.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".svg":
		return true
	}
	return false
}

// Decode is exposed for tests and tooling that need to check a written image.
func Decode(src []byte) (image.Image, string, error) {
	return image.Decode(bytes.NewReader(src))
}
