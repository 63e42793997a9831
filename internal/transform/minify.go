package transform

import (
	"fmt"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
)

const cssMediaType = "text/css"

// Minifier removes non-semantic characters from CSS.
type Minifier struct {
	m *minify.M
}

// NewMinifier creates a CSS minifier.
func NewMinifier() *Minifier {
	m := minify.New()
	m.AddFunc(cssMediaType, css.Minify)
	return &Minifier{m: m}
}

// Name implements Step.
func (*Minifier) Name() string { return StepMinify }

// Transform implements Step.
func (mf *Minifier) Transform(src []byte) ([]byte, error) {
	out, err := mf.m.Bytes(cssMediaType, src)
	if err != nil {
		return nil, fmt.Errorf("minifying css: %w", err)
	}
	return out, nil
}
