package llm

import (
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Request is a provider-agnostic multimodal generation request.
type Request struct {
	Model  string
	System string // sent as a system message by providers that support one
	Prompt string
	Images [][]byte
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override request model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// ApplyOptions folds opts over defaults.
func ApplyOptions(defaults Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}

// VisionProvider defines the contract for any image+text backend
type VisionProvider interface {
	// Name identifies the provider in logs and results
	Name() string

	// Configured reports whether the provider has what it needs (e.g. a
	// credential) to attempt a call. It never performs I/O.
	Configured() bool

	// Generate sends one request and returns the model's text answer
	Generate(ctx context.Context, req Request, options ...Option) (string, error)
}

// ImageMediaType sniffs an image MIME type, defaulting to JPEG for anything
// that does not look like an image.
func ImageMediaType(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	if !strings.HasPrefix(mt, "image/") {
		return "image/jpeg"
	}
	return mt
}

// IsImage reports whether data looks like an image.
func IsImage(data []byte) bool {
	return strings.HasPrefix(mimetype.Detect(data).String(), "image/")
}
