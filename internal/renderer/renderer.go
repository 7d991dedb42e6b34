// Package renderer drives a headless browser to load pages and run
// extraction scripts inside them.
package renderer

import (
	"context"
	"encoding/json"
	"fmt"

	"fathom/internal/model"
)

// Page is a rendered page handle. Callers must Close it when done.
type Page interface {
	// URL returns the final URL after redirects.
	URL() string
	// HTML returns the rendered document markup.
	HTML() (string, error)
	// Evaluate runs a JS function expression in the page and returns its
	// JSON-encoded result.
	Evaluate(js string) (json.RawMessage, error)
	// Screenshot captures a full-page PNG.
	Screenshot() ([]byte, error)
	Close()
}

// Renderer loads a URL in a fresh browser context with the given options
// and init scripts pre-installed. Admission control is the caller's job.
type Renderer interface {
	Render(ctx context.Context, rawURL string, opts model.RenderOptions, initScripts []string) (Page, error)
}

// ErrorKind classifies render failures.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindNavigation ErrorKind = "navigation"
	KindScript     ErrorKind = "script"
	KindNoContent  ErrorKind = "no_content"
)

// Error is a typed render failure. An extractor returning an err record is
// not an Error; that signal belongs to the extraction layer.
type Error struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("render %s: %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("render %s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
