// Package llm defines the text-generation provider abstraction used for
// chat advice and document analysis.
//
// Implementations live in subpackages (gemini, openai). Callers depend on
// the Provider interface so a primary provider can be backed by a fallback.
package llm

import (
	"context"
	"errors"
)

// ErrUnsupportedContent is returned by providers that cannot process a part
// of the request, such as inline binary data on a text-only backend.
var ErrUnsupportedContent = errors.New("llm: unsupported content")

// Blob carries inline binary content, base64-encoded.
type Blob struct {
	MIMEType string
	Data     string
}

// Part is one piece of a request: either text or an inline blob.
type Part struct {
	Text       string
	InlineData *Blob
}

// Request is a single-shot generation request.
type Request struct {
	Model string // optional; providers fall back to their configured model
	Parts []Part
}

// Response holds the generated text.
type Response struct {
	Text string
}

// Provider generates a completion for a request.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
