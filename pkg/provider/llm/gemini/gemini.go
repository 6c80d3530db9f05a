// Package gemini provides an llm.Provider backed by the Gemini API through
// the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/legalsathi/sathi/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

const (
	defaultModel   = "gemini-3-pro-preview"
	defaultTimeout = 60 * time.Second
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel sets the default model used when a request does not name one.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API base URL. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements llm.Provider on the genai SDK.
type Provider struct {
	model      string
	baseURL    string
	httpClient *http.Client

	client *genai.Client
}

// New constructs a Gemini text Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	p := &Provider{
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: p.baseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, rp := range req.Parts {
		if rp.InlineData != nil {
			raw, err := base64.StdEncoding.DecodeString(rp.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("gemini: decode inline data: %w", err)
			}
			parts = append(parts, genai.NewPartFromBytes(raw, rp.InlineData.MIMEType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(rp.Text))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: no candidates in response")
	}
	return &llm.Response{Text: resp.Text()}, nil
}
