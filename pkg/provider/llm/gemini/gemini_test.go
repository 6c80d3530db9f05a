package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/legalsathi/sathi/pkg/provider/llm"
	"github.com/legalsathi/sathi/pkg/provider/llm/gemini"
)

func newProvider(t *testing.T, srv *httptest.Server, opts ...gemini.Option) *gemini.Provider {
	t.Helper()
	p, err := gemini.New("test-key", append([]gemini.Option{gemini.WithBaseURL(srv.URL)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := gemini.New(""); err == nil {
		t.Fatal("New(\"\") succeeded, want error")
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": "Under Section 138"}},
				},
			}},
		})
	}))
	defer srv.Close()

	p := newProvider(t, srv, gemini.WithModel("gemini-3-pro-preview"))
	resp, err := p.Complete(context.Background(), llm.Request{
		Parts: []llm.Part{{Text: "cheque bounce remedy?"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "Under Section 138" {
		t.Errorf("Text = %q", resp.Text)
	}
	if !strings.Contains(gotPath, "models/gemini-3-pro-preview:generateContent") {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q, want test-key", gotKey)
	}

	contents := gotBody["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	if text := parts[0].(map[string]any)["text"]; text != "cheque bounce remedy?" {
		t.Errorf("request text = %v", text)
	}
}

func TestComplete_InlineData(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": "Rental agreement."}}},
			}},
		})
	}))
	defer srv.Close()

	p := newProvider(t, srv)
	_, err := p.Complete(context.Background(), llm.Request{
		Model: "gemini-3-flash-preview",
		Parts: []llm.Part{
			{InlineData: &llm.Blob{MIMEType: "image/png", Data: "aGVsbG8="}},
			{Text: "Analyze this document in English."},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	contents := gotBody["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	blob := parts[0].(map[string]any)["inlineData"].(map[string]any)
	if blob["mimeType"] != "image/png" || blob["data"] != "aGVsbG8=" {
		t.Errorf("inlineData = %v", blob)
	}
}

func TestComplete_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 429, "message": "quota exceeded"},
		})
	}))
	defer srv.Close()

	p := newProvider(t, srv)
	_, err := p.Complete(context.Background(), llm.Request{Parts: []llm.Part{{Text: "hi"}}})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err = %v, want api error", err)
	}
}

func TestComplete_NoCandidates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	p := newProvider(t, srv)
	if _, err := p.Complete(context.Background(), llm.Request{Parts: []llm.Part{{Text: "hi"}}}); err == nil {
		t.Fatal("Complete succeeded on empty candidates, want error")
	}
}
