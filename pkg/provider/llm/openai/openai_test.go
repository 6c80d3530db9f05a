package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/legalsathi/sathi/pkg/provider/llm"
	"github.com/legalsathi/sathi/pkg/provider/llm/openai"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := openai.New("", "gpt-4o-mini"); err == nil {
		t.Error("New with empty key succeeded, want error")
	}
	if _, err := openai.New("sk-test", ""); err == nil {
		t.Error("New with empty model succeeded, want error")
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{
				"message": map[string]any{"role": "assistant", "content": "A cheque bounce falls under Section 138."},
			}},
		})
	}))
	defer srv.Close()

	p, err := openai.New("sk-test", "gpt-4o-mini", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.Request{
		Parts: []llm.Part{{Text: "What is a cheque bounce?"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "A cheque bounce falls under Section 138." {
		t.Errorf("Text = %q", resp.Text)
	}

	if got := gotBody["model"]; got != "gpt-4o-mini" {
		t.Errorf("model = %v", got)
	}
	msgs := gotBody["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d entries, want 1", len(msgs))
	}
	if content := msgs[0].(map[string]any)["content"]; content != "What is a cheque bounce?" {
		t.Errorf("content = %v", content)
	}
}

func TestComplete_RejectsInlineData(t *testing.T) {
	t.Parallel()

	p, err := openai.New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Complete(context.Background(), llm.Request{
		Parts: []llm.Part{{InlineData: &llm.Blob{MIMEType: "image/png", Data: "aGVsbG8="}}},
	})
	if !errors.Is(err, llm.ErrUnsupportedContent) {
		t.Fatalf("err = %v, want ErrUnsupportedContent", err)
	}
}
