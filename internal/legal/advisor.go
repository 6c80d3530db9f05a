// Package legal implements the legal-assistance prompt flows: conversational
// advice grounded in Indian law and legal document analysis.
package legal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/legalsathi/sathi/internal/i18n"
	"github.com/legalsathi/sathi/pkg/provider/llm"
)

// SystemInstruction is the persona prompt shared by the chat and voice flows.
const SystemInstruction = `
You are 'Legal Sathi', an expert Indian Legal Assistant AI.
Your goal is to simplify legal concepts for Indian citizens.

Guidelines:
1. Base your answers on Indian Law (IPC, CrPC, BNS, BNSS, Constitution of India, etc.).
2. **IMPORTANT: Reference Previous Similar Cases.** Whenever you explain a legal concept or provide advice, you MUST cite relevant landmark judgments or similar past cases from the Supreme Court of India or High Courts.
3. Be polite, professional, and trustworthy.
4. Summarize complex legal documents in simple Hindi or English as requested.
5. Do not provide binding legal judgment; always add a disclaimer that you are an AI.
`

// notLegalDocMarker is the sentinel the analysis prompt instructs the model to
// return for uploads that are not legal documents.
const notLegalDocMarker = "NOT_LEGAL_DOC"

// ErrNotLegalDocument is returned by AnalyzeDocument when the model reports
// the upload is not a legal document.
var ErrNotLegalDocument = errors.New("legal: not a legal document")

// Message is one prior turn of a chat conversation.
type Message struct {
	FromUser bool
	Text     string
}

// Advisor builds prompts and delegates generation to an llm.Provider,
// typically a resilience.FallbackProvider.
type Advisor struct {
	provider  llm.Provider
	chatModel string
	docModel  string
}

// NewAdvisor creates an Advisor. chatModel and docModel may be empty to use
// the provider's default.
func NewAdvisor(provider llm.Provider, chatModel, docModel string) *Advisor {
	return &Advisor{provider: provider, chatModel: chatModel, docModel: docModel}
}

// Advise answers a legal question, carrying prior conversation history into
// the prompt.
func (a *Advisor) Advise(ctx context.Context, history []Message, question string, lang i18n.Language) (string, error) {
	var b strings.Builder
	b.WriteString(SystemInstruction)
	b.WriteString("\n\nIMPORTANT: ")
	b.WriteString(lang.ChatDirective())
	b.WriteString("\n\n")
	for _, m := range history {
		if m.FromUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Legal Sathi: ")
		}
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(question)
	b.WriteString("\nLegal Sathi:")

	resp, err := a.provider.Complete(ctx, llm.Request{
		Model: a.chatModel,
		Parts: []llm.Part{{Text: b.String()}},
	})
	if err != nil {
		return "", fmt.Errorf("legal: advise: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// VoiceInstruction returns the system instruction for a live voice session in
// the given language.
func VoiceInstruction(lang i18n.Language) string {
	return fmt.Sprintf("%s\n\nIMPORTANT: %s", strings.TrimSpace(SystemInstruction), lang.VoiceDirective())
}

// AnalyzeDocument summarizes an uploaded legal document. data is the raw
// document content base64-encoded. Returns ErrNotLegalDocument when the model
// determines the upload is not a legal document.
func (a *Advisor) AnalyzeDocument(ctx context.Context, data, mimeType string, lang i18n.Language) (string, error) {
	prompt := fmt.Sprintf(
		"Analyze this document in %s.\n"+
			"Identify document type, summarize key points, highlight risks/dates, and cite relevant Indian Law sections.\n"+
			"If it is not a legal document, return %q.",
		lang.Name(), notLegalDocMarker,
	)

	resp, err := a.provider.Complete(ctx, llm.Request{
		Model: a.docModel,
		Parts: []llm.Part{
			{InlineData: &llm.Blob{MIMEType: mimeType, Data: data}},
			{Text: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("legal: analyze document: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if strings.Contains(text, notLegalDocMarker) {
		return "", ErrNotLegalDocument
	}
	return text, nil
}
