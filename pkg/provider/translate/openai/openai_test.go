package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/fault"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/translate"
)

// TestNew_EmptyAPIKey checks that a missing API key is rejected.
func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

// TestNew_DefaultModel checks that an empty model falls back to DefaultModel.
func TestNew_DefaultModel(t *testing.T) {
	c, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.model != DefaultModel {
		t.Errorf("model = %q, want %q", c.model, DefaultModel)
	}
}

// TestSystemPrompt_WithSource checks that both language tags appear.
func TestSystemPrompt_WithSource(t *testing.T) {
	p := systemPrompt("en-US", "fr-FR")
	if !strings.Contains(p, "en-US") || !strings.Contains(p, "fr-FR") {
		t.Errorf("prompt missing language tags: %q", p)
	}
	if !strings.Contains(p, "Output only the translation") {
		t.Errorf("prompt missing output constraint: %q", p)
	}
}

// TestSystemPrompt_AutoDetect checks the prompt when no source tag is known.
func TestSystemPrompt_AutoDetect(t *testing.T) {
	p := systemPrompt("", "de-DE")
	if strings.Contains(p, "from") {
		t.Errorf("auto-detect prompt should not name a source language: %q", p)
	}
	if !strings.Contains(p, "de-DE") {
		t.Errorf("prompt missing target tag: %q", p)
	}
}

// TestStreamTranslation_EmptyText checks input validation.
func TestStreamTranslation_EmptyText(t *testing.T) {
	c, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = c.StreamTranslation(context.Background(), translate.Request{TargetLanguage: "fr-FR"})
	if fault.KindOf(err) != fault.InvalidInput {
		t.Errorf("kind = %v, want InvalidInput (err: %v)", fault.KindOf(err), err)
	}
}

// TestStreamTranslation_MissingTarget checks input validation.
func TestStreamTranslation_MissingTarget(t *testing.T) {
	c, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = c.StreamTranslation(context.Background(), translate.Request{Text: "hello"})
	if fault.KindOf(err) != fault.InvalidInput {
		t.Errorf("kind = %v, want InvalidInput (err: %v)", fault.KindOf(err), err)
	}
}

// TestStreamTranslation_DeliversTokens runs a full stream against a mock SSE
// endpoint.
func TestStreamTranslation_DeliversTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, text := range []string{"Bon", "jour", " le monde"} {
			fmt.Fprintf(w, "data: {\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", text)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tokens, err := c.StreamTranslation(ctx, translate.Request{
		Text:           "hello world",
		SourceLanguage: "en-US",
		TargetLanguage: "fr-FR",
	})
	if err != nil {
		t.Fatalf("StreamTranslation: %v", err)
	}

	var got strings.Builder
	for tok := range tokens {
		if tok.Err != nil {
			t.Fatalf("unexpected stream error: %v", tok.Err)
		}
		got.WriteString(tok.Text)
	}
	if got.String() != "Bonjour le monde" {
		t.Errorf("translation = %q, want %q", got.String(), "Bonjour le monde")
	}
}

// TestStreamTranslation_ServerErrorToken checks that a failed request
// surfaces as a final error token rather than a panic or silent close.
func TestStreamTranslation_ServerErrorToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New("sk-test", "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tokens, err := c.StreamTranslation(ctx, translate.Request{Text: "hi", TargetLanguage: "fr-FR"})
	if err != nil {
		t.Fatalf("StreamTranslation: %v", err)
	}

	var last translate.Token
	for tok := range tokens {
		last = tok
	}
	if last.Err == nil {
		t.Fatal("expected a final error token")
	}
	if !fault.Transient(last.Err) {
		t.Errorf("expected transient error, got kind %v", fault.KindOf(last.Err))
	}
}
