package openai

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/fault"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe"
)

// TestNew_EmptyAPIKey checks that a missing API key is rejected.
func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("", "whisper-1")
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

// TestShortLanguage verifies BCP-47 tags are reduced to ISO-639-1 codes.
func TestShortLanguage(t *testing.T) {
	cases := map[string]string{
		"en-US": "en",
		"fr-FR": "fr",
		"de":    "de",
		"":      "",
	}
	for in, want := range cases {
		if got := shortLanguage(in); got != want {
			t.Errorf("shortLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestEncodeWAV_Header checks the RIFF container fields.
func TestEncodeWAV_Header(t *testing.T) {
	samples := []int16{100, -100, 32767, -32768}
	wav := encodeWAV(samples, 16000, 1)

	if len(wav) != 44+len(samples)*2 {
		t.Fatalf("length = %d, want %d", len(wav), 44+len(samples)*2)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE magic")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Errorf("channels = %d, want 1", ch)
	}
	for i, s := range samples {
		got := int16(binary.LittleEndian.Uint16(wav[44+i*2 : 46+i*2]))
		if got != s {
			t.Errorf("sample %d = %d, want %d", i, got, s)
		}
	}
}

// TestTranscribe_EmptyAudio checks input validation.
func TestTranscribe_EmptyAudio(t *testing.T) {
	c, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = c.Transcribe(context.Background(), transcribe.Request{SampleRate: 16000})
	if fault.KindOf(err) != fault.InvalidInput {
		t.Errorf("kind = %v, want InvalidInput (err: %v)", fault.KindOf(err), err)
	}
}

// TestTranscribe_ReturnsText runs a request against a mock endpoint.
func TestTranscribe_ReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if lang := r.FormValue("language"); lang != "en" {
			http.Error(w, "unexpected language "+lang, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello world"}`))
	}))
	defer srv.Close()

	c, err := New("sk-test", "whisper-1", WithBaseURL(srv.URL), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := c.Transcribe(context.Background(), transcribe.Request{
		Samples:    make([]int16, 1600),
		SampleRate: 16000,
		Channels:   1,
		Language:   "en-US",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("Text = %q, want %q", res.Text, "hello world")
	}
}

// TestTranscribe_RateLimited checks fault classification for HTTP 429.
func TestTranscribe_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"slow down"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := New("sk-test", "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = c.Transcribe(context.Background(), transcribe.Request{
		Samples:    make([]int16, 160),
		SampleRate: 16000,
	})
	if fault.KindOf(err) != fault.RateLimited {
		t.Errorf("kind = %v, want RateLimited (err: %v)", fault.KindOf(err), err)
	}
}
