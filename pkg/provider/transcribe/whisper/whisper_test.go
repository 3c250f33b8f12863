package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/fault"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe/whisper"
)

// ---- helpers ----------------------------------------------------------------

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText. The last received request form is kept
// for inspection via the returned pointer.
func newMockServer(t *testing.T, responseText string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	seen := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		seen.language = r.FormValue("language")
		seen.model = r.FormValue("model")
		if f, _, err := r.FormFile("file"); err == nil {
			seen.wav, _ = io.ReadAll(f)
			f.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

type capturedRequest struct {
	language string
	model    string
	wav      []byte
}

func speechRequest() transcribe.Request {
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i % 500)
	}
	return transcribe.Request{
		Samples:    samples,
		SampleRate: 16000,
		Channels:   1,
		Language:   "en-US",
	}
}

// ---- construction -----------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_ReturnsServerText(t *testing.T) {
	t.Parallel()
	srv, seen := newMockServer(t, "  hello world\n")

	c, err := whisper.New(srv.URL, whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := c.Transcribe(context.Background(), speechRequest())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("Text = %q, want %q", res.Text, "hello world")
	}
	if seen.language != "en" {
		t.Errorf("language field = %q, want %q", seen.language, "en")
	}
	if seen.model != "base.en" {
		t.Errorf("model field = %q, want %q", seen.model, "base.en")
	}
}

func TestTranscribe_UploadsValidWAV(t *testing.T) {
	t.Parallel()
	srv, seen := newMockServer(t, "ok")

	c, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := speechRequest()
	if _, err := c.Transcribe(context.Background(), req); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if len(seen.wav) != 44+len(req.Samples)*2 {
		t.Fatalf("wav length = %d, want %d", len(seen.wav), 44+len(req.Samples)*2)
	}
	if string(seen.wav[0:4]) != "RIFF" || string(seen.wav[8:12]) != "WAVE" {
		t.Errorf("missing RIFF/WAVE magic: %q %q", seen.wav[0:4], seen.wav[8:12])
	}
	if rate := binary.LittleEndian.Uint32(seen.wav[24:28]); rate != 16000 {
		t.Errorf("sample rate in header = %d, want 16000", rate)
	}
	// First sample survives the round trip.
	if got := int16(binary.LittleEndian.Uint16(seen.wav[44:46])); got != req.Samples[0] {
		t.Errorf("first sample = %d, want %d", got, req.Samples[0])
	}
}

func TestTranscribe_EmptyAudio_InvalidInput(t *testing.T) {
	t.Parallel()
	c, err := whisper.New("http://localhost:9")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Transcribe(context.Background(), transcribe.Request{SampleRate: 16000})
	if fault.KindOf(err) != fault.InvalidInput {
		t.Errorf("kind = %v, want InvalidInput (err: %v)", fault.KindOf(err), err)
	}
}

func TestTranscribe_ServerError_IsTransient(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model busy", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Transcribe(context.Background(), speechRequest())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if fault.KindOf(err) != fault.ServerError {
		t.Errorf("kind = %v, want ServerError", fault.KindOf(err))
	}
	if !fault.Transient(err) {
		t.Error("expected a transient error")
	}
	if !strings.Contains(err.Error(), "HTTP 500") {
		t.Errorf("error %q does not mention HTTP 500", err)
	}
}

func TestTranscribe_Unauthorized_IsPermanent(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Transcribe(context.Background(), speechRequest())
	if fault.KindOf(err) != fault.Unauthorized {
		t.Errorf("kind = %v, want Unauthorized (err: %v)", fault.KindOf(err), err)
	}
	if fault.Transient(err) {
		t.Error("unauthorized must not be transient")
	}
}

func TestTranscribe_ConnectionRefused_IsNetwork(t *testing.T) {
	t.Parallel()
	// Reserve a port, then close it so nothing is listening.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := whisper.New(url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Transcribe(context.Background(), speechRequest())
	if fault.KindOf(err) != fault.Network {
		t.Errorf("kind = %v, want Network (err: %v)", fault.KindOf(err), err)
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()
	srv, _ := newMockServer(t, "never")
	c, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Transcribe(ctx, speechRequest())
	if !fault.IsCancelled(err) {
		t.Errorf("expected cancelled, got %v (kind %v)", err, fault.KindOf(err))
	}
}
