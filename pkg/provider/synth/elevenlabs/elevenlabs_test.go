package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-audio/wav"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/fault"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/synth"
)

// ---- helpers ----------------------------------------------------------------

// pcmChunk builds n little-endian 16-bit samples of the given value.
func pcmChunk(n int, value int16) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(value))
	}
	return buf
}

// newStreamServer serves one stream-input exchange: it validates the BOI and
// text messages, then replies with the given PCM chunks followed by a final
// marker. The last BOI received is stored in *seenBOI.
func newStreamServer(t *testing.T, chunks [][]byte, seenBOI *boiMessage) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/stream-input") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusInternalError, "test done")
		ctx := r.Context()

		// BOI
		_, msg, err := conn.Read(ctx)
		if err != nil {
			t.Errorf("read BOI: %v", err)
			return
		}
		if seenBOI != nil {
			if err := json.Unmarshal(msg, seenBOI); err != nil {
				t.Errorf("decode BOI: %v", err)
				return
			}
		}

		// Text, then flush.
		var text textMessage
		if _, msg, err = conn.Read(ctx); err != nil {
			t.Errorf("read text: %v", err)
			return
		}
		if err := json.Unmarshal(msg, &text); err != nil || text.Text == "" {
			t.Errorf("bad text message %q: %v", msg, err)
			return
		}
		if _, msg, err = conn.Read(ctx); err != nil {
			t.Errorf("read flush: %v", err)
			return
		}
		var flush textMessage
		if err := json.Unmarshal(msg, &flush); err != nil || flush.Text != "" {
			t.Errorf("expected flush, got %q", msg)
			return
		}

		for _, chunk := range chunks {
			resp := audioResponse{Audio: base64.StdEncoding.EncodeToString(chunk)}
			data, _ := json.Marshal(resp)
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				t.Errorf("write audio: %v", err)
				return
			}
		}
		final, _ := json.Marshal(audioResponse{IsFinal: true})
		if err := conn.Write(ctx, websocket.MessageText, final); err != nil {
			t.Errorf("write final: %v", err)
			return
		}
		conn.Close(websocket.StatusNormalClosure, "done")
	}))
	t.Cleanup(srv.Close)
	return srv
}

// wsURL converts an httptest server URL to a ws:// endpoint.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// ---- construction -----------------------------------------------------------

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

func TestNew_RejectsNonPCMOutputFormat(t *testing.T) {
	_, err := New("key", WithOutputFormat("mp3_44100_128"))
	if err == nil {
		t.Fatal("expected error for mp3 output format, got nil")
	}
	if !strings.Contains(err.Error(), "mp3_44100_128") {
		t.Errorf("error %q does not name the format", err)
	}
}

func TestPCMSampleRate(t *testing.T) {
	rate, err := pcmSampleRate("pcm_24000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 24000 {
		t.Errorf("rate = %d, want 24000", rate)
	}
	if _, err := pcmSampleRate("ulaw_8000"); err == nil {
		t.Error("expected error for ulaw format")
	}
}

// ---- synthesis --------------------------------------------------------------

func TestSynthesize_WritesClip(t *testing.T) {
	chunks := [][]byte{pcmChunk(8000, 1000), pcmChunk(8000, -1000)}
	var boi boiMessage
	srv := newStreamServer(t, chunks, &boi)

	dir := t.TempDir()
	c, err := New("xi-secret",
		WithEndpoint(wsURL(srv)),
		WithOutputDir(dir),
		WithDefaultVoice("chloe-v2"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip, err := c.Synthesize(context.Background(), synth.Request{
		Text:     "Bonjour tout le monde",
		Language: "fr-FR",
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if boi.XiAPIKey != "xi-secret" {
		t.Errorf("BOI api key = %q, want %q", boi.XiAPIKey, "xi-secret")
	}
	if boi.OutputFormat != "pcm_16000" {
		t.Errorf("BOI output format = %q, want pcm_16000", boi.OutputFormat)
	}

	if filepath.Dir(clip.Ref) != dir {
		t.Errorf("clip stored in %q, want %q", filepath.Dir(clip.Ref), dir)
	}
	if clip.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", clip.SampleRate)
	}
	// 16 000 samples at 16 kHz is exactly one second.
	if clip.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", clip.Duration)
	}

	f, err := os.Open(clip.Ref)
	if err != nil {
		t.Fatalf("open clip: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode clip: %v", err)
	}
	if buf.Format.SampleRate != 16000 || buf.Format.NumChannels != 1 {
		t.Errorf("clip format = %+v, want 16000 Hz mono", buf.Format)
	}
	if len(buf.Data) != 16000 {
		t.Errorf("clip has %d samples, want 16000", len(buf.Data))
	}
	if buf.Data[0] != 1000 {
		t.Errorf("first sample = %d, want 1000", buf.Data[0])
	}
}

func TestSynthesize_RequestVoiceOverridesDefault(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		for i := 0; i < 3; i++ {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
		data, _ := json.Marshal(audioResponse{
			Audio:   base64.StdEncoding.EncodeToString(pcmChunk(160, 1)),
			IsFinal: true,
		})
		_ = conn.Write(ctx, websocket.MessageText, data)
		conn.Close(websocket.StatusNormalClosure, "done")
	}))
	t.Cleanup(srv.Close)

	c, err := New("key", WithEndpoint(wsURL(srv)), WithOutputDir(t.TempDir()), WithDefaultVoice("chloe-v2"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Synthesize(context.Background(), synth.Request{Text: "salut", Voice: "narrator"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.Contains(gotPath, "/text-to-speech/narrator/") {
		t.Errorf("dialed path %q, want voice narrator", gotPath)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	c, err := New("key", WithDefaultVoice("chloe-v2"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Synthesize(context.Background(), synth.Request{})
	if fault.KindOf(err) != fault.InvalidInput {
		t.Errorf("kind = %v, want InvalidInput (err: %v)", fault.KindOf(err), err)
	}
}

func TestSynthesize_NoVoiceAnywhere(t *testing.T) {
	c, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Synthesize(context.Background(), synth.Request{Text: "salut"})
	if fault.KindOf(err) != fault.InvalidInput {
		t.Errorf("kind = %v, want InvalidInput (err: %v)", fault.KindOf(err), err)
	}
}

func TestSynthesize_UnknownVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	c, err := New("key", WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Synthesize(context.Background(), synth.Request{Text: "salut", Voice: "ghost"})
	if fault.KindOf(err) != fault.VoiceUnavailable {
		t.Errorf("kind = %v, want VoiceUnavailable (err: %v)", fault.KindOf(err), err)
	}
}

func TestSynthesize_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c, err := New("key", WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Synthesize(context.Background(), synth.Request{Text: "salut", Voice: "chloe-v2"})
	if fault.KindOf(err) != fault.Unauthorized {
		t.Errorf("kind = %v, want Unauthorized (err: %v)", fault.KindOf(err), err)
	}
	if fault.Transient(err) {
		t.Error("unauthorized must not be transient")
	}
}

func TestSynthesize_Cancelled(t *testing.T) {
	srv := newStreamServer(t, nil, nil)
	c, err := New("key", WithEndpoint(wsURL(srv)), WithDefaultVoice("chloe-v2"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Synthesize(ctx, synth.Request{Text: "salut"})
	if !fault.IsCancelled(err) {
		t.Errorf("expected cancelled, got %v (kind %v)", err, fault.KindOf(err))
	}
}

// ---- voices -----------------------------------------------------------------

func TestListVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			http.Error(w, "bad key", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"voices":[
			{"voice_id":"chloe-v2","name":"Chloe","category":"premade","labels":{"accent":"french"}},
			{"voice_id":"narrator","name":"Narrator","category":"cloned"}
		]}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.voicesURL = srv.URL

	voices, err := c.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	if voices[0].ID != "chloe-v2" || voices[0].Labels["accent"] != "french" {
		t.Errorf("unexpected first voice: %+v", voices[0])
	}
	if voices[1].Category != "cloned" {
		t.Errorf("second voice category = %q, want cloned", voices[1].Category)
	}
}

func TestListVoices_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c, err := New("wrong")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.voicesURL = srv.URL

	_, err = c.ListVoices(context.Background())
	if fault.KindOf(err) != fault.Unauthorized {
		t.Errorf("kind = %v, want Unauthorized (err: %v)", fault.KindOf(err), err)
	}
}
