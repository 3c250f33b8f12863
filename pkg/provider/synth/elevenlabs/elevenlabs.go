// Package elevenlabs provides an ElevenLabs-backed synthesis client using
// the streaming WebSocket API.
//
// Each Synthesize call opens one stream-input WebSocket, sends the full
// utterance text, flushes, and collects the base64 PCM frames the server
// returns. The collected audio is written to a WAV file under the configured
// output directory and the file path is returned as the clip reference.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/fault"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/synth"
)

const (
	defaultEndpoint  = "wss://api.elevenlabs.io"
	voicesEndpoint   = "https://api.elevenlabs.io/v1/voices"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

// Compile-time assertion that Client implements synth.Client.
var _ synth.Client = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithOutputFormat sets the audio output format. Only the raw PCM formats
// ("pcm_16000", "pcm_22050", "pcm_24000", "pcm_44100") are supported, since
// the client re-containers the audio as WAV.
func WithOutputFormat(format string) Option {
	return func(c *Client) {
		c.outputFormat = format
	}
}

// WithOutputDir sets the directory clips are written to. Defaults to the
// system temp directory.
func WithOutputDir(dir string) Option {
	return func(c *Client) {
		c.outputDir = dir
	}
}

// WithDefaultVoice sets the voice used when a request does not name one.
func WithDefaultVoice(voiceID string) Option {
	return func(c *Client) {
		c.defaultVoice = voiceID
	}
}

// WithEndpoint overrides the WebSocket endpoint. Intended for tests and
// self-hosted gateways; the scheme may be ws:// or wss://.
func WithEndpoint(url string) Option {
	return func(c *Client) {
		c.endpoint = strings.TrimRight(url, "/")
	}
}

// Client implements synth.Client backed by the ElevenLabs streaming API.
// It is safe for concurrent use; each call opens its own connection.
type Client struct {
	apiKey       string
	model        string
	outputFormat string
	outputDir    string
	defaultVoice string
	endpoint     string
	voicesURL    string
	httpClient   *http.Client
}

// New creates a new ElevenLabs client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	c := &Client{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		outputDir:    os.TempDir(),
		endpoint:     defaultEndpoint,
		voicesURL:    voicesEndpoint,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	if _, err := pcmSampleRate(c.outputFormat); err != nil {
		return nil, err
	}
	return c, nil
}

// ---- WebSocket message types ----

// boiMessage is the initial "begin of input" handshake payload.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// textMessage is the payload sent for each text fragment. An empty Text
// flushes the stream.
type textMessage struct {
	Text string `json:"text"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is a message received over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// Synthesize implements synth.Client. The spoken audio is stored as a WAV
// file named after a fresh UUID in the configured output directory.
func (c *Client) Synthesize(ctx context.Context, req synth.Request) (synth.Clip, error) {
	const op = "elevenlabs: synthesize"

	if req.Text == "" {
		return synth.Clip{}, fault.New(fault.InvalidInput, op, errors.New("empty text"))
	}
	voice := req.Voice
	if voice == "" {
		voice = c.defaultVoice
	}
	if voice == "" {
		return synth.Clip{}, fault.New(fault.InvalidInput, op, errors.New("no voice requested and no default configured"))
	}
	sampleRate, err := pcmSampleRate(c.outputFormat)
	if err != nil {
		return synth.Clip{}, fault.New(fault.InvalidInput, op, err)
	}

	pcm, err := c.stream(ctx, op, voice, req.Text)
	if err != nil {
		return synth.Clip{}, err
	}
	if len(pcm) == 0 {
		return synth.Clip{}, fault.New(fault.ServerError, op, errors.New("no audio received"))
	}

	path := filepath.Join(c.outputDir, uuid.NewString()+".wav")
	if err := writeWAV(path, pcm, sampleRate); err != nil {
		return synth.Clip{}, fmt.Errorf("elevenlabs: store clip: %w", err)
	}

	samples := len(pcm) / 2
	return synth.Clip{
		Ref:        path,
		Duration:   time.Duration(samples) * time.Second / time.Duration(sampleRate),
		SampleRate: sampleRate,
	}, nil
}

// stream runs one stream-input exchange and returns the concatenated raw PCM.
func (c *Client) stream(ctx context.Context, op, voice, text string) ([]byte, error) {
	wsURL := fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?model_id=%s", c.endpoint, voice, c.model)
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: c.httpClient})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.New(fault.Cancelled, op, err)
		}
		if resp != nil {
			return nil, fault.FromStatus(op, resp.StatusCode, err)
		}
		return nil, fault.New(fault.Network, op, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	boi := boiMessage{
		Text: " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
		XiAPIKey:     c.apiKey,
		OutputFormat: c.outputFormat,
	}
	if err := writeJSON(ctx, conn, boi); err != nil {
		return nil, c.wsError(ctx, op, "send BOI", err)
	}
	if err := writeJSON(ctx, conn, textMessage{Text: text + " "}); err != nil {
		return nil, c.wsError(ctx, op, "send text", err)
	}
	// Empty text flushes the stream; the server then closes the connection
	// once all audio has been delivered.
	if err := writeJSON(ctx, conn, textMessage{}); err != nil {
		return nil, c.wsError(ctx, op, "flush", err)
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return pcm, nil
			}
			if ctx.Err() != nil {
				return nil, fault.New(fault.Cancelled, op, err)
			}
			// The server closes the socket without a close frame after the
			// final message on some plans; treat EOF after audio as success.
			if len(pcm) > 0 {
				return pcm, nil
			}
			return nil, fault.New(fault.Network, op, err)
		}
		var ar audioResponse
		if err := json.Unmarshal(msg, &ar); err != nil {
			continue
		}
		if ar.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(ar.Audio)
			if err != nil {
				continue
			}
			pcm = append(pcm, chunk...)
		}
		if ar.IsFinal {
			return pcm, nil
		}
	}
}

// wsError classifies a mid-handshake write failure.
func (c *Client) wsError(ctx context.Context, op, step string, err error) error {
	if ctx.Err() != nil {
		return fault.New(fault.Cancelled, op, err)
	}
	return fault.New(fault.Network, op, fmt.Errorf("%s: %w", step, err))
}

// writeJSON marshals v and writes it as one text frame.
func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// ---- ListVoices ----

// Voice is one voice entry from the ElevenLabs API.
type Voice struct {
	ID       string
	Name     string
	Category string
	Labels   map[string]string
}

// ListVoices returns all voices available for the configured API key.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	const op = "elevenlabs: list voices"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.voicesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.New(fault.Cancelled, op, err)
		}
		return nil, fault.New(fault.Network, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.FromStatus(op, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var vr struct {
		Voices []struct {
			VoiceID  string            `json:"voice_id"`
			Name     string            `json:"name"`
			Category string            `json:"category"`
			Labels   map[string]string `json:"labels"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fault.New(fault.ServerError, op, fmt.Errorf("decode: %w", err))
	}

	voices := make([]Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		voices = append(voices, Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Category: v.Category,
			Labels:   v.Labels,
		})
	}
	return voices, nil
}

// ---- helpers ----

// pcmSampleRate extracts the sample rate from a raw PCM format name such as
// "pcm_16000".
func pcmSampleRate(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q (only pcm_* formats can be stored as WAV)", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q", format)
	}
	return rate, nil
}

// writeWAV stores raw 16-bit little-endian mono PCM as a WAV file.
func writeWAV(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	data := make([]int, len(pcm)/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
