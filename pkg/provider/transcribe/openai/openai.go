// Package openai provides an OpenAI-backed transcription client using the
// hosted audio transcription API (whisper-1 and the gpt-4o transcribe
// family).
package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/fault"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "whisper-1"

// Compile-time assertion that Client implements transcribe.Client.
var _ transcribe.Client = (*Client)(nil)

type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for configuring a Client.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Useful for
// OpenAI-compatible gateways.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Client implements transcribe.Client backed by the OpenAI audio API.
type Client struct {
	client oai.Client
	model  string
}

// New constructs an OpenAI transcription client. If model is empty,
// DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai transcribe: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Client{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Transcribe implements transcribe.Client.
func (c *Client) Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error) {
	const op = "openai: transcribe"

	if len(req.Samples) == 0 {
		return transcribe.Result{}, fault.New(fault.InvalidInput, op, fmt.Errorf("empty audio"))
	}
	if req.SampleRate <= 0 {
		return transcribe.Result{}, fault.New(fault.InvalidInput, op, fmt.Errorf("sample rate %d", req.SampleRate))
	}
	channels := req.Channels
	if channels <= 0 {
		channels = 1
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(encodeWAV(req.Samples, req.SampleRate, channels)), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(c.model),
	}
	if lang := shortLanguage(req.Language); lang != "" {
		params.Language = param.NewOpt(lang)
	}

	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return transcribe.Result{}, classify(ctx, op, err)
	}
	return transcribe.Result{Text: strings.TrimSpace(resp.Text)}, nil
}

// classify maps an openai-go error onto the fault taxonomy.
func classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fault.New(fault.Cancelled, op, err)
	}
	var apierr *oai.Error
	if errors.As(err, &apierr) {
		return fault.FromStatus(op, apierr.StatusCode, err)
	}
	return fault.New(fault.Network, op, err)
}

// shortLanguage reduces a BCP-47 tag to the ISO-639-1 code the API expects
// ("en-US" becomes "en").
func shortLanguage(tag string) string {
	if i := strings.IndexByte(tag, '-'); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// encodeWAV wraps signed 16-bit little-endian PCM samples in a RIFF/WAV
// container for upload.
func encodeWAV(samples []int16, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(samples) * 2

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:46+i*2], uint16(s))
	}
	return buf
}
