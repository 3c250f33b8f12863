// Package whisper provides a whisper.cpp-backed transcription client.
//
// It talks to a running whisper-server binary, which exposes a batch REST API
// at POST /inference. Each utterance is wrapped in a RIFF/WAV container and
// uploaded as multipart/form-data; the server answers with the transcribed
// text as JSON.
//
// Usage:
//
//	c, err := whisper.New("http://localhost:8080",
//	    whisper.WithModel("base.en"),
//	)
//	res, err := c.Transcribe(ctx, transcribe.Request{...})
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/fault"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe"
)

// bitsPerSample is fixed at 16 for the signed little-endian PCM audio that
// whisper.cpp expects.
const bitsPerSample = 16

const defaultTimeout = 2 * time.Minute

// Compile-time assertion that Client implements transcribe.Client.
var _ transcribe.Client = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets a per-request timeout on the default HTTP client. Ignored
// when WithHTTPClient is also given. Defaults to 2 minutes — whisper.cpp can
// be slow on long utterances with large models.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// Client implements transcribe.Client backed by a whisper.cpp HTTP server.
// It is safe for concurrent use.
type Client struct {
	serverURL  string
	model      string
	httpClient *http.Client
}

// New constructs a whisper.cpp client for the server at serverURL
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("whisper: serverURL must not be empty")
	}
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Transcribe implements transcribe.Client. The utterance is encoded as WAV
// and submitted as one batch inference request.
func (c *Client) Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error) {
	const op = "whisper: transcribe"

	if len(req.Samples) == 0 {
		return transcribe.Result{}, fault.New(fault.InvalidInput, op, fmt.Errorf("empty audio"))
	}
	sampleRate := req.SampleRate
	if sampleRate <= 0 {
		return transcribe.Result{}, fault.New(fault.InvalidInput, op, fmt.Errorf("sample rate %d", sampleRate))
	}
	channels := req.Channels
	if channels <= 0 {
		channels = 1
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(encodeWAV(req.Samples, sampleRate, channels)); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	if lang := shortLanguage(req.Language); lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return transcribe.Result{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if c.model != "" {
		if err := mw.WriteField("model", c.model); err != nil {
			return transcribe.Result{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/inference", &body)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return transcribe.Result{}, fault.New(fault.Cancelled, op, err)
		}
		return transcribe.Result{}, fault.New(fault.Network, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transcribe.Result{}, fault.New(fault.Network, op, fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return transcribe.Result{}, fault.FromStatus(op, resp.StatusCode,
			fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return transcribe.Result{}, fault.New(fault.ServerError, op, fmt.Errorf("parse JSON response: %w", err))
	}

	return transcribe.Result{Text: strings.TrimSpace(result.Text)}, nil
}

// shortLanguage reduces a BCP-47 tag to the primary subtag whisper.cpp
// understands ("en-US" becomes "en").
func shortLanguage(tag string) string {
	if i := strings.IndexByte(tag, '-'); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// encodeWAV wraps signed 16-bit little-endian PCM samples in a standard
// RIFF/WAV container suitable for direct inclusion in a multipart upload.
func encodeWAV(samples []int16, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(samples) * 2

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)      // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:46+i*2], uint16(s))
	}

	return buf
}
