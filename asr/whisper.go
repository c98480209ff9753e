package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

const defaultWhisperURL = "https://api.openai.com/v1/audio/transcriptions"

// DecodingParams tune the engine's search and segmentation. Zero values
// are omitted from the request, letting the server apply its defaults.
// OpenAI ignores the non-standard fields; faster-whisper style servers
// honor them.
type DecodingParams struct {
	BeamSize                int
	BestOf                  int
	ConditionOnPreviousText bool
	VADFilter               bool
	MinSilenceDurationMS    int
	MaxSpeechDurationSec    int
}

// WhisperConfig holds configuration for the Whisper HTTP client.
type WhisperConfig struct {
	APIKey  string
	BaseURL string // optional, defaults to OpenAI
	Model   string // optional, defaults to "whisper-1"
	Decode  DecodingParams

	Timeout    time.Duration // per attempt, default 30s
	MaxRetries int           // retry attempts after the first, default 3
	RetryDelay time.Duration // initial backoff, doubles per retry
}

// Whisper transcribes by uploading WAV audio to a Whisper-compatible
// HTTP endpoint.
type Whisper struct {
	cfg  WhisperConfig
	http *http.Client
}

// NewWhisper creates a Whisper client.
func NewWhisper(cfg WhisperConfig) *Whisper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultWhisperURL
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Whisper{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Transcribe uploads the buffer and parses the verbose response.
// Transient failures (network errors, 429, 5xx) are retried with
// exponential backoff up to the configured budget.
func (w *Whisper) Transcribe(ctx context.Context, req Request) (*Result, error) {
	body, contentType, err := w.buildForm(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	delay := w.cfg.RetryDelay
	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying transcription", "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		result, retryable, err := w.attempt(ctx, body, contentType)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, lastErr)
}

func (w *Whisper) attempt(ctx context.Context, body []byte, contentType string) (*Result, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	if w.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	}

	resp, err := w.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp whisperResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, false, fmt.Errorf("parse response: %w", err)
	}

	result := &Result{
		Text:     apiResp.Text,
		Language: apiResp.Language,
		Segments: make([]Segment, len(apiResp.Segments)),
	}
	for i, seg := range apiResp.Segments {
		result.Segments[i] = Segment{
			Text:       seg.Text,
			Start:      time.Duration(seg.Start * float64(time.Second)),
			End:        time.Duration(seg.End * float64(time.Second)),
			Confidence: math.Exp(seg.AvgLogprob),
		}
	}
	return result, false, nil
}

func (w *Whisper) buildForm(req Request) ([]byte, string, error) {
	wavData := float32ToWAV(req.Samples, req.SampleRate)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}

	fields := map[string]string{
		"model":           w.cfg.Model,
		"response_format": "verbose_json",
	}
	// OpenAI does not accept "auto"; empty means auto-detect.
	if req.Language != "" && req.Language != "auto" {
		fields["language"] = req.Language
	}
	if req.Prompt != "" {
		fields["prompt"] = req.Prompt
	}
	d := w.cfg.Decode
	if d.BeamSize > 0 {
		fields["beam_size"] = strconv.Itoa(d.BeamSize)
	}
	if d.BestOf > 0 {
		fields["best_of"] = strconv.Itoa(d.BestOf)
	}
	if d.BeamSize > 0 || d.BestOf > 0 {
		fields["condition_on_previous_text"] = strconv.FormatBool(d.ConditionOnPreviousText)
	}
	if d.VADFilter {
		fields["vad_filter"] = "true"
		if d.MinSilenceDurationMS > 0 {
			fields["min_silence_duration_ms"] = strconv.Itoa(d.MinSilenceDurationMS)
		}
		if d.MaxSpeechDurationSec > 0 {
			fields["max_speech_duration_s"] = strconv.Itoa(d.MaxSpeechDurationSec)
		}
	}

	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// whisperResponse is the verbose_json response shape.
type whisperResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Text       string  `json:"text"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}
