package asr

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testRequest() Request {
	return Request{
		Samples:    make([]float32, 16000),
		SampleRate: 16000,
		Language:   "en",
	}
}

func TestWhisper_Transcribe(t *testing.T) {
	var gotLanguage, gotModel, gotBeamSize string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotLanguage = r.FormValue("language")
		gotModel = r.FormValue("model")
		gotBeamSize = r.FormValue("beam_size")

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			header := make([]byte, 4)
			file.Read(header)
			if string(header) != "RIFF" {
				t.Errorf("uploaded file header = %q, want RIFF", header)
			}
			file.Close()
		}

		json.NewEncoder(w).Encode(map[string]any{
			"text":     "hello world",
			"language": "english",
			"segments": []map[string]any{
				{"text": "hello world", "start": 0.0, "end": 1.2, "avg_logprob": -0.1},
			},
		})
	}))
	defer srv.Close()

	client := NewWhisper(WhisperConfig{
		BaseURL: srv.URL,
		APIKey:  "k",
		Decode:  DecodingParams{BeamSize: 5, BestOf: 5, ConditionOnPreviousText: true},
	})

	result, err := client.Transcribe(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("Text = %q, want %q", result.Text, "hello world")
	}
	if gotLanguage != "en" || gotModel != "whisper-1" || gotBeamSize != "5" {
		t.Errorf("form fields = %q/%q/%q", gotLanguage, gotModel, gotBeamSize)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("Segments = %d, want 1", len(result.Segments))
	}
	if result.Segments[0].End != 1200*time.Millisecond {
		t.Errorf("Segment End = %v, want 1.2s", result.Segments[0].End)
	}
	if c := result.Segments[0].Confidence; c < 0.85 || c > 0.95 {
		t.Errorf("Confidence = %v, want ~0.90", c)
	}
}

func TestWhisper_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"text": "finally"})
	}))
	defer srv.Close()

	client := NewWhisper(WhisperConfig{
		BaseURL:    srv.URL,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
	})

	result, err := client.Transcribe(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if result.Text != "finally" {
		t.Errorf("Text = %q, want %q", result.Text, "finally")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestWhisper_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewWhisper(WhisperConfig{
		BaseURL:    srv.URL,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
	})

	_, err := client.Transcribe(context.Background(), testRequest())
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("error = %v, want ErrTranscriptionFailed", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 400)", calls.Load())
	}
}

func TestWhisper_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	client := NewWhisper(WhisperConfig{BaseURL: srv.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Transcribe(ctx, testRequest())
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("error = %v, want ErrTranscriptionFailed", err)
	}
}

func TestFloat32ToWAV(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 2.0}
	data := float32ToWAV(samples, 16000)

	if len(data) != 44+len(samples)*2 {
		t.Fatalf("len = %d, want %d", len(data), 44+len(samples)*2)
	}
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE header")
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}

	// Out-of-range samples must be clamped, not wrapped.
	last := int16(binary.LittleEndian.Uint16(data[len(data)-2:]))
	if last != 32767 {
		t.Errorf("clamped sample = %d, want 32767", last)
	}
}
