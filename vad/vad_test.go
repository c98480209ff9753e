package vad

import (
	"testing"
	"time"
)

func TestDetector_SpeechDetection(t *testing.T) {
	tests := []struct {
		name         string
		samples      []float32
		wantEvent    EventType
		wantInSpeech bool
	}{
		{
			name:         "silence - no speech",
			samples:      makeSilence(1000),
			wantEvent:    EventNone,
			wantInSpeech: false,
		},
		{
			name:         "speech start - loud audio",
			samples:      makeSpeech(1000, 0.05),
			wantEvent:    EventSpeechStart,
			wantInSpeech: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(0.02, 300*time.Millisecond, 5*time.Second, 400*time.Millisecond)

			result := d.Process(tt.samples)

			if result.Event != tt.wantEvent {
				t.Errorf("Event = %v, want %v", result.Event, tt.wantEvent)
			}
			if d.InSpeech() != tt.wantInSpeech {
				t.Errorf("InSpeech() = %v, want %v", d.InSpeech(), tt.wantInSpeech)
			}
		})
	}
}

func TestDetector_SpeechSequence(t *testing.T) {
	d := NewDetector(0.02, 100*time.Millisecond, 5*time.Second, 300*time.Millisecond)

	sequence := []struct {
		name      string
		samples   []float32
		sleep     time.Duration
		wantEvent EventType
	}{
		{
			name:      "1. start with silence",
			samples:   makeSilence(1000),
			wantEvent: EventNone,
		},
		{
			name:      "2. speech starts",
			samples:   makeSpeech(1000, 0.05),
			wantEvent: EventSpeechStart,
		},
		{
			name:      "3. speech continues",
			samples:   makeSpeech(1000, 0.04),
			sleep:     150 * time.Millisecond,
			wantEvent: EventSpeechContinue,
		},
		{
			name:      "4. silence ends the segment",
			samples:   makeSilence(1000),
			sleep:     400 * time.Millisecond,
			wantEvent: EventSpeechEnd,
		},
		{
			name:      "5. more silence is quiet",
			samples:   makeSilence(1000),
			wantEvent: EventNone,
		},
	}

	for _, step := range sequence {
		t.Run(step.name, func(t *testing.T) {
			if step.sleep > 0 {
				time.Sleep(step.sleep)
			}

			result := d.Process(step.samples)
			if result.Event != step.wantEvent {
				t.Errorf("Event = %v, want %v", result.Event, step.wantEvent)
			}
		})
	}
}

func TestDetector_MaxDuration(t *testing.T) {
	d := NewDetector(0.02, 100*time.Millisecond, 500*time.Millisecond, 300*time.Millisecond)

	d.Process(makeSpeech(1000, 0.05))
	time.Sleep(600 * time.Millisecond)
	result := d.Process(makeSpeech(1000, 0.05))

	if result.Event != EventSpeechMaxDuration {
		t.Errorf("Event = %v, want EventSpeechMaxDuration", result.Event)
	}
	if result.Duration < 500*time.Millisecond {
		t.Errorf("Duration = %v, want >= 500ms", result.Duration)
	}
	if !d.InSpeech() {
		t.Error("InSpeech() = false, want true during continuous long speech")
	}
}

func TestDetector_Reset(t *testing.T) {
	d := NewDetector(0.02, 100*time.Millisecond, 5*time.Second, 300*time.Millisecond)

	d.Process(makeSpeech(1000, 0.05))
	if !d.InSpeech() {
		t.Fatal("expected InSpeech() = true before reset")
	}

	d.Reset()
	if d.InSpeech() {
		t.Error("expected InSpeech() = false after reset")
	}

	result := d.Process(makeSpeech(1000, 0.05))
	if result.Event != EventSpeechStart {
		t.Errorf("after reset, Event = %v, want EventSpeechStart", result.Event)
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		want    float32
	}{
		{"empty samples", []float32{}, 0},
		{"all zeros", []float32{0, 0, 0, 0}, 0},
		{"simple positive values", []float32{0.1, 0.1, 0.1, 0.1}, 0.1},
		{"mixed positive/negative", []float32{0.3, -0.3, 0.3, -0.3}, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMS(tt.samples)
			if abs(got-tt.want) > 0.001 {
				t.Errorf("RMS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPeak(t *testing.T) {
	samples := []float32{0.1, -0.6, 0.3, 0}
	if got := Peak(samples); got != 0.6 {
		t.Errorf("Peak() = %v, want 0.6", got)
	}
	if got := Peak(nil); got != 0 {
		t.Errorf("Peak(nil) = %v, want 0", got)
	}
}

func TestTrimSilence(t *testing.T) {
	var samples []float32
	samples = append(samples, makeSilence(400)...)
	samples = append(samples, makeSpeech(800, 0.1)...)
	samples = append(samples, makeSilence(400)...)

	trimmed := TrimSilence(samples, 0.02, 100)

	if len(trimmed) < 800 {
		t.Errorf("trimmed length = %d, want >= 800 (speech kept)", len(trimmed))
	}
	if len(trimmed) > 1000 {
		t.Errorf("trimmed length = %d, want <= 1000 (silence dropped)", len(trimmed))
	}
	if Peak(trimmed[:100]) < 0.05 {
		t.Error("trimmed buffer should start near speech")
	}
}

func TestTrimSilence_AllQuiet(t *testing.T) {
	trimmed := TrimSilence(makeSilence(1000), 0.02, 100)
	if len(trimmed) != 0 {
		t.Errorf("trimmed length = %d, want 0 for pure silence", len(trimmed))
	}
}

// Helper functions for generating test audio

func makeSilence(samples int) []float32 {
	return make([]float32, samples)
}

func makeSpeech(samples int, amplitude float32) []float32 {
	result := make([]float32, samples)
	for i := range result {
		result[i] = amplitude * float32(0.5+0.5*float64(i%2))
	}
	return result
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
