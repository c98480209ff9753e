// Package vad provides RMS-based voice activity detection over mono
// float32 audio.
package vad

import (
	"math"
	"time"
)

// Detector detects speech in a stream of audio frames.
type Detector struct {
	threshold float32

	minSpeechDur time.Duration
	maxSpeechDur time.Duration
	silenceDur   time.Duration

	inSpeech    bool
	speechStart time.Time
	lastSpeech  time.Time
}

// NewDetector creates a detector. Frames whose RMS exceeds threshold
// count as speech; a segment ends after silenceDur without speech, or is
// force-ended when it exceeds maxSpeech. Segments shorter than minSpeech
// never end with EventSpeechEnd.
func NewDetector(threshold float32, minSpeech, maxSpeech, silence time.Duration) *Detector {
	return &Detector{
		threshold:    threshold,
		minSpeechDur: minSpeech,
		maxSpeechDur: maxSpeech,
		silenceDur:   silence,
	}
}

// EventType classifies what a processed frame meant for the segment.
type EventType int

const (
	EventNone EventType = iota
	EventSpeechStart
	EventSpeechContinue
	EventSpeechEnd
	EventSpeechMaxDuration
)

// Result is the outcome of processing one frame.
type Result struct {
	Event EventType
	// RMS of the processed frame, usable as a live level meter.
	RMS float32
	// Duration is populated for EventSpeechEnd and EventSpeechMaxDuration.
	Duration time.Duration
}

// Process consumes one frame of samples and advances the segment state.
func (d *Detector) Process(samples []float32) Result {
	now := time.Now()
	rms := RMS(samples)
	isSpeech := rms > d.threshold

	result := Result{Event: EventNone, RMS: rms}

	if isSpeech {
		if !d.inSpeech {
			d.inSpeech = true
			d.speechStart = now
			result.Event = EventSpeechStart
		} else {
			result.Event = EventSpeechContinue
		}
		d.lastSpeech = now
	}

	if !d.inSpeech {
		return result
	}

	speechDuration := now.Sub(d.speechStart)
	silenceDuration := now.Sub(d.lastSpeech)

	if silenceDuration > d.silenceDur && speechDuration > d.minSpeechDur {
		d.inSpeech = false
		result.Event = EventSpeechEnd
		result.Duration = speechDuration
	} else if speechDuration > d.maxSpeechDur {
		// inSpeech stays true so continuous long speech keeps segmenting.
		d.speechStart = now
		result.Event = EventSpeechMaxDuration
		result.Duration = speechDuration
	}

	return result
}

// Reset clears segment state.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.speechStart = time.Time{}
	d.lastSpeech = time.Time{}
}

// InSpeech reports whether a segment is currently open.
func (d *Detector) InSpeech() bool {
	return d.inSpeech
}

// RMS calculates the root mean square of audio samples.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

// Peak returns the maximum absolute amplitude in samples.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// TrimSilence removes leading and trailing stretches whose per-window
// RMS stays at or below threshold. window is in samples; the cut is
// window-aligned so speech onsets keep a little head room.
func TrimSilence(samples []float32, threshold float32, window int) []float32 {
	if window <= 0 || len(samples) == 0 {
		return samples
	}

	start := 0
	for start < len(samples) {
		end := start + window
		if end > len(samples) {
			end = len(samples)
		}
		if RMS(samples[start:end]) > threshold {
			break
		}
		start = end
	}

	stop := len(samples)
	for stop > start {
		begin := stop - window
		if begin < start {
			begin = start
		}
		if RMS(samples[begin:stop]) > threshold {
			break
		}
		stop = begin
	}

	return samples[start:stop]
}
