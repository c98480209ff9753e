package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Archive persists finalized sessions for later review: the transcript
// always, the audio when keepAudio is set.
type Archive struct {
	dir       string
	keepAudio bool
}

// NewArchive creates an archive rooted at dir.
func NewArchive(dir string, keepAudio bool) (*Archive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Archive{dir: dir, keepAudio: keepAudio}, nil
}

type archiveRecord struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Duration  float64   `json:"duration_sec"`
	CreatedAt time.Time `json:"created_at"`
}

// Save writes the session artifacts, named by timestamp and session id.
func (a *Archive) Save(id string, samples []float32, sampleRate int, text string) error {
	stamp := time.Now().Format("20060102-150405")
	base := filepath.Join(a.dir, fmt.Sprintf("%s-%s", stamp, id[:8]))

	record := archiveRecord{
		ID:        id,
		Text:      text,
		Duration:  float64(len(samples)) / float64(sampleRate),
		CreatedAt: time.Now(),
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := os.WriteFile(base+".json", data, 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}

	if !a.keepAudio {
		return nil
	}
	return writeWAV(base+".wav", samples, sampleRate)
}

func writeWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}
