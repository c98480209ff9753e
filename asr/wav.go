package asr

import "bytes"

// float32ToWAV converts float32 PCM samples to a 16-bit mono WAV file.
func float32ToWAV(samples []float32, sampleRate int) []byte {
	numSamples := len(samples)
	dataSize := numSamples * 2

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))

	// RIFF header
	buf.WriteString("RIFF")
	writeUint32LE(buf, uint32(36+dataSize))
	buf.WriteString("WAVE")

	// fmt chunk
	buf.WriteString("fmt ")
	writeUint32LE(buf, 16)                   // chunk size
	writeUint16LE(buf, 1)                    // PCM
	writeUint16LE(buf, 1)                    // mono
	writeUint32LE(buf, uint32(sampleRate))   // sample rate
	writeUint32LE(buf, uint32(sampleRate*2)) // byte rate
	writeUint16LE(buf, 2)                    // block align
	writeUint16LE(buf, 16)                   // bits per sample

	// data chunk
	buf.WriteString("data")
	writeUint32LE(buf, uint32(dataSize))

	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		writeInt16LE(buf, int16(s*32767))
	}

	return buf.Bytes()
}

func writeUint16LE(w *bytes.Buffer, v uint16) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
}

func writeUint32LE(w *bytes.Buffer, v uint32) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
	w.WriteByte(byte(v >> 16))
	w.WriteByte(byte(v >> 24))
}

func writeInt16LE(w *bytes.Buffer, v int16) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
}
