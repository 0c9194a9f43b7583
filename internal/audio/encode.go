package audio

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sbinet/npyio"
)

const outputBitDepth = 16

// EncodeNPY serializes samples as a one-dimensional float32 .npy array.
func EncodeNPY(samples []float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := npyio.Write(&buf, samples); err != nil {
		return nil, fmt.Errorf("encode npy: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeNPYBase64 is EncodeNPY with standard base64 on top, the form
// read-audio puts on the wire.
func EncodeNPYBase64(samples []float32) (string, error) {
	data, err := EncodeNPY(samples)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// WriteWAV writes mono samples as 16-bit PCM, creating the parent
// directory. Samples outside [-1, 1] are clipped.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, outputBitDepth, 1, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           quantize(samples),
		SourceBitDepth: outputBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}

	return f.Close()
}

func quantize(samples []float32) []int {
	const maxValue = 1<<(outputBitDepth-1) - 1

	ints := make([]int, len(samples))
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Max(-1, math.Min(1, v))
		ints[i] = int(math.Round(v * maxValue))
	}
	return ints
}
