// Package audio decodes, resamples and encodes the audio that flows through
// the adapters. All samples are float32 in [-1, 1].
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE

	// cbSize, valid bits and channel mask precede the subformat GUID.
	extensibleSubFormatOffset = 8
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrEmptyAudio        = errors.New("audio file has no samples")
)

// Clip is decoded audio with interleaved samples.
type Clip struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Frames is the number of samples per channel.
func (c *Clip) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.SampleRate)
}

// Mono averages all channels of each frame.
func (c *Clip) Mono() []float32 {
	if c.Channels <= 1 {
		return append([]float32(nil), c.Samples...)
	}

	frames := c.Frames()
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		frame := c.Samples[i*c.Channels : (i+1)*c.Channels]
		for _, s := range frame {
			sum += s
		}
		mono[i] = sum / float32(c.Channels)
	}
	return mono
}

// Open reads and decodes the audio file at path.
func Open(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	clip, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return clip, nil
}

// Decode sniffs the content type and decodes WAV data.
func Decode(data []byte) (*Clip, error) {
	mtype := mimetype.Detect(data)
	if !mtype.Is("audio/wav") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mtype.String())
	}

	info, err := readWAVInfo(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	switch info.format {
	case wavFormatPCM:
		return decodePCM(bytes.NewReader(data))
	case wavFormatFloat:
		return decodeFloat(info)
	default:
		return nil, fmt.Errorf("%w: wav encoding %#x", ErrUnsupportedFormat, info.format)
	}
}

// wavInfo is the fmt chunk plus the raw data chunk. For extensible files
// format holds the subformat code.
type wavInfo struct {
	format     uint16
	channels   int
	sampleRate int
	bitDepth   int
	data       []byte
}

func readWAVInfo(r io.Reader) (*wavInfo, error) {
	p := riff.New(r)

	id, _, err := p.IDnSize()
	if err != nil || id != riff.RiffID {
		return nil, fmt.Errorf("%w: invalid wav file", ErrUnsupportedFormat)
	}
	var form [4]byte
	if err := binary.Read(r, binary.BigEndian, &form); err != nil || form != riff.WavFormatID {
		return nil, fmt.Errorf("%w: invalid wav file", ErrUnsupportedFormat)
	}

	info := &wavInfo{}
	var sawFmt bool
	for {
		ch, err := p.NextChunk()
		if err != nil {
			break
		}

		switch ch.ID {
		case riff.FmtID:
			if err := info.readFmt(ch); err != nil {
				return nil, err
			}
			sawFmt = true
		case riff.DataFormatID:
			info.data, err = io.ReadAll(io.LimitReader(ch, int64(ch.Size)))
			if err != nil {
				return nil, fmt.Errorf("read wav data: %w", err)
			}
		default:
			ch.Drain()
		}
		if sawFmt && info.data != nil {
			break
		}
	}

	if !sawFmt || info.channels == 0 {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrUnsupportedFormat)
	}
	if info.data == nil {
		return nil, ErrEmptyAudio
	}
	return info, nil
}

func (info *wavInfo) readFmt(ch *riff.Chunk) error {
	var hdr struct {
		Format        uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
	}
	if err := ch.ReadLE(&hdr); err != nil {
		return fmt.Errorf("%w: short fmt chunk", ErrUnsupportedFormat)
	}

	info.format = hdr.Format
	info.channels = int(hdr.Channels)
	info.sampleRate = int(hdr.SampleRate)
	info.bitDepth = int(hdr.BitsPerSample)

	if hdr.Format == wavFormatExtensible {
		ext := make([]byte, extensibleSubFormatOffset+16)
		if ch.Size-ch.Pos < len(ext) {
			return fmt.Errorf("%w: short extensible fmt chunk", ErrUnsupportedFormat)
		}
		if err := ch.ReadLE(ext); err != nil {
			return fmt.Errorf("%w: short extensible fmt chunk", ErrUnsupportedFormat)
		}
		// The GUID starts with the plain format code.
		info.format = binary.LittleEndian.Uint16(ext[extensibleSubFormatOffset:])
	}

	ch.Drain()
	return nil
}

func decodeFloat(info *wavInfo) (*Clip, error) {
	bytesPerSample := info.bitDepth / 8

	var sample func([]byte) float32
	switch info.bitDepth {
	case 32:
		sample = func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }
	case 64:
		sample = func(b []byte) float32 { return float32(math.Float64frombits(binary.LittleEndian.Uint64(b))) }
	default:
		return nil, fmt.Errorf("%w: %d-bit float samples", ErrUnsupportedFormat, info.bitDepth)
	}

	frameSize := bytesPerSample * info.channels
	n := len(info.data) / frameSize * info.channels
	if n == 0 {
		return nil, ErrEmptyAudio
	}

	samples := make([]float32, n)
	for i := range samples {
		samples[i] = sample(info.data[i*bytesPerSample:])
	}

	return &Clip{
		SampleRate: info.sampleRate,
		Channels:   info.channels,
		Samples:    samples,
	}, nil
}

func decodePCM(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav file", ErrUnsupportedFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 || len(buf.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}

	samples := make([]float32, len(buf.Data))
	switch depth {
	case 8:
		// 8-bit WAV is unsigned.
		for i, s := range buf.Data {
			samples[i] = float32(s-128) / 128
		}
	case 16, 24, 32:
		scale := float32(int64(1) << (depth - 1))
		for i, s := range buf.Data {
			samples[i] = float32(s) / scale
		}
	default:
		return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, depth)
	}

	return &Clip{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		Samples:    samples,
	}, nil
}
