package audio

import (
	"fmt"

	"github.com/up-zero/gotool/mediautil"
)

// SpeechSampleRate is the rate speech models are trained on.
const SpeechSampleRate = 16000

const (
	wavHeaderSize  = 44
	speechBitDepth = 16
)

// PrepareSpeech downmixes the clip to mono and resamples it to 16 kHz.
func PrepareSpeech(clip *Clip) ([]float32, error) {
	mono := clip.Mono()
	if len(mono) == 0 {
		return nil, ErrEmptyAudio
	}
	if clip.SampleRate == SpeechSampleRate {
		return mono, nil
	}

	wavBytes, err := mediautil.Float32ToWavBytes(mono, clip.SampleRate, 1, speechBitDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pcm: %w", err)
	}

	resampled, err := mediautil.ReformatWavBytes(wavBytes, SpeechSampleRate, 1, speechBitDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to resample to %d Hz: %w", SpeechSampleRate, err)
	}
	if len(resampled) <= wavHeaderSize {
		return nil, ErrEmptyAudio
	}

	return mediautil.PcmBytesToFloat32(resampled[wavHeaderSize:], speechBitDepth)
}
