// Package transcribe holds the hosted speech-to-text backend used by the
// process operation when speech.backend is "openai".
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/up-zero/gotool/mediautil"
	"go.uber.org/zap"

	"github.com/cozy-creator/audio-adapters/internal/config"
	"github.com/cozy-creator/audio-adapters/internal/utils/randutil"
)

var ErrNoAPIKey = errors.New("openai api key is not set")

const uploadBitDepth = 16

type Result struct {
	Text       string
	Confidence float64
}

type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (*Result, error)
}

type OpenAITranscriber struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAITranscriber(cfg *config.OpenAIConfig, logger *zap.Logger) (*OpenAITranscriber, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}

	logger.Debug("Using hosted transcription",
		zap.String("base_url", clientCfg.BaseURL),
		zap.String("model", model),
		zap.String("api_key", randutil.MaskString(cfg.APIKey, 3, 4)),
	)

	return &OpenAITranscriber{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger,
	}, nil
}

// Transcribe uploads mono samples as a 16-bit WAV. Confidence is the
// geometric mean token probability over all segments, or 0 when the
// service returns no segments.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (*Result, error) {
	wavBytes, err := mediautil.Float32ToWavBytes(samples, sampleRate, 1, uploadBitDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audio: %w", err)
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wavBytes),
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	return &Result{
		Text:       strings.TrimSpace(resp.Text),
		Confidence: confidence(resp),
	}, nil
}

func confidence(resp openai.AudioResponse) float64 {
	if len(resp.Segments) == 0 {
		return 0
	}

	var sum float64
	for _, seg := range resp.Segments {
		sum += seg.AvgLogprob
	}
	return math.Exp(sum / float64(len(resp.Segments)))
}
