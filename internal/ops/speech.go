package ops

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cozy-creator/audio-adapters/internal/app"
	"github.com/cozy-creator/audio-adapters/internal/audio"
	"github.com/cozy-creator/audio-adapters/internal/config"
	"github.com/cozy-creator/audio-adapters/internal/mlruntime"
	"github.com/cozy-creator/audio-adapters/internal/services/models"
	"github.com/cozy-creator/audio-adapters/internal/types"
)

// MaxReportedFeatures caps the features returned by analyze.
const MaxReportedFeatures = 20

// Process transcribes the audio file with greedy CTC decoding in the
// runtime, or with the hosted backend when one is configured.
func Process(ctx context.Context, app *app.App, req *Request) (types.Result, error) {
	samples, err := speechInput(req)
	if err != nil {
		return nil, err
	}

	transcriber, err := app.Transcriber()
	if err != nil {
		return nil, types.Wrap(types.ModelLoadError, err)
	}
	if transcriber != nil {
		res, err := transcriber.Transcribe(ctx, samples, audio.SpeechSampleRate)
		if err != nil {
			return nil, types.Wrap(types.ExecutionError, err)
		}
		return types.Result{"transcription": res.Text, "confidence": res.Confidence}, nil
	}

	handle, err := loadSpeech(ctx, app, req)
	if err != nil {
		return nil, err
	}
	defer unload(ctx, app, handle)

	tr, err := handle.Transcribe(ctx, mlruntime.AudioInput{Samples: samples, SampleRate: audio.SpeechSampleRate})
	if err != nil {
		return nil, types.Wrap(types.ExecutionError, fmt.Errorf("transcription failed: %w", err))
	}

	return types.Result{"transcription": tr.Text, "confidence": tr.Confidence}, nil
}

// Analyze returns the first features of the mean-pooled last hidden state
// along with its full length.
func Analyze(ctx context.Context, app *app.App, req *Request) (types.Result, error) {
	if cfg := app.Config(); cfg.Speech != nil && cfg.Speech.Backend == config.SpeechBackendOpenAI {
		return nil, types.Errorf(types.ExecutionError, "analyze needs model hidden states, which the %s speech backend does not provide", cfg.Speech.Backend)
	}

	samples, err := speechInput(req)
	if err != nil {
		return nil, err
	}

	handle, err := loadSpeech(ctx, app, req)
	if err != nil {
		return nil, err
	}
	defer unload(ctx, app, handle)

	features, err := handle.Embed(ctx, mlruntime.AudioInput{Samples: samples, SampleRate: audio.SpeechSampleRate})
	if err != nil {
		return nil, types.Wrap(types.ExecutionError, fmt.Errorf("feature extraction failed: %w", err))
	}

	reported := features
	if len(reported) > MaxReportedFeatures {
		reported = reported[:MaxReportedFeatures]
	}
	app.Logger.Debug("Extracted features", zap.Int("feature_count", len(features)))

	return types.Result{
		"features":      reported,
		"feature_count": len(features),
	}, nil
}

func speechInput(req *Request) ([]float32, error) {
	if req.AudioPath == "" {
		return nil, types.Errorf(types.ParameterError, "audio path is required")
	}

	clip, err := openAudio(req.AudioPath)
	if err != nil {
		return nil, err
	}

	samples, err := audio.PrepareSpeech(clip)
	if err != nil {
		return nil, types.Wrap(types.ExecutionError, fmt.Errorf("failed to prepare audio: %w", err))
	}
	return samples, nil
}

func loadSpeech(ctx context.Context, app *app.App, req *Request) (*mlruntime.Handle, error) {
	model := req.Model
	if model == "" && app.Config().Speech != nil {
		model = app.Config().Speech.Model
	}
	if model == "" {
		return nil, types.Errorf(types.ParameterError, "speech model is not set")
	}

	loader, err := app.Loader()
	if err != nil {
		return nil, err
	}

	return loader.Load(ctx, models.LoadOptions{
		Kind:         mlruntime.KindSpeech,
		Model:        model,
		Quantization: types.QuantizationNone,
	})
}
