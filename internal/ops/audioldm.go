package ops

import (
	"context"
	"fmt"
	"path/filepath"
	goruntime "runtime"

	"go.uber.org/zap"

	"github.com/cozy-creator/audio-adapters/internal/app"
	"github.com/cozy-creator/audio-adapters/internal/audio"
	"github.com/cozy-creator/audio-adapters/internal/mlruntime"
	"github.com/cozy-creator/audio-adapters/internal/services/models"
	"github.com/cozy-creator/audio-adapters/internal/types"
	"github.com/cozy-creator/audio-adapters/internal/utils/pathutil"
)

// TestEnv reports the Go toolchain and what accelerator the runtime sees.
func TestEnv(ctx context.Context, app *app.App, _ *Request) (types.Result, error) {
	rt, err := app.Runtime()
	if err != nil {
		return nil, err
	}

	probe, err := rt.Probe(ctx)
	if err != nil {
		return nil, types.Wrap(types.ExecutionError, fmt.Errorf("failed to probe runtime: %w", err))
	}

	result := types.Result{
		"status":                "ok",
		"go_version":            goruntime.Version(),
		"platform":              goruntime.GOOS + "/" + goruntime.GOARCH,
		"runtime_version":       probe.RuntimeVersion,
		"framework_version":     probe.FrameworkVersion,
		"accelerator_available": false,
		"accelerator_info":      nil,
	}

	if acc, ok := probe.Accelerator(""); ok {
		result["accelerator_available"] = true
		result["accelerator_info"] = map[string]any{
			"device":         acc.Device,
			"name":           acc.Name,
			"mem_total":      acc.MemTotal,
			"mem_allocated":  acc.MemAllocated,
			"driver_version": acc.DriverVersion,
		}
	}

	return result, nil
}

// LoadModel loads and immediately unloads the model, reporting the
// effective placement.
func LoadModel(ctx context.Context, app *app.App, req *Request) (types.Result, error) {
	params := DefaultModelParams()
	if err := ParseParams(req.Params, &params); err != nil {
		return nil, err
	}
	if err := ValidateModelParams(&params); err != nil {
		return nil, err
	}

	handle, err := loadTextToAudio(ctx, app, params)
	if err != nil {
		return nil, err
	}
	defer unload(ctx, app, handle)

	return types.Result{
		"status":         "Model loaded successfully",
		"model":          params.ModelPath,
		"device":         handle.Info.Device,
		"quantization":   handle.Info.Quantization,
		"half_precision": handle.Info.HalfPrecision,
	}, nil
}

func Generate(ctx context.Context, app *app.App, req *Request) (types.Result, error) {
	params := DefaultGenerateParams()
	if err := ParseParams(req.Params, &params); err != nil {
		return nil, err
	}
	if err := ValidateGenerateParams(&params); err != nil {
		return nil, err
	}

	outputDir, err := pathutil.ExpandPath(params.OutputDir)
	if err != nil {
		return nil, types.Wrap(types.IOError, fmt.Errorf("invalid output_dir: %w", err))
	}

	handle, err := loadTextToAudio(ctx, app, params.ModelParams)
	if err != nil {
		return nil, err
	}
	defer unload(ctx, app, handle)

	app.Logger.Info("Generating audio",
		zap.Int("steps", params.Steps),
		zap.Float64("duration", params.Duration),
		zap.Int("batch_size", params.BatchSize),
	)

	waves, err := handle.Generate(ctx, mlruntime.GenerateRequest{
		Prompt:         params.Prompt,
		NegativePrompt: params.NegativePrompt,
		Steps:          params.Steps,
		GuidanceScale:  params.GuidanceScale,
		BatchSize:      params.BatchSize,
		Duration:       params.Duration,
		SampleRate:     params.SampleRate,
		Seed:           params.Seed,
	})
	if err != nil {
		return nil, types.Wrap(types.ExecutionError, fmt.Errorf("generation failed: %w", err))
	}

	paths := make([]string, len(waves))
	for i, wave := range waves {
		name := params.OutputName
		if i > 0 {
			name = fmt.Sprintf("%s_%d", name, i)
		}
		paths[i] = filepath.Join(outputDir, name+".wav")

		if err := audio.WriteWAV(paths[i], wave, params.SampleRate); err != nil {
			return nil, types.Wrap(types.IOError, fmt.Errorf("failed to write %s: %w", paths[i], err))
		}
	}

	result := types.Result{
		"path":        paths[0],
		"sample_rate": params.SampleRate,
		"duration":    params.Duration,
	}
	if len(paths) > 1 {
		result["paths"] = paths
	}

	storage := app.Storage()
	if storage.Remote() {
		urls, err := storage.UploadMultiple(ctx, paths)
		if err != nil {
			return nil, types.Wrap(types.IOError, err)
		}
		if urls[0] != "" {
			result["url"] = urls[0]
		}
		if len(urls) > 1 {
			result["urls"] = urls
		}
	}

	return result, nil
}

// ReadAudio decodes a file to mono float32 and returns it as base64 .npy.
func ReadAudio(_ context.Context, app *app.App, req *Request) (types.Result, error) {
	var params types.ReadAudioParams
	if err := ParseParams(req.Params, &params); err != nil {
		return nil, err
	}
	if params.FilePath == "" {
		return nil, types.Errorf(types.ParameterError, "file_path is required")
	}

	clip, err := openAudio(params.FilePath)
	if err != nil {
		return nil, err
	}

	data, err := audio.EncodeNPYBase64(clip.Mono())
	if err != nil {
		return nil, types.Wrap(types.ExecutionError, err)
	}

	app.Logger.Debug("Read audio",
		zap.Int("sample_rate", clip.SampleRate),
		zap.Int("channels", clip.Channels),
		zap.Int("frames", clip.Frames()),
	)

	return types.Result{
		"audio_data":  data,
		"sample_rate": clip.SampleRate,
		"duration":    clip.Duration(),
		"channels":    clip.Channels,
	}, nil
}

func loadTextToAudio(ctx context.Context, app *app.App, params types.ModelParams) (*mlruntime.Handle, error) {
	loader, err := app.Loader()
	if err != nil {
		return nil, err
	}

	return loader.Load(ctx, models.LoadOptions{
		Kind:             mlruntime.KindTextToAudio,
		Model:            params.ModelPath,
		Quantization:     params.Quantization,
		UseHalfPrecision: params.UseHalfPrecision,
	})
}

func openAudio(path string) (*audio.Clip, error) {
	path, err := pathutil.ExpandPath(path)
	if err != nil {
		return nil, types.Wrap(types.IOError, err)
	}
	if err := pathutil.RequireFile(path); err != nil {
		return nil, types.Wrap(types.IOError, err)
	}

	clip, err := audio.Open(path)
	if err != nil {
		return nil, types.Wrap(types.IOError, err)
	}
	return clip, nil
}
