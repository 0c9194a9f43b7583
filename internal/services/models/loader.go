package models

import (
	"context"
	"fmt"

	"github.com/cozy-creator/audio-adapters/internal/mlruntime"
	"github.com/cozy-creator/audio-adapters/internal/types"

	"go.uber.org/zap"
)

// Runtime is the part of the model runtime the loader needs.
type Runtime interface {
	Probe(ctx context.Context) (*mlruntime.ProbeResult, error)
	Load(ctx context.Context, req mlruntime.LoadRequest) (*mlruntime.Handle, error)
}

type SourceResolver interface {
	Resolve(ctx context.Context, source *ModelSource) (string, error)
}

type LoadOptions struct {
	Kind             mlruntime.ModelKind
	Model            string
	Quantization     types.Quantization
	UseHalfPrecision bool
}

// Loader resolves a model and loads it into the runtime with the memory
// policy applied. Nothing is cached between calls.
type Loader struct {
	runtime  Runtime
	resolver SourceResolver
	device   string
	logger   *zap.Logger
}

func NewLoader(runtime Runtime, resolver SourceResolver, device string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		runtime:  runtime,
		resolver: resolver,
		device:   device,
		logger:   logger,
	}
}

// Load returns a handle the caller must unload. Every failure is a
// ModelLoadError except an invalid quantization, which is a ParameterError.
func (l *Loader) Load(ctx context.Context, opts LoadOptions) (*mlruntime.Handle, error) {
	if opts.Quantization == "" {
		opts.Quantization = types.QuantizationNone
	}
	if !opts.Quantization.Valid() {
		return nil, types.Errorf(types.ParameterError, "invalid quantization %q: must be one of none, 8bit, 4bit", opts.Quantization)
	}

	source, err := ParseModelSource(opts.Model)
	if err != nil {
		return nil, types.Wrap(types.ModelLoadError, fmt.Errorf("failed to parse model source: %w", err))
	}

	path, err := l.resolver.Resolve(ctx, source)
	if err != nil {
		return nil, types.Wrap(types.ModelLoadError, fmt.Errorf("failed to resolve model %s: %w", opts.Model, err))
	}

	probe, err := l.runtime.Probe(ctx)
	if err != nil {
		return nil, types.Wrap(types.ModelLoadError, fmt.Errorf("failed to probe runtime: %w", err))
	}

	placement, err := SelectPlacement(l.device, probe, opts.Quantization, opts.UseHalfPrecision)
	if err != nil {
		return nil, types.Wrap(types.ModelLoadError, err)
	}
	if placement.QuantizationDropped {
		l.logger.Warn("Quantization needs an accelerator, loading without it",
			zap.String("requested", string(opts.Quantization)),
			zap.String("device", placement.Device),
		)
	}

	handle, err := l.runtime.Load(ctx, mlruntime.LoadRequest{
		Kind:                  opts.Kind,
		Model:                 opts.Model,
		Path:                  path,
		Device:                placement.Device,
		Quantization:          string(placement.Quantization),
		HalfPrecision:         placement.HalfPrecision,
		GradientCheckpointing: opts.Kind == mlruntime.KindTextToAudio,
	})
	if err != nil {
		return nil, types.Wrap(types.ModelLoadError, fmt.Errorf("failed to load model %s: %w", opts.Model, err))
	}

	return handle, nil
}
