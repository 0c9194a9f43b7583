package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cozy-creator/audio-adapters/internal/types"
)

const (
	DefaultModelPath  = "latent-diffusion/audioldm-s-full"
	DefaultOutputDir  = "./output"
	DefaultOutputName = "audio"
)

func DefaultModelParams() types.ModelParams {
	return types.ModelParams{
		ModelPath:        DefaultModelPath,
		Quantization:     types.Quantization8Bit,
		UseHalfPrecision: true,
	}
}

func DefaultGenerateParams() types.GenerateParams {
	return types.GenerateParams{
		ModelParams:   DefaultModelParams(),
		OutputDir:     DefaultOutputDir,
		OutputName:    DefaultOutputName,
		Steps:         25,
		GuidanceScale: 3.5,
		BatchSize:     1,
		Duration:      5.0,
		SampleRate:    16000,
	}
}

// ParseParams decodes a --params blob over the defaults already in into.
// Missing fields keep their defaults; "null" and "{}" keep all of them.
func ParseParams(raw string, into any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.Errorf(types.ParameterError, "params must be a JSON object")
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&doc); err != nil {
		return types.Errorf(types.ParameterError, "invalid params JSON: %v", err)
	}
	if dec.More() {
		return types.Errorf(types.ParameterError, "invalid params JSON: trailing data after object")
	}

	switch doc.(type) {
	case nil:
		return nil
	case map[string]any:
	default:
		return types.Errorf(types.ParameterError, "params must be a JSON object, got %s", jsonKind(doc))
	}

	if err := json.Unmarshal([]byte(raw), into); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return types.Errorf(types.ParameterError, "invalid value for %s: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
		}
		return types.Errorf(types.ParameterError, "invalid params: %v", err)
	}

	return nil
}

func ValidateModelParams(p *types.ModelParams) error {
	if strings.TrimSpace(p.ModelPath) == "" {
		return types.Errorf(types.ParameterError, "model_path must not be empty")
	}
	if p.Quantization == "" {
		p.Quantization = types.QuantizationNone
	}
	if !p.Quantization.Valid() {
		return types.Errorf(types.ParameterError, "invalid quantization %q: must be one of none, 8bit, 4bit", p.Quantization)
	}
	return nil
}

func ValidateGenerateParams(p *types.GenerateParams) error {
	if err := ValidateModelParams(&p.ModelParams); err != nil {
		return err
	}

	switch {
	case strings.TrimSpace(p.Prompt) == "":
		return types.Errorf(types.ParameterError, "prompt is required")
	case p.Steps <= 0:
		return types.Errorf(types.ParameterError, "steps must be > 0, got %d", p.Steps)
	case p.GuidanceScale < 0:
		return types.Errorf(types.ParameterError, "guidance_scale must be >= 0, got %g", p.GuidanceScale)
	case p.BatchSize < 1:
		return types.Errorf(types.ParameterError, "batch_size must be >= 1, got %d", p.BatchSize)
	case p.Duration <= 0:
		return types.Errorf(types.ParameterError, "duration must be > 0, got %g", p.Duration)
	case p.SampleRate <= 0:
		return types.Errorf(types.ParameterError, "sample_rate must be > 0, got %d", p.SampleRate)
	case p.OutputDir == "":
		return types.Errorf(types.ParameterError, "output_dir must not be empty")
	case p.OutputName == "" || filepath.Base(p.OutputName) != p.OutputName || p.OutputName == "." || p.OutputName == "..":
		return types.Errorf(types.ParameterError, "output_name must be a plain file name, got %q", p.OutputName)
	}

	return nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}
