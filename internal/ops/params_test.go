package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozy-creator/audio-adapters/internal/types"
)

func TestParseParamsDefaults(t *testing.T) {
	for _, raw := range []string{"{}", "null", " { } "} {
		p := DefaultGenerateParams()
		require.NoError(t, ParseParams(raw, &p), raw)
		assert.Equal(t, DefaultGenerateParams(), p, raw)
	}
}

func TestParseParamsOverrides(t *testing.T) {
	p := DefaultGenerateParams()
	err := ParseParams(`{"prompt":"rain on a tin roof","steps":50,"quantization":"none","seed":7,"use_half_precision":null,"unknown":1}`, &p)
	require.NoError(t, err)

	assert.Equal(t, "rain on a tin roof", p.Prompt)
	assert.Equal(t, 50, p.Steps)
	assert.Equal(t, types.QuantizationNone, p.Quantization)
	require.NotNil(t, p.Seed)
	assert.Equal(t, int64(7), *p.Seed)
	assert.True(t, p.UseHalfPrecision, "null keeps the default")
	assert.Equal(t, DefaultModelPath, p.ModelPath)
	assert.Equal(t, 3.5, p.GuidanceScale)
}

func TestParseParamsErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", "must be a JSON object"},
		{"malformed", `{"prompt":`, "invalid params JSON"},
		{"array", `[1,2]`, "got array"},
		{"string", `"prompt"`, "got string"},
		{"trailing", `{} {}`, "trailing data"},
		{"wrong type", `{"steps":"many"}`, "invalid value for steps"},
		{"fractional int", `{"batch_size":1.5}`, "invalid value for batch_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultGenerateParams()
			err := ParseParams(tt.raw, &p)
			require.Error(t, err)
			assert.Equal(t, types.ParameterError, types.KindOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateGenerateParams(t *testing.T) {
	valid := func() types.GenerateParams {
		p := DefaultGenerateParams()
		p.Prompt = "birdsong"
		return p
	}

	p := valid()
	require.NoError(t, ValidateGenerateParams(&p))

	tests := []struct {
		name   string
		mutate func(*types.GenerateParams)
		want   string
	}{
		{"no prompt", func(p *types.GenerateParams) { p.Prompt = "  " }, "prompt is required"},
		{"steps", func(p *types.GenerateParams) { p.Steps = 0 }, "steps"},
		{"guidance", func(p *types.GenerateParams) { p.GuidanceScale = -1 }, "guidance_scale"},
		{"batch", func(p *types.GenerateParams) { p.BatchSize = 0 }, "batch_size"},
		{"duration", func(p *types.GenerateParams) { p.Duration = 0 }, "duration"},
		{"sample rate", func(p *types.GenerateParams) { p.SampleRate = -1 }, "sample_rate"},
		{"output name", func(p *types.GenerateParams) { p.OutputName = "../escape" }, "output_name"},
		{"quantization", func(p *types.GenerateParams) { p.Quantization = "2bit" }, "invalid quantization"},
		{"model path", func(p *types.GenerateParams) { p.ModelPath = "" }, "model_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			err := ValidateGenerateParams(&p)
			require.Error(t, err)
			assert.Equal(t, types.ParameterError, types.KindOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
