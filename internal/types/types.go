package types

// Operation names accepted on --operation.
type Operation string

const (
	OperationTestEnv   Operation = "test-env"
	OperationLoadModel Operation = "load-model"
	OperationGenerate  Operation = "generate"
	OperationReadAudio Operation = "read-audio"
	OperationProcess   Operation = "process"
	OperationAnalyze   Operation = "analyze"
)

var (
	AudioLDMOperations = []Operation{OperationTestEnv, OperationLoadModel, OperationGenerate, OperationReadAudio}
	SpeechOperations   = []Operation{OperationProcess, OperationAnalyze}
)

// Result is the payload of an envelope before request_id is injected.
type Result map[string]any

type Quantization string

const (
	QuantizationNone Quantization = "none"
	Quantization8Bit Quantization = "8bit"
	Quantization4Bit Quantization = "4bit"
)

func (q Quantization) Valid() bool {
	switch q {
	case QuantizationNone, Quantization8Bit, Quantization4Bit:
		return true
	}
	return false
}

// ModelParams are the model fields shared by load-model and generate.
type ModelParams struct {
	ModelPath        string       `json:"model_path"`
	Quantization     Quantization `json:"quantization"`
	UseHalfPrecision bool         `json:"use_half_precision"`
}

type GenerateParams struct {
	ModelParams

	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	OutputDir      string  `json:"output_dir"`
	OutputName     string  `json:"output_name"`
	Steps          int     `json:"steps"`
	GuidanceScale  float64 `json:"guidance_scale"`
	BatchSize      int     `json:"batch_size"`
	Duration       float64 `json:"duration"`
	SampleRate     int     `json:"sample_rate"`
	Seed           *int64  `json:"seed,omitempty"`
}

type ReadAudioParams struct {
	FilePath string `json:"file_path"`
}
