package mlruntime

type Command string

const (
	CommandProbe      Command = "probe"
	CommandLoad       Command = "load"
	CommandUnload     Command = "unload"
	CommandGenerate   Command = "generate"
	CommandTranscribe Command = "transcribe"
	CommandEmbed      Command = "embed"
)

type ModelKind string

const (
	KindTextToAudio ModelKind = "text-to-audio"
	KindSpeech      ModelKind = "speech-ctc"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

type Request struct {
	Command  Command          `msgpack:"command"`
	Session  string           `msgpack:"session"`
	Handle   string           `msgpack:"handle,omitempty"`
	Load     *LoadRequest     `msgpack:"load,omitempty"`
	Generate *GenerateRequest `msgpack:"generate,omitempty"`
	Audio    *AudioInput      `msgpack:"audio,omitempty"`
}

type LoadRequest struct {
	Kind                  ModelKind `msgpack:"kind"`
	Model                 string    `msgpack:"model"`
	Path                  string    `msgpack:"path"`
	Device                string    `msgpack:"device"`
	Quantization          string    `msgpack:"quantization"`
	HalfPrecision         bool      `msgpack:"half_precision"`
	GradientCheckpointing bool      `msgpack:"gradient_checkpointing"`
}

type GenerateRequest struct {
	Prompt         string  `msgpack:"prompt"`
	NegativePrompt string  `msgpack:"negative_prompt,omitempty"`
	Steps          int     `msgpack:"steps"`
	GuidanceScale  float64 `msgpack:"guidance_scale"`
	BatchSize      int     `msgpack:"batch_size"`
	Duration       float64 `msgpack:"duration"`
	SampleRate     int     `msgpack:"sample_rate"`
	Seed           *int64  `msgpack:"seed,omitempty"`
}

// AudioInput is mono PCM in [-1, 1].
type AudioInput struct {
	Samples    []float32 `msgpack:"samples"`
	SampleRate int       `msgpack:"sample_rate"`
}

type Response struct {
	Status        string         `msgpack:"status"`
	Error         string         `msgpack:"error,omitempty"`
	Probe         *ProbeResult   `msgpack:"probe,omitempty"`
	Handle        *HandleInfo    `msgpack:"handle,omitempty"`
	Waveforms     [][]float32    `msgpack:"waveforms,omitempty"`
	Transcription *Transcription `msgpack:"transcription,omitempty"`
	Features      []float32      `msgpack:"features,omitempty"`
}

type ProbeResult struct {
	RuntimeVersion   string        `msgpack:"runtime_version"`
	FrameworkVersion string        `msgpack:"framework_version"`
	Accelerators     []Accelerator `msgpack:"accelerators"`
}

// Accelerator describes one device the runtime can place a model on.
// Device is the runtime's device family, e.g. "cuda" or "mps".
type Accelerator struct {
	Device        string `msgpack:"device"`
	Name          string `msgpack:"name"`
	MemTotal      int64  `msgpack:"mem_total"`
	MemAllocated  int64  `msgpack:"mem_allocated"`
	DriverVersion string `msgpack:"driver_version"`
}

func (p *ProbeResult) Accelerator(device string) (Accelerator, bool) {
	for _, acc := range p.Accelerators {
		if device == "" || acc.Device == device {
			return acc, true
		}
	}
	return Accelerator{}, false
}

type HandleInfo struct {
	ID            string `msgpack:"id"`
	Device        string `msgpack:"device"`
	Quantization  string `msgpack:"quantization"`
	HalfPrecision bool   `msgpack:"half_precision"`
}

type Transcription struct {
	Text       string  `msgpack:"text"`
	Confidence float64 `msgpack:"confidence"`
}
