package config

import "errors"

const (
	DefaultHome           = "~/.cozy-creator/audio"
	DefaultRuntimeAddress = "127.0.0.1:8882"
	DefaultSpeechModel    = "facebook/wav2vec2-base-960h"
)

const (
	DeviceAuto = "auto"
	DeviceCUDA = "cuda"
	DeviceMPS  = "mps"
	DeviceCPU  = "cpu"
)

var defaults = map[string]any{
	"environment":          "dev",
	"home":                 "",
	"models_dir":           "",
	"temp_dir":             "",
	"device":               DeviceAuto,
	"hf_token":             "",
	"hf_endpoint":          "https://huggingface.co",
	"filesystem_type":      FilesystemLocal,
	"runtime.address":      DefaultRuntimeAddress,
	"runtime.timeout":      0,
	"runtime.dial_timeout": 10,
	"runtime.max_retries":  1,
	"s3.folder":            "",
	"s3.region_name":       "",
	"s3.bucket_name":       "",
	"s3.access_key":        "",
	"s3.secret_key":        "",
	"s3.endpoint_url":      "",
	"s3.vanity_url":        "",
	"speech.backend":       SpeechBackendRuntime,
	"speech.model":         DefaultSpeechModel,
	"openai.api_key":       "",
	"openai.base_url":      "https://api.openai.com/v1",
	"openai.model":         "whisper-1",
}

var (
	ErrHomeNotSet           = errors.New("home directory is not set")
	ErrHomeExpandFailed     = errors.New("failed to expand home directory")
	ErrInvalidFilesystem    = errors.New("invalid filesystem type")
	ErrS3BucketNotSet       = errors.New("s3 bucket is not set")
	ErrInvalidDevice        = errors.New("invalid device")
	ErrRuntimeAddressNotSet = errors.New("runtime address is not set")
	ErrInvalidRuntime       = errors.New("invalid runtime settings")
	ErrInvalidSpeechBackend = errors.New("invalid speech backend")
	ErrOpenAIKeyNotSet      = errors.New("openai api key is not set")
)
