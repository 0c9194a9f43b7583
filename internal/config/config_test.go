package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("COZY_AUDIO_HOME", home)

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, home, cfg.Home)
	assert.Equal(t, filepath.Join(home, "models"), cfg.ModelsDir)
	assert.Equal(t, filepath.Join(home, "temp"), cfg.TempDir)
	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, DeviceAuto, cfg.Device)
	assert.Equal(t, FilesystemLocal, cfg.Filesystem)
	assert.Equal(t, DefaultRuntimeAddress, cfg.Runtime.Address)
	assert.Equal(t, time.Duration(0), cfg.RuntimeTimeout())
	assert.Equal(t, 10*time.Second, cfg.RuntimeDialTimeout())
	assert.Equal(t, 1, cfg.Runtime.MaxRetries)
	assert.Equal(t, "https://huggingface.co", cfg.HFEndpoint)
	assert.Equal(t, SpeechBackendRuntime, cfg.Speech.Backend)
	assert.Equal(t, DefaultSpeechModel, cfg.Speech.Model)
	assert.Equal(t, "whisper-1", cfg.OpenAI.Model)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("COZY_AUDIO_HOME", home)

	yaml := []byte("device: CPU\nruntime:\n  address: 10.0.0.2:9000\n  timeout: 30\n  max_retries: 3\nspeech:\n  model: my/speech\n")
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), yaml, 0o644))
	t.Setenv("COZY_AUDIO_RUNTIME_ADDRESS", "127.0.0.1:7000")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, DeviceCPU, cfg.Device)
	assert.Equal(t, "127.0.0.1:7000", cfg.Runtime.Address, "environment beats config file")
	assert.Equal(t, 30*time.Second, cfg.RuntimeTimeout())
	assert.Equal(t, 3, cfg.Runtime.MaxRetries)
	assert.Equal(t, "my/speech", cfg.Speech.Model)
}

func TestLoadEnvFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("COZY_AUDIO_HOME", home)
	// Registered so the variable set by godotenv is cleared after the test.
	t.Setenv("COZY_AUDIO_MODELS_DIR", "")
	require.NoError(t, os.Unsetenv("COZY_AUDIO_MODELS_DIR"))

	modelsDir := filepath.Join(home, "elsewhere")
	require.NoError(t, os.WriteFile(filepath.Join(home, ".env"), []byte("COZY_AUDIO_MODELS_DIR="+modelsDir+"\n"), 0o644))

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, modelsDir, cfg.ModelsDir)
}

func TestLoadExplicitConfigFileMissing(t *testing.T) {
	t.Setenv("COZY_AUDIO_HOME", t.TempDir())

	v := NewViper()
	v.Set("config_file", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load(v)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Filesystem: FilesystemLocal,
			Device:     DeviceAuto,
			Runtime:    &RuntimeConfig{Address: DefaultRuntimeAddress},
			Speech:     &SpeechConfig{Backend: SpeechBackendRuntime, Model: DefaultSpeechModel},
			OpenAI:     &OpenAIConfig{},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"bad device", func(c *Config) { c.Device = "tpu" }, ErrInvalidDevice},
		{"bad filesystem", func(c *Config) { c.Filesystem = "ftp" }, ErrInvalidFilesystem},
		{"s3 without bucket", func(c *Config) { c.Filesystem = FilesystemS3; c.S3 = &S3Config{} }, ErrS3BucketNotSet},
		{"no runtime address", func(c *Config) { c.Runtime.Address = "" }, ErrRuntimeAddressNotSet},
		{"openai without key", func(c *Config) { c.Speech.Backend = SpeechBackendOpenAI }, ErrOpenAIKeyNotSet},
		{"negative retries", func(c *Config) { c.Runtime.MaxRetries = -1 }, ErrInvalidRuntime},
		{"unknown backend", func(c *Config) { c.Speech.Backend = "grpc" }, ErrInvalidSpeechBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
