package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cozy-creator/audio-adapters/internal/utils/pathutil"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	FilesystemLocal = "local"
	FilesystemS3    = "s3"
)

const (
	SpeechBackendRuntime = "runtime"
	SpeechBackendOpenAI  = "openai"
)

const envPrefix = "COZY_AUDIO"

type Config struct {
	Environment string         `mapstructure:"environment"`
	Home        string         `mapstructure:"home"`
	ModelsDir   string         `mapstructure:"models_dir"`
	TempDir     string         `mapstructure:"temp_dir"`
	Device      string         `mapstructure:"device"`
	HFToken     string         `mapstructure:"hf_token"`
	HFEndpoint  string         `mapstructure:"hf_endpoint"`
	Filesystem  string         `mapstructure:"filesystem_type"`
	Runtime     *RuntimeConfig `mapstructure:"runtime"`
	S3          *S3Config      `mapstructure:"s3"`
	Speech      *SpeechConfig  `mapstructure:"speech"`
	OpenAI      *OpenAIConfig  `mapstructure:"openai"`
}

type RuntimeConfig struct {
	Address     string `mapstructure:"address"`
	Timeout     int    `mapstructure:"timeout"`
	DialTimeout int    `mapstructure:"dial_timeout"`
	MaxRetries  int    `mapstructure:"max_retries"`
}

type S3Config struct {
	Folder      string `mapstructure:"folder"`
	Region      string `mapstructure:"region_name"`
	Bucket      string `mapstructure:"bucket_name"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	EndpointUrl string `mapstructure:"endpoint_url"`
	VanityUrl   string `mapstructure:"vanity_url"`
}

type SpeechConfig struct {
	Backend string `mapstructure:"backend"`
	Model   string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// NewViper returns a viper instance with defaults and environment binding.
// Every invocation gets its own instance.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(
		`-`, `_`,
		`.`, `_`,
	))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// The conventional variable names are honoured as well.
	_ = v.BindEnv("hf_token", envPrefix+"_HF_TOKEN", "HF_TOKEN")
	_ = v.BindEnv("hf_endpoint", envPrefix+"_HF_ENDPOINT", "HF_ENDPOINT")
	_ = v.BindEnv("openai.api_key", envPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")

	return v
}

// Load resolves the home directory, loads the optional .env and config.yaml
// files and unmarshals the result.
func Load(v *viper.Viper) (*Config, error) {
	home, err := getHome(v)
	if err != nil {
		return nil, err
	}
	v.Set("home", home)

	if err := loadEnvFile(v, home); err != nil {
		return nil, err
	}

	if err := readConfigFile(v, home); err != nil {
		return nil, err
	}

	modelsDir, err := getSubdir(v, "models_dir", home, "models")
	if err != nil {
		return nil, err
	}
	v.Set("models_dir", modelsDir)

	tempDir, err := getSubdir(v, "temp_dir", home, "temp")
	if err != nil {
		return nil, err
	}
	v.Set("temp_dir", tempDir)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	c.Filesystem = strings.ToLower(c.Filesystem)
	c.Device = strings.ToLower(c.Device)

	switch c.Filesystem {
	case FilesystemLocal:
	case FilesystemS3:
		if c.S3 == nil || c.S3.Bucket == "" {
			return ErrS3BucketNotSet
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFilesystem, c.Filesystem)
	}

	switch c.Device {
	case DeviceAuto, DeviceCUDA, DeviceMPS, DeviceCPU:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDevice, c.Device)
	}

	if c.Runtime == nil || c.Runtime.Address == "" {
		return ErrRuntimeAddressNotSet
	}
	if c.Runtime.Timeout < 0 || c.Runtime.DialTimeout < 0 {
		return fmt.Errorf("%w: timeouts must be >= 0", ErrInvalidRuntime)
	}
	if c.Runtime.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", ErrInvalidRuntime)
	}

	if c.Speech == nil {
		return fmt.Errorf("speech config is not set")
	}
	switch c.Speech.Backend {
	case SpeechBackendRuntime:
	case SpeechBackendOpenAI:
		if c.OpenAI == nil || c.OpenAI.APIKey == "" {
			return ErrOpenAIKeyNotSet
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSpeechBackend, c.Speech.Backend)
	}

	return nil
}

// RuntimeTimeout is the per-call deadline for the model runtime. Zero means
// no deadline.
func (c *Config) RuntimeTimeout() time.Duration {
	return time.Duration(c.Runtime.Timeout) * time.Second
}

func (c *Config) RuntimeDialTimeout() time.Duration {
	return time.Duration(c.Runtime.DialTimeout) * time.Second
}

// Returns the home directory path.
// It is taken from the `home` flag or COZY_AUDIO_HOME, falling back to the
// default home directory.
func getHome(v *viper.Viper) (string, error) {
	home := v.GetString("home")
	if home == "" {
		home = DefaultHome
	}

	home, err := pathutil.ExpandPath(home)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHomeExpandFailed, err)
	}

	return home, nil
}

func getSubdir(v *viper.Viper, key, home, name string) (string, error) {
	if home == "" {
		return "", ErrHomeNotSet
	}

	dir := v.GetString(key)
	if dir == "" {
		dir = filepath.Join(home, name)
	}

	dir, err := pathutil.ExpandPath(dir)
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", key, err)
	}

	return dir, nil
}

// An explicit --env-file must exist; the one in the home directory is
// optional. Variables already set in the environment win.
func loadEnvFile(v *viper.Viper, home string) error {
	envFile := v.GetString("env_file")
	explicit := envFile != ""
	if !explicit {
		envFile = filepath.Join(home, ".env")
	}

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	return nil
}

func readConfigFile(v *viper.Viper, home string) error {
	configFile := v.GetString("config_file")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigType("yaml")
		v.SetConfigName("config")
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config: %w", err)
	}

	return nil
}
