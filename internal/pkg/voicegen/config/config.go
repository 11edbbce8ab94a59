package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	ClipsDir            string        `mapstructure:"clips_dir"`
	ModelsDir           string        `mapstructure:"models_dir"`
	TempDir             string        `mapstructure:"temp_dir"`
	CatalogFile         string        `mapstructure:"catalog_file"`
	Device              string        `mapstructure:"device"`
	ConventionalBackend string        `mapstructure:"conventional_backend"`
	ReferenceBackend    string        `mapstructure:"reference_backend"`
	CoquiURL            string        `mapstructure:"coqui_url"`
	XTTSURL             string        `mapstructure:"xtts_url"`
	BarkURL             string        `mapstructure:"bark_url"`
	BarkVoicePreset     string        `mapstructure:"bark_voice_preset"`
	HTTPTimeout         time.Duration `mapstructure:"http_timeout"`
	Encoder             string        `mapstructure:"encoder"`
	FFmpegPath          string        `mapstructure:"ffmpeg_path"`
	MP3Bitrate          string        `mapstructure:"mp3_bitrate"`
	Language            string        `mapstructure:"language"`
	LogLevel            string        `mapstructure:"log_level"`
	LogFile             string        `mapstructure:"log_file"`
}

// flagKeys maps persistent flag names to config keys.
var flagKeys = map[string]string{
	"clips-dir":    "clips_dir",
	"models-dir":   "models_dir",
	"device":       "device",
	"encoder":      "encoder",
	"coqui-url":    "coqui_url",
	"xtts-url":     "xtts_url",
	"bark-url":     "bark_url",
	"log-level":    "log_level",
	"log-file":     "log_file",
	"catalog":      "catalog_file",
	"voice-preset": "bark_voice_preset",
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("clips_dir", "clips")
	v.SetDefault("models_dir", "models")
	v.SetDefault("temp_dir", "")
	v.SetDefault("catalog_file", "")
	v.SetDefault("device", "auto")
	v.SetDefault("conventional_backend", "coqui")
	v.SetDefault("reference_backend", "coqui")
	v.SetDefault("coqui_url", "http://localhost:5002")
	v.SetDefault("xtts_url", "http://localhost:8020")
	v.SetDefault("bark_url", "http://localhost:8105")
	v.SetDefault("bark_voice_preset", "v2/es_speaker_2")
	v.SetDefault("http_timeout", "5m")
	v.SetDefault("encoder", "native")
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("mp3_bitrate", "128k")
	v.SetDefault("language", "Español")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

// RegisterFlags adds the flags that override config keys.
func RegisterFlags(flagSet *pflag.FlagSet) {
	flagSet.StringP("config", "c", "", "Path to config file")
	flagSet.String("clips-dir", "", "Directory holding reference clips")
	flagSet.String("models-dir", "", "Directory holding local ONNX models")
	flagSet.String("device", "", "Compute device (auto, cpu, cuda, mps)")
	flagSet.String("encoder", "", "Output encoder (native, ffmpeg)")
	flagSet.String("coqui-url", "", "Coqui TTS server URL")
	flagSet.String("xtts-url", "", "XTTS API server URL")
	flagSet.String("bark-url", "", "Bark sidecar URL")
	flagSet.String("catalog", "", "Voice catalogue YAML file")
	flagSet.String("voice-preset", "", "Bark voice preset")
	flagSet.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	flagSet.String("log-file", "", "Log file path")
}

// Load resolves configuration from defaults, an optional .env file, the
// config file, VOICEGEN_* environment variables and flags, in increasing
// precedence.
func Load(v *viper.Viper, flagSet *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	SetDefaults(v)

	if flagSet != nil {
		for name, key := range flagKeys {
			if f := flagSet.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	configFile := ""
	if flagSet != nil {
		configFile, _ = flagSet.GetString("config")
	}
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("voicegen.cfg")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "voicegen"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix("VOICEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.ClipsDir) == "" {
		return fmt.Errorf("clips_dir must not be empty")
	}
	switch strings.ToLower(c.Device) {
	case "", "auto", "cpu", "cuda", "gpu", "mps":
	default:
		return fmt.Errorf("device must be one of auto, cpu, cuda, mps (got %q)", c.Device)
	}
	switch c.Encoder {
	case "native", "ffmpeg":
	default:
		return fmt.Errorf("encoder must be native or ffmpeg (got %q)", c.Encoder)
	}
	if c.ConventionalBackend == "" || c.ReferenceBackend == "" {
		return fmt.Errorf("conventional_backend and reference_backend must be set")
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout must not be negative")
	}
	return nil
}
