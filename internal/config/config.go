package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	Port              = "PORT"
	ArtifactDir       = "ARTIFACT_DIR"
	ModelFile         = "MODEL_FILE"
	PreprocessingFile = "PREPROCESSING_FILE"
	ModelCardFile     = "MODEL_CARD_FILE"
	OnnxRuntimeLib    = "ONNXRUNTIME_LIB"
	Interpolation     = "INTERPOLATION"
	InferenceWorkers  = "INFERENCE_WORKERS"
	MaxUploadBytes    = "MAX_UPLOAD_BYTES"
	MaxImagePixels    = "MAX_IMAGE_PIXELS"
	RateLimit         = "RATE_LIMIT"
	ReadTimeout       = "READ_TIMEOUT"
	WriteTimeout      = "WRITE_TIMEOUT"
	IdleTimeout       = "IDLE_TIMEOUT"
	ShutdownTimeout   = "SHUTDOWN_TIMEOUT"
	LogLevel          = "LOG_LEVEL"
	LogFormat         = "LOG_FORMAT"
	LogFile           = "LOG_FILE"
	StatsdAddr        = "STATSD_ADDR"
	ServiceName       = "SERVICE_NAME"
	ServiceEnv        = "SERVICE_ENV"

	// ConfigFile optionally points at an env/yaml/json file read before the
	// environment, which still takes precedence.
	ConfigFile = "CONFIG_FILE"
)

var (
	interpolations = []string{"nearest", "bilinear", "bicubic", "mitchell", "lanczos2", "lanczos3"}
	logLevels      = []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logFormats     = []string{"console", "json"}
)

type Config struct {
	Port              int
	ArtifactDir       string
	ModelFile         string
	PreprocessingFile string
	ModelCardFile     string
	OnnxRuntimeLib    string
	Interpolation     string
	InferenceWorkers  int
	MaxUploadBytes    int64
	MaxImagePixels    int64
	RateLimit         string // ulule/limiter format, e.g. "100-S"; empty disables
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	LogLevel          string
	LogFormat         string
	LogFile           string
	StatsdAddr        string
	ServiceName       string
	ServiceEnv        string
}

// Load reads the configuration from defaults, the optional CONFIG_FILE and
// the environment, in increasing order of precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file := v.GetString(ConfigFile); file != "" {
		v.SetConfigFile(file)
		if ext := strings.TrimPrefix(filepath.Ext(file), "."); ext == "" || ext == "env" {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Port:              v.GetInt(Port),
		ArtifactDir:       v.GetString(ArtifactDir),
		ModelFile:         v.GetString(ModelFile),
		PreprocessingFile: v.GetString(PreprocessingFile),
		ModelCardFile:     v.GetString(ModelCardFile),
		OnnxRuntimeLib:    v.GetString(OnnxRuntimeLib),
		Interpolation:     strings.ToLower(v.GetString(Interpolation)),
		InferenceWorkers:  v.GetInt(InferenceWorkers),
		MaxUploadBytes:    v.GetInt64(MaxUploadBytes),
		MaxImagePixels:    v.GetInt64(MaxImagePixels),
		RateLimit:         v.GetString(RateLimit),
		ReadTimeout:       v.GetDuration(ReadTimeout),
		WriteTimeout:      v.GetDuration(WriteTimeout),
		IdleTimeout:       v.GetDuration(IdleTimeout),
		ShutdownTimeout:   v.GetDuration(ShutdownTimeout),
		LogLevel:          strings.ToUpper(v.GetString(LogLevel)),
		LogFormat:         strings.ToLower(v.GetString(LogFormat)),
		LogFile:           v.GetString(LogFile),
		StatsdAddr:        v.GetString(StatsdAddr),
		ServiceName:       v.GetString(ServiceName),
		ServiceEnv:        v.GetString(ServiceEnv),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(Port, 5000)
	v.SetDefault(ArtifactDir, "artifacts")
	v.SetDefault(ModelFile, "best_model.onnx")
	v.SetDefault(PreprocessingFile, "preprocessing.json")
	v.SetDefault(ModelCardFile, "model_card.json")
	v.SetDefault(OnnxRuntimeLib, "")
	v.SetDefault(Interpolation, "bicubic")
	v.SetDefault(InferenceWorkers, runtime.GOMAXPROCS(0))
	v.SetDefault(MaxUploadBytes, 32<<20)
	v.SetDefault(MaxImagePixels, 89478485)
	v.SetDefault(RateLimit, "")
	v.SetDefault(ReadTimeout, "30s")
	v.SetDefault(WriteTimeout, "60s")
	v.SetDefault(IdleTimeout, "120s")
	v.SetDefault(ShutdownTimeout, "15s")
	v.SetDefault(LogLevel, "INFO")
	v.SetDefault(LogFormat, "console")
	v.SetDefault(LogFile, "")
	v.SetDefault(StatsdAddr, "")
	v.SetDefault(ServiceName, "damage-classifier")
	v.SetDefault(ServiceEnv, "local")
	v.SetDefault(ConfigFile, "")
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid %s %d", Port, c.Port)
	}
	if c.InferenceWorkers <= 0 {
		return fmt.Errorf("invalid %s %d, must be positive", InferenceWorkers, c.InferenceWorkers)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid %s %d, must be positive", MaxUploadBytes, c.MaxUploadBytes)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("invalid %s %d, must be positive", MaxImagePixels, c.MaxImagePixels)
	}
	for key, d := range map[string]time.Duration{
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		IdleTimeout:     c.IdleTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s %s, must be positive", key, d)
		}
	}
	if !contains(interpolations, c.Interpolation) {
		return fmt.Errorf("unsupported %s %q, expected one of %v", Interpolation, c.Interpolation, interpolations)
	}
	if !contains(logLevels, c.LogLevel) {
		return fmt.Errorf("unsupported %s %q, expected one of %v", LogLevel, c.LogLevel, logLevels)
	}
	if !contains(logFormats, c.LogFormat) {
		return fmt.Errorf("unsupported %s %q, expected one of %v", LogFormat, c.LogFormat, logFormats)
	}
	if c.ArtifactDir == "" || c.ModelFile == "" || c.PreprocessingFile == "" || c.ModelCardFile == "" {
		return fmt.Errorf("artifact paths must not be empty")
	}
	return nil
}

// ModelPath returns the model file location inside the artifact directory.
func (c *Config) ModelPath() string {
	return filepath.Join(c.ArtifactDir, c.ModelFile)
}

func (c *Config) PreprocessingPath() string {
	return filepath.Join(c.ArtifactDir, c.PreprocessingFile)
}

func (c *Config) ModelCardPath() string {
	return filepath.Join(c.ArtifactDir, c.ModelCardFile)
}

// Addr is the listen address for http.Server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
