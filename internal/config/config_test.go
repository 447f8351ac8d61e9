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
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, ":5000", cfg.Addr())
	assert.Equal(t, filepath.Join("artifacts", "best_model.onnx"), cfg.ModelPath())
	assert.Equal(t, filepath.Join("artifacts", "preprocessing.json"), cfg.PreprocessingPath())
	assert.Equal(t, filepath.Join("artifacts", "model_card.json"), cfg.ModelCardPath())
	assert.Equal(t, "bicubic", cfg.Interpolation)
	assert.Positive(t, cfg.InferenceWorkers)
	assert.Equal(t, int64(32<<20), cfg.MaxUploadBytes)
	assert.Equal(t, int64(89478485), cfg.MaxImagePixels)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Empty(t, cfg.RateLimit)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(Port, "8081")
	t.Setenv(ArtifactDir, "/srv/model")
	t.Setenv(Interpolation, "Bilinear")
	t.Setenv(InferenceWorkers, "2")
	t.Setenv(LogLevel, "debug")
	t.Setenv(WriteTimeout, "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, "/srv/model/best_model.onnx", cfg.ModelPath())
	assert.Equal(t, "bilinear", cfg.Interpolation)
	assert.Equal(t, 2, cfg.InferenceWorkers)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
}

func TestLoadFromConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "application.env")
	require.NoError(t, os.WriteFile(file, []byte("PORT=7000\nMODEL_FILE=model.json\n"), 0o644))
	t.Setenv(ConfigFile, file)
	t.Setenv(Port, "7001")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Port, "environment overrides the config file")
	assert.Equal(t, "model.json", cfg.ModelFile)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		key   string
		value string
	}{
		{Port, "0"},
		{InferenceWorkers, "0"},
		{MaxUploadBytes, "-1"},
		{Interpolation, "cubic-spline"},
		{LogLevel, "TRACE"},
		{LogFormat, "xml"},
		{MaxImagePixels, "0"},
		{ReadTimeout, "-1s"},
		{WriteTimeout, "0s"},
		{IdleTimeout, "0s"},
		{ShutdownTimeout, "0s"},
	}
	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv(ConfigFile, filepath.Join(t.TempDir(), "missing.env"))
	_, err := Load()
	assert.Error(t, err)
}
