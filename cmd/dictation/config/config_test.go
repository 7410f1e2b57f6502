package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionConfigIsValid(t *testing.T) {
	var defaultCfg SessionConfig
	defaultCfg.ModelFile = "/tmp/ggml-base.bin"
	defaultCfg.SetDefaults()

	tcs := []struct {
		name string
		cfg  func() SessionConfig
		err  string
	}{
		{
			name: "empty config",
			cfg:  func() SessionConfig { return SessionConfig{} },
			err:  "config cannot be empty",
		},
		{
			name: "missing model file",
			cfg: func() SessionConfig {
				cfg := defaultCfg
				cfg.ModelFile = ""
				return cfg
			},
			err: "ModelFile cannot be empty",
		},
		{
			name: "invalid vad backend",
			cfg: func() SessionConfig {
				cfg := defaultCfg
				cfg.VADBackend = "neural"
				return cfg
			},
			err: "VADBackend value is not valid",
		},
		{
			name: "silero without model",
			cfg: func() SessionConfig {
				cfg := defaultCfg
				cfg.VADBackend = VADBackendSilero
				return cfg
			},
			err: `SileroModelFile cannot be empty when VADBackend is "silero"`,
		},
		{
			name: "max below min duration",
			cfg: func() SessionConfig {
				cfg := defaultCfg
				cfg.MaxSegmentDurationMs = cfg.MinSegmentDurationMs
				return cfg
			},
			err: "MaxSegmentDurationMs should be greater than MinSegmentDurationMs",
		},
		{
			name: "confidence boost out of range",
			cfg: func() SessionConfig {
				cfg := defaultCfg
				cfg.ContextConfidenceBoost = 1.5
				return cfg
			},
			err: "ContextConfidenceBoost should be in the range [0, 1]",
		},
		{
			name: "valid",
			cfg:  func() SessionConfig { return defaultCfg },
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg().IsValid()
			if tc.err != "" {
				require.EqualError(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSessionConfigSetDefaults(t *testing.T) {
	var cfg SessionConfig
	cfg.SetDefaults()

	require.Equal(t, LanguageDefault, cfg.Language)
	require.Equal(t, VADBackendEnergy, cfg.VADBackend)
	require.Equal(t, MinSegmentDurationMsDefault, cfg.MinSegmentDurationMs)
	require.Equal(t, MaxSegmentDurationMsDefault, cfg.MaxSegmentDurationMs)
	require.Equal(t, SilenceTimeoutMsDefault, cfg.SilenceTimeoutMs)
	require.Equal(t, MaxSegmentsDefault, cfg.MaxSegments)
	require.Equal(t, FastLatencyBudgetMsDefault, cfg.FastLatencyBudgetMs)
	require.Equal(t, ContextConfidenceBoostDefval, cfg.ContextConfidenceBoost)
	require.GreaterOrEqual(t, cfg.NumThreads, 1)
	require.GreaterOrEqual(t, cfg.NumWorkers, 1)
	require.LessOrEqual(t, cfg.NumWorkers, MaxNumWorkersDefault)
	require.LessOrEqual(t, cfg.NumThreads, runtime.NumCPU())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("LANGUAGE", "de")
	t.Setenv("MODEL_FILE", "/models/ggml-small.bin")
	t.Setenv("NUM_THREADS", "2")
	t.Setenv("VAD_BACKEND", "silero")
	t.Setenv("SILERO_MODEL_FILE", "/models/silero_vad.onnx")
	t.Setenv("ENABLE_DIARIZATION", "true")
	t.Setenv("CONTEXT_CONFIDENCE_BOOST", "0.2")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "de", cfg.Language)
	require.Equal(t, "/models/ggml-small.bin", cfg.ModelFile)
	require.Equal(t, 2, cfg.NumThreads)
	require.Equal(t, VADBackendSilero, cfg.VADBackend)
	require.Equal(t, "/models/silero_vad.onnx", cfg.SileroModelFile)
	require.True(t, cfg.EnableDiarization)
	require.Equal(t, 0.2, cfg.ContextConfidenceBoost)
}

func TestFromFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := FromFile("/tmp/does-not-exist.yaml")
		require.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("language: [unterminated"), 0600))
		_, err := FromFile(path)
		require.Error(t, err)
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := []byte(`
language: en
model_file: /models/ggml-base.bin
num_threads: 4
max_segments: 500
`)
		require.NoError(t, os.WriteFile(path, data, 0600))

		t.Setenv("LANGUAGE", "fr")

		cfg, err := FromFile(path)
		require.NoError(t, err)
		require.Equal(t, "fr", cfg.Language)
		require.Equal(t, "/models/ggml-base.bin", cfg.ModelFile)
		require.Equal(t, 4, cfg.NumThreads)
		require.Equal(t, 500, cfg.MaxSegments)
	})
}
