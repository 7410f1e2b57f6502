package whisper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voicescribe/dictation-core/cmd/dictation/recognize"
)

func getModelPath() string {
	modelsDir := os.Getenv("MODELS_DIR")
	if modelsDir == "" {
		modelsDir = "../../../../models"
	}
	return filepath.Join(modelsDir, "ggml-tiny.bin")
}

func requireModel(t *testing.T) string {
	t.Helper()
	path := getModelPath()
	if _, err := os.Stat(path); err != nil {
		t.Skipf("model file not available: %s", path)
	}
	return path
}

func TestConfigIsValid(t *testing.T) {
	tcs := []struct {
		name string
		cfg  Config
		err  string
	}{
		{
			name: "empty config",
			err:  "invalid empty config",
		},
		{
			name: "missing model file",
			err:  "invalid ModelFile: should not be empty",
			cfg: Config{
				NumThreads: 1,
			},
		},
		{
			name: "non existent model file",
			err:  "invalid ModelFile: failed to stat model file: stat /tmp/invalid.ggml: no such file or directory",
			cfg: Config{
				ModelFile: "/tmp/invalid.ggml",
			},
		},
		{
			name: "invalid threads",
			err:  "invalid NumThreads",
			cfg: Config{
				ModelFile: "context.go",
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.IsValid()
			if tc.err != "" {
				require.ErrorContains(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewContext(t *testing.T) {
	t.Run("missing model file", func(t *testing.T) {
		ctx, err := NewContext(Config{})
		require.Error(t, err)
		require.Nil(t, ctx)
	})

	t.Run("success", func(t *testing.T) {
		ctx, err := NewContext(Config{
			NumThreads: 1,
			ModelFile:  requireModel(t),
		})
		require.NoError(t, err)
		require.NotNil(t, ctx)

		err = ctx.Destroy()
		require.NoError(t, err)
	})

	t.Run("destroy", func(t *testing.T) {
		ctx, err := NewContext(Config{
			NumThreads: 1,
			ModelFile:  requireModel(t),
		})
		require.NoError(t, err)
		require.NotNil(t, ctx)

		err = ctx.Destroy()
		require.NoError(t, err)

		err = ctx.Destroy()
		require.EqualError(t, err, "context is not initialized")
	})
}

func TestRecognize(t *testing.T) {
	ctx, err := NewContext(Config{
		NumThreads: 1,
		ModelFile:  requireModel(t),
	})
	require.NoError(t, err)
	require.NotNil(t, ctx)
	defer func() {
		require.NoError(t, ctx.Destroy())
	}()

	t.Run("empty samples", func(t *testing.T) {
		_, err := ctx.Recognize(nil, recognize.Options{})
		require.EqualError(t, err, "samples should not be empty")
	})

	t.Run("silence decodes without error", func(t *testing.T) {
		samples := make([]float32, 16000)
		_, err := ctx.Recognize(samples, recognize.FastOptions("en", ""))
		require.NoError(t, err)
	})

	t.Run("beam search decodes without error", func(t *testing.T) {
		samples := make([]float32, 16000)
		_, err := ctx.Recognize(samples, recognize.AccurateOptions("en", "Previous context: test"))
		require.NoError(t, err)
	})
}
