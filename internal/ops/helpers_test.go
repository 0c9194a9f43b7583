package ops

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"

	"github.com/cozy-creator/audio-adapters/internal/app"
	"github.com/cozy-creator/audio-adapters/internal/config"
	"github.com/cozy-creator/audio-adapters/internal/mlruntime/runtimetest"
)

func newTestConfig(t *testing.T, srv *runtimetest.Server) *config.Config {
	t.Helper()

	addr := "127.0.0.1:1"
	if srv != nil {
		addr = srv.Addr()
	}

	return &config.Config{
		Environment: "test",
		ModelsDir:   t.TempDir(),
		TempDir:     t.TempDir(),
		Device:      config.DeviceAuto,
		Filesystem:  config.FilesystemLocal,
		Runtime:     &config.RuntimeConfig{Address: addr, DialTimeout: 1},
		Speech:      &config.SpeechConfig{Backend: config.SpeechBackendRuntime, Model: t.TempDir()},
	}
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...app.OptionFunc) *app.App {
	t.Helper()

	opts = append([]app.OptionFunc{app.WithProgressOutput(io.Discard)}, opts...)
	a, err := app.NewApp(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

// seedSnapshot makes repo resolvable from the models dir without network.
func seedSnapshot(t *testing.T, modelsDir, repo string) {
	t.Helper()

	folder := filepath.Join(modelsDir, "models--"+filepath.Dir(repo)+"--"+filepath.Base(repo))
	require.NoError(t, os.MkdirAll(filepath.Join(folder, "snapshots", "0123abcd"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(folder, "refs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(folder, "refs", "main"), []byte("0123abcd"), 0o644))
}

// writeWAV writes a 16-bit PCM fixture of frames interleaved frames.
func writeWAV(t *testing.T, rate, channels, frames int) string {
	t.Helper()

	data := make([]int, frames*channels)
	for i := range data {
		data[i] = (i % 200) * 100
	}

	path := filepath.Join(t.TempDir(), "input.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return path
}
