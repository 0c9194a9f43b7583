package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozy-creator/audio-adapters/internal/app"
	"github.com/cozy-creator/audio-adapters/internal/cli"
	"github.com/cozy-creator/audio-adapters/internal/mlruntime/runtimetest"
	"github.com/cozy-creator/audio-adapters/internal/types"
)

type env struct {
	home string
	srv  *runtimetest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{home: t.TempDir(), srv: runtimetest.NewServer(t)}

	repo := filepath.Join(e.home, "models", "models--latent-diffusion--audioldm-s-full")
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "snapshots", "feed"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "refs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "refs", "main"), []byte("feed"), 0o644))
	return e
}

func (e *env) run(t *testing.T, args ...string) (map[string]any, int) {
	t.Helper()

	args = append(args,
		"--home", e.home,
		"--environment", "test",
		"--runtime-address", e.srv.Addr(),
	)

	var out bytes.Buffer
	code := adapter.Run(context.Background(), args, &out, app.WithProgressOutput(io.Discard))

	text := out.String()
	require.Equal(t, 1, strings.Count(text, "\n"), "one envelope line, got %q", text)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &doc))
	return doc, code
}

func TestEveryOperationEchoesRequestID(t *testing.T) {
	e := newEnv(t)
	fixture := writeStereoFixture(t)

	params := map[types.Operation]string{
		types.OperationTestEnv:   `{}`,
		types.OperationLoadModel: `{}`,
		types.OperationGenerate:  fmt.Sprintf(`{"prompt":"thunder","duration":1,"output_dir":%q}`, t.TempDir()),
		types.OperationReadAudio: fmt.Sprintf(`{"file_path":%q}`, fixture),
	}

	for _, op := range types.AudioLDMOperations {
		t.Run(string(op), func(t *testing.T) {
			id := "req-" + string(op)
			doc, code := e.run(t, "--operation", string(op), "--request-id", id, "--params", params[op])
			assert.Equal(t, cli.ExitOK, code, doc)
			assert.Equal(t, id, doc["request_id"])
			assert.NotContains(t, doc, "error")
		})
	}

	assert.Equal(t, 0, e.srv.Loaded(), "every handle is unloaded")
}

func TestUnknownOperation(t *testing.T) {
	e := newEnv(t)

	doc, code := e.run(t, "--operation", "train", "--request-id", "r1", "--params", "{}")
	assert.Equal(t, cli.ExitError, code)
	assert.Equal(t, "r1", doc["request_id"])
	assert.Equal(t, "ParameterError", doc["error_type"])
	assert.Empty(t, e.srv.Requests(), "no runtime work for an unknown operation")
}

func TestMalformedParams(t *testing.T) {
	e := newEnv(t)

	for _, params := range []string{`{"prompt":`, `[]`, `{"steps":"many","prompt":"x"}`} {
		doc, code := e.run(t, "--operation", "generate", "--request-id", "r2", "--params", params)
		assert.Equal(t, cli.ExitError, code)
		assert.NotEmpty(t, doc["error"])
		assert.Equal(t, "ParameterError", doc["error_type"])
		assert.Equal(t, "r2", doc["request_id"])
		assert.NotContains(t, doc, "path")
	}
}

func TestMissingFlags(t *testing.T) {
	e := newEnv(t)

	doc, code := e.run(t, "--operation", "generate", "--request-id", "r3")
	assert.Equal(t, cli.ExitError, code)
	assert.Contains(t, doc["error"], "--params")

	doc, code = e.run(t, "--request-id", "r4", "--bogus")
	assert.Equal(t, cli.ExitError, code)
	assert.Equal(t, "r4", doc["request_id"])
	assert.Equal(t, "ParameterError", doc["error_type"])
}

func TestGenerateReportsRequestedFormat(t *testing.T) {
	e := newEnv(t)
	outDir := t.TempDir()

	doc, code := e.run(t,
		"--operation", "generate",
		"--request-id", "gen-1",
		"--params", fmt.Sprintf(`{"prompt":"rain","duration":5.0,"sample_rate":16000,"output_dir":%q}`, outDir),
	)
	require.Equal(t, cli.ExitOK, code, doc)

	assert.Equal(t, 5.0, doc["duration"])
	assert.Equal(t, 16000.0, doc["sample_rate"])
	assert.Equal(t, filepath.Join(outDir, "audio.wav"), doc["path"])
	assert.FileExists(t, filepath.Join(outDir, "audio.wav"))
}

func TestReadAudioStereo(t *testing.T) {
	e := newEnv(t)

	doc, code := e.run(t,
		"--operation", "read-audio",
		"--request-id", "read-1",
		"--params", fmt.Sprintf(`{"file_path":%q}`, writeStereoFixture(t)),
	)
	require.Equal(t, cli.ExitOK, code, doc)

	assert.Equal(t, 22050.0, doc["sample_rate"])
	assert.Equal(t, 2.0, doc["channels"])
	assert.InDelta(t, 0.5, doc["duration"], 1e-9)
	assert.NotEmpty(t, doc["audio_data"])
	assert.Empty(t, e.srv.Requests(), "read-audio never talks to the runtime")
}

func TestModelLoadFailure(t *testing.T) {
	e := newEnv(t)

	doc, code := e.run(t,
		"--operation", "load-model",
		"--request-id", "load-1",
		"--params", `{"model_path":"/nowhere/model"}`,
	)
	assert.Equal(t, cli.ExitError, code)
	assert.Equal(t, "ModelLoadError", doc["error_type"])
}

// writeStereoFixture writes half a second of 22.05 kHz stereo audio.
func writeStereoFixture(t *testing.T) string {
	t.Helper()

	const rate, frames = 22050, 11025
	data := make([]int, frames*2)
	for i := 0; i < frames; i++ {
		data[2*i] = 8000
		data[2*i+1] = -8000
	}

	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, 2, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return path
}
