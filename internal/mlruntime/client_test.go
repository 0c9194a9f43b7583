package mlruntime_test

import (
	"context"
	"testing"
	"time"

	"github.com/cozy-creator/audio-adapters/internal/mlruntime"
	"github.com/cozy-creator/audio-adapters/internal/mlruntime/runtimetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *runtimetest.Server) *mlruntime.Client {
	t.Helper()

	client, err := mlruntime.Dial(context.Background(), srv.Addr(), mlruntime.Options{DialTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestProbe(t *testing.T) {
	srv := runtimetest.NewServer(t).WithAccelerator()
	client := dial(t, srv)

	probe, err := client.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.3.1", probe.FrameworkVersion)

	acc, ok := probe.Accelerator("cuda")
	require.True(t, ok)
	assert.Equal(t, "NVIDIA A10G", acc.Name)

	_, ok = probe.Accelerator("mps")
	assert.False(t, ok)
}

func TestLoadGenerateUnload(t *testing.T) {
	srv := runtimetest.NewServer(t)
	client := dial(t, srv)
	ctx := context.Background()

	handle, err := client.Load(ctx, mlruntime.LoadRequest{
		Kind:         mlruntime.KindTextToAudio,
		Model:        "audioldm",
		Path:         "/models/audioldm",
		Device:       "cpu",
		Quantization: "none",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, handle.ID())
	assert.Equal(t, "cpu", handle.Info.Device)
	assert.Equal(t, 1, srv.Loaded())

	waves, err := handle.Generate(ctx, mlruntime.GenerateRequest{
		Prompt:     "rain on a tin roof",
		Steps:      10,
		BatchSize:  2,
		Duration:   0.5,
		SampleRate: 16000,
	})
	require.NoError(t, err)
	require.Len(t, waves, 2)
	assert.Len(t, waves[0], 8000)

	require.NoError(t, handle.Unload(ctx))
	require.NoError(t, handle.Unload(ctx))
	assert.Equal(t, 0, srv.Loaded())
	assert.Equal(t, 1, srv.Unloaded())

	for _, req := range srv.Requests() {
		assert.Equal(t, client.Session(), req.Session)
	}
}

func TestTranscribeAndEmbed(t *testing.T) {
	srv := runtimetest.NewServer(t)
	client := dial(t, srv)
	ctx := context.Background()

	handle, err := client.Load(ctx, mlruntime.LoadRequest{Kind: mlruntime.KindSpeech, Path: "/models/w2v", Device: "cpu"})
	require.NoError(t, err)
	defer handle.Unload(ctx)

	audio := mlruntime.AudioInput{Samples: make([]float32, 1600), SampleRate: 16000}

	tr, err := handle.Transcribe(ctx, audio)
	require.NoError(t, err)
	assert.Equal(t, "HELLO WORLD", tr.Text)
	assert.InDelta(t, 12.5, tr.Confidence, 1e-9)

	features, err := handle.Embed(ctx, audio)
	require.NoError(t, err)
	assert.Len(t, features, runtimetest.DefaultFeatureCount)
}

func TestRemoteError(t *testing.T) {
	srv := runtimetest.NewServer(t).Fail(mlruntime.CommandLoad, "CUDA out of memory")
	client := dial(t, srv)

	_, err := client.Load(context.Background(), mlruntime.LoadRequest{Kind: mlruntime.KindSpeech})
	require.Error(t, err)
	assert.ErrorIs(t, err, mlruntime.ErrRemote)
	assert.Contains(t, err.Error(), "CUDA out of memory")

	var remote *mlruntime.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, mlruntime.CommandLoad, remote.Command)
}

func TestDialUnreachable(t *testing.T) {
	_, err := mlruntime.Dial(context.Background(), "127.0.0.1:1", mlruntime.Options{DialTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to runtime")
}
