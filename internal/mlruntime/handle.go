package mlruntime

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Handle references a model loaded in the runtime for the current session.
type Handle struct {
	Info HandleInfo
	Kind ModelKind

	client   *Client
	unloaded bool
}

func (h *Handle) ID() string {
	return h.Info.ID
}

// Generate runs text-to-audio synthesis and returns one waveform per batch
// item.
func (h *Handle) Generate(ctx context.Context, req GenerateRequest) ([][]float32, error) {
	resp, err := h.client.call(ctx, &Request{Command: CommandGenerate, Handle: h.ID(), Generate: &req})
	if err != nil {
		return nil, err
	}
	if len(resp.Waveforms) == 0 {
		return nil, &RemoteError{Command: CommandGenerate, Message: "no waveforms returned"}
	}
	return resp.Waveforms, nil
}

func (h *Handle) Transcribe(ctx context.Context, audio AudioInput) (*Transcription, error) {
	resp, err := h.client.call(ctx, &Request{Command: CommandTranscribe, Handle: h.ID(), Audio: &audio})
	if err != nil {
		return nil, err
	}
	if resp.Transcription == nil {
		return nil, &RemoteError{Command: CommandTranscribe, Message: "no transcription returned"}
	}
	return resp.Transcription, nil
}

// Embed returns the mean-pooled last hidden state for audio.
func (h *Handle) Embed(ctx context.Context, audio AudioInput) ([]float32, error) {
	resp, err := h.client.call(ctx, &Request{Command: CommandEmbed, Handle: h.ID(), Audio: &audio})
	if err != nil {
		return nil, err
	}
	return resp.Features, nil
}

// Unload releases the model. Calling it more than once is a no-op.
func (h *Handle) Unload(ctx context.Context) error {
	if h.unloaded {
		return nil
	}
	h.unloaded = true

	if _, err := h.client.call(ctx, &Request{Command: CommandUnload, Handle: h.ID()}); err != nil {
		return fmt.Errorf("failed to unload model: %w", err)
	}

	h.client.logger.Debug("Model unloaded", zap.String("handle", h.ID()))
	return nil
}
