package main

import (
	"github.com/spf13/pflag"

	"github.com/cozy-creator/audio-adapters/internal/cli"
	"github.com/cozy-creator/audio-adapters/internal/ops"
	"github.com/cozy-creator/audio-adapters/internal/types"
)

var adapter = &cli.Adapter{
	Use:        "wav2vec2-adapter",
	Short:      "Speech transcription and feature extraction adapter",
	Dispatcher: ops.NewSpeechDispatcher(),
	BindFlags: func(flags *pflag.FlagSet, req *ops.Request) {
		flags.StringVar(&req.AudioPath, "audio", "", "Path to the input audio file")
		flags.StringVar(&req.Model, "model", "", "Speech model, overrides speech.model")
	},
	Validate: func(req *ops.Request) error {
		if req.AudioPath == "" {
			return types.Errorf(types.ParameterError, "--audio is required")
		}
		return nil
	},
}
