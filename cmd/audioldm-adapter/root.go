package main

import (
	"github.com/spf13/pflag"

	"github.com/cozy-creator/audio-adapters/internal/cli"
	"github.com/cozy-creator/audio-adapters/internal/ops"
	"github.com/cozy-creator/audio-adapters/internal/types"
)

var adapter = &cli.Adapter{
	Use:        "audioldm-adapter",
	Short:      "Text-to-audio generation adapter",
	Dispatcher: ops.NewAudioLDMDispatcher(),
	BindFlags: func(flags *pflag.FlagSet, req *ops.Request) {
		flags.StringVar(&req.Params, "params", "", "JSON object of operation parameters")
	},
	Validate: func(req *ops.Request) error {
		if req.Params == "" {
			return types.Errorf(types.ParameterError, "--params is required")
		}
		return nil
	},
}
