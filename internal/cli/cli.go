// Package cli is the command line shell shared by the adapter binaries:
// flag parsing, config loading and the single result envelope.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cozy-creator/audio-adapters/internal/app"
	"github.com/cozy-creator/audio-adapters/internal/config"
	"github.com/cozy-creator/audio-adapters/internal/envelope"
	"github.com/cozy-creator/audio-adapters/internal/ops"
	"github.com/cozy-creator/audio-adapters/internal/types"
	"github.com/cozy-creator/audio-adapters/pkg/logger"
)

const (
	ExitOK    = 0
	ExitError = 1
)

// Adapter describes one adapter binary.
type Adapter struct {
	Use        string
	Short      string
	Dispatcher *ops.Dispatcher
	// BindFlags registers the adapter's own flags onto req.
	BindFlags func(flags *pflag.FlagSet, req *ops.Request)
	// Validate checks the adapter's own flags once parsed.
	Validate func(req *ops.Request) error
}

type invocation struct {
	adapter *Adapter
	stdout  io.Writer
	options []app.OptionFunc
	req     ops.Request
	written bool
}

// ReserveStdout hands the real stdout to the caller and points os.Stdout at
// stderr, so libraries printing to stdout cannot break the envelope line.
func ReserveStdout() *os.File {
	stdout := os.Stdout
	os.Stdout = os.Stderr
	return stdout
}

// Run executes one invocation and returns the process exit code. Exactly
// one envelope is written to stdout unless only help was requested.
func (a *Adapter) Run(ctx context.Context, args []string, stdout io.Writer, options ...app.OptionFunc) (code int) {
	inv := &invocation{adapter: a, stdout: stdout, options: options}

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		fmt.Fprintf(os.Stderr, "panic: %v\n%s", p, debug.Stack())

		code = ExitError
		if inv.written {
			return
		}
		err := types.Errorf(types.ExecutionError, "internal error: %v", p)
		if werr := envelope.WriteError(stdout, inv.req.RequestID, err); werr != nil {
			fmt.Fprintln(os.Stderr, werr)
		}
	}()

	cmd := inv.command(ctx)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err != nil {
		// Anything not classified yet comes from flag parsing.
		err = types.Wrap(types.ParameterError, err)
	}

	if inv.written {
		if err != nil {
			return ExitError
		}
		return ExitOK
	}
	if err == nil {
		return ExitOK
	}

	if werr := envelope.WriteError(stdout, inv.req.RequestID, err); werr != nil {
		fmt.Fprintln(os.Stderr, werr)
	}
	return ExitError
}

func (inv *invocation) command(ctx context.Context) *cobra.Command {
	a := inv.adapter
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:           a.Use,
		Short:         a.Short,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return inv.run(cmd.Context(), v)
		},
	}
	cmd.SetContext(ctx)
	cmd.SetOut(os.Stderr)
	cmd.SetErr(os.Stderr)
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return types.Wrap(types.ParameterError, err)
	})

	flags := cmd.Flags()
	flags.StringVar((*string)(&inv.req.Operation), "operation", "", "Operation to run")
	flags.StringVar(&inv.req.RequestID, "request-id", "", "Opaque id echoed in the result")
	if a.BindFlags != nil {
		a.BindFlags(flags, &inv.req)
	}

	pflags := cmd.PersistentFlags()
	pflags.String("home", "", "Path to the adapter home directory")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("env-file", "", "Path to the env file")
	pflags.String("environment", "", "Runtime environment (dev, prod, test)")
	pflags.String("runtime-address", "", "Address of the model runtime")
	pflags.String("device", "", "Device preference (auto, cuda, mps, cpu)")

	v.BindPFlag("home", pflags.Lookup("home"))
	v.BindPFlag("config_file", pflags.Lookup("config-file"))
	v.BindPFlag("env_file", pflags.Lookup("env-file"))
	v.BindPFlag("environment", pflags.Lookup("environment"))
	v.BindPFlag("runtime.address", pflags.Lookup("runtime-address"))
	v.BindPFlag("device", pflags.Lookup("device"))

	return cmd
}

func (inv *invocation) run(ctx context.Context, v *viper.Viper) error {
	a := inv.adapter

	// The operation is checked before any config, runtime or model work.
	if _, err := a.Dispatcher.ParseOperation(string(inv.req.Operation)); err != nil {
		return err
	}
	if inv.req.RequestID == "" {
		return types.Errorf(types.ParameterError, "--request-id is required")
	}
	if a.Validate != nil {
		if err := a.Validate(&inv.req); err != nil {
			return types.Wrap(types.ParameterError, err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return types.Wrap(types.ParameterError, fmt.Errorf("invalid configuration: %w", err))
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return types.Wrap(types.ExecutionError, err)
	}
	log = log.Named(a.Use).With(
		zap.String("request_id", inv.req.RequestID),
		zap.String("operation", string(inv.req.Operation)),
	)

	options := append([]app.OptionFunc{app.WithLogger(log), app.WithFileStorage()}, inv.options...)
	application, err := app.NewApp(ctx, cfg, options...)
	if err != nil {
		return types.Wrap(types.IOError, fmt.Errorf("failed to initialize: %w", err))
	}
	defer application.Close()

	result, err := a.Dispatcher.Dispatch(application.Context(), application, &inv.req)
	if err != nil {
		return types.Wrap(types.ExecutionError, err)
	}

	inv.written = true
	if err := envelope.Write(inv.stdout, inv.req.RequestID, result); err != nil {
		application.Logger.Error("Failed to write result", zap.Error(err))
		return err
	}
	return nil
}
