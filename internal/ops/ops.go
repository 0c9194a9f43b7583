// Package ops maps adapter operations to their handlers.
package ops

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/cozy-creator/audio-adapters/internal/app"
	"github.com/cozy-creator/audio-adapters/internal/mlruntime"
	"github.com/cozy-creator/audio-adapters/internal/types"
)

// Request is one adapter invocation.
type Request struct {
	Operation types.Operation
	RequestID string
	// Params is the raw --params JSON.
	Params string
	// AudioPath and Model are used by the speech operations.
	AudioPath string
	Model     string
}

type Handler func(ctx context.Context, app *app.App, req *Request) (types.Result, error)

// Dispatcher owns the closed set of operations one adapter accepts.
type Dispatcher struct {
	operations []types.Operation
	handlers   map[types.Operation]Handler
}

// NewDispatcher accepts exactly the operations in handlers, listed in the
// given order in error messages.
func NewDispatcher(operations []types.Operation, handlers map[types.Operation]Handler) *Dispatcher {
	return &Dispatcher{operations: operations, handlers: handlers}
}

func NewAudioLDMDispatcher() *Dispatcher {
	return NewDispatcher(types.AudioLDMOperations, map[types.Operation]Handler{
		types.OperationTestEnv:   TestEnv,
		types.OperationLoadModel: LoadModel,
		types.OperationGenerate:  Generate,
		types.OperationReadAudio: ReadAudio,
	})
}

func NewSpeechDispatcher() *Dispatcher {
	return NewDispatcher(types.SpeechOperations, map[types.Operation]Handler{
		types.OperationProcess: Process,
		types.OperationAnalyze: Analyze,
	})
}

func (d *Dispatcher) Operations() []types.Operation {
	return append([]types.Operation(nil), d.operations...)
}

// ParseOperation checks name against the dispatcher's operations.
func (d *Dispatcher) ParseOperation(name string) (types.Operation, error) {
	op := types.Operation(name)
	if _, ok := d.handlers[op]; ok {
		return op, nil
	}

	names := make([]string, len(d.operations))
	for i, o := range d.operations {
		names[i] = string(o)
	}
	return "", types.Errorf(types.ParameterError, "unknown operation %q: must be one of %s", name, strings.Join(names, ", "))
}

func (d *Dispatcher) Dispatch(ctx context.Context, app *app.App, req *Request) (types.Result, error) {
	op, err := d.ParseOperation(string(req.Operation))
	if err != nil {
		return nil, err
	}

	app.Logger.Debug("Running operation")
	result, err := d.handlers[op](ctx, app, req)
	if err != nil {
		app.Logger.Error("Operation failed", zap.String("error_type", string(types.KindOf(err))), zap.Error(err))
		return nil, err
	}

	return result, nil
}

// unload releases handle even when ctx was cancelled.
func unload(ctx context.Context, app *app.App, handle *mlruntime.Handle) {
	if err := handle.Unload(context.WithoutCancel(ctx)); err != nil {
		app.Logger.Warn("Failed to unload model", zap.String("handle", handle.ID()), zap.Error(err))
	}
}
