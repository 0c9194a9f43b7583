package app

import (
	"context"
	"io"
	"os"

	"github.com/cozy-creator/audio-adapters/internal/config"
	"github.com/cozy-creator/audio-adapters/internal/mlruntime"
	"github.com/cozy-creator/audio-adapters/internal/services/filestorage"
	"github.com/cozy-creator/audio-adapters/internal/services/models"
	"github.com/cozy-creator/audio-adapters/internal/services/transcribe"
	"github.com/cozy-creator/audio-adapters/internal/types"
	"github.com/cozy-creator/audio-adapters/pkg/logger"

	"go.uber.org/zap"
)

// App holds what a single adapter invocation needs. The runtime connection
// is only opened when an operation asks for it.
type App struct {
	config      *config.Config
	ctx         context.Context
	cancelFunc  context.CancelFunc
	storage     filestorage.FileStorage
	runtime     *mlruntime.Client
	transcriber transcribe.Transcriber
	progressOut io.Writer

	Logger *zap.Logger
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

func WithFileStorage() OptionFunc {
	return func(app *App) error {
		storage, err := filestorage.NewFileStorage(app.ctx, app.config)
		if err != nil {
			return err
		}
		if s3, ok := storage.(*filestorage.S3FileStorage); ok {
			filestorage.WithLogger(app.Logger.Named("storage"))(s3)
		}
		app.storage = storage
		return nil
	}
}

// WithProgressOutput redirects download progress bars, stderr by default.
func WithProgressOutput(w io.Writer) OptionFunc {
	return func(app *App) error {
		app.progressOut = w
		return nil
	}
}

// WithTranscriber overrides the configured speech backend.
func WithTranscriber(t transcribe.Transcriber) OptionFunc {
	return func(app *App) error {
		app.transcriber = t
		return nil
	}
}

func NewApp(ctx context.Context, config *config.Config, options ...OptionFunc) (*App, error) {
	ctx, cancel := context.WithCancel(ctx)

	logger, err := logger.NewLogger(config)
	if err != nil {
		cancel()
		return nil, err
	}

	app := &App{
		ctx:         ctx,
		config:      config,
		cancelFunc:  cancel,
		progressOut: os.Stderr,
		Logger:      logger,
	}

	// Options run in order, so WithLogger goes before options that log.
	for _, opt := range options {
		if err := opt(app); err != nil {
			cancel()
			return nil, err
		}
	}

	return app, nil
}

func (app *App) Close() {
	if app.runtime != nil {
		if err := app.runtime.Close(); err != nil {
			app.Logger.Debug("failed to close runtime connection", zap.Error(err))
		}
		app.runtime = nil
	}

	app.cancelFunc()
	_ = app.Logger.Sync()
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

// Storage returns the configured file storage, local when none was set up.
func (app *App) Storage() filestorage.FileStorage {
	if app.storage == nil {
		app.storage = &filestorage.LocalFileStorage{}
	}
	return app.storage
}

// Runtime dials the model runtime on first use. Connection failures are
// ModelLoadErrors since no model can be loaded without it.
func (app *App) Runtime() (*mlruntime.Client, error) {
	if app.runtime != nil {
		return app.runtime, nil
	}

	client, err := mlruntime.Dial(app.ctx, app.config.Runtime.Address, mlruntime.Options{
		DialTimeout: app.config.RuntimeDialTimeout(),
		Timeout:     app.config.RuntimeTimeout(),
		MaxRetries:  app.config.Runtime.MaxRetries,
		Logger:      app.Logger.Named("runtime"),
	})
	if err != nil {
		return nil, types.Wrap(types.ModelLoadError, err)
	}

	app.runtime = client
	return client, nil
}

func (app *App) Resolver() *models.Resolver {
	return models.NewResolver(app.config.ModelsDir,
		models.WithLogger(app.Logger.Named("models")),
		models.WithHFToken(app.config.HFToken),
		models.WithHubEndpoint(app.config.HFEndpoint),
		models.WithTempDir(app.config.TempDir),
		models.WithProgressOutput(app.progressOut),
	)
}

func (app *App) Loader() (*models.Loader, error) {
	runtime, err := app.Runtime()
	if err != nil {
		return nil, err
	}

	return models.NewLoader(runtime, app.Resolver(), app.config.Device, app.Logger.Named("loader")), nil
}

// Transcriber returns the hosted transcription backend, or nil when speech
// runs in the model runtime.
func (app *App) Transcriber() (transcribe.Transcriber, error) {
	if app.transcriber != nil {
		return app.transcriber, nil
	}
	if app.config.Speech == nil || app.config.Speech.Backend != config.SpeechBackendOpenAI {
		return nil, nil
	}

	t, err := transcribe.NewOpenAITranscriber(app.config.OpenAI, app.Logger.Named("transcribe"))
	if err != nil {
		return nil, err
	}
	app.transcriber = t
	return t, nil
}
