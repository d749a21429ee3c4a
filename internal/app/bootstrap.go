package app

import (
	"context"

	"github.com/canakyuz-co/fridayx/internal/backend/local"
	"github.com/canakyuz-co/fridayx/internal/backend/remote"
	"github.com/canakyuz-co/fridayx/internal/config"
	"github.com/canakyuz-co/fridayx/internal/editor"
	"github.com/canakyuz-co/fridayx/internal/hook"
	"github.com/canakyuz-co/fridayx/internal/logging"
	"github.com/canakyuz-co/fridayx/internal/metrics"
	"github.com/canakyuz-co/fridayx/internal/offset"
	"github.com/canakyuz-co/fridayx/internal/state"
	"github.com/canakyuz-co/fridayx/internal/workspace"
	"github.com/canakyuz-co/fridayx/internal/workspace/vfs"
)

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap(ctx context.Context) error {
	// 1. Config
	cfg, err := loadConfig(app.opts)
	if err != nil {
		return &InitError{Component: "config", Err: err}
	}
	app.cfg = cfg

	// 2. Logging
	app.log = newLogger(cfg, app.opts)

	// 3. Offset translation shared by the editor and a local engine
	enc, err := offset.ParseEncoding(cfg.Editor.Encoding)
	if err != nil {
		return &InitError{Component: "offset", Err: err}
	}
	if app.tr, err = offset.New(enc); err != nil {
		return &InitError{Component: "offset", Err: err}
	}

	// 4. Backend
	if err := app.initBackend(ctx); err != nil {
		return &InitError{Component: "backend", Err: err}
	}

	// 5. State store
	if cfg.State.Path == "" {
		app.store = state.NewMemoryStore()
	} else {
		store, err := state.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			return &InitError{Component: "state", Err: err}
		}
		app.store = store
	}

	// 6. Save hooks
	app.hooks = hook.NewRunner(hook.WithLogger(app.log.WithComponent("hook")))
	for _, path := range cfg.Hooks.Scripts {
		if err := app.hooks.LoadFile(path); err != nil {
			return &InitError{Component: "hooks", Err: err}
		}
	}

	// 7. Metrics
	app.applyLatency = metrics.NewLatencyTracker("apply_delta", cfg.Metrics.ReportEvery, cfg.Metrics.MaxSamples, app.log)
	app.saveLatency = metrics.NewLatencyTracker("save", cfg.Metrics.ReportEvery, cfg.Metrics.MaxSamples, app.log)

	// 8. Editor
	app.editor = editor.New(app.engine, app.files,
		editor.WithTranslator(app.tr),
		editor.WithStore(app.store),
		editor.WithLogger(app.log),
		editor.WithRequestTimeout(cfg.Editor.RequestTimeout.Duration),
		editor.WithLatency(app.applyLatency, app.saveLatency),
	)
	app.editor.OnDidSave(app.runSaveHooks)

	app.log.WithFields(map[string]any{
		"backend":  cfg.Backend.Mode,
		"encoding": string(enc),
		"hooks":    app.hooks.Len(),
	}).Info("fridayx started")
	return nil
}

func loadConfig(opts Options) (*config.Config, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return nil, err
		}
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, opts Options) *logging.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.New(logging.Config{Level: level, Output: opts.LogOutput})
}

// newRegistry creates the on-disk workspace registry used by a local
// engine and by the server.
func newRegistry(cfg *config.Config, log *logging.Logger) *workspace.Registry {
	return workspace.NewRegistry(vfs.NewOSFS(),
		workspace.WithMaxFileSize(cfg.Editor.MaxFileSize),
		workspace.WithIgnore(cfg.Workspace.Ignore),
		workspace.WithLogger(log),
	)
}

func (app *Application) initBackend(ctx context.Context) error {
	if app.cfg.Backend.Mode == config.ModeRemote {
		client, err := remote.Dial(ctx, app.cfg.Backend.URL,
			remote.WithToken(app.cfg.Backend.Token),
			remote.WithLogger(app.log),
		)
		if err != nil {
			return err
		}
		app.client = client
		app.engine, app.files, app.lister = client, client, client
		return nil
	}

	app.registry = newRegistry(app.cfg, app.log)
	app.engine = local.New(app.registry, local.WithTranslator(app.tr))
	app.files, app.lister = app.registry, app.registry
	return nil
}

// runSaveHooks runs the Lua hooks after a successful save. Failures are
// logged only.
func (app *Application) runSaveHooks(path string) {
	if err := app.hooks.RunSave(context.Background(), path); err != nil {
		app.log.WithField("path", path).Warn("save hook: %v", err)
	}
}
