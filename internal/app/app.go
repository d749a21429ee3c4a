// Package app wires the fridayx components together from configuration
// and manages their lifecycle.
package app

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/canakyuz-co/fridayx/internal/backend"
	"github.com/canakyuz-co/fridayx/internal/backend/remote"
	"github.com/canakyuz-co/fridayx/internal/config"
	"github.com/canakyuz-co/fridayx/internal/editor"
	"github.com/canakyuz-co/fridayx/internal/hook"
	"github.com/canakyuz-co/fridayx/internal/logging"
	"github.com/canakyuz-co/fridayx/internal/metrics"
	"github.com/canakyuz-co/fridayx/internal/offset"
	"github.com/canakyuz-co/fridayx/internal/state"
	"github.com/canakyuz-co/fridayx/internal/workspace"
)

// Application is the central coordinator for all fridayx components.
type Application struct {
	opts Options
	cfg  *config.Config
	log  *logging.Logger
	tr   *offset.Translator

	// Backend. registry is nil in remote mode; client is nil in local mode.
	registry *workspace.Registry
	client   *remote.Client
	engine   backend.Engine
	files    backend.Files
	lister   backend.Lister

	store  state.Store
	hooks  *hook.Runner
	editor *editor.Manager

	applyLatency *metrics.LatencyTracker
	saveLatency  *metrics.LatencyTracker

	mu            sync.Mutex
	watcher       *workspace.Watcher
	paths         []string
	pathListeners []func(paths []string)

	closed atomic.Bool
}

// Options configures the application.
type Options struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string

	// Config is used instead of loading ConfigPath when set.
	Config *config.Config

	// LogLevel overrides the configured level when set.
	LogLevel string

	// LogOutput receives log lines. When nil, logs go to glog.
	LogOutput io.Writer
}

// New creates an Application and initializes every component.
// ctx bounds startup work such as dialing a remote backend.
func New(ctx context.Context, opts Options) (*Application, error) {
	app := &Application{opts: opts}
	if err := app.bootstrap(ctx); err != nil {
		app.release()
		return nil, err
	}
	return app, nil
}

// Config returns the effective configuration.
func (app *Application) Config() *config.Config {
	return app.cfg
}

// Logger returns the root logger.
func (app *Application) Logger() *logging.Logger {
	return app.log
}

// Editor returns the buffer manager.
func (app *Application) Editor() *editor.Manager {
	return app.editor
}

// Latency returns the delta and save latency trackers.
func (app *Application) Latency() (apply, save *metrics.LatencyTracker) {
	return app.applyLatency, app.saveLatency
}

// Remote reports whether buffers live in a remote backend.
func (app *Application) Remote() bool {
	return app.client != nil
}
