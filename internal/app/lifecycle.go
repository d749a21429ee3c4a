package app

import (
	"context"
	"errors"

	"github.com/canakyuz-co/fridayx/internal/logging"
)

// Shutdown flushes pending edits, closes backend sessions, and releases
// every resource. ctx bounds the wait for queued work. Calling it again is
// a no-op.
func (app *Application) Shutdown(ctx context.Context) error {
	if !app.closed.CompareAndSwap(false, true) {
		return nil
	}

	app.stopWatcher()

	var errs []error
	if err := app.editor.Close(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrShutdownTimeout
		}
		errs = append(errs, &ComponentError{Component: "editor", Action: "close", Err: err})
	}
	if err := app.release(); err != nil {
		errs = append(errs, err)
	}

	app.log.Info("fridayx stopped")
	logging.Flush()
	return errors.Join(errs...)
}

// release closes the components created by bootstrap in reverse order.
// It tolerates a partially initialized application.
func (app *Application) release() error {
	var errs []error
	if app.hooks != nil {
		if err := app.hooks.Close(); err != nil {
			errs = append(errs, &ComponentError{Component: "hooks", Action: "close", Err: err})
		}
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			errs = append(errs, &ComponentError{Component: "state", Action: "close", Err: err})
		}
	}
	if app.client != nil {
		if err := app.client.Disconnect(); err != nil {
			errs = append(errs, &ComponentError{Component: "backend", Action: "disconnect", Err: err})
		}
	}
	return errors.Join(errs...)
}
