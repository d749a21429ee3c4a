// Package hook runs user Lua scripts after a file is saved.
//
// Each script runs in its own sandboxed state with the base, table, string
// and math libraries and must define a global function on_save(path). A
// global table "fridayx" exposes log(msg) to the script.
package hook

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/canakyuz-co/fridayx/internal/logging"
)

// DefaultTimeout bounds one on_save call.
const DefaultTimeout = 2 * time.Second

var (
	// ErrNoHook indicates a script that does not define on_save.
	ErrNoHook = errors.New("script does not define on_save")

	// ErrClosed indicates the runner has been closed.
	ErrClosed = errors.New("hook runner closed")
)

// script is one loaded Lua state. LState is not goroutine-safe, so every
// call holds mu.
type script struct {
	name string
	mu   sync.Mutex
	L    *lua.LState
}

// Runner holds the loaded scripts.
type Runner struct {
	timeout time.Duration
	log     *logging.Logger

	mu      sync.Mutex
	scripts []*script
	closed  bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the runner's logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRunner creates a runner with no scripts.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		timeout: DefaultTimeout,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithComponent("hook")
	return r
}

// LoadFile loads a script from disk.
func (r *Runner) LoadFile(path string) error {
	return r.load(filepath.Base(path), func(L *lua.LState) error {
		return L.DoFile(path)
	})
}

// LoadString loads a script from source.
func (r *Runner) LoadString(name, code string) error {
	return r.load(name, func(L *lua.LState) error {
		return L.DoString(code)
	})
}

func (r *Runner) load(name string, exec func(L *lua.LState) error) error {
	L := r.newState(name)
	if err := exec(L); err != nil {
		L.Close()
		return fmt.Errorf("load %s: %w", name, err)
	}
	if _, ok := L.GetGlobal("on_save").(*lua.LFunction); !ok {
		L.Close()
		return fmt.Errorf("load %s: %w", name, ErrNoHook)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		L.Close()
		return ErrClosed
	}
	r.scripts = append(r.scripts, &script{name: name, L: L})
	r.log.Debug("loaded %s", name)
	return nil
}

func (r *Runner) newState(name string) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(fn, lua.LNil)
	}

	log := r.log.WithField("script", name)
	api := L.NewTable()
	L.SetField(api, "log", L.NewFunction(func(L *lua.LState) int {
		log.Info("%s", L.CheckString(1))
		return 0
	}))
	L.SetGlobal("fridayx", api)
	return L
}

// Len returns the number of loaded scripts.
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scripts)
}

// RunSave calls on_save(path) in every script, in load order. A failing
// script does not stop the others; their errors are joined.
func (r *Runner) RunSave(ctx context.Context, path string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	scripts := make([]*script, len(r.scripts))
	copy(scripts, r.scripts)
	r.mu.Unlock()

	var errs []error
	for _, s := range scripts {
		if err := r.call(ctx, s, path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) call(ctx context.Context, s *script, path string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.L.IsClosed() {
		return ErrClosed
	}
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	return s.L.CallByParam(lua.P{
		Fn:      s.L.GetGlobal("on_save"),
		NRet:    0,
		Protect: true,
	}, lua.LString(path))
}

// Close releases every script.
func (r *Runner) Close() error {
	r.mu.Lock()
	scripts := r.scripts
	r.scripts = nil
	r.closed = true
	r.mu.Unlock()

	for _, s := range scripts {
		s.mu.Lock()
		s.L.Close()
		s.mu.Unlock()
	}
	return nil
}
