package app

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/canakyuz-co/fridayx/internal/backend/local"
	"github.com/canakyuz-co/fridayx/internal/backend/remote"
	"github.com/canakyuz-co/fridayx/internal/config"
	"github.com/canakyuz-co/fridayx/internal/logging"
	"github.com/canakyuz-co/fridayx/internal/offset"
	"github.com/canakyuz-co/fridayx/internal/workspace"
)

// RPCPath is where the server accepts backend connections.
const RPCPath = "/rpc"

// Server exposes a local engine and the workspace files to remote
// editors.
type Server struct {
	cfg      *config.Config
	log      *logging.Logger
	registry *workspace.Registry
	engine   *local.Engine
	rpc      *remote.Server
}

// NewServer creates a server for the given workspace roots.
func NewServer(cfg *config.Config, log *logging.Logger, roots ...string) (*Server, error) {
	if len(roots) == 0 {
		return nil, ErrNoWorkspaceRoot
	}
	if log == nil {
		log = logging.Nop()
	}

	enc, err := offset.ParseEncoding(cfg.Editor.Encoding)
	if err != nil {
		return nil, &InitError{Component: "offset", Err: err}
	}
	tr, err := offset.New(enc)
	if err != nil {
		return nil, &InitError{Component: "offset", Err: err}
	}

	s := &Server{
		cfg:      cfg,
		log:      log.WithComponent("server"),
		registry: newRegistry(cfg, log),
	}
	for _, root := range roots {
		if _, err := s.AddWorkspace(root); err != nil {
			return nil, err
		}
	}

	s.engine = local.New(s.registry, local.WithTranslator(tr))
	opts := []remote.ServerOption{remote.WithServerLogger(log)}
	if cfg.Backend.Secret != "" {
		opts = append(opts, remote.WithSecret([]byte(cfg.Backend.Secret)))
	} else {
		s.log.Warn("no backend secret configured, connections are not authenticated")
	}
	s.rpc = remote.NewServer(s.engine, s.registry, opts...)
	return s, nil
}

// AddWorkspace serves another root.
func (s *Server) AddWorkspace(root string) (workspace.Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return workspace.Workspace{}, NewOperationError("add workspace", root, err)
	}
	ws, err := s.registry.Add(abs)
	if err != nil {
		return workspace.Workspace{}, NewOperationError("add workspace", abs, err)
	}
	s.log.WithField("workspace", ws.ID).Info("serving %s", ws.Root)
	return ws, nil
}

// Handler returns the HTTP handler with the RPC endpoint and a health
// check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(RPCPath, s.rpc)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.log.Info("listening on %s%s", addr, RPCPath)

	select {
	case err := <-errc:
		s.rpc.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.rpc.Close()
	if errors.Is(<-errc, http.ErrServerClosed) {
		s.log.Info("server stopped with %d open buffers", s.engine.Len())
	}
	return err
}
