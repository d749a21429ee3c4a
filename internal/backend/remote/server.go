package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/canakyuz-co/fridayx/internal/backend"
	"github.com/canakyuz-co/fridayx/internal/logging"
)

// maxMessageSize bounds one JSON-RPC message in either direction.
const maxMessageSize = 64 << 20

// Server exposes an engine and a file store to remote Clients.
// Requests on one connection are handled concurrently.
type Server struct {
	engine backend.Engine
	files  backend.Files
	secret []byte
	log    *logging.Logger

	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithSecret requires clients to present an HS256 token signed with secret.
func WithSecret(secret []byte) ServerOption {
	return func(s *Server) {
		s.secret = secret
	}
}

// WithServerLogger sets the server's logger.
func WithServerLogger(l *logging.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a server over engine and files.
func NewServer(engine backend.Engine, files backend.Files, opts ...ServerOption) *Server {
	s := &Server{
		engine: engine,
		files:  files,
		log:    logging.Nop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16384,
			WriteBufferSize: 16384,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("remote-server")
	return s
}

// ServeHTTP upgrades the request to a websocket and serves it until the
// connection ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(s.secret) > 0 {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}
		claims, err := ValidateToken(s.secret, token)
		if err != nil {
			s.log.Warn("rejected client %s: %v", r.RemoteAddr, err)
			http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}
		s.log.Debug("client %s authenticated as %q", r.RemoteAddr, claims.Subject)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrack(conn)

	s.serveConn(conn)
}

// Close closes every active connection and waits for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) serveConn(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writeMu sync.Mutex
	reply := func(resp *Response) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(resp); err != nil {
			s.log.Debug("write response %s: %v", resp.ID, err)
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("read: %v", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			reply(&Response{JSONRPC: "2.0", Error: &RPCError{Code: CodeParseError, Message: err.Error()}})
			continue
		}
		if req.JSONRPC != "2.0" || req.ID == "" {
			reply(&Response{JSONRPC: "2.0", ID: req.ID, Error: &RPCError{Code: CodeInvalidRequest, Message: "invalid request"}})
			continue
		}

		s.wg.Add(1)
		go func(req Request) {
			defer s.wg.Done()
			reply(s.handle(ctx, &req))
		}(req)
	}
}

func (s *Server) handle(ctx context.Context, req *Request) *Response {
	resp := &Response{JSONRPC: "2.0", ID: req.ID}

	result, err := s.dispatch(ctx, req)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			resp.Error = rpcErr
		} else {
			resp.Error = &RPCError{
				Code:    CodeBackendError,
				Message: err.Error(),
				Data:    backend.Code(err),
			}
		}
		return resp
	}

	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
			return resp
		}
		resp.Result = raw
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req *Request) (any, error) {
	switch req.Method {
	case MethodOpen:
		var p openParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.engine.Open(ctx, p.WorkspaceID, p.Path, p.Content)

	case MethodApplyDelta:
		var p applyDeltaParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		version, err := s.engine.ApplyDelta(ctx, p.BufferID, p.Version, p.Start, p.End, p.Text)
		if err != nil {
			return nil, err
		}
		return applyDeltaResult{Version: version}, nil

	case MethodFlush:
		var p bufferParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.engine.FlushToDisk(ctx, p.BufferID)

	case MethodClose:
		var p bufferParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return nil, s.engine.Close(ctx, p.BufferID)

	case MethodSnapshot, MethodReadRange, MethodSearch, MethodReload:
		inspector, ok := s.engine.(backend.Inspector)
		if !ok {
			return nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
		}
		return s.inspect(ctx, inspector, req)

	case MethodReadFile:
		var p readFileParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.files.ReadFile(ctx, p.WorkspaceID, p.Path)

	case MethodWriteFile:
		var p writeFileParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return nil, s.files.WriteFile(ctx, p.WorkspaceID, p.Path, p.Content)

	case MethodListFiles:
		lister, ok := s.files.(backend.Lister)
		if !ok {
			return nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
		}
		var p listFilesParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		paths, err := lister.ListFiles(ctx, p.WorkspaceID)
		if err != nil {
			return nil, err
		}
		return listFilesResult{Paths: paths}, nil

	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *Server) inspect(ctx context.Context, in backend.Inspector, req *Request) (any, error) {
	switch req.Method {
	case MethodSnapshot:
		var p bufferParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return in.Snapshot(ctx, p.BufferID)

	case MethodReadRange:
		var p readRangeParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return in.ReadRange(ctx, p.BufferID, p.StartLine, p.EndLine)

	case MethodSearch:
		var p searchParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		matches, err := in.Search(ctx, p.BufferID, p.Query, p.Options, p.Max)
		if err != nil {
			return nil, err
		}
		return searchResult{Matches: matches}, nil

	default:
		var p bufferParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return in.ReloadFromDisk(ctx, p.BufferID)
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return &RPCError{Code: CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	}
	return nil
}
