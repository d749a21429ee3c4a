package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/canakyuz-co/fridayx/internal/backend"
	"github.com/canakyuz-co/fridayx/internal/logging"
)

// Client is a backend.Engine and backend.Files served by a remote Server.
// It is safe for concurrent use. Once the connection is lost every pending
// and future call fails with ErrClosed.
type Client struct {
	conn *websocket.Conn
	log  *logging.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *Response

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

var (
	_ backend.Engine = (*Client)(nil)
	_ backend.Files  = (*Client)(nil)
)

type dialOptions struct {
	token  string
	log    *logging.Logger
	dialer *websocket.Dialer
}

// DialOption configures Dial.
type DialOption func(*dialOptions)

// WithToken sends token as a bearer credential during the handshake.
func WithToken(token string) DialOption {
	return func(o *dialOptions) {
		o.token = token
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *logging.Logger) DialOption {
	return func(o *dialOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// Dial connects to a Server at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...DialOption) (*Client, error) {
	o := dialOptions{
		log:    logging.Nop(),
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	header := http.Header{}
	if o.token != "" {
		header.Set("Authorization", "Bearer "+o.token)
	}

	conn, resp, err := o.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: %w", url, ErrUnauthorized)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{
		conn:    conn,
		log:     o.log.WithComponent("remote-client"),
		pending: make(map[string]chan *Response),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Disconnect closes the connection. Pending calls fail with ErrClosed.
func (c *Client) Disconnect() error {
	if c.closed.Load() {
		return nil
	}
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.conn.Close()
	})
}

var (
	_ backend.Engine    = (*Client)(nil)
	_ backend.Files     = (*Client)(nil)
	_ backend.Lister    = (*Client)(nil)
	_ backend.Inspector = (*Client)(nil)
)

// Open implements backend.Engine.
func (c *Client) Open(ctx context.Context, workspaceID, path, content string) (backend.Snapshot, error) {
	var snap backend.Snapshot
	err := c.call(ctx, MethodOpen, openParams{WorkspaceID: workspaceID, Path: path, Content: content}, &snap)
	return snap, err
}

// ApplyDelta implements backend.Engine.
func (c *Client) ApplyDelta(ctx context.Context, bufferID string, version uint64, start, end int64, text string) (uint64, error) {
	var res applyDeltaResult
	err := c.call(ctx, MethodApplyDelta, applyDeltaParams{
		BufferID: bufferID,
		Version:  version,
		Start:    start,
		End:      end,
		Text:     text,
	}, &res)
	return res.Version, err
}

// FlushToDisk implements backend.Engine.
func (c *Client) FlushToDisk(ctx context.Context, bufferID string) (backend.Snapshot, error) {
	var snap backend.Snapshot
	err := c.call(ctx, MethodFlush, bufferParams{BufferID: bufferID}, &snap)
	return snap, err
}

// Close implements backend.Engine. It closes a buffer, not the connection.
func (c *Client) Close(ctx context.Context, bufferID string) error {
	return c.call(ctx, MethodClose, bufferParams{BufferID: bufferID}, nil)
}

// Snapshot implements backend.Inspector.
func (c *Client) Snapshot(ctx context.Context, bufferID string) (backend.Snapshot, error) {
	var snap backend.Snapshot
	err := c.call(ctx, MethodSnapshot, bufferParams{BufferID: bufferID}, &snap)
	return snap, err
}

// ReadRange implements backend.Inspector.
func (c *Client) ReadRange(ctx context.Context, bufferID string, startLine, endLine int) (backend.RangeRead, error) {
	var rr backend.RangeRead
	err := c.call(ctx, MethodReadRange, readRangeParams{
		BufferID:  bufferID,
		StartLine: startLine,
		EndLine:   endLine,
	}, &rr)
	return rr, err
}

// Search implements backend.Inspector.
func (c *Client) Search(ctx context.Context, bufferID, query string, opts backend.SearchOptions, max int) ([]backend.SearchMatch, error) {
	var res searchResult
	err := c.call(ctx, MethodSearch, searchParams{
		BufferID: bufferID,
		Query:    query,
		Options:  opts,
		Max:      max,
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.Matches, nil
}

// ReloadFromDisk implements backend.Inspector.
func (c *Client) ReloadFromDisk(ctx context.Context, bufferID string) (backend.Snapshot, error) {
	var snap backend.Snapshot
	err := c.call(ctx, MethodReload, bufferParams{BufferID: bufferID}, &snap)
	return snap, err
}

// ReadFile implements backend.Files.
func (c *Client) ReadFile(ctx context.Context, workspaceID, path string) (backend.File, error) {
	var file backend.File
	err := c.call(ctx, MethodReadFile, readFileParams{WorkspaceID: workspaceID, Path: path}, &file)
	return file, err
}

// WriteFile implements backend.Files.
func (c *Client) WriteFile(ctx context.Context, workspaceID, path, content string) error {
	return c.call(ctx, MethodWriteFile, writeFileParams{WorkspaceID: workspaceID, Path: path, Content: content}, nil)
}

// ListFiles implements backend.Lister.
func (c *Client) ListFiles(ctx context.Context, workspaceID string) ([]string, error) {
	var res listFilesResult
	if err := c.call(ctx, MethodListFiles, listFilesParams{WorkspaceID: workspaceID}, &res); err != nil {
		return nil, err
	}
	return res.Paths, nil
}

// call sends a request and waits for its response.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if c.closed.Load() {
		return ErrClosed
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}

	id := uuid.NewString()
	ch := make(chan *Response, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, &Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	case resp := <-ch:
		if resp.Error != nil {
			return decodeError(resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Client) send(ctx context.Context, req *Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteJSON(req); err != nil {
		if c.closed.Load() {
			return ErrClosed
		}
		if errors.Is(err, websocket.ErrCloseSent) {
			c.shutdown()
			return ErrClosed
		}
		return fmt.Errorf("send %s: %w", req.Method, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("connection lost: %v", err)
			}
			return
		}

		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			c.log.Warn("malformed response: %v", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if ok {
			ch <- &resp
		}
	}
}

func decodeError(e *RPCError) error {
	if e.Code != CodeBackendError {
		return e
	}
	return &BackendError{Message: e.Message, Err: backend.Lookup(e.Data)}
}
