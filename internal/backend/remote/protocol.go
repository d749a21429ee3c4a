// Package remote carries backend.Engine and backend.Files over JSON-RPC 2.0
// on a websocket.
//
// One websocket message holds one request or one response. Request ids are
// uuids chosen by the client; the server answers each request on the same
// connection and may answer out of order.
package remote

import (
	"encoding/json"
	"fmt"

	"github.com/canakyuz-co/fridayx/internal/backend"
)

// Method names.
const (
	MethodOpen       = "editor.open"
	MethodApplyDelta = "editor.applyDelta"
	MethodFlush      = "editor.flushToDisk"
	MethodClose      = "editor.close"
	MethodSnapshot   = "editor.snapshot"
	MethodReadRange  = "editor.readRange"
	MethodSearch     = "editor.search"
	MethodReload     = "editor.reloadFromDisk"
	MethodReadFile   = "files.read"
	MethodWriteFile  = "files.write"
	MethodListFiles  = "files.list"
)

// Request represents a JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	// Data carries the backend sentinel message, if any.
	Data string `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeBackendError marks a failure reported by the engine or file store.
	CodeBackendError = -32000
)

type openParams struct {
	WorkspaceID string `json:"workspaceId"`
	Path        string `json:"path"`
	Content     string `json:"content"`
}

type applyDeltaParams struct {
	BufferID string `json:"bufferId"`
	Version  uint64 `json:"version"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Text     string `json:"text"`
}

type applyDeltaResult struct {
	Version uint64 `json:"version"`
}

type bufferParams struct {
	BufferID string `json:"bufferId"`
}

type readRangeParams struct {
	BufferID  string `json:"bufferId"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

type searchParams struct {
	BufferID string                `json:"bufferId"`
	Query    string                `json:"query"`
	Options  backend.SearchOptions `json:"options"`
	Max      int                   `json:"max"`
}

type searchResult struct {
	Matches []backend.SearchMatch `json:"matches"`
}

type readFileParams struct {
	WorkspaceID string `json:"workspaceId"`
	Path        string `json:"path"`
}

type writeFileParams struct {
	WorkspaceID string `json:"workspaceId"`
	Path        string `json:"path"`
	Content     string `json:"content"`
}

type listFilesParams struct {
	WorkspaceID string `json:"workspaceId"`
}

type listFilesResult struct {
	Paths []string `json:"paths"`
}
