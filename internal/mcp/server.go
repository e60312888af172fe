// Package mcp provides the MCP (Model Context Protocol) server for
// readwise-mcp: a JSON-RPC 2.0 dispatcher over HTTP that exposes the
// Readwise highlight-search tool.
package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/CaseyRo/readwise-mcp-http-server/internal/readwise"
	"github.com/rs/zerolog/log"
)

const (
	// ServerName identifies this server in initialize and info responses.
	ServerName = "readwise-mcp-http-server"

	// ProtocolVersion is the MCP protocol revision this server speaks.
	ProtocolVersion = "2024-11-05"
)

// Server is the MCP server that exposes the highlight-search tool.
type Server struct {
	client      *readwise.Client
	version     string
	streamDelay time.Duration
}

// NewServer creates a new MCP server. streamDelay paces streamed result
// messages; tests pass zero.
func NewServer(client *readwise.Client, version string, streamDelay time.Duration) *Server {
	return &Server{
		client:      client,
		version:     version,
		streamDelay: streamDelay,
	}
}

// Request represents a JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC response.
type Response struct {
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	JSONRPC string `json:"jsonrpc"`
}

// Error represents a JSON-RPC error.
type Error struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// JSON-RPC error codes used by this server (reserved-range convention).
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ToolCallParams represents parameters for the tools/call method.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Tool represents an MCP tool definition.
type Tool struct {
	InputSchema map[string]any `json:"inputSchema"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
}

// errorResponse builds a JSON-RPC error envelope echoing id.
func errorResponse(id any, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	}
}

// textResult builds a JSON-RPC success envelope whose result is a single
// text content block, the MCP tool-result shape.
func textResult(id any, text string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Result: map[string]any{
			"content": []map[string]any{
				{
					"type": "text",
					"text": text,
				},
			},
		},
	}
}

// CheckEnvelope validates the JSON-RPC envelope. It returns nil for a valid
// envelope, otherwise an Invalid Request error response echoing the request
// id when present.
func (s *Server) CheckEnvelope(req *Request) *Response {
	if req.JSONRPC != "2.0" {
		log.Debug().Str("jsonrpc", req.JSONRPC).Msg("Rejected request with invalid protocol marker")
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request")
	}
	return nil
}

// HandleRequest dispatches a validated request to the appropriate handler.
func (s *Server) HandleRequest(ctx context.Context, req *Request) *Response {
	log.Debug().Str("method", req.Method).Interface("id", req.ID).Msg("Dispatching MCP request")

	switch req.Method {
	case "initialize":
		return s.handleInitialize(ctx, req)
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "notifications/list":
		return s.handleNotificationsList(req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found")
	}
}

// handleInitialize handles the initialize request. The remote handshake
// outcome is logged; the capability descriptor is fixed either way. Only a
// failed handshake call surfaces as an error, and then with a fixed message.
func (s *Server) handleInitialize(ctx context.Context, req *Request) *Response {
	if err := s.client.Initialize(ctx); err != nil {
		log.Error().Err(err).Msg("Initialize handshake with Readwise failed")
		return errorResponse(req.ID, CodeInternalError, "Internal error")
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{
					"listChanged": false,
				},
				"resources": map[string]any{
					"subscribe":   false,
					"listChanged": false,
				},
				"prompts": map[string]any{
					"listChanged": false,
				},
			},
			"serverInfo": map[string]any{
				"name":    ServerName,
				"version": s.version,
			},
		},
	}
}

// handleToolsList returns the static single-tool descriptor.
func (s *Server) handleToolsList(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"tools": []Tool{searchHighlightsTool()},
		},
	}
}

// handleNotificationsList is a stub: no notifications are ever pending.
func (s *Server) handleNotificationsList(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"notifications": []any{},
		},
	}
}

// handleToolsCall handles non-streaming tool invocations.
func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params")
	}

	if params.Name != ToolSearchHighlights {
		log.Debug().Str("tool", params.Name).Msg("Unknown tool requested")
		return errorResponse(req.ID, CodeMethodNotFound, "Tool not found")
	}

	searchReq, msgs := validateSearchArgs(params.Arguments)
	if len(msgs) > 0 {
		log.Debug().Strs("failures", msgs).Msg("Tool argument validation failed")
		return errorResponse(req.ID, CodeInvalidParams, invalidArgumentsMessage(msgs))
	}

	results, err := s.client.SearchHighlights(ctx, searchReq)
	if err != nil {
		// The structured cause stays in the log; clients only see the
		// fixed message.
		log.Error().Err(err).Msg("Highlight search failed")
		return errorResponse(req.ID, CodeInternalError, "Tool execution failed")
	}

	text, err := json.Marshal(results)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal search results")
		return errorResponse(req.ID, CodeInternalError, "Tool execution failed")
	}

	return textResult(req.ID, string(text))
}
