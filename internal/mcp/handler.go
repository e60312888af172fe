package mcp

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Handler exposes the MCP server over HTTP: a POST endpoint returning one
// JSON-RPC response inline, a streaming POST endpoint emitting
// newline-delimited JSON-RPC messages, and a static info endpoint.
type Handler struct {
	server *Server
}

// NewHandler creates the HTTP transport for server.
func NewHandler(server *Server) *Handler {
	return &Handler{server: server}
}

// ServeMCP handles POST /mcp: one JSON-RPC request in, one response out.
// Application-level errors ride inside a 200 envelope; malformed envelopes
// get HTTP 400; a panic during dispatch degrades to HTTP 500 with a generic
// error envelope.
func (h *Handler) ServeMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeCORS(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	defer r.Body.Close()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("Panic during MCP dispatch")
			writeEnvelope(w, http.StatusInternalServerError,
				errorResponse(nil, CodeInternalError, "Internal error"))
		}
	}()

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to decode MCP request body")
		writeCORS(w)
		writeEnvelope(w, http.StatusBadRequest, errorResponse(nil, CodeInvalidRequest, "Invalid Request"))
		return
	}

	writeCORS(w)

	if resp := h.server.CheckEnvelope(&req); resp != nil {
		writeEnvelope(w, http.StatusBadRequest, resp)
		return
	}

	writeEnvelope(w, http.StatusOK, h.server.HandleRequest(r.Context(), &req))
}

// ServeStream handles POST /mcp/stream. tools/call streams newline-delimited
// envelopes; every other method falls back to a single envelope + newline.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeCORS(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	defer r.Body.Close()

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to decode MCP stream request body")
		writeCORS(w)
		writeEnvelope(w, http.StatusBadRequest, errorResponse(nil, CodeInvalidRequest, "Invalid Request"))
		return
	}

	writeCORS(w)

	if resp := h.server.CheckEnvelope(&req); resp != nil {
		writeEnvelope(w, http.StatusBadRequest, resp)
		return
	}

	// Headers are committed before the first message; any later failure is
	// an in-band error envelope, never an HTTP status change.
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sw := NewStreamWriter(w)

	if req.Method == "tools/call" {
		h.server.StreamToolCall(r.Context(), &req, sw)
		return
	}

	if err := sw.Write(h.server.HandleRequest(r.Context(), &req)); err != nil {
		log.Debug().Err(err).Msg("Failed to write stream fallback response")
	}
}

// ServeInfo handles GET /mcp/info: a static JSON-RPC-shaped descriptor with
// a null id.
func (h *Handler) ServeInfo(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	writeEnvelope(w, http.StatusOK, &Response{
		JSONRPC: "2.0",
		ID:      nil,
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
				"version": h.server.version,
			},
		},
	})
}

func writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
}

func writeEnvelope(w http.ResponseWriter, status int, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode MCP response")
	}
}
