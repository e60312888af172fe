package mcp

import (
	"context"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/CaseyRo/readwise-mcp-http-server/internal/readwise"
	"github.com/rs/zerolog/log"
)

// Fixed marker texts emitted on the streaming path.
const (
	streamStartedText   = "Starting search..."
	streamCompletedText = "Search completed."

	// streamEmptyArgsMessage is the combined-emptiness validation error.
	streamEmptyArgsMessage = "Either vector_search_term or full_text_queries must be provided"
)

// StreamWriter writes newline-delimited JSON-RPC envelopes to a single HTTP
// response stream. Every envelope is one complete JSON object followed by a
// newline, flushed immediately, so the stream is consumable as NDJSON.
type StreamWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewStreamWriter wraps w. When w implements http.Flusher each message is
// flushed as it is written.
func NewStreamWriter(w io.Writer) *StreamWriter {
	sw := &StreamWriter{w: w}
	if flusher, ok := w.(http.Flusher); ok {
		sw.flusher = flusher
	}
	return sw
}

// Write emits one envelope and a trailing newline.
func (sw *StreamWriter) Write(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := sw.w.Write(append(data, '\n')); err != nil {
		return err
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

// StreamToolCall runs a tools/call request as a message stream: a started
// marker, one message per result in remote order, and a completed marker.
// Validation or remote failures produce a single in-band error envelope and
// end the stream; once streaming has begun, no HTTP-level error is possible.
func (s *Server) StreamToolCall(ctx context.Context, req *Request, sw *StreamWriter) {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeStream(sw, errorResponse(req.ID, CodeInvalidParams, "Invalid params"))
		return
	}

	if params.Name != ToolSearchHighlights {
		log.Debug().Str("tool", params.Name).Msg("Unknown tool requested on stream path")
		s.writeStream(sw, errorResponse(req.ID, CodeMethodNotFound, "Tool not found"))
		return
	}

	// Both fields are optional here; individual field shapes are not
	// validated before the combined-emptiness check.
	var args readwise.SearchRequest
	if len(params.Arguments) > 0 {
		_ = json.Unmarshal(params.Arguments, &args)
	}
	if args.VectorSearchTerm == "" && len(args.FullTextQueries) == 0 {
		log.Debug().Msg("Stream search rejected: no search terms provided")
		s.writeStream(sw, errorResponse(req.ID, CodeInvalidParams, streamEmptyArgsMessage))
		return
	}

	if err := s.writeStream(sw, textResult(req.ID, streamStartedText)); err != nil {
		return
	}

	results, err := s.client.SearchHighlights(ctx, &args)
	if err != nil {
		log.Error().Err(err).Msg("Highlight search failed on stream path")
		s.writeStream(sw, errorResponse(req.ID, CodeInternalError, "Tool execution failed"))
		return
	}

	log.Debug().Int("results", len(results)).Msg("Streaming search results")

	for _, item := range results {
		if err := s.writeStream(sw, textResult(req.ID, string(item))); err != nil {
			return
		}
		if !s.pace(ctx) {
			return
		}
	}

	s.writeStream(sw, textResult(req.ID, streamCompletedText))
}

// writeStream writes one envelope, logging write failures at debug level.
// A failed write means the client went away; the stream task just ends.
func (s *Server) writeStream(sw *StreamWriter, resp *Response) error {
	if err := sw.Write(resp); err != nil {
		log.Debug().Err(err).Msg("Stream write failed, ending stream")
		return err
	}
	return nil
}

// pace applies the configured inter-message delay. Returns false when the
// request context ended during the wait.
func (s *Server) pace(ctx context.Context) bool {
	if s.streamDelay <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.streamDelay):
		return true
	}
}
