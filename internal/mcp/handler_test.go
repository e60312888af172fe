package mcp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// HandlerSuite exercises the HTTP transport end to end against a fake
// remote service.
type HandlerSuite struct {
	suite.Suite
	handler *Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	server, _ := newTestServer(s.T(), remoteResults(`[{"id":1},{"id":2},{"id":3}]`))
	s.handler = NewHandler(server)
}

func (s *HandlerSuite) postMCP(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handler.ServeMCP(rec, req)
	return rec
}

func (s *HandlerSuite) postStream(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp/stream", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handler.ServeStream(rec, req)
	return rec
}

func (s *HandlerSuite) TestMalformedProtocolMarker() {
	for _, body := range []string{
		`{"jsonrpc":"1.0","id":1,"method":"tools/list"}`,
		`{"id":1,"method":"tools/list"}`,
	} {
		rec := s.postMCP(body)
		s.Equal(http.StatusBadRequest, rec.Code)

		var resp Response
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Require().NotNil(resp.Error)
		s.Equal(CodeInvalidRequest, resp.Error.Code)
		s.Equal("Invalid Request", resp.Error.Message)
	}
}

func (s *HandlerSuite) TestUndecodableBody() {
	rec := s.postMCP(`{not json`)
	s.Equal(http.StatusBadRequest, rec.Code)

	var resp Response
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().NotNil(resp.Error)
	s.Equal(CodeInvalidRequest, resp.Error.Code)
}

func (s *HandlerSuite) TestApplicationErrorsRideHTTP200() {
	rec := s.postMCP(`{"jsonrpc":"2.0","id":11,"method":"no/such/method"}`)
	s.Equal(http.StatusOK, rec.Code)

	var resp Response
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().NotNil(resp.Error)
	s.Equal(CodeMethodNotFound, resp.Error.Code)
	s.Equal(float64(11), resp.ID)
}

func (s *HandlerSuite) TestToolsListOverHTTP() {
	rec := s.postMCP(`{"jsonrpc":"2.0","id":"list-1","method":"tools/list"}`)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("application/json", rec.Header().Get("Content-Type"))

	var resp Response
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().Nil(resp.Error)
	s.Equal("list-1", resp.ID)
	s.Contains(rec.Body.String(), ToolSearchHighlights)
}

func (s *HandlerSuite) TestMethodNotAllowed() {
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeMCP(rec, req)
	s.Equal(http.StatusMethodNotAllowed, rec.Code)
}

func (s *HandlerSuite) TestPreflight() {
	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeMCP(rec, req)
	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal("*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func (s *HandlerSuite) TestStreamHeadersAndEnvelopes() {
	rec := s.postStream(`{"jsonrpc":"2.0","id":"st-1","method":"tools/call",
		"params":{"name":"search_readwise_highlights","arguments":{"vector_search_term":"go"}}}`)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("application/json", rec.Header().Get("Content-Type"))
	s.Equal("no-cache", rec.Header().Get("Cache-Control"))
	s.Equal("keep-alive", rec.Header().Get("Connection"))

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	s.Len(lines, 5)
	for _, line := range lines {
		var resp Response
		s.NoError(json.Unmarshal([]byte(line), &resp))
	}
}

func (s *HandlerSuite) TestStreamFallbackForOtherMethods() {
	rec := s.postStream(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	s.Equal(http.StatusOK, rec.Code)

	body := rec.Body.String()
	s.True(strings.HasSuffix(body, "\n"))
	s.Equal(1, strings.Count(body, "\n"))

	var resp Response
	s.Require().NoError(json.Unmarshal([]byte(strings.TrimRight(body, "\n")), &resp))
	s.Nil(resp.Error)
}

func (s *HandlerSuite) TestStreamMalformedEnvelopeRejectedBeforeHeaders() {
	rec := s.postStream(`{"jsonrpc":"1.1","id":1,"method":"tools/call"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Empty(rec.Header().Get("Cache-Control"))
}

func (s *HandlerSuite) TestInfo() {
	req := httptest.NewRequest(http.MethodGet, "/mcp/info", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeInfo(rec, req)

	s.Equal(http.StatusOK, rec.Code)

	var resp Response
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Nil(resp.ID)
	s.Require().Nil(resp.Error)

	result, ok := resp.Result.(map[string]any)
	s.Require().True(ok)
	info, ok := result["serverInfo"].(map[string]any)
	s.Require().True(ok)
	s.Equal(ServerName, info["name"])
}

func TestWriteEnvelopeIncludesNullID(t *testing.T) {
	rec := httptest.NewRecorder()
	writeEnvelope(rec, http.StatusOK, errorResponse(nil, CodeInternalError, "Internal error"))

	require.Contains(t, rec.Body.String(), `"id":null`)
	assert.Equal(t, http.StatusOK, rec.Code)
}
