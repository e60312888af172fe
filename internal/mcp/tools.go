package mcp

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/CaseyRo/readwise-mcp-http-server/internal/readwise"
)

// ToolSearchHighlights is the name of the single tool this server exposes.
const ToolSearchHighlights = "search_readwise_highlights"

// FullTextFieldNames are the searchable highlight fields accepted in
// full_text_queries entries.
var FullTextFieldNames = []string{
	"document_author",
	"document_title",
	"highlight_note",
	"highlight_plaintext",
	"highlight_tags",
}

// searchHighlightsTool returns the tool descriptor served by tools/list.
func searchHighlightsTool() Tool {
	return Tool{
		Name:        ToolSearchHighlights,
		Description: "Search Readwise highlights with a semantic vector query and/or field-scoped full-text queries.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"vector_search_term": map[string]any{
					"type":        "string",
					"description": "Natural language query for semantic highlight search",
				},
				"full_text_queries": map[string]any{
					"type":        "array",
					"description": "Field-scoped full-text queries, applied in order",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"field_name": map[string]any{
								"type": "string",
								"enum": FullTextFieldNames,
							},
							"search_term": map[string]any{
								"type": "string",
							},
						},
						"required": []string{"field_name", "search_term"},
					},
				},
			},
			"required": []string{"vector_search_term", "full_text_queries"},
		},
	}
}

// invalidArgumentsMessage joins per-field validation failures into the
// client-visible error message, e.g. "Invalid arguments: Required, Required".
func invalidArgumentsMessage(msgs []string) string {
	return "Invalid arguments: " + strings.Join(msgs, ", ")
}

// validateSearchArgs checks tool arguments against the schema and returns the
// validated payload. Failure messages are collected per field in declared
// field order; a missing required field reports exactly "Required".
func validateSearchArgs(raw json.RawMessage) (*readwise.SearchRequest, []string) {
	var fields map[string]json.RawMessage
	if len(raw) > 0 && !isNull(raw) {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, []string{"Expected object"}
		}
	}

	var msgs []string
	out := &readwise.SearchRequest{}

	termRaw, ok := fields["vector_search_term"]
	if !ok || isNull(termRaw) {
		msgs = append(msgs, "Required")
	} else if err := json.Unmarshal(termRaw, &out.VectorSearchTerm); err != nil {
		msgs = append(msgs, "Expected string")
	}

	queriesRaw, ok := fields["full_text_queries"]
	if !ok || isNull(queriesRaw) {
		msgs = append(msgs, "Required")
	} else {
		queries, qmsgs := validateFullTextQueries(queriesRaw)
		if len(qmsgs) > 0 {
			msgs = append(msgs, qmsgs...)
		} else {
			out.FullTextQueries = queries
		}
	}

	if len(msgs) > 0 {
		return nil, msgs
	}
	return out, nil
}

// validateFullTextQueries validates the full_text_queries array element by
// element, preserving order.
func validateFullTextQueries(raw json.RawMessage) ([]readwise.FullTextQuery, []string) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, []string{"Expected array"}
	}

	var msgs []string
	queries := make([]readwise.FullTextQuery, 0, len(elements))

	for _, element := range elements {
		var entry map[string]json.RawMessage
		if err := json.Unmarshal(element, &entry); err != nil {
			msgs = append(msgs, "Expected object")
			continue
		}

		var query readwise.FullTextQuery

		nameRaw, ok := entry["field_name"]
		switch {
		case !ok || isNull(nameRaw):
			msgs = append(msgs, "Required")
		case json.Unmarshal(nameRaw, &query.FieldName) != nil:
			msgs = append(msgs, "Invalid enum value")
		case !isFullTextField(query.FieldName):
			msgs = append(msgs, "Invalid enum value")
		}

		termRaw, ok := entry["search_term"]
		switch {
		case !ok || isNull(termRaw):
			msgs = append(msgs, "Required")
		case json.Unmarshal(termRaw, &query.SearchTerm) != nil:
			msgs = append(msgs, "Expected string")
		}

		queries = append(queries, query)
	}

	if len(msgs) > 0 {
		return nil, msgs
	}
	return queries, nil
}

// isFullTextField reports whether name is one of the enumerated fields.
func isFullTextField(name string) bool {
	for _, field := range FullTextFieldNames {
		if name == field {
			return true
		}
	}
	return false
}

// isNull reports whether raw is the JSON null literal.
func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
