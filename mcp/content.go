package mcp

import (
	"encoding/json"
	"strings"

	mcpsdk "github.com/mark3labs/mcp-go/mcp"
)

// joinContent renders mcp-go content items into a single string.
func joinContent(items []mcpsdk.Content) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch c := item.(type) {
		case mcpsdk.TextContent:
			parts = append(parts, c.Text)
		case *mcpsdk.TextContent:
			parts = append(parts, c.Text)
		default:
			data, err := json.Marshal(c)
			if err != nil {
				continue
			}
			parts = append(parts, string(data))
		}
	}
	return strings.Join(parts, "\n")
}

// joinRawContent renders content items decoded straight off the wire.
func joinRawContent(items []json.RawMessage) string {
	parts := make([]string, 0, len(items))
	for _, raw := range items {
		var head struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &head); err == nil && head.Type == "text" {
			parts = append(parts, head.Text)
			continue
		}
		parts = append(parts, string(raw))
	}
	return strings.Join(parts, "\n")
}

func toolInfoFromSDK(t mcpsdk.Tool) ToolInfo {
	schema := t.RawInputSchema
	if len(schema) == 0 {
		data, err := json.Marshal(t.InputSchema)
		if err == nil {
			schema = data
		}
	}
	return ToolInfo{Name: t.Name, Description: t.Description, InputSchema: schema}
}
