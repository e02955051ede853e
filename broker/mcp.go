package broker

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/philverify/feedwatch/kit"
)

// RegisterMCP registers the feedwatch tools on an MCP server, so an agent
// can query history, verify text, and manage settings beside the dashboard.
func (b *Broker) RegisterMCP(srv *mcp.Server) {
	b.registerHistoryTool(srv)
	b.registerVerifyTextTool(srv)
	b.registerSettingsTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (b *Broker) registerHistoryTool(srv *mcp.Server) {
	type req struct {
		Limit int `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "feedwatch_history",
		Description: "List recent fact-check verifications, newest first",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max entries (default 50)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return b.History(ctx, p.Limit)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (b *Broker) registerVerifyTextTool(srv *mcp.Server) {
	type req struct {
		Text string `json:"text"`
	}

	tool := &mcp.Tool{
		Name:        "feedwatch_verify_text",
		Description: "Fact-check a piece of text against the verification backend (cache-aware)",
		InputSchema: inputSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Claim text to verify"},
		}, []string{"text"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return b.Verify(ctx, KindText, p.Text)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (b *Broker) registerSettingsTool(srv *mcp.Server) {
	type req struct {
		APIBase  *string `json:"apiBase"`
		AutoScan *bool   `json:"autoScan"`
	}

	tool := &mcp.Tool{
		Name:        "feedwatch_settings",
		Description: "Read or update feedwatch settings; omit fields to read only",
		InputSchema: inputSchema(map[string]any{
			"apiBase":  map[string]any{"type": "string", "description": "Verification backend base URL (http/https)"},
			"autoScan": map[string]any{"type": "boolean", "description": "Scan feeds automatically"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		current, err := b.Settings(ctx)
		if err != nil {
			return nil, err
		}
		if p.APIBase == nil && p.AutoScan == nil {
			return current, nil
		}
		if p.APIBase != nil {
			current.APIBase = *p.APIBase
		}
		if p.AutoScan != nil {
			current.AutoScan = *p.AutoScan
		}
		if err := b.SaveSettings(ctx, current); err != nil {
			return nil, err
		}
		return current, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
