package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sashabaranov/go-openai"

	"voxd-server/internal/platform/logging"
)

// ToolRegistry exposes a local tool server (spawned over stdio) as
// OpenAI-compatible function-calling tools.
type ToolRegistry struct {
	client *mcpclient.Client
	tools  []openai.Tool
	logger *logging.Logger
}

// NewToolRegistry launches command as an MCP stdio server and lists its
// tools. The returned registry is ready to pass to NewEngine once
// Initialize succeeds.
func NewToolRegistry(ctx context.Context, command string, args, env []string, logger *logging.Logger) (*ToolRegistry, error) {
	client, err := mcpclient.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("start mcp tool server: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "voxd-server", Version: "1.0.0"}
	if _, err := client.Initialize(initCtx, initReq); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("initialize mcp tool server: %w", err)
	}

	listed, err := client.ListTools(initCtx, mcp.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("list mcp tools: %w", err)
	}

	r := &ToolRegistry{client: client, logger: logger}
	for _, t := range listed.Tools {
		schema, _ := json.Marshal(t.InputSchema)
		var params map[string]any
		_ = json.Unmarshal(schema, &params)
		r.tools = append(r.tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return r, nil
}

// Tools returns the OpenAI-compatible tool definitions.
func (r *ToolRegistry) Tools() []openai.Tool {
	return r.tools
}

// Call invokes a named tool with JSON-encoded arguments and returns its
// text result.
func (r *ToolRegistry) Call(ctx context.Context, name, argsJSON string) (string, error) {
	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("decode tool arguments: %w", err)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := r.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}

	var out string
	for _, item := range result.Content {
		if text, ok := item.(mcp.TextContent); ok {
			out += text.Text
		}
	}
	return out, nil
}

// Close shuts down the underlying tool server process.
func (r *ToolRegistry) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
