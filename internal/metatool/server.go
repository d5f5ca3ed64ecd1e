package metatool

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// userIDKey is the context key the gateway's bearer-auth middleware sets
// once a request's token has been validated; every meta-tool handler reads
// the caller's identity back out of it.
type userIDKey struct{}

// WithUserID attaches the authenticated caller's user id to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext recovers the user id attached by WithUserID. Every
// meta-tool handler is reached only through the gateway's authenticated
// /mcp endpoint, so an absent value indicates a wiring bug rather than a
// client error.
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("metatool: no authenticated user in context")
	}
	return userID, nil
}

// DiscoverToolsInput is discover_tools' argument shape.
type DiscoverToolsInput struct {
	Query  string `json:"query" jsonschema:"Natural-language description of the capability being sought"`
	Domain string `json:"domain,omitempty" jsonschema:"Optional domain tag to restrict the search to"`
}

// ListToolDomainsInput is list_tool_domains' (empty) argument shape.
type ListToolDomainsInput struct{}

// BrowseToolDomainInput is browse_tool_domain's argument shape.
type BrowseToolDomainInput struct {
	DomainID string `json:"domainId" jsonschema:"Domain tag to list every visible tool for"`
}

// GetToolSchemaInput is get_tool_schema's argument shape.
type GetToolSchemaInput struct {
	ToolID string `json:"toolId" jsonschema:"Identifier of the tool to fetch the manifest for"`
}

// ExecuteToolInput is execute_tool's argument shape.
type ExecuteToolInput struct {
	ToolID   string         `json:"toolId" jsonschema:"Identifier of the tool to invoke"`
	ToolName string         `json:"toolName" jsonschema:"Name of the tool as registered by its provider"`
	Params   map[string]any `json:"params,omitempty" jsonschema:"Arguments to pass to the tool"`
}

// NewServer builds the MCP server exposing the five meta-tools, each
// wrapped so its handler resolves the caller from ctx before delegating to
// the corresponding Service method.
func NewServer(s *Service, impl *mcpsdk.Implementation) *mcpsdk.Server {
	server := mcpsdk.NewServer(impl, &mcpsdk.ServerOptions{
		Instructions: "Discover and invoke tools across every MCP server registered with this broker. " +
			"Start with discover_tools or list_tool_domains to find relevant tools, " +
			"get_tool_schema to see a tool's exact parameters, then execute_tool to call it.",
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "discover_tools",
		Description: "Search for tools across every accessible provider by semantic similarity to a query.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, input DiscoverToolsInput) (*mcpsdk.CallToolResult, any, error) {
		userID, err := UserIDFromContext(ctx)
		if err != nil {
			return nil, nil, err
		}
		result, err := s.DiscoverTools(ctx, userID, input.Query, input.Domain)
		if err != nil {
			return nil, nil, err
		}
		return nil, result, nil
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "list_tool_domains",
		Description: "List every tool domain visible to the caller, with a tool count per domain.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, _ ListToolDomainsInput) (*mcpsdk.CallToolResult, any, error) {
		userID, err := UserIDFromContext(ctx)
		if err != nil {
			return nil, nil, err
		}
		result, err := s.ListToolDomains(ctx, userID)
		if err != nil {
			return nil, nil, err
		}
		return nil, result, nil
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "browse_tool_domain",
		Description: "List every visible tool tagged with a given domain, unordered.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, input BrowseToolDomainInput) (*mcpsdk.CallToolResult, any, error) {
		userID, err := UserIDFromContext(ctx)
		if err != nil {
			return nil, nil, err
		}
		result, err := s.BrowseToolDomain(ctx, userID, input.DomainID)
		if err != nil {
			return nil, nil, err
		}
		return nil, result, nil
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "get_tool_schema",
		Description: "Fetch the stored manifest for a tool, verbatim.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, input GetToolSchemaInput) (*mcpsdk.CallToolResult, any, error) {
		userID, err := UserIDFromContext(ctx)
		if err != nil {
			return nil, nil, err
		}
		toolID, err := uuid.Parse(input.ToolID)
		if err != nil {
			return nil, nil, fmt.Errorf("metatool: invalid tool id %q: %w", input.ToolID, err)
		}
		schema, err := s.GetToolSchema(ctx, userID, toolID)
		if err != nil {
			return nil, nil, err
		}
		return nil, schema, nil
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "execute_tool",
		Description: "Invoke a tool on its provider and return its result.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, input ExecuteToolInput) (*mcpsdk.CallToolResult, any, error) {
		userID, err := UserIDFromContext(ctx)
		if err != nil {
			return nil, nil, err
		}
		toolID, err := uuid.Parse(input.ToolID)
		if err != nil {
			return nil, nil, fmt.Errorf("metatool: invalid tool id %q: %w", input.ToolID, err)
		}
		result, err := s.ExecuteTool(ctx, userID, toolID, input.ToolName, input.Params)
		if err != nil {
			return nil, nil, err
		}
		return nil, result, nil
	})

	return server
}
