package metatool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/brokermcp/broker/internal/brokererr"
	"github.com/brokermcp/broker/internal/hooks"
	"github.com/brokermcp/broker/internal/observe"
	"github.com/brokermcp/broker/internal/store"
)

// ExecuteResult is execute_tool's response shape: the underlying call's
// content blocks, preserved by type, plus whether the broker itself
// considers the dispatch a success.
type ExecuteResult struct {
	Success  bool              `json:"success"`
	ToolName string            `json:"toolName"`
	Result   ExecuteToolResult `json:"result"`
}

// ExecuteToolResult mirrors mcpsdk.CallToolResult: content blocks plus the
// provider's own error flag.
type ExecuteToolResult struct {
	Content []mcpsdk.Content `json:"content"`
	IsError bool             `json:"isError"`
}

// ExecuteTool dispatches a call to toolName on the provider behind toolID,
// running the hook pipeline before and after, and bounding the call itself
// to toolCallTimeout.
func (s *Service) ExecuteTool(ctx context.Context, userID string, toolID uuid.UUID, toolName string, params map[string]any) (ExecuteResult, error) {
	start := time.Now()
	metrics := observe.DefaultMetrics()
	status := "ok"
	defer func() {
		metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())
		metrics.RecordToolCall(ctx, toolName, status)
	}()

	tool, provider, err := s.resolveVisibleTool(ctx, userID, toolID)
	if err != nil {
		status = "error"
		return ExecuteResult{}, err
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		status = "error"
		return ExecuteResult{}, brokererr.New(brokererr.KindValidation, "invalid tool params", err)
	}

	hctx := &hooks.HookContext{
		UserID:     userID,
		ProviderID: &provider.ID,
		ToolName:   toolName,
		ToolID:     &tool.ID,
		Timestamp:  time.Now(),
	}

	ranThrough, err := s.Hooks.RunBefore(hctx, rawParams)
	if err != nil {
		status = "error"
		_ = s.Hooks.RunAfter(hctx, &hooks.ToolCallOutcome{Success: false, Err: err.Error()}, ranThrough)
		return ExecuteResult{}, err
	}

	callResult, callErr := s.callTool(ctx, provider, toolName, params)

	outcome := &hooks.ToolCallOutcome{Success: callErr == nil}
	if callErr != nil {
		outcome.Err = callErr.Error()
	} else if encoded, encErr := json.Marshal(callResult.Content); encErr == nil {
		outcome.Result = encoded
	}
	_ = s.Hooks.RunAfter(hctx, outcome, ranThrough) // logging only, never propagated

	if callErr != nil {
		status = "error"
		return ExecuteResult{}, callErr
	}
	if callResult.IsError {
		status = "error"
	}
	return ExecuteResult{
		Success:  !callResult.IsError,
		ToolName: toolName,
		Result:   ExecuteToolResult{Content: callResult.Content, IsError: callResult.IsError},
	}, nil
}

// callTool connects (or reuses a pooled connection) to provider and invokes
// toolName on it, bounded by toolCallTimeout. A session/transport error on
// the first attempt is retried once after dropping the pooled connection and
// forcing a fresh connect; the second attempt's result (success or failure)
// is returned as-is.
func (s *Service) callTool(ctx context.Context, provider store.Provider, toolName string, params map[string]any) (*mcpsdk.CallToolResult, error) {
	result, err := s.callToolOnce(ctx, provider, toolName, params)
	if err == nil {
		return result, nil
	}
	if brokererr.Of(err) != brokererr.KindConnectionFailed {
		return nil, err
	}

	s.Pool.Remove(provider.ID.String())
	return s.callToolOnce(ctx, provider, toolName, params)
}

// callToolOnce is a single connect-and-invoke attempt, with no retry.
func (s *Service) callToolOnce(ctx context.Context, provider store.Provider, toolName string, params map[string]any) (*mcpsdk.CallToolResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	session, err := s.Pool.GetOrConnect(callCtx, provider, s.Connect)
	if err != nil {
		return nil, err
	}

	result, err := session.CallTool(callCtx, &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: params,
	})
	if err != nil {
		return nil, brokererr.New(brokererr.KindConnectionFailed, "tool call failed", err)
	}
	return result, nil
}
