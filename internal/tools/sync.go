package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/session"
	"github.com/flexpertsdev/flexios-v1/internal/storage"
	"github.com/flexpertsdev/flexios-v1/internal/syncer"
	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

// SyncTools holds references needed by sync tool handlers.
type SyncTools struct {
	Sync     *syncer.Orchestrator
	Store    *storage.Store
	Sessions *session.Registry
}

// --- Input types ---

type SetSyncTargetInput struct {
	Owner  string `json:"owner" jsonschema:"Repository owner (user or organization)"`
	Repo   string `json:"repo" jsonschema:"Repository name"`
	Branch string `json:"branch,omitempty" jsonschema:"Tracked branch, defaults to main"`
}

type PushInput struct {
	Message string `json:"message,omitempty" jsonschema:"Commit message"`
}

type SyncStatusInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Number of recent runs to include, defaults to 10"`
}

// --- Handlers ---

func (t *SyncTools) sessionFor(req *mcp.CallToolRequest) *session.Session {
	id := ""
	if req != nil && req.Session != nil {
		id = req.Session.ID()
	}
	return t.Sessions.Get(id)
}

func (t *SyncTools) requireTarget(req *mcp.CallToolRequest) (models.SyncTarget, *mcp.CallToolResult) {
	target, ok := t.sessionFor(req).Target()
	if !ok {
		return models.SyncTarget{}, toolError("No sync target. Use set_sync_target to choose a repository.")
	}
	return target, nil
}

func (t *SyncTools) SetSyncTarget(_ context.Context, req *mcp.CallToolRequest, input SetSyncTargetInput) (*mcp.CallToolResult, any, error) {
	target, err := t.sessionFor(req).SetTarget(models.SyncTarget{
		Owner:  input.Owner,
		Repo:   input.Repo,
		Branch: input.Branch,
	})
	if err != nil {
		return toolError("Invalid sync target: %v", err), nil, nil
	}
	return toolJSON(target)
}

func (t *SyncTools) GetSyncTarget(_ context.Context, req *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	target, ok := t.sessionFor(req).Target()
	if !ok {
		return toolText("No sync target is set. Use set_sync_target to choose a repository."), nil, nil
	}
	return toolJSON(target)
}

func (t *SyncTools) Push(ctx context.Context, req *mcp.CallToolRequest, input PushInput) (*mcp.CallToolResult, any, error) {
	target, errResult := t.requireTarget(req)
	if errResult != nil {
		return errResult, nil, nil
	}

	res, err := t.Sync.Push(ctx, target, input.Message)
	if err != nil {
		return toolError("%s", syncerr.Summary(err)), nil, nil
	}
	return toolJSON(res)
}

func (t *SyncTools) Clone(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	target, errResult := t.requireTarget(req)
	if errResult != nil {
		return errResult, nil, nil
	}

	res, err := t.Sync.Clone(ctx, target)
	if err != nil {
		return toolError("%s", syncerr.Summary(err)), nil, nil
	}
	return toolJSON(res)
}

func (t *SyncTools) Prune(ctx context.Context, req *mcp.CallToolRequest, input PushInput) (*mcp.CallToolResult, any, error) {
	target, errResult := t.requireTarget(req)
	if errResult != nil {
		return errResult, nil, nil
	}

	res, err := t.Sync.Prune(ctx, target, input.Message)
	if err != nil {
		return toolError("%s", syncerr.Summary(err)), nil, nil
	}
	if len(res.Removed) == 0 {
		return toolText("Nothing to prune: every remote document exists locally."), nil, nil
	}
	return toolJSON(res)
}

func (t *SyncTools) SyncStatus(ctx context.Context, _ *mcp.CallToolRequest, input SyncStatusInput) (*mcp.CallToolResult, any, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	runs, err := t.Store.ListRuns(ctx, limit)
	if err != nil {
		return toolError("Failed to list sync runs: %v", err), nil, nil
	}
	return toolJSON(struct {
		Status syncer.Status    `json:"status"`
		Runs   []models.SyncRun `json:"runs"`
	}{t.Sync.Status(), runs})
}

// --- Helpers ---

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
