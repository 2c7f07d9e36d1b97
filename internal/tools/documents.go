package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/flexpertsdev/flexios-v1/internal/assistant"
	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/storage"
)

// DocumentTools holds references needed by document tool handlers.
type DocumentTools struct {
	Store *storage.Store
}

// --- Input types ---

type ListDocumentsInput struct {
	Prefix string `json:"prefix,omitempty" jsonschema:"Only list keys starting with this prefix, e.g. features/"`
}

type GetDocumentInput struct {
	Key string `json:"key" jsonschema:"Document key, e.g. features/12"`
}

type SearchDocumentsInput struct {
	Query string `json:"query" jsonschema:"Search query (supports AND, OR, NOT and prefix*; other punctuation matches as a phrase)"`
}

type ApplyFileOperationsInput struct {
	ChatResponse   string                `json:"chatResponse,omitempty" jsonschema:"Reply shown to the user"`
	FileOperations []assistant.Operation `json:"fileOperations" jsonschema:"Writes and deletes applied as one batch"`
}

// --- Handlers ---

func (t *DocumentTools) ListDocuments(ctx context.Context, _ *mcp.CallToolRequest, input ListDocumentsInput) (*mcp.CallToolResult, any, error) {
	docs, err := t.Store.QueryByPrefix(ctx, input.Prefix)
	if err != nil {
		return toolError("Failed to list documents: %v", err), nil, nil
	}

	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.Key
	}
	return toolJSON(keys)
}

func (t *DocumentTools) GetDocument(ctx context.Context, _ *mcp.CallToolRequest, input GetDocumentInput) (*mcp.CallToolResult, any, error) {
	if input.Key == "" {
		return toolError("Document key is required"), nil, nil
	}

	doc, ok, err := t.Store.Get(ctx, input.Key)
	if err != nil {
		return toolError("Failed to get document: %v", err), nil, nil
	}
	if !ok {
		return toolError("Document %q not found", input.Key), nil, nil
	}
	return toolJSON(doc)
}

func (t *DocumentTools) SearchDocuments(ctx context.Context, _ *mcp.CallToolRequest, input SearchDocumentsInput) (*mcp.CallToolResult, any, error) {
	if input.Query == "" {
		return toolError("Search query is required"), nil, nil
	}

	docs, err := t.Store.Search(ctx, input.Query)
	if err != nil {
		return toolError("Search failed: %v", err), nil, nil
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return toolJSON(docs)
}

func (t *DocumentTools) ApplyFileOperations(ctx context.Context, _ *mcp.CallToolRequest, input ApplyFileOperationsInput) (*mcp.CallToolResult, any, error) {
	resp, err := assistant.Validate(input.ChatResponse, input.FileOperations)
	if err != nil {
		return toolError("Rejected file operations: %v", err), nil, nil
	}

	n, err := assistant.Apply(ctx, t.Store, resp)
	if err != nil {
		return toolError("Failed to apply file operations: %v", err), nil, nil
	}
	return toolText(fmt.Sprintf("Applied %d file operations.", n)), nil, nil
}
