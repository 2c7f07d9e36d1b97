package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/flexpertsdev/flexios-v1/internal/session"
	"github.com/flexpertsdev/flexios-v1/internal/storage"
	"github.com/flexpertsdev/flexios-v1/internal/syncer"
	"github.com/flexpertsdev/flexios-v1/internal/tools"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// New creates a fully configured MCP server with all tools registered.
func New(store *storage.Store, sync *syncer.Orchestrator, sessions *session.Registry) *mcp.Server {
	dt := &tools.DocumentTools{Store: store}
	st := &tools.SyncTools{Sync: sync, Store: store, Sessions: sessions}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "flexios",
		Version: Version,
	}, nil)

	// Document tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_documents",
		Description: "List document keys, optionally filtered by key prefix (e.g. features/, pages/, library/)",
	}, dt.ListDocuments)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_document",
		Description: "Get one document's content by key",
	}, dt.GetDocument)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_documents",
		Description: "Search document keys and content using FTS5 full-text search",
	}, dt.SearchDocuments)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "apply_file_operations",
		Description: "Apply a batch of document writes and deletes atomically: either all operations are applied or none",
	}, dt.ApplyFileOperations)

	// Sync tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "set_sync_target",
		Description: "Choose the repository and branch this session syncs with",
	}, st.SetSyncTarget)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_sync_target",
		Description: "Get the repository and branch this session syncs with",
	}, st.GetSyncTarget)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "push",
		Description: "Publish every local document to the sync target as one commit (requires sync target)",
	}, st.Push)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "clone",
		Description: "Replace all local documents with the documents on the sync target (requires sync target)",
	}, st.Clone)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "prune",
		Description: "Remove remote documents that no longer exist locally (requires sync target)",
	}, st.Prune)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "sync_status",
		Description: "Report the state of the sync engine and the most recent sync runs",
	}, st.SyncStatus)

	return srv
}
