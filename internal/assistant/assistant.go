// Package assistant handles the structured response an AI collaborator
// returns: a chat message plus a batch of document writes and deletes.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/pathcodec"
	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

// Response is a validated assistant response.
type Response struct {
	ChatResponse   string                 `json:"chatResponse"`
	FileOperations []models.FileOperation `json:"fileOperations,omitempty"`
}

// File is the file part of an operation as the assistant sends it. Key is
// accepted as an alias of ID.
type File struct {
	ID      string  `json:"id,omitempty" jsonschema:"Document key, e.g. features/12"`
	Key     string  `json:"key,omitempty" jsonschema:"Alias of id"`
	Content *string `json:"content,omitempty" jsonschema:"Serialized document content, required for write"`
}

// Operation is one file operation as the assistant sends it.
type Operation struct {
	Action string `json:"action" jsonschema:"write or delete"`
	File   *File  `json:"file" jsonschema:"The document to write or delete"`
}

type wireResponse struct {
	ChatResponse   string      `json:"chatResponse"`
	FileOperations []Operation `json:"fileOperations"`
}

// Parse decodes and validates a response. The JSON may be wrapped in a
// markdown code fence.
func Parse(data []byte) (Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(stripFence(data), &wire); err != nil {
		return Response{}, syncerr.Kind(syncerr.ErrEncoding, fmt.Errorf("decode assistant response: %w", err))
	}
	return Validate(wire.ChatResponse, wire.FileOperations)
}

// Validate checks every operation. Every problem is reported as
// syncerr.ErrEncoding, and nothing is returned if any operation is invalid.
func Validate(chat string, ops []Operation) (Response, error) {
	resp := Response{ChatResponse: chat}
	for i, op := range ops {
		parsed, err := parseOperation(op)
		if err != nil {
			return Response{}, syncerr.Kind(syncerr.ErrEncoding, fmt.Errorf("file operation %d: %w", i, err))
		}
		resp.FileOperations = append(resp.FileOperations, parsed)
	}
	return resp, nil
}

func parseOperation(op Operation) (models.FileOperation, error) {
	if op.File == nil {
		return models.FileOperation{}, fmt.Errorf("missing file")
	}
	key := op.File.ID
	if key == "" {
		key = op.File.Key
	}
	if err := pathcodec.ValidateKey(key); err != nil {
		return models.FileOperation{}, err
	}

	switch models.Action(op.Action) {
	case models.ActionWrite:
		if op.File.Content == nil {
			return models.FileOperation{}, fmt.Errorf("write of %q has no content", key)
		}
		return models.WriteOp(models.Document{Key: key, Content: *op.File.Content}), nil
	case models.ActionDelete:
		return models.DeleteOp(key), nil
	default:
		return models.FileOperation{}, fmt.Errorf("unknown action %q", op.Action)
	}
}

func stripFence(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, []byte("```")) {
		return trimmed
	}
	// Drop the opening fence line, including any language tag.
	if i := bytes.IndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	} else {
		return trimmed
	}
	trimmed = bytes.TrimSpace(trimmed)
	return bytes.TrimSpace(bytes.TrimSuffix(trimmed, []byte("```")))
}

// Applier applies a batch of operations atomically.
type Applier interface {
	Apply(ctx context.Context, ops []models.FileOperation) error
}

// Apply applies every operation of resp as one atomic batch and returns the
// number of operations applied.
func Apply(ctx context.Context, store Applier, resp Response) (int, error) {
	if len(resp.FileOperations) == 0 {
		return 0, nil
	}
	if err := store.Apply(ctx, resp.FileOperations); err != nil {
		return 0, fmt.Errorf("apply assistant operations: %w", err)
	}
	return len(resp.FileOperations), nil
}

// KeyLister lists document keys.
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Context returns the listing of current document keys handed to the
// assistant, one per line.
func Context(ctx context.Context, store KeyLister) (string, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join(keys, "\n"), nil
}
