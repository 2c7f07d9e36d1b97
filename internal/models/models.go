package models

import (
	"fmt"
	"strings"
)

// Document is one spec item in the local store.
type Document struct {
	Key     string `json:"id"`
	Content string `json:"content"`
}

// Action is the kind of a FileOperation.
type Action string

const (
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// FileOperation is one entry of a mutation batch. Delete operations only use
// File.Key.
type FileOperation struct {
	Action Action   `json:"action"`
	File   Document `json:"file"`
}

// WriteOp returns a write operation for doc.
func WriteOp(doc Document) FileOperation {
	return FileOperation{Action: ActionWrite, File: doc}
}

// DeleteOp returns a delete operation for key.
func DeleteOp(key string) FileOperation {
	return FileOperation{Action: ActionDelete, File: Document{Key: key}}
}

// SyncTarget identifies the remote repository and tracked branch a sync
// operates on.
type SyncTarget struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
}

// DefaultBranch is used when a target does not name one.
const DefaultBranch = "main"

// WithDefaults fills in the branch if it is empty.
func (t SyncTarget) WithDefaults() SyncTarget {
	if t.Branch == "" {
		t.Branch = DefaultBranch
	}
	return t
}

// Validate reports whether the target names a repository.
func (t SyncTarget) Validate() error {
	if t.Owner == "" {
		return fmt.Errorf("sync target: owner is required")
	}
	if t.Repo == "" {
		return fmt.Errorf("sync target: repo is required")
	}
	for _, name := range []string{t.Owner, t.Repo} {
		if strings.ContainsAny(name, "/ \t\n") {
			return fmt.Errorf("sync target: invalid name %q", name)
		}
	}
	return nil
}

func (t SyncTarget) String() string {
	return fmt.Sprintf("%s/%s@%s", t.Owner, t.Repo, t.Branch)
}

// SyncRun is a row in the sync run log.
type SyncRun struct {
	ID         string `json:"id"`
	Operation  string `json:"operation"`
	Target     string `json:"target"`
	Status     string `json:"status"`
	CommitSHA  string `json:"commit_sha,omitempty"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// Payload types stored as JSON document content. They mirror what the builder
// UI reads back; the sync engine treats content as opaque.

// Feature is stored under features/<id>.
type Feature struct {
	ID           int      `json:"id"`
	Name         string   `json:"name"`
	Status       string   `json:"status"`
	Priority     string   `json:"priority"`
	Complexity   string   `json:"complexity"`
	Description  string   `json:"description"`
	Requirements []string `json:"requirements"`
	Dependencies []string `json:"dependencies"`
}

// Page is stored under pages/<id>.
type Page struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Features []int  `json:"features"`
	Database []int  `json:"database"`
	Type     string `json:"type,omitempty"`
}

// DatabaseTable is stored under database/<id>.
type DatabaseTable struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Fields string `json:"fields"`
}

// Documentation is stored under library/docs/<id>.
type Documentation struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
}
