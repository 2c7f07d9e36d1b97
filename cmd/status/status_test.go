package status

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/storage"
)

func TestPrintRuns(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, printRuns(ctx, &out, store, 10))
	assert.Equal(t, "Local documents: 0\nNo sync runs yet.\n", out.String())

	require.NoError(t, store.Put(ctx, models.Document{Key: "features/1", Content: "{}"}))
	id, err := store.StartRun(ctx, "push", "octo/specs@main")
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(ctx, id, storage.RunSucceeded, "0123456789abcdef", nil))
	id, err = store.StartRun(ctx, "clone", "octo/specs@main")
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(ctx, id, storage.RunFailed, "", errors.New("offline")))

	out.Reset()
	require.NoError(t, printRuns(ctx, &out, store, 10))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Equal(t, "Local documents: 1", string(lines[0]))
	assert.Contains(t, string(lines[1]), "OPERATION")
	assert.Contains(t, string(lines[2]), "offline")
	assert.Contains(t, string(lines[3]), "0123456")
	assert.NotContains(t, string(lines[3]), "01234567")

	out.Reset()
	require.NoError(t, printRun(ctx, &out, store, id))
	assert.Contains(t, out.String(), "Operation:  clone")
	assert.Contains(t, out.String(), "Error:      offline")
	assert.NotContains(t, out.String(), "Commit:")

	assert.Error(t, printRun(ctx, &out, store, "missing"))
}
