package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendsCmd_ListsEveryRegisteredBackend(t *testing.T) {
	// Given: the backends command
	cmd := newBackendsCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	// When: executing
	err := cmd.Execute()

	// Then: every backend id appears with a summary
	require.NoError(t, err)
	output := buf.String()
	for _, id := range []string{"scan", "tfvector", "lexical", "embedfile", "embedmem", "embedhnsw", "hybrid"} {
		assert.Contains(t, output, id)
	}
	assert.Contains(t, output, "BM25")
}
