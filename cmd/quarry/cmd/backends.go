package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/internal/backend"
	"github.com/quarrylabs/quarry/internal/embed"
)

// backendSummaries maps each registry id to a one-line description for
// the listing. Keep in sync with backend.NewRegistry.
var backendSummaries = map[string]string{
	"scan":      "naive full-text substring scan, no artifacts",
	"tfvector":  "term-frequency cosine similarity, no artifacts",
	"lexical":   "SQLite FTS5 full-text search ranked by BM25",
	"embedfile": "dense embeddings streamed from disk in batches",
	"embedmem":  "dense embeddings held fully in memory",
	"embedhnsw": "approximate nearest neighbor over an HNSW graph",
	"hybrid":    "weighted fusion of a lexical and an embedding backend",
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the registered retrieval backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Listing does not need a corpus or a real provider.
			registry := backend.NewRegistry(embed.NewStaticEmbedder(0))
			out := cmd.OutOrStdout()
			for _, id := range registry.IDs() {
				fmt.Fprintf(out, "%-10s %s\n", id, backendSummaries[id])
			}
			return nil
		},
	}
}
