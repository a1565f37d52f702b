package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Materialize a retrieval snapshot for the configured backend",
		Long: `Build walks the corpus, materializes the configured backend's
artifacts under the artifact directory, and persists the snapshot
document. Rebuilding against an unchanged catalog reuses the same
snapshot id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			b, err := eng.registry.Get(eng.cfg.Backend.ID)
			if err != nil {
				return err
			}
			snap, err := b.BuildSnapshot(cmd.Context(), eng.corpus,
				eng.cfg.Backend.Name, eng.cfg.Backend.Configuration)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "snapshot_id:      %s\n", snap.SnapshotID)
			fmt.Fprintf(out, "configuration_id: %s\n", snap.Configuration.ConfigurationID)
			fmt.Fprintf(out, "retriever:        %s\n", snap.Configuration.RetrieverID)
			fmt.Fprintf(out, "catalog_at:       %s\n", snap.CatalogGeneratedAt.Format("2006-01-02T15:04:05Z07:00"))
			for _, artifact := range snap.Artifacts {
				fmt.Fprintf(out, "artifact:         %s\n", artifact)
			}
			for k, v := range snap.Stats {
				fmt.Fprintf(out, "stat %-16s %s\n", k+":", v)
			}
			return nil
		},
	}
}
