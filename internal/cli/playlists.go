package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"song-quiz-service/internal/infra/memory"
	pgloader "song-quiz-service/internal/infra/postgres"
)

// NewPlaylistsCmd manages the Postgres playlist catalog.
func NewPlaylistsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playlists",
		Short: "Manage the playlist catalog",
	}

	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert every playlist of a YAML catalog into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Playlists.File
			}
			if file == "" {
				return errors.New("no catalog file given")
			}
			catalog, err := memory.LoadCatalog(file)
			if err != nil {
				return err
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg); err != nil {
				return err
			}

			var cl closers
			defer cl.close()
			pool, err := connectPostgres(cmd.Context(), cfg, &cl)
			if err != nil {
				return err
			}
			loader := pgloader.NewPlaylistLoader(pool)

			ids := catalog.IDs()
			slices.Sort(ids)
			for _, id := range ids {
				p, err := catalog.LoadPlaylist(cmd.Context(), id)
				if err != nil {
					return err
				}
				if err := loader.SavePlaylist(cmd.Context(), p); err != nil {
					return fmt.Errorf("save playlist %q: %w", id, err)
				}
				slog.Info("playlist imported", "playlist", id, "questions", len(p.Questions))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d playlists\n", len(ids))
			return nil
		},
	}
	importCmd.Flags().StringVar(&file, "file", "", "catalog file (defaults to playlists.file)")
	cmd.AddCommand(importCmd)
	return cmd
}
