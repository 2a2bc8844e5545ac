package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"song-quiz-service/internal/app"
	"song-quiz-service/internal/config"
	"song-quiz-service/internal/infra/memory"
)

// NewProgressCmd inspects and clears stored profile progress.
func NewProgressCmd(configPath *string) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Inspect or reset a profile's progress",
	}
	cmd.PersistentFlags().StringVar(&profile, "profile", "", "profile id (empty is the default profile)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print levels, experience and completed songs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := offlineService(*configPath)
			if err != nil {
				return err
			}
			defer done()
			report, err := svc.Progress(cmd.Context(), profile)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	})

	var confirm bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete every progress record of a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("refusing to reset without --yes")
			}
			svc, done, err := offlineService(*configPath)
			if err != nil {
				return err
			}
			defer done()
			if err := svc.ResetProgress(cmd.Context(), profile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "progress reset for profile %q\n", profile)
			return nil
		},
	}
	reset.Flags().BoolVar(&confirm, "yes", false, "confirm the reset")
	cmd.AddCommand(reset)
	return cmd
}

// offlineService opens the configured progress store without starting any
// session machinery.
func offlineService(configPath string) (*app.GameService, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Driver == config.StorageMemory {
		return nil, nil, errors.New("storage.driver is memory; there is no stored progress to read")
	}
	var cl closers
	client := newRedisClient(cfg)
	if client != nil {
		cl.add(func() { _ = client.Close() })
	}
	store, err := openProgressStore(cfg, client, &cl)
	if err != nil {
		cl.close()
		return nil, nil, err
	}
	playlists := memory.NewPlaylistRepository(memory.NewStaticPlaylistLoader(nil), 0)
	svc := app.NewGameService(memory.NewSessionStore(), playlists, store, gameSettings(cfg))
	return svc, cl.close, nil
}
