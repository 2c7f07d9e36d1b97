package create

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flexpertsdev/flexios-v1/cmd/util"
	"github.com/flexpertsdev/flexios-v1/internal/config"
)

// Mocked for unit testing.
var writeUserConfig = config.WriteUser

// New creates a new `create` command.
func New() *cobra.Command {
	var public, save bool
	var description, message string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a repository and push the local documents to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			env, err := util.OpenEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			sync, err := env.Orchestrator()
			if err != nil {
				return err
			}

			ctx, cancel := util.SignalContext()
			defer cancel()
			repo, res, err := sync.CreateAndPush(ctx, args[0], description, !public, message)
			if err != nil {
				if repo.Name != "" {
					return fmt.Errorf("created %s but the push failed: %w", repo.HTMLURL, err)
				}
				return err
			}
			fmt.Printf("Created %s\n", repo.HTMLURL)
			fmt.Printf("Pushed %d documents in commit %s\n", res.Files, res.CommitSHA)

			if save {
				cfg := env.Config
				target := repo.Target()
				cfg.Owner, cfg.Repo, cfg.Branch = target.Owner, target.Repo, target.Branch
				if err := writeUserConfig(cfg); err != nil {
					return fmt.Errorf("save sync target: %w", err)
				}
				fmt.Printf("Saved %s as the sync target in %s\n", target, config.UserConfigPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&public, "public", false, "Create a public repository")
	cmd.Flags().StringVar(&description, "description", "", "Repository description")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message")
	cmd.Flags().BoolVar(&save, "save", true, "Save the new repository as the sync target in the user config")
	return cmd
}
