package prune

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flexpertsdev/flexios-v1/cmd/util"
)

// New creates a new `prune` command.
func New() *cobra.Command {
	var message string
	var target util.TargetFlags
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove remote documents that no longer exist locally",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			env, err := util.OpenEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			t, err := target.Resolve(env.Config)
			if err != nil {
				return err
			}
			sync, err := env.Orchestrator()
			if err != nil {
				return err
			}

			ctx, cancel := util.SignalContext()
			defer cancel()
			res, err := sync.Prune(ctx, t, message)
			if err != nil {
				return err
			}
			if len(res.Removed) == 0 {
				fmt.Println("Nothing to remove.")
				return nil
			}
			fmt.Printf("Removed %d documents from %s\n", len(res.Removed), res.Target)
			for _, key := range res.Removed {
				fmt.Printf("  %s\n", key)
			}
			fmt.Printf("Commit %s\n", res.CommitSHA)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message")
	target.Register(cmd)
	return cmd
}
