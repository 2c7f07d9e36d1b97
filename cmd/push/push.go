package push

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/flexpertsdev/flexios-v1/cmd/util"
	"github.com/flexpertsdev/flexios-v1/internal/syncer"
)

// Mocked for unit testing.
var stdout io.Writer = os.Stdout

// New creates a new `push` command.
func New() *cobra.Command {
	var message string
	var target util.TargetFlags
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Publish every local document to the sync target as one commit",
		Long: "Publish every local document to the sync target as one commit. " +
			"Remote documents that no longer exist locally are kept; " +
			"use `flexios prune` to remove them.",
		Args: cobra.NoArgs,
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
			res, err := sync.Push(ctx, t, message)
			if err != nil {
				return err
			}
			PrintResult(stdout, res)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message")
	target.Register(cmd)
	return cmd
}

// PrintResult writes a short description of a completed push.
func PrintResult(w io.Writer, res syncer.PushResult) {
	switch res.Mode {
	case syncer.Bootstrap:
		fmt.Fprintf(w, "Created branch %s with %d documents\n", res.Target, res.Files)
	default:
		fmt.Fprintf(w, "Updated %s with %d documents\n", res.Target, res.Files)
	}
	if res.CommitSHA != "" {
		fmt.Fprintf(w, "Commit %s\n", res.CommitSHA)
	}
}
