package status

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flexpertsdev/flexios-v1/cmd/util"
	"github.com/flexpertsdev/flexios-v1/internal/storage"
)

// New creates a new `status` command.
func New() *cobra.Command {
	var limit int
	var runID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sync target and the most recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			env, err := util.OpenEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := context.Background()
			if runID != "" {
				return printRun(ctx, os.Stdout, env.Store, runID)
			}

			target := env.Config.Target()
			if target.Validate() == nil {
				fmt.Printf("Sync target: %s\n", target)
				last, err := env.Store.LastCommit(ctx, target.String())
				if err != nil {
					return err
				}
				if last != "" {
					fmt.Printf("Last synced commit: %s\n", last)
				}
			} else {
				fmt.Println("Sync target: not configured")
			}
			return printRuns(ctx, os.Stdout, env.Store, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show the details of one run")
	return cmd
}

func printRuns(ctx context.Context, out io.Writer, store *storage.Store, limit int) error {
	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Local documents: %d\n", n)

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No sync runs yet.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tOPERATION\tTARGET\tSTATUS\tCOMMIT\tERROR")
	for _, run := range runs {
		commit := run.CommitSHA
		if len(commit) > 7 {
			commit = commit[:7]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.StartedAt,
			run.Operation, run.Target, run.Status, commit, run.Error)
	}
	return w.Flush()
}

func printRun(ctx context.Context, out io.Writer, store *storage.Store, id string) error {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", run.ID)
	fmt.Fprintf(w, "Operation:\t%s\n", run.Operation)
	fmt.Fprintf(w, "Target:\t%s\n", run.Target)
	fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	fmt.Fprintf(w, "Started:\t%s\n", run.StartedAt)
	fmt.Fprintf(w, "Finished:\t%s\n", run.FinishedAt)
	if run.CommitSHA != "" {
		fmt.Fprintf(w, "Commit:\t%s\n", run.CommitSHA)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", run.Error)
	}
	return w.Flush()
}
