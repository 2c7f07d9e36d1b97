package apply

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/flexpertsdev/flexios-v1/cmd/util"
	"github.com/flexpertsdev/flexios-v1/internal/assistant"
	"github.com/flexpertsdev/flexios-v1/internal/storage"
)

// Mocked for unit testing.
var (
	fs               = afero.NewOsFs()
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
)

// New creates a new `apply` command.
func New() *cobra.Command {
	var showContext bool
	cmd := &cobra.Command{
		Use:   "apply [file|-]",
		Short: "Apply an assistant response's file operations to the local documents",
		Long: "Apply an assistant response's file operations to the local documents. " +
			"The response is JSON with chatResponse and fileOperations fields, " +
			"optionally inside a markdown code fence. Either every operation " +
			"is applied or none is.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			env, err := util.OpenEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			ctx := context.Background()
			if showContext {
				listing, err := assistant.Context(ctx, env.Store)
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, listing)
				return nil
			}

			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			data, err := read(src)
			if err != nil {
				return err
			}
			return run(ctx, env.Store, data)
		},
	}
	cmd.Flags().BoolVar(&showContext, "context", false,
		"Print the document listing handed to the assistant instead of applying a response")
	return cmd
}

func read(src string) ([]byte, error) {
	if src == "-" {
		return io.ReadAll(stdin)
	}
	return afero.ReadFile(fs, src)
}

func run(ctx context.Context, store *storage.Store, data []byte) error {
	resp, err := assistant.Parse(data)
	if err != nil {
		return err
	}
	if resp.ChatResponse != "" {
		fmt.Fprintln(stdout, resp.ChatResponse)
	}
	n, err := assistant.Apply(ctx, store, resp)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Applied %d file operations\n", n)
	return nil
}
