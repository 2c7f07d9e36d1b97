package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flexpertsdev/flexios-v1/cmd/apply"
	"github.com/flexpertsdev/flexios-v1/cmd/clone"
	"github.com/flexpertsdev/flexios-v1/cmd/create"
	"github.com/flexpertsdev/flexios-v1/cmd/docs"
	"github.com/flexpertsdev/flexios-v1/cmd/prune"
	"github.com/flexpertsdev/flexios-v1/cmd/push"
	"github.com/flexpertsdev/flexios-v1/cmd/serve"
	"github.com/flexpertsdev/flexios-v1/cmd/status"
	"github.com/flexpertsdev/flexios-v1/cmd/util"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "FLEXIOS_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "flexios",
		Short:        "Keep a local app specification in sync with a Git repository",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		apply.New(),
		clone.New(),
		create.New(),
		docs.New(),
		prune.New(),
		push.New(),
		serve.New(),
		status.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
