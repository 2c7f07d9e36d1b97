package clone

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flexpertsdev/flexios-v1/cmd/util"
	"github.com/flexpertsdev/flexios-v1/internal/models"
)

// New creates a new `clone` command.
func New() *cobra.Command {
	var force bool
	var target util.TargetFlags
	cmd := &cobra.Command{
		Use:   "clone [owner/repo[@branch] | https://github.com/owner/repo]",
		Short: "Replace the local documents with the documents on a repository",
		Long: "Replace the local documents with the documents on a repository. " +
			"Without an argument the configured sync target is used. " +
			"The local store is only replaced once every document was fetched.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				parsed, err := parseRepoArg(args[0])
				if err != nil {
					return err
				}
				target = util.TargetFlags{
					Owner:  parsed.Owner,
					Repo:   parsed.Repo,
					Branch: firstNonEmpty(target.Branch, parsed.Branch),
				}
			}

			env, err := util.OpenEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			t, err := target.Resolve(env.Config)
			if err != nil {
				return err
			}

			ctx, cancel := util.SignalContext()
			defer cancel()
			if !force {
				n, err := env.Store.Count(ctx)
				if err != nil {
					return err
				}
				if n > 0 {
					return fmt.Errorf("the local store holds %d documents that clone would replace. "+
						"Pass --force to replace them", n)
				}
			}

			sync, err := env.Orchestrator()
			if err != nil {
				return err
			}
			res, err := sync.Clone(ctx, t)
			if err != nil {
				return err
			}
			fmt.Printf("Cloned %d documents from %s\n", res.Documents, res.Target)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace local documents without asking")
	target.Register(cmd)
	return cmd
}

// parseRepoArg accepts owner/repo, owner/repo@branch, or a repository URL
// such as https://github.com/owner/repo.git.
func parseRepoArg(arg string) (models.SyncTarget, error) {
	var t models.SyncTarget
	path := arg
	if strings.Contains(arg, "://") {
		u, err := url.Parse(arg)
		if err != nil {
			return t, fmt.Errorf("parse repository url: %w", err)
		}
		path = strings.Trim(u.Path, "/")
		// Browser URLs for a branch look like owner/repo/tree/branch.
		if parts := strings.SplitN(path, "/", 4); len(parts) == 4 && parts[2] == "tree" {
			path = parts[0] + "/" + parts[1] + "@" + parts[3]
		}
	}

	if i := strings.LastIndex(path, "@"); i >= 0 {
		t.Branch = path[i+1:]
		path = path[:i]
	}
	owner, repo, ok := strings.Cut(path, "/")
	repo = strings.TrimSuffix(repo, ".git")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return models.SyncTarget{}, fmt.Errorf("invalid repository %q: use owner/repo or a repository URL", arg)
	}
	t.Owner, t.Repo = owner, repo
	return t, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
