// Package docs implements `flexios docs`, the local document commands.
package docs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/flexpertsdev/flexios-v1/cmd/util"
	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/pathcodec"
	"github.com/flexpertsdev/flexios-v1/internal/storage"
)

// Mocked for unit testing.
var (
	fs               = afero.NewOsFs()
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
)

// New creates a new `docs` command.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Read and edit the local documents",
	}

	var replace bool
	importCmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Import documents from a directory laid out like the repository",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, s *storage.Store, args []string) error {
			n, err := importDir(ctx, s, args[0], replace)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Imported %d documents\n", n)
			return nil
		}),
	}
	importCmd.Flags().BoolVar(&replace, "replace", false, "Remove local documents missing from the directory")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "ls [prefix]",
			Short: "List document keys",
			Args:  cobra.MaximumNArgs(1),
			RunE: withStore(func(ctx context.Context, s *storage.Store, args []string) error {
				prefix := ""
				if len(args) == 1 {
					prefix = args[0]
				}
				docs, err := s.QueryByPrefix(ctx, prefix)
				if err != nil {
					return err
				}
				for _, doc := range docs {
					fmt.Fprintln(stdout, doc.Key)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a document",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(ctx context.Context, s *storage.Store, args []string) error {
				doc, ok, err := s.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("document %q not found", args[0])
				}
				fmt.Fprintln(stdout, doc.Content)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "put <key> [file|-]",
			Short: "Write a document from a file or stdin",
			Args:  cobra.RangeArgs(1, 2),
			RunE: withStore(func(ctx context.Context, s *storage.Store, args []string) error {
				src := "-"
				if len(args) == 2 {
					src = args[1]
				}
				content, err := readInput(src)
				if err != nil {
					return err
				}
				return put(ctx, s, args[0], content)
			}),
		},
		&cobra.Command{
			Use:   "rm <key>...",
			Short: "Delete documents",
			Args:  cobra.MinimumNArgs(1),
			RunE: withStore(func(ctx context.Context, s *storage.Store, args []string) error {
				ops := make([]models.FileOperation, 0, len(args))
				for _, key := range args {
					ops = append(ops, models.DeleteOp(key))
				}
				return s.Apply(ctx, ops)
			}),
		},
		&cobra.Command{
			Use:   "search <query>",
			Short: "Full text search over document keys and content",
			Args:  cobra.MinimumNArgs(1),
			RunE: withStore(func(ctx context.Context, s *storage.Store, args []string) error {
				docs, err := s.Search(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				for _, doc := range docs {
					fmt.Fprintln(stdout, doc.Key)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Fill an empty store with the starter project",
			Args:  cobra.NoArgs,
			RunE: withStore(func(ctx context.Context, s *storage.Store, _ []string) error {
				n, err := s.Seed(ctx)
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintln(stdout, "The store is not empty. Nothing to do.")
					return nil
				}
				fmt.Fprintf(stdout, "Seeded %d documents\n", n)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "export <dir>",
			Short: "Write every document to a directory laid out like the repository",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(ctx context.Context, s *storage.Store, args []string) error {
				n, err := exportDir(ctx, s, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Exported %d documents to %s\n", n, filepath.Join(args[0], pathcodec.Root))
				return nil
			}),
		},
		importCmd,
	)
	return cmd
}

func withStore(fn func(context.Context, *storage.Store, []string) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		env, err := util.OpenEnv()
		if err != nil {
			return err
		}
		defer env.Close()
		return fn(context.Background(), env.Store, args)
	}
}

func readInput(src string) (string, error) {
	if src == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := afero.ReadFile(fs, src)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", src, err)
	}
	return string(b), nil
}

func put(ctx context.Context, s *storage.Store, key, content string) error {
	if err := pathcodec.ValidateKey(key); err != nil {
		return err
	}
	return s.Put(ctx, models.Document{Key: key, Content: content})
}

// exportDir writes each document to dir at the path it has in the repository.
func exportDir(ctx context.Context, s *storage.Store, dir string) (int, error) {
	docs, err := s.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, doc := range docs {
		rel, err := pathcodec.Encode(doc.Key)
		if err != nil {
			return 0, err
		}
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return 0, fmt.Errorf("create directory: %w", err)
		}
		if err := afero.WriteFile(fs, path, []byte(doc.Content), 0644); err != nil {
			return 0, fmt.Errorf("write %s: %w", path, err)
		}
	}
	return len(docs), nil
}

// importDir reads every document below dir/specs in one batch. Files that do
// not decode to a key are skipped.
func importDir(ctx context.Context, s *storage.Store, dir string, replace bool) (int, error) {
	var docs []models.Document
	root := filepath.Join(dir, pathcodec.Root)
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key, ok := pathcodec.Decode(filepath.ToSlash(rel))
		if !ok {
			log.WithField("path", path).Debug("Skipping file outside the document namespace")
			return nil
		}
		content, err := afero.ReadFile(fs, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		docs = append(docs, models.Document{Key: key, Content: string(content)})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", root, err)
	}

	if replace {
		err = s.ReplaceAll(ctx, docs)
	} else {
		err = s.BulkPut(ctx, docs)
	}
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}
