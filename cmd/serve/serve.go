package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flexpertsdev/flexios-v1/cmd/util"
	"github.com/flexpertsdev/flexios-v1/internal/httpapi"
	"github.com/flexpertsdev/flexios-v1/internal/server"
	"github.com/flexpertsdev/flexios-v1/internal/session"
)

const shutdownTimeout = 10 * time.Second

// New creates a new `serve` command.
func New() *cobra.Command {
	var transport, port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the documents and sync tools to an assistant over MCP",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := util.SignalContext()
			defer cancel()
			return run(ctx, transport, port)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().StringVar(&port, "port", "8081", "HTTP port (only used with --transport http)")
	return cmd
}

func run(ctx context.Context, transport, port string) error {
	env, err := util.OpenEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	sync, err := env.Orchestrator()
	if err != nil {
		return err
	}
	sessions := session.NewRegistry(env.Config.Target())
	defer sessions.Close()

	srv := server.New(env.Store, sync, sessions)

	switch transport {
	case "stdio":
		log.Debug("MCP server starting (stdio)")
		return srv.Run(ctx, &mcp.StdioTransport{})
	case "http":
		return serveHTTP(ctx, srv, ":"+port)
	default:
		return fmt.Errorf("unknown transport %q (use stdio or http)", transport)
	}
}

func serveHTTP(ctx context.Context, srv *mcp.Server, addr string) error {
	handler := httpapi.Handler(srv, httpapi.Options{
		Token:   os.Getenv(httpapi.TokenEnv),
		Version: server.Version,
	})
	if os.Getenv(httpapi.TokenEnv) == "" {
		log.Warnf("%s is not set: the MCP endpoint accepts unauthenticated requests", httpapi.TokenEnv)
	}

	httpServer := httpapi.NewServer(addr, handler)
	errc := make(chan error, 1)
	go func() {
		errc <- httpServer.ListenAndServe()
	}()
	log.WithField("addr", addr).Info("MCP server listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
