package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/HendryAvila/substrate/internal/config"
	sbserver "github.com/HendryAvila/substrate/internal/server"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the MCP server using the stdio transport.

Logs go to stderr so they never interfere with the protocol on stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts)
		},
	}

	cmd.Flags().Bool("watch", false, "reload workflow definitions when the workflows directory changes")
	_ = rootOpts.v.BindPFlag(config.KeyWatchWorkflows, cmd.Flags().Lookup("watch"))
	cmd.Flags().String("name", "", "server name reported to MCP clients")
	_ = rootOpts.v.BindPFlag(config.KeyServerName, cmd.Flags().Lookup("name"))

	return cmd
}

func runServe(opts *RootOptions) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	log := opts.Logger(cfg)

	// Graceful shutdown on interrupt.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, cleanup, err := sbserver.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	log.Info("serving %s %s on stdio (refs: %s)", cfg.ServerName, sbserver.Version, cfg.RefsDir)
	return server.ServeStdio(s)
}
