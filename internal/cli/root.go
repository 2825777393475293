// Package cli implements the substrate command line: the stdio MCP server
// plus offline commands for references and workflow definitions.
package cli

import (
	"github.com/HendryAvila/substrate/internal/config"
	"github.com/HendryAvila/substrate/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags and the shared viper instance.
type RootOptions struct {
	ConfigFile string
	v          *viper.Viper
}

// Config resolves the configuration from defaults, the config file,
// environment and flags.
func (o *RootOptions) Config() (*config.Config, error) {
	return config.Load(o.v, o.ConfigFile)
}

// Logger returns a stderr logger honoring the debug setting.
func (o *RootOptions) Logger(cfg *config.Config) *logging.Logger {
	return logging.New(cfg.Debug)
}

// NewRootCommand creates the root command for the substrate CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{v: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "substrate",
		Short: "Substrate - references and workflow navigation over MCP",
		Long: `Substrate stores named, templated references and guides MCP clients
through multi-step workflows with next-step suggestions.

Run "substrate serve" from your MCP client configuration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default: ./substrate.yaml or <data-dir>/substrate.yaml)")
	flags.String("data-dir", "", "base directory for substrate data (default ~/.substrate)")
	flags.String("refs-dir", "", "reference store directory (default <data-dir>/refs)")
	flags.String("workflows-dir", "", "workflow definitions directory (default <data-dir>/workflows)")
	flags.String("session-db", "", "workflow run database (default <data-dir>/sessions.db)")
	flags.Bool("debug", false, "enable debug logging")

	bindFlag(opts.v, config.KeyDataDir, cmd, "data-dir")
	bindFlag(opts.v, config.KeyRefsDir, cmd, "refs-dir")
	bindFlag(opts.v, config.KeyWorkflowsDir, cmd, "workflows-dir")
	bindFlag(opts.v, config.KeySessionDB, cmd, "session-db")
	bindFlag(opts.v, config.KeyDebug, cmd, "debug")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRefsCommand(opts))
	cmd.AddCommand(NewWorkflowsCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// bindFlag makes a flag override key, but only when the flag is set on
// the command line.
func bindFlag(v *viper.Viper, key string, cmd *cobra.Command, name string) {
	f := cmd.PersistentFlags().Lookup(name)
	if f == nil {
		f = cmd.Flags().Lookup(name)
	}
	if f == nil {
		return
	}
	_ = v.BindPFlag(key, f)
}
