package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/echelon-net/echelond/internal/config"
	"github.com/echelon-net/echelond/internal/server"
)

// serverCmd starts the node (default action).
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the echelond node",
	Long: `Start the echelond node: opens storage, replays or resumes chain
state, ingests blocks from the configured source and serves the read-only
HTTP API. This is the default command when no subcommand is specified.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Run the server when invoked without a subcommand.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return serverCmd.RunE(cmd, args)
	}

	serverCmd.Flags().String("bind", "", "override api.bind from the config")
	serverCmd.Flags().String("source", "", "override ingest.source_url from the config")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if bind, _ := cmd.Flags().GetString("bind"); bind != "" {
		cfg.API.Bind = bind
	}
	if src, _ := cmd.Flags().GetString("source"); src != "" {
		cfg.Ingest.SourceURL = src
	}

	if !quiet {
		fmt.Printf("echelond %s\n", rootCmd.Version)
		fmt.Printf("  chain:   %s (native %s, master %s)\n",
			cfg.Node.ChainID, cfg.Node.NativeSymbol, cfg.Node.MasterAccount)
		fmt.Printf("  data:    %s (%s)\n", cfg.Node.DataDir, cfg.Storage.Backend)
		if cfg.API.Enabled {
			fmt.Printf("  api:     %s\n", cfg.API.Bind)
		}
		if cfg.Ingest.SourceURL != "" {
			fmt.Printf("  source:  %s\n", cfg.Ingest.SourceURL)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node, err := server.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer node.Close()

	return node.Run(ctx)
}
