// Package cli wires the echelond commands: server (default), init and
// version.
package cli

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/echelon-net/echelond/internal/version"
)

var (
	// Global flags
	configFile string
	debug      bool
	verbose    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "echelond",
	Short: "echelond - Echelon sidechain node",
	Long: `echelond ingests blocks from the source chain, executes the typed
transaction set (tokens, pools, markets, NFTs, launchpads, witnesses, farms)
against its own state and serves that state over a read-only HTTP API.`,
	Version: version.Full(),
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable normally suppressed debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output to console after startup")
}

// initLogging applies the output flags before any command runs.
func initLogging() {
	if quiet {
		log.SetOutput(io.Discard)
		return
	}
	if debug || verbose {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}
}
