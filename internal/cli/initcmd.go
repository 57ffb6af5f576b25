package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/echelon-net/echelond/internal/config"
)

// initCmd writes a commented default configuration file.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a commented echelond.toml with every setting at its default.
Refuses to overwrite an existing file. Use --conf to choose the location.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			path = config.DefaultFile
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		if !quiet {
			fmt.Printf("wrote %s\n", path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
