package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/affectgate/internal/config"
)

var initForce bool

func init() {
	initConfigCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initConfigCmd)
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the default configuration",
	Long:  "Writes the built-in configuration to --config (default ~/.affectgate/config.yaml)\nwith mode 0600. An existing file is kept unless --force is given.",
	Args:  cobra.NoArgs,
	RunE:  runInitConfig,
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if err := config.Init(path, initForce); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
