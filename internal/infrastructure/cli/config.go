package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/config"
	"github.com/felixgeelhaar/boardsync/pkg/storage"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the client configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with the token masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(base.Config.Redacted())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", base.Workspace.Home(), out)
		if err := base.Config.Validate(); err != nil {
			return NewCLIError("configuration is incomplete", "Run 'boardsync config init' with the server URLs", err)
		}
		return nil
	},
}

var initOpts struct {
	apiURL  string
	pushURL string
	userID  string
	token   string
	force   bool
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write config.yaml into the workspace directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := loadConfig()
		if err != nil {
			return err
		}
		ws := base.Workspace
		path, err := ws.ResolvePath(storage.ConfigFile)
		if err != nil {
			return err
		}
		if found, _ := ws.LoadYAML(storage.ConfigFile, &config.Config{}); found && !initOpts.force {
			return NewCLIError(path+" already exists", "Pass --force to overwrite it", nil)
		}

		cfg := config.Default()
		if initOpts.apiURL != "" {
			cfg.APIURL = initOpts.apiURL
		}
		if initOpts.pushURL != "" {
			cfg.PushURL = initOpts.pushURL
		}
		cfg.UserID = initOpts.userID
		cfg.Token = initOpts.token
		if err := cfg.Validate(); err != nil {
			return NewCLIError("invalid configuration", "Use http(s) for --api-url and ws(s) for --push-url", err)
		}
		if err := config.Save(ws, cfg); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&initOpts.apiURL, "api-url", "", "REST base URL, e.g. https://board.example.com/api")
	configInitCmd.Flags().StringVar(&initOpts.pushURL, "push-url", "", "websocket URL, e.g. wss://board.example.com/ws")
	configInitCmd.Flags().StringVar(&initOpts.userID, "user", "", "your user id")
	configInitCmd.Flags().StringVar(&initOpts.token, "token", "", "API token (prefer BOARDSYNC_TOKEN)")
	configInitCmd.Flags().BoolVar(&initOpts.force, "force", false, "overwrite an existing config.yaml")

	configCmd.AddCommand(configShowCmd, configInitCmd)
	RootCmd.AddCommand(configCmd)
}
