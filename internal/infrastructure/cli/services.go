package cli

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/config"
	"github.com/felixgeelhaar/boardsync/internal/infrastructure/wiring"
)

func loadConfig() (*wiring.AppServices, error) {
	ws, cfg, err := wiring.OpenWorkspace(homeDir)
	if err != nil {
		return nil, NewCLIError("failed to read configuration", "Fix or remove config.yaml in the workspace directory", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return &wiring.AppServices{Workspace: ws, Config: cfg}, nil
}

func loadServices(cmd *cobra.Command) (*wiring.AppServices, error) {
	base, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := wiring.NewLogger(cmd.ErrOrStderr(), base.Config.Log)
	if err != nil {
		return nil, NewCLIError("invalid log settings", "Use --log-level debug|info|warn|error", err)
	}
	services, err := wiring.BuildAppServices(base.Workspace, base.Config, logger)
	if err != nil {
		return nil, NewCLIError("invalid configuration", "Run 'boardsync config init' or set "+config.EnvAPIURL, err)
	}
	return services, nil
}

func requireProject() (string, error) {
	if projectID == "" {
		return "", NewCLIError("no project selected", "Pass --project <id>", nil)
	}
	return projectID, nil
}

// loadBoard builds the services and fetches the selected project's stages
// and tasks, which every task and stage command works against.
func loadBoard(cmd *cobra.Command) (*wiring.AppServices, string, error) {
	project, err := requireProject()
	if err != nil {
		return nil, "", err
	}
	services, err := loadServices(cmd)
	if err != nil {
		return nil, "", err
	}
	if _, err := services.Tasks.LoadBoard(cmd.Context(), project); err != nil {
		return nil, "", MapError(err)
	}
	return services, project, nil
}
