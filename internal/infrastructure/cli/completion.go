package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:       "completion bash|zsh|fish|powershell",
	Short:     "Generate shell completion scripts",
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return RootCmd.GenBashCompletionV2(out, true)
		case "zsh":
			return RootCmd.GenZshCompletion(out)
		case "fish":
			return RootCmd.GenFishCompletion(out, true)
		case "powershell":
			return RootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return fmt.Errorf("unsupported shell %q", args[0])
	},
}

// completeStageAt offers the stage names of the selected project for the
// positional argument at index pos.
func completeStageAt(pos int) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) != pos || projectID == "" {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		if cmd.Context() == nil {
			cmd.SetContext(context.Background())
		}
		services, project, err := loadStages(cmd)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		stages, _ := services.Stages.ListStages(project)
		names := make([]string, 0, len(stages))
		for _, s := range stages {
			names = append(names, s.Name+"\t"+s.ID)
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	}
}

func init() {
	for _, c := range []*cobra.Command{stagesReorderCmd, stagesActivateCmd, stagesDeactivateCmd, stagesRenameCmd, stagesDeleteCmd} {
		c.ValidArgsFunction = completeStageAt(0)
	}
	taskMoveCmd.ValidArgsFunction = completeStageAt(1)
	RootCmd.AddCommand(completionCmd)
}
