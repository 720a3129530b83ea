package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Manage the stage pipeline of a project",
}

var stagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stages in board order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, project, err := loadStages(cmd)
		if err != nil {
			return err
		}
		stages, err := services.Stages.ListStages(project)
		if err != nil {
			return MapError(err)
		}
		printStages(cmd.OutOrStdout(), stages)
		return nil
	},
}

var stagesReorderCmd = &cobra.Command{
	Use:   "reorder <stage> <position>",
	Short: "Move a stage to a 1-based position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, err := strconv.Atoi(args[1])
		if err != nil || pos < 1 {
			return NewCLIError("position must be a number starting at 1", "Run 'boardsync stages list' to see positions", err)
		}
		return editStages(cmd, args[0], func(s *wiring.AppServices, id string) ([]board.Stage, error) {
			return s.Stages.Reorder(cmd.Context(), projectID, id, pos-1)
		})
	},
}

var stagesAfter string

var stagesAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a stage",
	Long:  "Add an active, editable stage. Without --after it goes right before the final protected stage.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, project, err := loadStages(cmd)
		if err != nil {
			return err
		}
		stages, _ := services.Stages.ListStages(project)
		after := defaultInsertPoint(stages)
		if stagesAfter != "" {
			s, err := resolveStage(stages, stagesAfter)
			if err != nil {
				return MapError(err)
			}
			after = s.ID
		}
		updated, err := services.Stages.InsertStage(cmd.Context(), project, after, strings.Join(args, " "))
		if err != nil {
			return MapError(err)
		}
		printStages(cmd.OutOrStdout(), updated)
		return nil
	},
}

var stagesActivateCmd = &cobra.Command{
	Use:   "activate <stage>",
	Short: "Show a stage as a board column",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editStages(cmd, args[0], func(s *wiring.AppServices, id string) ([]board.Stage, error) {
			return s.Stages.SetActive(cmd.Context(), projectID, id, true)
		})
	},
}

var stagesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <stage>",
	Short: "Hide a stage from the board",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editStages(cmd, args[0], func(s *wiring.AppServices, id string) ([]board.Stage, error) {
			return s.Stages.SetActive(cmd.Context(), projectID, id, false)
		})
	},
}

var stagesRenameCmd = &cobra.Command{
	Use:   "rename <stage> <name>",
	Short: "Rename a stage",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.Join(args[1:], " ")
		return editStages(cmd, args[0], func(s *wiring.AppServices, id string) ([]board.Stage, error) {
			return s.Stages.RenameStage(cmd.Context(), projectID, id, name)
		})
	},
}

var stagesDeleteCmd = &cobra.Command{
	Use:   "delete <stage>",
	Short: "Delete an editable stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editStages(cmd, args[0], func(s *wiring.AppServices, id string) ([]board.Stage, error) {
			return s.Stages.DeleteStage(cmd.Context(), projectID, id)
		})
	},
}

func init() {
	stagesAddCmd.Flags().StringVar(&stagesAfter, "after", "", "stage id or name to insert after")
	stagesCmd.AddCommand(stagesListCmd, stagesReorderCmd, stagesAddCmd, stagesActivateCmd,
		stagesDeactivateCmd, stagesRenameCmd, stagesDeleteCmd)
	RootCmd.AddCommand(stagesCmd)
}

// loadStages fetches only the stage pipeline of the selected project.
func loadStages(cmd *cobra.Command) (*wiring.AppServices, string, error) {
	project, err := requireProject()
	if err != nil {
		return nil, "", err
	}
	services, err := loadServices(cmd)
	if err != nil {
		return nil, "", err
	}
	if _, err := services.Stages.Load(cmd.Context(), project); err != nil {
		return nil, "", MapError(err)
	}
	return services, project, nil
}

func editStages(cmd *cobra.Command, ref string, edit func(s *wiring.AppServices, id string) ([]board.Stage, error)) error {
	services, project, err := loadStages(cmd)
	if err != nil {
		return err
	}
	stages, _ := services.Stages.ListStages(project)
	stage, err := resolveStage(stages, ref)
	if err != nil {
		return MapError(err)
	}
	updated, err := edit(services, stage.ID)
	if err != nil {
		return MapError(err)
	}
	printStages(cmd.OutOrStdout(), updated)
	return nil
}

// resolveStage finds a stage by id, then by case-insensitive name.
func resolveStage(stages []board.Stage, ref string) (board.Stage, error) {
	if s, ok := board.FindStage(stages, ref); ok {
		return s, nil
	}
	for _, s := range stages {
		if strings.EqualFold(s.Name, strings.TrimSpace(ref)) {
			return s, nil
		}
	}
	return board.Stage{}, fmt.Errorf("%w: %s", board.ErrStageNotFound, ref)
}

// defaultInsertPoint is the stage a new stage follows when none is named:
// the one before a protected final stage, else the final stage.
func defaultInsertPoint(stages []board.Stage) string {
	sorted := board.SortStages(stages)
	n := len(sorted)
	switch {
	case n == 0:
		return ""
	case n > 1 && !sorted[n-1].IsEditable:
		return sorted[n-2].ID
	default:
		return sorted[n-1].ID
	}
}

func printStages(w io.Writer, stages []board.Stage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tNAME\tACTIVE\tEDITABLE")
	for _, s := range board.SortStages(stages) {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.Order, s.ID, s.Name, yesNo(s.IsActive), yesNo(s.IsEditable))
	}
	_ = tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
