package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/boardsync/pkg/application"
	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Work with the tasks of a board",
}

var taskFilter struct {
	priority string
	assignee string
	search   string
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks grouped by stage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, project, err := loadBoard(cmd)
		if err != nil {
			return err
		}
		cols, err := services.Tasks.Columns(project, board.TaskFilter{
			Priority:   board.Priority(taskFilter.priority),
			AssigneeID: taskFilter.assignee,
			Search:     taskFilter.search,
		})
		if err != nil {
			return MapError(err)
		}
		printColumns(cmd.OutOrStdout(), cols)
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task with its comments and attachments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, _, err := loadBoard(cmd)
		if err != nil {
			return err
		}
		task, err := services.Tasks.OpenTask(cmd.Context(), args[0])
		if err != nil {
			return MapError(err)
		}
		printTask(cmd.OutOrStdout(), task)
		return nil
	},
}

var taskMoveCmd = &cobra.Command{
	Use:   "move <task-id> <stage>",
	Short: "Move a task to another stage",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, project, err := loadBoard(cmd)
		if err != nil {
			return err
		}
		stages, _ := services.Stages.ListStages(project)
		stage, err := resolveStage(stages, args[1])
		if err != nil {
			return MapError(err)
		}
		task, err := services.Tasks.MoveTask(cmd.Context(), args[0], stage.ID)
		if err != nil {
			return MapError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now in %s.\n", task.ID, stage.Name)
		return nil
	},
}

type taskFlags struct {
	title       string
	description string
	stage       string
	priority    string
	assignee    string
	due         string
	tags        []string
	files       []string
}

var createFlags, editFlags taskFlags

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, project, err := loadBoard(cmd)
		if err != nil {
			return err
		}
		in := board.TaskInput{ProjectID: project, Priority: board.PriorityMedium}
		if err := createFlags.apply(cmd, services, project, &in); err != nil {
			return err
		}
		if in.StageID == "" {
			if active, _ := services.Stages.ActiveStages(project); len(active) > 0 {
				in.StageID = active[0].ID
			}
		}
		task, err := services.Tasks.CreateTask(cmd.Context(), in)
		if err != nil {
			return MapError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created task %s.\n", task.ID)
		return nil
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <task-id>",
	Short: "Edit task fields; unset flags keep their value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, project, err := loadBoard(cmd)
		if err != nil {
			return err
		}
		cur, err := services.Tasks.OpenTask(cmd.Context(), args[0])
		if err != nil {
			return MapError(err)
		}
		in := board.TaskInput{
			ID:          cur.ID,
			ProjectID:   project,
			Title:       cur.Title,
			Description: cur.Description,
			StageID:     cur.StageID,
			Priority:    cur.Priority,
			DueDate:     cur.DueDate,
			Tags:        cur.Tags,
		}
		if cur.Assignee != nil {
			in.AssigneeID = cur.Assignee.ID
		}
		if err := editFlags.apply(cmd, services, project, &in); err != nil {
			return err
		}
		task, err := services.Tasks.EditTask(cmd.Context(), in)
		if err != nil {
			return MapError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated task %s.\n", task.ID)
		return nil
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, _, err := loadBoard(cmd)
		if err != nil {
			return err
		}
		if err := services.Tasks.DeleteTask(cmd.Context(), args[0]); err != nil {
			return MapError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s.\n", args[0])
		return nil
	},
}

var commentMentions []string

var taskCommentCmd = &cobra.Command{
	Use:   "comment <task-id> <text>",
	Short: "Comment on a task; mention people with @[Name](user-id) or --mention",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, project, err := loadBoard(cmd)
		if err != nil {
			return err
		}
		text := strings.Join(args[1:], " ")
		if len(commentMentions) > 0 {
			if _, err := services.Members.Load(cmd.Context(), project); err != nil {
				return MapError(err)
			}
			text, err = appendMentions(text, services.Members.Members(project), commentMentions)
			if err != nil {
				return MapError(err)
			}
		}
		if err := services.Tasks.AddComment(cmd.Context(), args[0], text); err != nil {
			return MapError(err)
		}
		if users := board.MentionedUsers(text); len(users) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Comment added, mentioning %s.\n", strings.Join(users, ", "))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Comment added.")
		return nil
	},
}

var taskActivityCmd = &cobra.Command{
	Use:   "activity <task-id>",
	Short: "Show the change history of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServices(cmd)
		if err != nil {
			return err
		}
		entries, err := services.Tasks.Activity(cmd.Context(), args[0])
		if err != nil {
			return MapError(err)
		}
		printActivity(cmd.OutOrStdout(), entries)
		return nil
	},
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "task title")
	cmd.Flags().StringVar(&f.description, "description", "", "task description")
	cmd.Flags().StringVar(&f.stage, "stage", "", "stage id or name")
	cmd.Flags().StringVar(&f.priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&f.assignee, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&f.due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringSliceVar(&f.files, "attach", nil, "file to upload (repeatable)")
}

// apply copies the flags that were set onto in.
func (f *taskFlags) apply(cmd *cobra.Command, services *wiring.AppServices, project string, in *board.TaskInput) error {
	changed := cmd.Flags().Changed
	if changed("title") {
		in.Title = f.title
	}
	if changed("description") {
		in.Description = f.description
	}
	if changed("priority") {
		in.Priority = board.Priority(strings.ToLower(f.priority))
	}
	if changed("assignee") {
		in.AssigneeID = f.assignee
		loadMembers(cmd, services, project)
	}
	if changed("tag") {
		in.Tags = f.tags
	}
	if changed("stage") {
		stages, _ := services.Stages.ListStages(project)
		stage, err := resolveStage(stages, f.stage)
		if err != nil {
			return MapError(err)
		}
		in.StageID = stage.ID
	}
	if changed("due") {
		due, err := time.Parse(time.DateOnly, f.due)
		if err != nil {
			return NewCLIError("invalid due date", "Use the YYYY-MM-DD format", err)
		}
		in.DueDate = &due
	}
	for _, path := range f.files {
		info, err := os.Stat(path)
		if err != nil {
			return NewCLIError("cannot attach "+path, "Check the file path", err)
		}
		in.Files = append(in.Files, board.PendingFile{Path: path, Name: filepath.Base(path), SizeBytes: info.Size()})
	}
	return nil
}

func init() {
	taskListCmd.Flags().StringVar(&taskFilter.priority, "priority", "", "only tasks with this priority")
	taskListCmd.Flags().StringVar(&taskFilter.assignee, "assignee", "", "only tasks assigned to this user id")
	taskListCmd.Flags().StringVarP(&taskFilter.search, "search", "s", "", "search title and description")
	taskCommentCmd.Flags().StringSliceVar(&commentMentions, "mention", nil, "user id of a project member to mention (repeatable)")
	createFlags.register(taskCreateCmd)
	editFlags.register(taskEditCmd)

	taskCmd.AddCommand(taskListCmd, taskShowCmd, taskMoveCmd, taskCreateCmd, taskEditCmd,
		taskDeleteCmd, taskCommentCmd, taskActivityCmd)
	RootCmd.AddCommand(taskCmd)
}

// loadMembers fetches the member list so assignees can be checked locally.
// Without it the server decides.
func loadMembers(cmd *cobra.Command, services *wiring.AppServices, project string) {
	if _, err := services.Members.Load(cmd.Context(), project); err != nil {
		services.Logger.Warn("member list unavailable, assignee is checked by the server", "error", err)
	}
}

// appendMentions adds a mention marker for each user id to text.
func appendMentions(text string, members []board.ProjectMember, ids []string) (string, error) {
	var b strings.Builder
	b.WriteString(text)
	for _, id := range ids {
		found := false
		for _, m := range members {
			if m.User.ID == id {
				b.WriteString(" " + board.FormatMention(m.User))
				found = true
				break
			}
		}
		if !found {
			return "", &board.ValidationError{Op: "add comment", Field: "mention", Reason: id + " is not a member of this project"}
		}
	}
	return b.String(), nil
}

func printColumns(w io.Writer, cols []application.Column) {
	for _, col := range cols {
		fmt.Fprintf(w, "%s (%d)\n", col.Stage.Name, len(col.Tasks))
		for _, t := range col.Tasks {
			fmt.Fprintf(w, "  %s  %-6s  %s%s\n", t.ID, t.Priority, t.Title, assigneeSuffix(t))
		}
	}
}

func assigneeSuffix(t board.Task) string {
	if t.Assignee == nil {
		return ""
	}
	name := t.Assignee.Name
	if name == "" {
		name = t.Assignee.ID
	}
	return "  @" + name
}

func printTask(w io.Writer, t board.Task) {
	fmt.Fprintf(w, "%s  %s\n", t.ID, t.Title)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Stage:\t%s\n", t.StageID)
	fmt.Fprintf(tw, "Priority:\t%s\n", t.Priority)
	if a := assigneeSuffix(t); a != "" {
		fmt.Fprintf(tw, "Assignee:\t%s\n", strings.TrimSpace(a))
	}
	if t.DueDate != nil {
		fmt.Fprintf(tw, "Due:\t%s\n", t.DueDate.Format(time.DateOnly))
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(tw, "Tags:\t%s\n", strings.Join(t.Tags, ", "))
	}
	_ = tw.Flush()
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
	if len(t.Attachments) > 0 {
		fmt.Fprintln(w, "\nAttachments:")
		for i, a := range t.Attachments {
			fmt.Fprintf(w, "  %d. %s (%s)\n", i+1, a.DisplayName(), board.FormatSize(a.SizeBytes))
		}
	}
	if len(t.Comments) > 0 {
		fmt.Fprintln(w, "\nComments:")
		for _, c := range t.Comments {
			author := c.Author.Name
			if author == "" {
				author = c.Author.ID
			}
			fmt.Fprintf(w, "  [%s] %s: %s\n", c.CreatedAt.Format(time.DateTime), author, board.RenderMentions(c.Text))
		}
	}
}

func printActivity(w io.Writer, entries []board.TaskActivity) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No activity recorded.")
		return
	}
	for _, e := range entries {
		who := e.PerformedBy.Name
		if who == "" {
			who = e.PerformedBy.ID
		}
		line := fmt.Sprintf("%s  %s", e.PerformedAt.Format(time.DateTime), who)
		if e.Action != nil {
			line += fmt.Sprintf(" changed %s: %s -> %s", e.Action.Field, deref(e.Action.OldValue), deref(e.Action.NewValue))
		}
		fmt.Fprintln(w, line)
	}
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "(none)"
	}
	return *s
}
