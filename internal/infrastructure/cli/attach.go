package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/watch"
	"github.com/felixgeelhaar/boardsync/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/boardsync/pkg/application"
	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Manage task attachments",
}

var attachListCmd = &cobra.Command{
	Use:   "list <task-id>",
	Short: "List the attachments of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, draft, err := openDraft(cmd, args[0])
		if err != nil {
			return err
		}
		defer draft.Discard()
		printItems(cmd.OutOrStdout(), draft.Items())
		return nil
	},
}

var attachAddCmd = &cobra.Command{
	Use:   "add <task-id> <file>...",
	Short: "Upload files to a task",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, draft, err := openDraft(cmd, args[0])
		if err != nil {
			return err
		}
		defer draft.Discard()
		for _, path := range args[1:] {
			if err := draft.AddPending(path); err != nil {
				return MapError(err)
			}
		}
		return saveDraft(cmd, draft)
	},
}

var attachRmCmd = &cobra.Command{
	Use:   "rm <task-id> <number|name>...",
	Short: "Remove attachments by list number or file name",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, draft, err := openDraft(cmd, args[0])
		if err != nil {
			return err
		}
		defer draft.Discard()
		// Numbers refer to the list as shown; remove from the end so earlier
		// positions stay valid.
		items := draft.Items()
		var marks []int
		for _, ref := range args[1:] {
			i, err := itemIndex(items, ref)
			if err != nil {
				return MapError(err)
			}
			marks = append(marks, i)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(marks)))
		for j, i := range marks {
			if j > 0 && marks[j-1] == i {
				continue
			}
			if err := draft.RemoveAt(i); err != nil {
				return MapError(err)
			}
		}
		return saveDraft(cmd, draft)
	},
}

var watchOpts struct {
	debounce time.Duration
	include  []string
	exclude  []string
}

var attachWatchCmd = &cobra.Command{
	Use:   "watch <task-id> <dir>",
	Short: "Upload every file dropped into a directory",
	Long: `Watch a directory and attach each file that lands in it once it stops
changing. The task's attachment list follows live updates from other users
while the command runs.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, draft, err := openDraft(cmd, args[0])
		if err != nil {
			return err
		}
		defer draft.Discard()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		var mu sync.Mutex
		upload := func(path string) {
			mu.Lock()
			defer mu.Unlock()
			if err := draft.AddPending(path); err != nil {
				fmt.Fprintf(out, "skip %s: %v\n", path, err)
				return
			}
			if _, err := draft.Save(ctx); err != nil {
				fmt.Fprintf(out, "upload of %s failed, will retry with the next file: %v\n", path, err)
				return
			}
			fmt.Fprintf(out, "attached %s\n", path)
		}

		folder, err := watch.NewDropFolder(args[1], watchOpts.debounce,
			watch.NewPatternFilter(watchOpts.include, watchOpts.exclude), upload, services.Logger)
		if err != nil {
			return NewCLIError("cannot watch "+args[1], "Create the directory first", err)
		}
		if err := followTask(ctx, services, args[0]); err != nil {
			return err
		}

		fmt.Fprintf(out, "Watching %s for task %s. Press Ctrl+C to stop.\n", args[1], args[0])
		return folder.Run(ctx)
	},
}

func init() {
	attachWatchCmd.Flags().DurationVar(&watchOpts.debounce, "debounce", 500*time.Millisecond, "quiet period before a file is uploaded")
	attachWatchCmd.Flags().StringSliceVar(&watchOpts.include, "include", nil, "only attach files matching these patterns")
	attachWatchCmd.Flags().StringSliceVar(&watchOpts.exclude, "exclude", nil, "never attach files matching these patterns")

	attachCmd.AddCommand(attachListCmd, attachAddCmd, attachRmCmd, attachWatchCmd)
	RootCmd.AddCommand(attachCmd)
}

// openDraft loads the board and the member roles, then opens the attachment
// draft of taskID.
func openDraft(cmd *cobra.Command, taskID string) (*wiring.AppServices, *application.AttachmentDraft, error) {
	services, project, err := loadBoard(cmd)
	if err != nil {
		return nil, nil, err
	}
	if _, err := services.Members.Load(cmd.Context(), project); err != nil {
		services.Logger.Warn("member roles unavailable, the server decides on removals", "error", err)
	}
	draft, err := services.Attachments.Open(taskID)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return services, draft, nil
}

func saveDraft(cmd *cobra.Command, draft *application.AttachmentDraft) error {
	atts, err := draft.Save(cmd.Context())
	if err != nil {
		return MapError(err)
	}
	items := make([]board.AttachmentItem, len(atts))
	for i, a := range atts {
		items[i] = a
	}
	printItems(cmd.OutOrStdout(), items)
	return nil
}

// followTask keeps a push connection open for the lifetime of ctx and joins
// the task's room so its draft is rebased on remote changes.
func followTask(ctx context.Context, services *wiring.AppServices, taskID string) error {
	client, err := services.Push(projectID, nil)
	if err != nil {
		return NewCLIError("cannot open the push channel", "Check push_url with 'boardsync config show'", err)
	}
	if err := client.JoinTask(taskID); err != nil {
		return err
	}
	go func() { _ = client.Run(ctx) }()
	return nil
}

// itemIndex resolves a 1-based list number or a display name.
func itemIndex(items []board.AttachmentItem, ref string) (int, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(items) {
			return 0, &board.ValidationError{Op: "remove attachment", Field: "number", Reason: fmt.Sprintf("must be within 1..%d", len(items))}
		}
		return n - 1, nil
	}
	for i, it := range items {
		if it.DisplayName() == ref {
			return i, nil
		}
		if a, ok := it.(board.Attachment); ok && a.FileName == ref {
			return i, nil
		}
	}
	return 0, &board.ValidationError{Op: "remove attachment", Field: "name", Reason: "no attachment named " + ref}
}

func printItems(w io.Writer, items []board.AttachmentItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No attachments.")
		return
	}
	for i, it := range items {
		state := ""
		if _, pending := it.(board.PendingFile); pending {
			state = " [pending]"
		}
		fmt.Fprintf(w, "%d. %s (%s)%s\n", i+1, it.DisplayName(), board.FormatSize(it.Size()), state)
	}
}
