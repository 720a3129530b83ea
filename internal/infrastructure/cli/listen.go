package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/boardsync/pkg/domain/events"
	"github.com/felixgeelhaar/boardsync/pkg/storage"
)

var (
	listenJournal bool
	listenTasks   []string
	listenReplay  bool
	listenSince   string
	listenEvent   string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stay connected and print live updates as they are merged",
	Long: `Open the push channel, join your user room and the rooms of the given
tasks, and print every event merged into the board. With --journal each
received event is also appended to events.jsonl in the workspace directory.
With --replay the journal is printed instead and no connection is opened.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listenReplay {
			return replayJournal(cmd)
		}
		var (
			services *wiring.AppServices
			err      error
		)
		if projectID != "" {
			services, _, err = loadBoard(cmd)
		} else {
			services, err = loadServices(cmd)
		}
		if err != nil {
			return err
		}
		if err := services.Feed.Load(cmd.Context()); err != nil {
			services.Logger.Warn("initial notification fetch failed", "error", err)
		}

		var journal *storage.FileJournal
		if listenJournal {
			if err := services.Workspace.Initialize(); err != nil {
				return err
			}
			journal = services.Workspace.Journal()
		}
		client, err := services.Push(projectID, journal)
		if err != nil {
			return NewCLIError("cannot open the push channel", "Check push_url with 'boardsync config show'", err)
		}
		for _, id := range listenTasks {
			if err := client.JoinTask(id); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		services.Merger.Dispatcher().OnAny("listen", func(_ context.Context, env events.Envelope) error {
			fmt.Fprintf(out, "%s  %s  %s\n", env.ReceivedAt.Format("15:04:05"), env.Event, string(env.Data))
			return nil
		})
		services.Feed.OnChange(func() {
			fmt.Fprintf(out, "unread notifications: %d\n", services.Feed.UnreadCount())
		})

		fmt.Fprintf(out, "Listening on %s. Press Ctrl+C to stop.\n", services.Config.PushURL)
		return client.Run(ctx)
	},
}

func init() {
	listenCmd.Flags().BoolVar(&listenJournal, "journal", false, "append received events to the workspace journal")
	listenCmd.Flags().StringSliceVar(&listenTasks, "task", nil, "task id whose updates to follow (repeatable)")
	listenCmd.Flags().BoolVar(&listenReplay, "replay", false, "print the journal instead of connecting")
	listenCmd.Flags().StringVar(&listenSince, "since", "", "with --replay, only entries newer than a duration (1h) or RFC3339 time")
	listenCmd.Flags().StringVar(&listenEvent, "event", "", "with --replay, only entries of this event")
	RootCmd.AddCommand(listenCmd)
}

func replayJournal(cmd *cobra.Command) error {
	base, err := loadConfig()
	if err != nil {
		return err
	}
	journal := base.Workspace.Journal()

	var entries []storage.JournalEntry
	switch {
	case listenSince != "":
		since, perr := parseSince(listenSince, time.Now())
		if perr != nil {
			return NewCLIError("invalid --since value", "Use a duration like 90m or an RFC3339 time", perr)
		}
		entries, err = journal.LoadSince(since)
		if err == nil && listenEvent != "" {
			entries = filterEntries(entries, listenEvent)
		}
	case listenEvent != "":
		entries, err = journal.LoadByEvent(listenEvent)
	default:
		entries, err = journal.LoadAll()
	}
	if err != nil {
		return NewCLIError("cannot read the journal", "Check "+journal.Path(), err)
	}
	printEntries(cmd.OutOrStdout(), entries)
	return nil
}

// parseSince accepts a duration back from now or an absolute RFC3339 time.
func parseSince(v string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339, v)
}

func filterEntries(entries []storage.JournalEntry, event string) []storage.JournalEntry {
	var out []storage.JournalEntry
	for _, e := range entries {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func printEntries(w io.Writer, entries []storage.JournalEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No journal entries.")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %s  %s", e.ReceivedAt.Format(time.DateTime), e.Event, string(e.Data))
		if e.Dropped != "" {
			line += "  (dropped: " + e.Dropped + ")"
		}
		fmt.Fprintln(w, line)
	}
}
