package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "Read your notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications, newest first as the server orders them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServices(cmd)
		if err != nil {
			return err
		}
		if err := services.Feed.Load(cmd.Context()); err != nil {
			return MapError(err)
		}
		printNotifications(cmd.OutOrStdout(), services.Feed.Items(), services.Feed.UnreadCount())
		return nil
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Mark all notifications as read",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServices(cmd)
		if err != nil {
			return err
		}
		if err := services.Feed.Load(cmd.Context()); err != nil {
			return MapError(err)
		}
		if err := services.Feed.MarkAllRead(cmd.Context()); err != nil {
			return MapError(err)
		}
		if n, ok := services.Notices.Last(); ok {
			fmt.Fprintln(cmd.OutOrStdout(), n.Message)
		}
		return nil
	},
}

func init() {
	notificationsCmd.AddCommand(notificationsListCmd, notificationsReadCmd)
	RootCmd.AddCommand(notificationsCmd)
}

func printNotifications(w io.Writer, items []board.Notification, unread int) {
	fmt.Fprintf(w, "%d notifications, %d unread\n", len(items), unread)
	for _, n := range items {
		mark := " "
		if !n.Read {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s  %s\n", mark, n.CreatedAt.Format(time.DateTime), board.RenderMentions(n.Message))
	}
}
