package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/syncclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func pollCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll <user-id>",
		Short: "Follow the sync feed as a user and print each snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			interval, _ := cmd.Flags().GetDuration("interval")
			tok, err := mintToken(v, args[0], role)
			if err != nil {
				return err
			}

			fetcher := &syncclient.HTTPFetcher{
				BaseURL: v.GetString("BOOKING_URL"),
				Token:   tok,
				Client:  &http.Client{Timeout: 10 * time.Second},
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			out := cmd.OutOrStdout()
			view := syncclient.NewView()
			poller := syncclient.NewPoller(fetcher, view, logger,
				syncclient.WithInterval(interval),
				syncclient.OnUpdate(func(s syncclient.Snapshot) { printSnapshot(out, view, s) }),
			)
			poller.Run(cmd.Context())
			return nil
		},
	}
	cmd.Flags().String("role", auth.RoleRequester, "role to poll as")
	cmd.Flags().Duration("interval", syncclient.DefaultInterval, "poll interval until the server advertises one")
	return cmd
}

func printSnapshot(w io.Writer, view *syncclient.View, s syncclient.Snapshot) {
	fmt.Fprintf(w, "%s  unread=%d\n", s.ServerTime.Format(time.RFC3339), s.UnreadCount)
	for _, a := range view.Appointments() {
		fmt.Fprintf(w, "  %s %s %s  %-9s v%d  %s\n", a.Date, a.Time, a.ID, a.Status, a.Version, a.Reason)
	}
	for _, n := range s.Notifications {
		fmt.Fprintf(w, "  * %s\n", n.Message)
	}
}
