package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devloghq/devlog/internal/devlog"
	"github.com/devloghq/devlog/internal/events"
)

func newProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, m *devlog.Manager, out io.Writer) error {
				list, err := m.Provider().Projects().List(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tID\tLAST ACCESS")
				for _, p := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.ID, p.LastAccessedAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})(cmd, args)
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream change events for the project until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, m *devlog.Manager, out io.Writer) error {
				if !m.Provider().SupportsWatch() {
					fmt.Fprintln(out, "note: this backend only reports changes made by this process")
				}
				unsub := m.Subscribe(func(evt events.Event) {
					if evt.Entry != nil {
						fmt.Fprintf(out, "%s %s #%d %s\n",
							evt.Timestamp.Format("15:04:05"), evt.Type, evt.Entry.ID, evt.Entry.Title)
					}
				})
				defer unsub()

				sig := make(chan os.Signal, 1)
				signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(sig)

				fmt.Fprintf(out, "watching %s, ctrl-c to stop\n", m.Project().Name)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-sig:
					return nil
				}
			})(cmd, args)
		},
	}
}
