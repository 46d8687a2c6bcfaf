package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devloghq/devlog/internal/devlog"
	"github.com/devloghq/devlog/internal/model"
	"github.com/devloghq/devlog/internal/storage"
)

// withManager wires the registry lifecycle around a command body.
func withManager(fn func(ctx context.Context, m *devlog.Manager, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		reg, err := newRegistry()
		if err != nil {
			return err
		}
		defer func() { _ = reg.Close() }()
		m, err := reg.Manager(cmd.Context(), projectFlag)
		if err != nil {
			return err
		}
		return fn(cmd.Context(), m, cmd.OutOrStdout())
	}
}

func newCreateCmd() *cobra.Command {
	var entryType, priority, description, assignee string
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a work-log entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, m *devlog.Manager, out io.Writer) error {
				e := &model.Entry{
					Title:       args[0],
					Description: description,
					Type:        model.EntryType(entryType),
					Priority:    model.Priority(priority),
				}
				if assignee != "" {
					e.Assignee = &assignee
				}
				created, err := m.Save(ctx, e)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "created #%d %s\n", created.ID, created.Key)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVarP(&entryType, "type", "t", "", "entry type (feature, bugfix, task, refactor, docs)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, medium, high, critical)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "longer description")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee")
	return cmd
}

func newListCmd() *cobra.Command {
	var statuses, types, priorities []string
	var assignee, sortBy, order string
	var page, limit int
	var includeArchived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, m *devlog.Manager, out io.Writer) error {
				f := storage.Filter{
					Assignee: assignee,
					Page: storage.Pagination{
						Page:   page,
						Limit:  limit,
						SortBy: storage.SortField(sortBy),
						Order:  storage.SortOrder(order),
					},
				}
				for _, s := range statuses {
					f.Statuses = append(f.Statuses, model.EntryStatus(s))
				}
				for _, s := range types {
					f.Types = append(f.Types, model.EntryType(s))
				}
				for _, s := range priorities {
					f.Priorities = append(f.Priorities, model.Priority(s))
				}
				if !includeArchived {
					archived := false
					f.Archived = &archived
				}
				res, err := m.List(ctx, f)
				if err != nil {
					return err
				}
				printEntryTable(out, res.Items)
				pg := res.Pagination
				fmt.Fprintf(out, "page %d/%d, %d total\n", pg.Page, max(pg.TotalPages, 1), pg.Total)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "filter by status (repeatable)")
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "filter by type (repeatable)")
	cmd.Flags().StringSliceVar(&priorities, "priority", nil, "filter by priority (repeatable)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "filter by assignee")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", storage.DefaultPageLimit, "page size")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort field (id, createdAt, updatedAt, priority, status, title)")
	cmd.Flags().StringVar(&order, "order", "", "sort order (asc, desc)")
	cmd.Flags().BoolVar(&includeArchived, "archived", false, "include archived entries")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one entry with its notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withManager(func(ctx context.Context, m *devlog.Manager, out io.Writer) error {
				e, err := m.Get(ctx, id)
				if err != nil {
					return err
				}
				if e == nil {
					return fmt.Errorf("entry %d not found", id)
				}
				printEntry(out, e)
				return nil
			})(cmd, args)
		},
	}
}

func newNoteCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "note <id> <content>",
		Short: "Append a note to an entry",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			content := strings.Join(args[1:], " ")
			return withManager(func(ctx context.Context, m *devlog.Manager, out io.Writer) error {
				e, err := m.AddNote(ctx, id, model.Note{
					Category: model.NoteCategory(category),
					Content:  content,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "#%d now has %d notes\n", e.ID, len(e.Notes))
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", string(model.NoteProgress), "note category")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move an entry to a workflow status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			target := model.EntryStatus(args[1])
			return withManager(func(ctx context.Context, m *devlog.Manager, out io.Writer) error {
				e, err := m.Get(ctx, id)
				if err != nil {
					return err
				}
				if e == nil {
					return fmt.Errorf("entry %d not found", id)
				}
				e.Status = target
				upd, err := m.Save(ctx, e)
				if err != nil {
					return err
				}
				if upd.ClosedAt != nil {
					fmt.Fprintf(out, "#%d %s (closed %s)\n", upd.ID, upd.Status, upd.ClosedAt.Format("2006-01-02"))
				} else {
					fmt.Fprintf(out, "#%d %s\n", upd.ID, upd.Status)
				}
				return nil
			})(cmd, args)
		},
	}
}

func newSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withManager(func(ctx context.Context, m *devlog.Manager, out io.Writer) error {
				res, err := m.Search(ctx, query, storage.Filter{
					Page: storage.Pagination{Limit: limit},
				})
				if err != nil {
					return err
				}
				if len(res.Items) == 0 {
					fmt.Fprintln(out, "no matches")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, r := range res.Items {
					fmt.Fprintf(w, "%.2f\t#%d\t%s\t%s\n",
						r.Relevance, r.Entry.ID, r.Entry.Status, r.Entry.Title)
				}
				return w.Flush()
			})(cmd, args)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Aggregate counts for the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(func(ctx context.Context, m *devlog.Manager, out io.Writer) error {
				s, err := m.Stats(ctx, storage.Filter{})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "total %d (open %d, closed %d)\n", s.Total, s.Open, s.Closed)
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for status, n := range s.ByStatus {
					fmt.Fprintf(w, "  %s\t%d\n", status, n)
				}
				return w.Flush()
			})(cmd, args)
		},
	}
}

func printEntryTable(out io.Writer, items []model.Entry) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKEY\tSTATUS\tPRIORITY\tTITLE")
	for _, e := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Key, e.Status, e.Priority, e.Title)
	}
	_ = w.Flush()
}

func printEntry(out io.Writer, e *model.Entry) {
	fmt.Fprintf(out, "#%d %s [%s/%s/%s]\n", e.ID, e.Title, e.Type, e.Status, e.Priority)
	fmt.Fprintf(out, "key: %s\ncreated: %s\nupdated: %s\n",
		e.Key, e.CreatedAt.Format("2006-01-02 15:04"), e.UpdatedAt.Format("2006-01-02 15:04"))
	if e.ClosedAt != nil {
		fmt.Fprintf(out, "closed: %s\n", e.ClosedAt.Format("2006-01-02 15:04"))
	}
	if e.Assignee != nil {
		fmt.Fprintf(out, "assignee: %s\n", *e.Assignee)
	}
	if e.Description != "" {
		fmt.Fprintf(out, "\n%s\n", e.Description)
	}
	if len(e.Notes) > 0 {
		fmt.Fprintln(out, "\nnotes:")
		for _, n := range e.Notes {
			fmt.Fprintf(out, "  [%s] %s  %s\n", n.Category, n.Timestamp.Format("2006-01-02 15:04"), n.Content)
		}
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid entry id %q", s)
	}
	return id, nil
}
