package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"workboard/internal/app"
	"workboard/internal/board"
	"workboard/internal/config"
	"workboard/internal/domain"
	"workboard/internal/localstore"
	"workboard/internal/save"
	"workboard/internal/schedule"
	workboardsdk "workboard/sdk/go"
)

func newClient(cfg *config.Config) *workboardsdk.Client {
	c := workboardsdk.New(cfg.Client.URL)
	c.BasePath = cfg.Server.BasePath
	c.BearerToken = cfg.Client.Token
	c.ActorID = viper.GetString("actor-id")
	c.Timeout = cfg.Client.Timeout()
	return c
}

// withSession opens a refreshed session against the configured API and waits
// for its writes before returning. Failed writes are reported on stderr.
func withSession(ctx context.Context, fn func(context.Context, *app.Session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	warn := color.New(color.FgRed)
	s, err := app.Open(app.Options{
		Config: cfg,
		Remote: newClient(cfg),
		Logger: log.New(os.Stderr, "wb: ", 0),
		Notifier: save.NotifyFunc(func(n save.Notice) {
			warn.Fprintln(os.Stderr, n.Message)
		}),
	})
	if err != nil {
		return err
	}
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	runErr := fn(ctx, s)
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Client.Timeout()+cfg.Client.Debounce())
	defer cancel()
	if err := s.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func withClient(ctx context.Context, fn func(context.Context, *workboardsdk.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return fn(ctx, newClient(cfg))
}

func withLocal(fn func(*localstore.Store, *config.Config) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := localstore.Open(cfg.Client.StateDir, cfg.Client.Namespace)
	if err != nil {
		return err
	}
	return fn(st, cfg)
}

func boardCmd() *cobra.Command {
	var dimension string
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show top-level items grouped into columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				if dimension != "" {
					d, err := board.ParseDimension(dimension)
					if err != nil {
						return err
					}
					s.Board.SetDimension(d)
				}
				cols := s.BoardView()
				if viper.GetBool("json") {
					return printJSON(cols)
				}
				renderBoard(s, cols)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dimension, "by", "", "group by status, priority, project, assignee, service or team (default from prefs)")
	return cmd
}

func moveCmd() *cobra.Command {
	var index int
	var dimension string
	cmd := &cobra.Command{
		Use:   "move <item-id> <column>",
		Short: "Move an item to a board column, changing the grouped field",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				if dimension != "" {
					d, err := board.ParseDimension(dimension)
					if err != nil {
						return err
					}
					s.Board.SetDimension(d)
				}
				res, err := s.Move(args[0], args[1], index)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				switch res.Outcome {
				case board.PhaseMoving:
					fmt.Printf("moved %s from %s to %s (%s)\n", res.ItemID, res.From, res.To, res.Field)
				case board.PhaseReordering:
					fmt.Printf("reordered %s within %s\n", res.ItemID, res.To)
				default:
					fmt.Printf("move of %s cancelled\n", res.ItemID)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "position in the destination column")
	cmd.Flags().StringVar(&dimension, "by", "", "grouping dimension (default from prefs)")
	return cmd
}

func calendarCmd() *cobra.Command {
	var date string
	var week bool
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show the items due on a day or week",
		RunE: func(cmd *cobra.Command, args []string) error {
			anchor := time.Now()
			if date != "" {
				d, err := domain.ParseDue(date, time.Local)
				if err != nil {
					return err
				}
				anchor = d.Time
			}
			y, m, dd := anchor.Date()
			anchor = time.Date(y, m, dd, 0, 0, 0, 0, time.Local)
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				titles := map[string]string{}
				for _, it := range s.Items() {
					titles[it.ID] = it.Title
				}
				days := []time.Time{anchor}
				if week {
					days = schedule.WeekDays(anchor, s.Prefs().ShowWeekends)
				}
				if viper.GetBool("json") {
					out := make([]any, 0, len(days))
					for _, d := range days {
						out = append(out, s.Day(d))
					}
					return printJSON(out)
				}
				for _, d := range days {
					renderDay(s, d, titles)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to show, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&week, "week", false, "show the whole week")
	return cmd
}

func itemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Items, comments and attachments",
	}
	cmd.AddCommand(itemListCmd())
	cmd.AddCommand(itemGetCmd())
	cmd.AddCommand(itemSetCmd())
	cmd.AddCommand(itemDeleteCmd())
	cmd.AddCommand(itemCommentCmd())
	cmd.AddCommand(itemAttachCmd())
	cmd.AddCommand(itemSubCmd())
	cmd.AddCommand(itemWatchCmd())
	return cmd
}

func itemListCmd() *cobra.Command {
	var f workboardsdk.ItemFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *workboardsdk.Client) error {
				items, err := c.ListItemsFiltered(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Assignee", "Due", "Parent"})
				for _, it := range items {
					due := ""
					if it.Due != nil {
						due = it.Due.String()
					}
					tw.AppendRow(table.Row{it.ID, it.Title, domain.DisplayStatus(it.Status), domain.StringValue(it.Priority),
						domain.StringValue(it.AssigneeID), due, domain.StringValue(it.ParentID)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.ParentID, "parent", "", "parent item id")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee-id", "", "assignee filter")
	cmd.Flags().StringVar(&f.ProjectID, "project-id", "", "project filter")
	cmd.Flags().BoolVar(&f.TopLevel, "top-level", false, "only items without a parent")
	return cmd
}

func itemGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an item with its sub-items, comments and attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *workboardsdk.Client) error {
				it, err := c.GetItem(ctx, args[0])
				if err != nil {
					return err
				}
				children, err := c.ListItemsFiltered(ctx, workboardsdk.ItemFilter{ParentID: it.ID})
				if err != nil {
					return err
				}
				comments, err := c.ListComments(ctx, it.ID)
				if err != nil {
					return err
				}
				attachments, err := c.ListAttachments(ctx, it.ID)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"item":        it,
					"sub_items":   children,
					"comments":    comments,
					"attachments": attachments,
				})
			})
		},
	}
}

func itemSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <id> <field=value>...",
		Short: "Edit fields; an empty value clears a nullable field",
		Example: `  wb item set 1f3c status=done
  wb item set 1f3c priority= due=2024-03-10 labels=web,api`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				for _, a := range args[1:] {
					f, v, err := parseAssignment(a)
					if err != nil {
						return err
					}
					if err := s.Coordinator.Edit(args[0], f, v); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func itemDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an item and its sub-items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				return s.Coordinator.Delete(args[0])
			})
		},
	}
}

func itemCommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <id> <text>",
		Short: "Add a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *workboardsdk.Client) error {
				cm, err := c.AddComment(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cm)
			})
		},
	}
}

func itemAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <id> <file>",
		Short: "Upload a file to an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			upload, err := readUpload(args[1])
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *workboardsdk.Client) error {
				a, err := c.AddAttachment(ctx, args[0], upload)
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
}

func itemSubCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sub <parent-id> <title>",
		Short: "Add a sub-item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				fields := domain.Patch{}
				if err := fields.Set(domain.FieldTitle, args[1]); err != nil {
					return err
				}
				child, err := s.Coordinator.AddChild(args[0], fields)
				if err != nil {
					return err
				}
				fmt.Println("adding", child.Title)
				return nil
			})
		},
	}
}

func itemWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print change events as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *workboardsdk.Client) error {
				stream, err := c.Watch(ctx)
				if err != nil {
					return err
				}
				for evt := range stream {
					if viper.GetBool("json") {
						if err := printJSON(evt); err != nil {
							return err
						}
						continue
					}
					fmt.Printf("%s %-18s %s by %s\n", evt.TS, evt.Type, evt.EntityID, evt.ActorID)
				}
				return nil
			})
		},
	}
}

func draftCmd() *cobra.Command {
	var title string
	var sets, attach []string
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Create an item the way the create form does, uploading attachments first",
		RunE: func(cmd *cobra.Command, args []string) error {
			uploads := make([]domain.AttachmentUpload, 0, len(attach))
			for _, p := range attach {
				u, err := readUpload(p)
				if err != nil {
					return err
				}
				uploads = append(uploads, u)
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				initial := domain.Patch{}
				if err := initial.Set(domain.FieldTitle, title); err != nil {
					return err
				}
				d, err := s.NewDraft(initial)
				if err != nil {
					return err
				}
				for _, a := range sets {
					f, v, err := parseAssignment(a)
					if err != nil {
						return err
					}
					if err := d.Edit(f, v); err != nil {
						return err
					}
				}
				for _, u := range uploads {
					if _, err := d.Attach(ctx, u); err != nil {
						return err
					}
				}
				it, err := d.Create(ctx)
				if err != nil {
					return err
				}
				return printJSON(it)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "item title")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value (repeatable)")
	cmd.Flags().StringArrayVar(&attach, "attach", nil, "file to attach (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func durationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duration <item-id> [minutes]",
		Short: "Show or set the local calendar duration of an item",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(func(st *localstore.Store, _ *config.Config) error {
				d := st.Durations()
				minutes := d.Minutes(args[0])
				if len(args) == 2 {
					n, err := strconv.Atoi(args[1])
					if err != nil {
						return fmt.Errorf("invalid minutes %q", args[1])
					}
					if minutes, err = d.Set(args[0], n); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"item_id": args[0], "minutes": minutes})
				}
				fmt.Printf("%s: %d min\n", args[0], minutes)
				return nil
			})
		},
	}
	return cmd
}

func prefsCmd() *cobra.Command {
	var dimension string
	var startHour, endHour int
	var weekends bool
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change view preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLocal(func(st *localstore.Store, cfg *config.Config) error {
				defaults := localstore.DefaultPrefs
				if d, err := board.ParseDimension(cfg.View.Dimension); err == nil {
					defaults.Dimension = d
				}
				defaults.StartHour, defaults.EndHour = cfg.View.StartHour, cfg.View.EndHour
				defaults.ShowWeekends = cfg.View.ShowWeekends
				p, err := st.LoadPrefs(defaults)
				if err != nil {
					return err
				}
				changed := false
				if cmd.Flags().Changed("dimension") {
					p.Dimension = board.Dimension(dimension)
					changed = true
				}
				if cmd.Flags().Changed("start-hour") {
					p.StartHour = startHour
					changed = true
				}
				if cmd.Flags().Changed("end-hour") {
					p.EndHour = endHour
					changed = true
				}
				if cmd.Flags().Changed("weekends") {
					p.ShowWeekends = weekends
					changed = true
				}
				if changed {
					if err := st.SavePrefs(p); err != nil {
						return err
					}
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&dimension, "dimension", "", "board grouping")
	cmd.Flags().IntVar(&startHour, "start-hour", 0, "first visible calendar hour")
	cmd.Flags().IntVar(&endHour, "end-hour", 0, "end of the visible calendar range")
	cmd.Flags().BoolVar(&weekends, "weekends", false, "show weekends")
	return cmd
}

// parseAssignment turns field=value into a patch entry. Empty values clear
// nullable fields; labels are comma separated.
func parseAssignment(s string) (domain.Field, any, error) {
	key, val, ok := strings.Cut(s, "=")
	if !ok {
		return "", nil, fmt.Errorf("expected field=value, got %q", s)
	}
	f := domain.Field(strings.TrimSpace(key))
	if !f.Known() {
		return "", nil, fmt.Errorf("unknown field %q", key)
	}
	switch {
	case f == domain.FieldLabels:
		if val == "" {
			return f, nil, nil
		}
		var labels []string
		for _, l := range strings.Split(val, ",") {
			if l = strings.TrimSpace(l); l != "" {
				labels = append(labels, l)
			}
		}
		return f, labels, nil
	case f.Nullable():
		if val == "" {
			return f, nil, nil
		}
		return f, optionalString(val), nil
	default:
		return f, val, nil
	}
}

func readUpload(path string) (domain.AttachmentUpload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.AttachmentUpload{}, err
	}
	return domain.AttachmentUpload{Name: filepath.Base(path), Content: data}, nil
}

var bucketColors = map[string]color.Attribute{
	domain.StatusTodo:       color.FgWhite,
	domain.StatusInProgress: color.FgBlue,
	domain.StatusReview:     color.FgYellow,
	domain.StatusDone:       color.FgGreen,
	domain.PriorityUrgent:   color.FgRed,
	domain.PriorityHigh:     color.FgHiRed,
	domain.PriorityMedium:   color.FgHiYellow,
	domain.PriorityLow:      color.FgCyan,
}

func renderBoard(s *app.Session, cols []board.Bucket) {
	titles := map[string]domain.Item{}
	for _, it := range s.Items() {
		titles[it.ID] = it
	}
	for _, col := range cols {
		attr, ok := bucketColors[col.ID]
		if !ok {
			attr = color.FgMagenta
		}
		heading := color.New(attr, color.Bold)
		heading.Printf("%s (%d)\n", col.Label, len(col.ItemIDs)+col.Overflow())
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"#", "ID", "Title", "Due"})
		for i, id := range col.ItemIDs {
			it := titles[id]
			due := ""
			if it.Due != nil {
				due = it.Due.String()
			}
			tw.AppendRow(table.Row{i, id, it.Title, due})
		}
		if n := col.Overflow(); n > 0 {
			tw.AppendFooter(table.Row{"", "", fmt.Sprintf("+%d more", n), ""})
		}
		tw.Render()
	}
}

func renderDay(s *app.Session, day time.Time, titles map[string]string) {
	d := s.Day(day)
	color.New(color.Bold, color.Underline).Println(day.Format("Monday 2006-01-02"))
	faint := color.New(color.Faint)
	for _, id := range d.AllDay {
		fmt.Printf("  all day  %s\n", titles[id])
	}
	if n := d.Earlier.Len(); n > 0 {
		faint.Printf("  earlier  %s%s\n", joinTitles(d.Earlier.Visible, titles), more(d.Earlier.More))
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Start", "End", "Title", "Column"})
	for _, e := range d.Entries {
		tw.AppendRow(table.Row{clock(e.Interval.Start), clock(e.Interval.End), titles[e.ItemID],
			fmt.Sprintf("%d/%d", e.Placement.Column+1, e.Placement.TotalColumns)})
	}
	if len(d.Entries) > 0 {
		tw.Render()
	}
	if n := d.Later.Len(); n > 0 {
		faint.Printf("  later    %s%s\n", joinTitles(d.Later.Visible, titles), more(d.Later.More))
	}
}

func joinTitles(ids []string, titles map[string]string) string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, titles[id])
	}
	return strings.Join(out, ", ")
}

func more(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf(" +%d more", n)
}

func clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
