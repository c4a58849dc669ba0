package cli

import (
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	appstate "taskdash/internal/app"
	"taskdash/internal/model"
	"taskdash/internal/view"
)

// allTasksLimit bounds the fetch behind stats and upcoming.
const allTasksLimit = 100

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Task commands",
	}
	cmd.AddCommand(newTasksListCmd(app))
	cmd.AddCommand(newTasksMineCmd(app))
	cmd.AddCommand(newTasksShowCmd(app))
	cmd.AddCommand(newTasksCreateCmd(app))
	cmd.AddCommand(newTasksUpdateCmd(app))
	cmd.AddCommand(newTasksDeleteCmd(app))
	cmd.AddCommand(newTasksStatusCmd(app))
	cmd.AddCommand(newTasksDocumentsCmd(app))
	cmd.AddCommand(newTasksStatsCmd(app))
	cmd.AddCommand(newTasksUpcomingCmd(app))
	return cmd
}

func pageOut[T any](p model.Page[T]) map[string]any {
	return map[string]any{"data": p.Items, "meta": map[string]any{"pagination": p.Pagination}}
}

func newTasksListCmd(app *App) *cobra.Command {
	var (
		filters taskFilterFlags
		paging  pageFlags
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all tasks (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filters.filter(app.now())
			if err != nil {
				return writeErr(cmd, err)
			}
			dir, err := paging.dir()
			if err != nil {
				return writeErr(cmd, err)
			}
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			p, err := a.ListTasks(cmdContext(cmd), model.TaskQuery{Filter: f, Page: paging.page, Limit: paging.limit, SortBy: paging.sortBy, SortDir: dir})
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, pageOut(p))
		},
	}

	cmd.Flags().AddFlagSet(filters.flagSet())
	cmd.Flags().AddFlagSet(paging.flagSet())
	return cmd
}

// tasks mine fetches the principal's tasks once and filters, sorts and pages locally.
func newTasksMineCmd(app *App) *cobra.Command {
	var (
		filters taskFilterFlags
		paging  pageFlags
	)

	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List the tasks assigned to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filters.filter(app.now())
			if err != nil {
				return writeErr(cmd, err)
			}
			dir, err := paging.dir()
			if err != nil {
				return writeErr(cmd, err)
			}
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			p, err := a.MyTasks(cmdContext(cmd))
			if err != nil {
				return writeErr(cmd, err)
			}
			items := view.ApplyFilters(p.Items, f)
			key := view.SortKey(paging.sortBy)
			if key == "" {
				key = view.SortByDueDate
			}
			items = view.SortTasks(items, key, dir)
			page, pg := view.Paginate(items, paging.page, paging.limit)
			return writeOut(cmd, app, pageOut(model.Page[model.Task]{Items: page, Pagination: pg}))
		},
	}

	cmd.Flags().AddFlagSet(filters.flagSet())
	cmd.Flags().AddFlagSet(paging.flagSet())
	return cmd
}

func newTasksShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			t, err := a.GetTask(cmdContext(cmd), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": t})
		},
	}
}

type taskInputFlags struct {
	title       string
	description string
	due         string
	priority    string
	status      string
	assignee    string
	documents   []string
	removed     []string
}

func (f *taskInputFlags) bind(cmd *cobra.Command, update bool) {
	cmd.Flags().StringVar(&f.title, "title", "", "Task title")
	cmd.Flags().StringVar(&f.description, "description", "", "Task description (markdown)")
	cmd.Flags().StringVar(&f.due, "due", "", "Due date (YYYY-MM-DD, RFC3339, today, tomorrow, +Nd)")
	cmd.Flags().StringVar(&f.priority, "priority", "", "Priority (low|medium|high; default medium)")
	cmd.Flags().StringVar(&f.status, "status", "", "Status (pending|in-progress|completed; default pending)")
	cmd.Flags().StringVar(&f.assignee, "assign", "", "Assignee user id")
	cmd.Flags().StringArrayVar(&f.documents, "document", nil, "Attach a PDF (repeatable)")
	if update {
		cmd.Flags().StringArrayVar(&f.removed, "remove-document", nil, "Remove an attached document by id (repeatable)")
	}
}

// apply overlays the flags the user set onto in.
func (f *taskInputFlags) apply(cmd *cobra.Command, app *App, in *model.TaskInput) error {
	changed := cmd.Flags().Changed
	if changed("title") {
		in.Title = f.title
	}
	if changed("description") {
		in.Description = f.description
	}
	if changed("due") {
		t, err := parseDate(f.due, app.now())
		if err != nil {
			return errUsage("--due: %v", err)
		}
		in.DueDate = t
	}
	if changed("priority") {
		in.Priority = model.Priority(strings.TrimSpace(f.priority))
	}
	if changed("status") {
		in.Status = model.Status(strings.TrimSpace(f.status))
	}
	if changed("assign") {
		in.AssignedTo = strings.TrimSpace(f.assignee)
	}
	for _, path := range f.documents {
		up, err := uploadFor(path)
		if err != nil {
			return err
		}
		in.Documents = append(in.Documents, up)
	}
	in.RemovedDocumentIDs = append(in.RemovedDocumentIDs, f.removed...)
	return nil
}

// uploadFor guesses the content type from the extension, then from the first bytes.
func uploadFor(path string) (model.Upload, error) {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ct == "" {
		fh, err := os.Open(path)
		if err != nil {
			return model.Upload{}, err
		}
		head := make([]byte, 512)
		n, _ := io.ReadFull(fh, head)
		_ = fh.Close()
		ct = http.DetectContentType(head[:n])
	}
	return model.UploadFromFile(path, ct)
}

func inputFromTask(t model.Task) model.TaskInput {
	return model.TaskInput{
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Priority:    t.Priority,
		Status:      t.Status,
		AssignedTo:  t.AssignedTo.ID,
	}
}

func newTasksCreateCmd(app *App) *cobra.Command {
	var flags taskInputFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in model.TaskInput
			if err := flags.apply(cmd, app, &in); err != nil {
				return writeErr(cmd, err)
			}
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			t, err := a.CreateTask(cmdContext(cmd), in)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": t})
		},
	}

	flags.bind(cmd, false)
	return cmd
}

func newTasksUpdateCmd(app *App) *cobra.Command {
	var flags taskInputFlags

	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Edit a task (admin); unset flags keep their current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			ctx := cmdContext(cmd)
			cur, err := a.GetTask(ctx, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			in := inputFromTask(cur)
			if err := flags.apply(cmd, app, &in); err != nil {
				return writeErr(cmd, err)
			}
			t, err := a.UpdateTask(ctx, cur.ID, in)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": t})
		},
	}

	flags.bind(cmd, true)
	return cmd
}

func newTasksDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			id, err := a.DeleteTask(cmdContext(cmd), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"id": id, "deleted": true}})
		},
	}
}

func newTasksStatusCmd(app *App) *cobra.Command {
	var status, note string

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Move a task to another status with a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			t, err := a.TransitionTaskStatus(cmdContext(cmd), args[0], model.Status(strings.TrimSpace(status)), note)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": t})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "New status (pending|in-progress|completed)")
	cmd.Flags().StringVar(&note, "note", "", "Why the status changed (required)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newTasksDocumentsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Task attachments",
	}
	cmd.AddCommand(newTasksDocumentsDownloadCmd(app))
	return cmd
}

func newTasksDocumentsDownloadCmd(app *App) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "download <task-id> <document-id>",
		Short: "Download an attachment (to its original name, --out <path>, or --out - for stdout)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			ctx := cmdContext(cmd)
			taskID, docID := args[0], args[1]

			if out == "-" {
				if _, err := a.Tasks.DownloadDocument(ctx, taskID, docID, cmd.OutOrStdout()); err != nil {
					return writeErr(cmd, err)
				}
				return nil
			}
			path := out
			if path == "" {
				t, err := a.GetTask(ctx, taskID)
				if err != nil {
					return writeErr(cmd, err)
				}
				path = docID + ".pdf"
				for _, d := range t.Documents {
					if d.ID == docID && d.OriginalName != "" {
						path = filepath.Base(d.OriginalName)
					}
				}
			}
			n, err := downloadTo(ctx, a, taskID, docID, path)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"path": path, "bytes": n}})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Destination path, or - for stdout")
	return cmd
}

// downloadTo writes into a temp file next to path and renames it on success.
func downloadTo(ctx context.Context, a *appstate.App, taskID, docID, path string) (int64, error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.part")
	if err != nil {
		return 0, err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	n, err := a.Tasks.DownloadDocument(ctx, taskID, docID, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	return n, os.Rename(tmp, path)
}

// visibleTasks is every task for admins and the principal's own tasks otherwise.
func visibleTasks(ctx context.Context, a *appstate.App) ([]model.Task, error) {
	st := a.Session.Snapshot()
	if !st.IsAuthenticated {
		return nil, a.Require("/dashboard")
	}
	if st.Role() == model.RoleAdmin {
		p, err := a.ListTasks(ctx, model.TaskQuery{Page: 1, Limit: allTasksLimit})
		return p.Items, err
	}
	p, err := a.MyTasks(ctx)
	return p.Items, err
}

func newTasksStatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count tasks by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			items, err := visibleTasks(cmdContext(cmd), a)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": view.ComputeStatusCounts(items)})
		},
	}
}

func newTasksUpcomingCmd(app *App) *cobra.Command {
	var (
		days             int
		limit            int
		includeCompleted bool
	)

	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "Tasks by due date, soonest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 0 || limit < 0 {
				return writeErr(cmd, errUsage("--days and --limit must not be negative"))
			}
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			items, err := visibleTasks(cmdContext(cmd), a)
			if err != nil {
				return writeErr(cmd, err)
			}
			exclude := model.StatusCompleted
			if includeCompleted {
				exclude = ""
			}
			up := view.SortedUpcoming(items, app.now(), days, exclude, limit)
			return writeOut(cmd, app, map[string]any{"data": up, "meta": map[string]any{"days": days}})
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Only tasks due within this many days (0: no window, overdue included)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of tasks (0: no limit)")
	cmd.Flags().BoolVar(&includeCompleted, "include-completed", false, "Include completed tasks")
	return cmd
}
