package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskline/internal/app"
	"taskline/internal/domain"
	"taskline/internal/engine"
)

func projectCmd() *cobra.Command {
	project := &cobra.Command{Use: "project", Short: "Project commands"}
	project.AddCommand(projectCreateCmd())
	project.AddCommand(projectListCmd())
	project.AddCommand(projectShowCmd())
	project.AddCommand(projectMemberCmd())
	return project
}

func projectCreateCmd() *cobra.Command {
	var key, name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project (scrum masters only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				p, err := rt.Engine.CreateProject(ctx, actor, engine.ProjectFields{Key: key, Name: name, Description: description})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				printSuccess("created project %s (%s)", p.Key, p.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "short project key, e.g. WEB")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&description, "description", "", "project description")
	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects visible to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				projects, err := rt.Engine.ListProjects(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(projects)
				}
				t := newTable("ID", "Key", "Name", "Members", "Created")
				for _, p := range projects {
					t.AppendRow([]any{p.ID, p.Key, p.Name, len(p.Members), formatTime(p.CreatedAt)})
				}
				t.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project with its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				p, err := rt.Engine.GetProject(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("%s  %s\n%s\n", cyan(p.Key), p.Name, faint(p.Description))
				t := newTable("Member", "Role", "Joined")
				for _, m := range p.Members {
					t.AppendRow([]any{m.ActorID, m.Role, formatTime(m.JoinedAt)})
				}
				t.Render()
				return nil
			})
		},
	}
}

func projectMemberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Project membership"}
	var role string
	add := &cobra.Command{
		Use:   "add <project-id> <actor-id>",
		Short: "Add or update a project member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				p, err := rt.Engine.AddProjectMember(ctx, actor, args[0], args[1], role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				printSuccess("%s is now %s of %s", args[1], role, p.Key)
				return nil
			})
		},
	}
	add.Flags().StringVar(&role, "role", domain.MemberMember, "member role (admin or member)")
	member.AddCommand(add)
	return member
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Task commands",
		Long:  "Create, edit and move tasks. Every change writes activity, analytics events and notifications.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskMoveCmd())
	task.AddCommand(taskBoardCmd())
	task.AddCommand(taskBacklogCmd())
	task.AddCommand(taskTreeCmd())
	task.AddCommand(taskActivityCmd())
	task.AddCommand(taskCommentCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var (
		f      engine.TaskFields
		points int
		labels string
	)
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("points") {
				f.StoryPoints = &points
			}
			f.Labels = splitLabels(labels)
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				t, err := rt.Engine.CreateTask(ctx, actor, args[0], f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				printSuccess("created task %s %s", t.ID, colorStatus(t.Status))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Title, "title", "", "task title")
	cmd.Flags().StringVar(&f.Description, "description", "", "task description")
	cmd.Flags().StringVar(&f.Type, "type", "task", "type: "+strings.Join(domain.TaskTypes, ", "))
	cmd.Flags().StringVar(&f.Priority, "priority", "medium", "priority: "+strings.Join(domain.TaskPriorities, ", "))
	cmd.Flags().StringVar(&f.Status, "status", domain.StatusBacklog, "initial status")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee actor id")
	cmd.Flags().StringVar(&f.SprintID, "sprint", "", "sprint id")
	cmd.Flags().StringVar(&f.ParentID, "parent", "", "parent task id")
	cmd.Flags().StringVar(&f.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&points, "points", 0, "story points")
	cmd.Flags().StringVar(&labels, "labels", "", "comma separated labels")
	cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var q engine.TaskQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				tasks, err := rt.Engine.ListTasks(ctx, actor, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				printTasks(tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&q.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&q.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&q.AssigneeID, "assignee", "", "assignee id, or 'me'")
	cmd.Flags().StringVar(&q.SprintID, "sprint", "", "sprint id")
	cmd.Flags().StringVar(&q.ParentID, "parent", "", "parent task id")
	cmd.Flags().BoolVar(&q.HasDueDate, "has-due", false, "only tasks with a due date")
	cmd.Flags().StringVar(&q.DueMonth, "due-month", "", "only tasks due in this month (YYYY-MM)")
	cmd.Flags().IntVar(&q.Limit, "limit", 100, "maximum number of tasks")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				t, err := rt.Engine.GetTask(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				printTask(t)
				return nil
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var (
		title, description, typ, priority, status string
		assignee, sprint, due, labels            string
		points, order                            int
	)
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update task fields; pass an empty value to clear assignee, sprint or due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.TaskPatch{
				Title:       optionalChanged(cmd, "title", title),
				Description: optionalChanged(cmd, "description", description),
				Type:        optionalChanged(cmd, "type", typ),
				Priority:    optionalChanged(cmd, "priority", priority),
				Status:      optionalChanged(cmd, "status", status),
				AssigneeID:  optionalChanged(cmd, "assignee", assignee),
				SprintID:    optionalChanged(cmd, "sprint", sprint),
				DueDate:     optionalChanged(cmd, "due", due),
			}
			if cmd.Flags().Changed("points") {
				patch.StoryPoints = &points
			}
			if cmd.Flags().Changed("order") {
				patch.Order = &order
			}
			if cmd.Flags().Changed("labels") {
				l := splitLabels(labels)
				patch.Labels = &l
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				t, err := rt.Engine.UpdateTask(ctx, actor, args[0], patch)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				printSuccess("updated task %s (version %d)", t.ID, t.Version)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&typ, "type", "", "task type")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee actor id")
	cmd.Flags().StringVar(&sprint, "sprint", "", "sprint id")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&labels, "labels", "", "comma separated labels")
	cmd.Flags().IntVar(&points, "points", 0, "story points")
	cmd.Flags().IntVar(&order, "order", 0, "position within the column")
	return cmd
}

func taskMoveCmd() *cobra.Command {
	var order int
	cmd := &cobra.Command{
		Use:   "move <task-id> <status>",
		Short: "Move a task to a board column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pos *int
			if cmd.Flags().Changed("order") {
				pos = &order
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				t, err := rt.Engine.MoveTask(ctx, actor, args[0], args[1], pos)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				printSuccess("moved %s to %s", t.ID, colorStatus(t.Status))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&order, "order", 0, "position within the column")
	return cmd
}

func taskBoardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board <project-id>",
		Short: "Show the project board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				b, err := rt.Engine.Board(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(b)
				}
				printBoard(b)
				return nil
			})
		},
	}
}

func taskBacklogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backlog <project-id>",
		Short: "List backlog tasks outside any sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				tasks, err := rt.Engine.Backlog(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				printTasks(tasks)
				return nil
			})
		},
	}
}

func taskTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <task-id>",
		Short: "Show a task with its subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				root, err := rt.Engine.GetTask(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printTaskTree(ctx, rt.Engine, actor, root, "", map[string]bool{})
			})
		},
	}
}

func printTaskTree(ctx context.Context, e engine.Engine, actor domain.Actor, t domain.Task, indent string, seen map[string]bool) error {
	if seen[t.ID] {
		return nil
	}
	seen[t.ID] = true
	fmt.Printf("%s%s %s [%s]\n", indent, faint(t.ID), t.Title, colorStatus(t.Status))
	children, err := e.ListSubtasks(ctx, actor, t.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := printTaskTree(ctx, e, actor, child, indent+"  ", seen); err != nil {
			return err
		}
	}
	return nil
}

func taskActivityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activity <task-id>",
		Short: "Show the activity log of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				logs, err := rt.Engine.ListActivity(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				printActivity(logs)
				return nil
			})
		},
	}
}

func taskCommentCmd() *cobra.Command {
	comment := &cobra.Command{Use: "comment", Short: "Task comments"}
	comment.AddCommand(&cobra.Command{
		Use:   "add <task-id> <text>",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				c, err := rt.Engine.AddComment(ctx, actor, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				printSuccess("added comment %s", c.ID)
				return nil
			})
		},
	})
	comment.AddCommand(&cobra.Command{
		Use:   "list <task-id>",
		Short: "List comments on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				cs, err := rt.Engine.ListComments(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cs)
				}
				printComments(cs)
				return nil
			})
		},
	})
	return comment
}

func splitLabels(s string) []string {
	var out []string
	for _, l := range strings.Split(s, ",") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
