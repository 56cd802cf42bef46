package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskline/internal/app"
	"taskline/internal/domain"
	"taskline/internal/engine"
)

func sprintCmd() *cobra.Command {
	sprint := &cobra.Command{
		Use:   "sprint",
		Short: "Sprint commands",
		Long:  "Plan, start and complete sprints. Only scrum masters may change sprints; one sprint per project is active at a time.",
	}
	sprint.AddCommand(sprintCreateCmd())
	sprint.AddCommand(sprintListCmd())
	sprint.AddCommand(sprintTransitionCmd("start", "Start a sprint, deactivating any other active sprint", engine.Engine.StartSprint))
	sprint.AddCommand(sprintTransitionCmd("complete", "Complete a sprint, returning open tasks to the backlog", engine.Engine.CompleteSprint))
	return sprint
}

func sprintCreateCmd() *cobra.Command {
	var f engine.SprintFields
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Plan a sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				s, err := rt.Engine.CreateSprint(ctx, actor, args[0], f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				printSuccess("created sprint %s (%s)", s.Name, s.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "sprint name")
	cmd.Flags().StringVar(&f.Goal, "goal", "", "sprint goal")
	cmd.Flags().StringVar(&f.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.EndDate, "end", "", "end date (YYYY-MM-DD)")
	cmd.MarkFlagRequired("name")
	return cmd
}

func sprintListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List sprints of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				sprints, err := rt.Engine.ListSprints(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sprints)
				}
				printSprints(sprints)
				return nil
			})
		},
	}
}

type sprintTransition func(engine.Engine, context.Context, domain.Actor, string) (domain.Sprint, error)

func sprintTransitionCmd(use, short string, run sprintTransition) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <sprint-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				s, err := run(rt.Engine, ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				printSuccess("sprint %s is %s", s.Name, sprintState(s))
				return nil
			})
		},
	}
}

func timerCmd() *cobra.Command {
	timer := &cobra.Command{
		Use:   "timer",
		Short: "Time tracking",
		Long:  "Each user has at most one running timer; starting a new one stops the previous one.",
	}

	var description string
	start := &cobra.Command{
		Use:   "start [task-id]",
		Short: "Start a timer, optionally against a task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := engine.TimerFields{Description: description}
			if len(args) == 1 {
				f.TaskID = args[0]
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				entry, err := rt.Engine.StartTimer(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entry)
				}
				printSuccess("timer %s running", entry.ID)
				return nil
			})
		},
	}
	start.Flags().StringVarP(&description, "description", "d", "", "what you are working on")

	stop := &cobra.Command{
		Use:   "stop <entry-id>",
		Short: "Stop a running timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				entry, err := rt.Engine.StopTimer(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entry)
				}
				printSuccess("timer %s stopped after %s", entry.ID, formatDuration(entry.DurationSeconds))
				return nil
			})
		},
	}

	var q engine.TimeEntryQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "List your time entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				entries, err := rt.Engine.ListTimeEntries(ctx, actor, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				printTimeEntries(entries)
				return nil
			})
		},
	}
	list.Flags().StringVar(&q.TaskID, "task", "", "task id filter")
	list.Flags().BoolVar(&q.RunningOnly, "running", false, "only running timers")
	list.Flags().IntVar(&q.Limit, "limit", 50, "maximum number of entries")

	timer.AddCommand(start, stop, list)
	return timer
}

func notificationCmd() *cobra.Command {
	notification := &cobra.Command{Use: "notification", Aliases: []string{"inbox"}, Short: "Your notifications"}

	var unread bool
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				ns, err := rt.Engine.ListNotifications(ctx, actor, engine.NotificationQuery{UnreadOnly: unread, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ns)
				}
				printNotifications(ns)
				return nil
			})
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "only unread notifications")
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of notifications")

	read := &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				n, err := rt.Engine.MarkNotificationRead(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(n)
				}
				printSuccess("marked %s read", n.ID)
				return nil
			})
		},
	}

	readAll := &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				updated, err := rt.Engine.MarkAllNotificationsRead(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int64{"updated": updated})
				}
				printSuccess("marked %d notifications read", updated)
				return nil
			})
		},
	}

	notification.AddCommand(list, read, readAll)
	return notification
}
