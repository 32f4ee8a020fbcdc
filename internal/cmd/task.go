package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/planner"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks and subtasks",
}

var taskListLens bool

var taskListCmd = &cobra.Command{
	Use:   "list <plan-id>",
	Short: "List the plan's tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			if taskListLens {
				rows, err := svc.GetExecutionTasks(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(rows)
			}
			tasks, err := svc.GetTasks(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(tasks)
		})
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <plan-id> <task-id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			t, err := svc.GetTask(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(t)
		})
	},
}

var taskWriteFlags struct {
	title     string
	bucket    string
	status    string
	percent   int
	start     string
	due       string
	priority  int
	assignees []string
	desc      string
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <plan-id>",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			start, err := parseTimeFlag(taskWriteFlags.start)
			if err != nil {
				return err
			}
			due, err := parseTimeFlag(taskWriteFlags.due)
			if err != nil {
				return err
			}
			t := domain.Task{
				PlanID:      args[0],
				Title:       taskWriteFlags.title,
				BucketID:    taskWriteFlags.bucket,
				StartAt:     start,
				DueAt:       due,
				Priority:    taskWriteFlags.priority,
				Assignees:   taskWriteFlags.assignees,
				Description: taskWriteFlags.desc,
			}
			if taskWriteFlags.status != "" {
				t.Status = domain.Status(taskWriteFlags.status)
			}
			created, err := svc.CreateTask(ctx, actorID, t)
			if err != nil {
				return err
			}
			return printJSON(created)
		})
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <plan-id> <task-id>",
	Short: "Update a task (only the given flags change)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			var patch planner.TaskPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &taskWriteFlags.title
			}
			if cmd.Flags().Changed("bucket") {
				patch.BucketID = &taskWriteFlags.bucket
			}
			if cmd.Flags().Changed("status") {
				st := domain.Status(taskWriteFlags.status)
				patch.Status = &st
			}
			if cmd.Flags().Changed("percent") {
				patch.PercentComplete = &taskWriteFlags.percent
			}
			if cmd.Flags().Changed("start") {
				if taskWriteFlags.start == "" {
					patch.ClearStartAt = true
				} else {
					at, err := parseTime(taskWriteFlags.start)
					if err != nil {
						return err
					}
					patch.StartAt = &at
				}
			}
			if cmd.Flags().Changed("due") {
				if taskWriteFlags.due == "" {
					patch.ClearDueAt = true
				} else {
					at, err := parseTime(taskWriteFlags.due)
					if err != nil {
						return err
					}
					patch.DueAt = &at
				}
			}
			if cmd.Flags().Changed("priority") {
				patch.Priority = &taskWriteFlags.priority
			}
			if cmd.Flags().Changed("assignees") {
				patch.Assignees = taskWriteFlags.assignees
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &taskWriteFlags.desc
			}
			t, err := svc.UpdateTask(ctx, actorID, args[0], args[1], patch)
			if err != nil {
				return err
			}
			return printJSON(t)
		})
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <plan-id> <task-id>",
	Short: "Delete a task with its subtasks and dependencies",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			return svc.DeleteTask(ctx, actorID, args[0], args[1])
		})
	},
}

var subtaskTitle string

var subtaskAddCmd = &cobra.Command{
	Use:   "subtask-add <plan-id> <task-id>",
	Short: "Add a checklist item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			sub, err := svc.AddSubtask(ctx, actorID, domain.Subtask{
				PlanID: args[0], TaskID: args[1], Title: subtaskTitle,
			})
			if err != nil {
				return err
			}
			return printJSON(sub)
		})
	},
}

var subtaskChecked bool

var subtaskCheckCmd = &cobra.Command{
	Use:   "subtask-check <plan-id> <task-id> <subtask-id>",
	Short: "Check or uncheck a checklist item",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			snap, err := svc.GetPlan(ctx, args[0])
			if err != nil {
				return err
			}
			for _, sub := range snap.Subtasks[args[1]] {
				if sub.ID == args[2] {
					sub.Checked = subtaskChecked
					got, err := svc.UpdateSubtask(ctx, actorID, sub)
					if err != nil {
						return err
					}
					return printJSON(got)
				}
			}
			return fail("subtask %s not found on task %s", args[2], args[1])
		})
	},
}

var subtaskDeleteCmd = &cobra.Command{
	Use:   "subtask-delete <plan-id> <task-id> <subtask-id>",
	Short: "Delete a checklist item",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			return svc.DeleteSubtask(ctx, actorID, args[0], args[1], args[2])
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{taskCreateCmd, taskUpdateCmd} {
		c.Flags().StringVar(&taskWriteFlags.title, "title", "", "task title")
		c.Flags().StringVar(&taskWriteFlags.bucket, "bucket", "", "bucket id")
		c.Flags().StringVar(&taskWriteFlags.status, "status", "", "status (notStarted, inProgress, blocked, underReview, completed, cancelled)")
		c.Flags().IntVar(&taskWriteFlags.percent, "percent", 0, "percent complete 0-100")
		c.Flags().StringVar(&taskWriteFlags.start, "start", "", "start instant")
		c.Flags().StringVar(&taskWriteFlags.due, "due", "", "due instant")
		c.Flags().IntVar(&taskWriteFlags.priority, "priority", 5, "priority 0-10")
		c.Flags().StringSliceVar(&taskWriteFlags.assignees, "assignees", nil, "assignee ids")
		c.Flags().StringVar(&taskWriteFlags.desc, "description", "", "task description")
	}
	taskListCmd.Flags().BoolVar(&taskListLens, "lens", false, "enrich with risk badges, dependency counts and the critical-path flag")
	subtaskAddCmd.Flags().StringVar(&subtaskTitle, "title", "", "subtask title")
	subtaskCheckCmd.Flags().BoolVar(&subtaskChecked, "checked", true, "checked state")

	taskCmd.AddCommand(taskListCmd, taskShowCmd, taskCreateCmd, taskUpdateCmd, taskDeleteCmd,
		subtaskAddCmd, subtaskCheckCmd, subtaskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}
