package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/planner"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage plans",
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			plans, err := svc.ListPlans(ctx)
			if err != nil {
				return err
			}
			return printJSON(plans)
		})
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show <plan-id>",
	Short: "Show one plan's full snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			snap, err := svc.GetPlan(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(snap)
		})
	},
}

var planCreateFlags struct {
	name      string
	eventDate string
}

var planCreateCmd = &cobra.Command{
	Use:   "create <plan-id>",
	Short: "Create an empty plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			eventDate, err := parseTimeFlag(planCreateFlags.eventDate)
			if err != nil {
				return err
			}
			name := planCreateFlags.name
			if name == "" {
				name = args[0]
			}
			p, err := svc.CreatePlan(ctx, domain.Plan{ID: args[0], Name: name, EventDate: eventDate})
			if err != nil {
				return err
			}
			return printJSON(p)
		})
	},
}

var planDeleteCmd = &cobra.Command{
	Use:   "delete <plan-id>",
	Short: "Delete a plan and everything under it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			return svc.DeletePlan(ctx, args[0])
		})
	},
}

var planSyncCmd = &cobra.Command{
	Use:   "sync <plan-id>",
	Short: "Mark the plan synced, clearing the dirty flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			st, err := svc.MarkSynced(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(st)
		})
	},
}

var planStatusCmd = &cobra.Command{
	Use:   "status <plan-id>",
	Short: "Show the plan's sync state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			st, err := svc.GetSyncState(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(st)
		})
	},
}

func init() {
	planCreateCmd.Flags().StringVar(&planCreateFlags.name, "name", "", "plan name")
	planCreateCmd.Flags().StringVar(&planCreateFlags.eventDate, "event-date", "", "target event date (RFC3339 or YYYY-MM-DD)")

	planCmd.AddCommand(planListCmd, planShowCmd, planCreateCmd, planDeleteCmd, planSyncCmd, planStatusCmd)
	rootCmd.AddCommand(planCmd)
}
