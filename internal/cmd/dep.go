package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/planner"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage task dependencies",
}

var depType string

var depAddCmd = &cobra.Command{
	Use:   "add <plan-id> <predecessor-id> <successor-id>",
	Short: "Add a dependency edge (refused if it would close a cycle)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			return svc.AddDependency(ctx, actorID, domain.Dependency{
				PlanID:        args[0],
				PredecessorID: args[1],
				SuccessorID:   args[2],
				Type:          domain.DependencyType(depType),
			})
		})
	},
}

var depRemoveCmd = &cobra.Command{
	Use:   "remove <plan-id> <predecessor-id> <successor-id>",
	Short: "Remove a dependency edge",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			return svc.RemoveDependency(ctx, actorID, args[0], args[1], args[2])
		})
	},
}

var depShowCmd = &cobra.Command{
	Use:   "show <plan-id> <task-id>",
	Short: "Show a task's dependency neighbourhood",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			d, err := svc.GetDependencies(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(d)
		})
	},
}

func init() {
	depAddCmd.Flags().StringVar(&depType, "type", string(domain.FinishStart), "dependency type (FS, SS, FF, SF)")

	depCmd.AddCommand(depAddCmd, depRemoveCmd, depShowCmd)
	rootCmd.AddCommand(depCmd)
}
