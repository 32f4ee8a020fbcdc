package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/congresstwin/congresstwin/internal/planner"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Clone plans from finished editions",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans usable as templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			tmpls, err := svc.ListTemplates(ctx)
			if err != nil {
				return err
			}
			return printJSON(tmpls)
		})
	},
}

var templateCloneFlags struct {
	eventDate   string
	name        string
	preserveIDs bool
}

var templateCloneCmd = &cobra.Command{
	Use:   "clone <source-plan-id> <target-plan-id>",
	Short: "Clone a plan onto a new event date",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			eventDate, err := parseTime(templateCloneFlags.eventDate)
			if err != nil {
				return err
			}
			res, err := svc.CloneTemplate(ctx, args[0], args[1], eventDate, planner.CloneOptions{
				Name:            templateCloneFlags.name,
				PreserveTaskIDs: templateCloneFlags.preserveIDs,
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

func init() {
	templateCloneCmd.Flags().StringVar(&templateCloneFlags.eventDate, "event-date", "", "target event date (required)")
	templateCloneCmd.Flags().StringVar(&templateCloneFlags.name, "name", "", "target plan name")
	templateCloneCmd.Flags().BoolVar(&templateCloneFlags.preserveIDs, "preserve-ids", false, "keep source task ids")
	_ = templateCloneCmd.MarkFlagRequired("event-date")

	templateCmd.AddCommand(templateListCmd, templateCloneCmd)
	rootCmd.AddCommand(templateCmd)
}
