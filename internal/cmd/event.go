package cmd

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/planner"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Ingest and manage external events",
}

var eventIngestFlags struct {
	eventType string
	title     string
	severity  string
	tasks     []string
	payload   string
}

var eventIngestCmd = &cobra.Command{
	Use:   "ingest <plan-id>",
	Short: "Record a disruption and derive proposed actions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			e := domain.ExternalEvent{
				PlanID:          args[0],
				Type:            eventIngestFlags.eventType,
				Title:           eventIngestFlags.title,
				Severity:        domain.Severity(eventIngestFlags.severity),
				AffectedTaskIDs: eventIngestFlags.tasks,
			}
			if eventIngestFlags.payload != "" {
				if err := json.Unmarshal([]byte(eventIngestFlags.payload), &e.Payload); err != nil {
					return fail("invalid payload JSON: %v", err)
				}
			}
			res, err := svc.IngestEvent(ctx, e)
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var eventListCmd = &cobra.Command{
	Use:   "list <plan-id>",
	Short: "List the plan's events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			events, err := svc.ListEvents(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(events)
		})
	},
}

var eventDeleteCmd = &cobra.Command{
	Use:   "delete <plan-id> <event-id>",
	Short: "Delete an event and its proposed actions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			return svc.DeleteEvent(ctx, args[0], id)
		})
	},
}

var eventAlertsCmd = &cobra.Command{
	Use:   "alerts <plan-id>",
	Short: "Show recent events and pending actions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			alerts, err := svc.Events().GetAlerts(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(alerts)
		})
	},
}

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Decide on proposed actions",
}

var actionStatusFilter string

var actionListCmd = &cobra.Command{
	Use:   "list <plan-id>",
	Short: "List proposed actions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			actions, err := svc.ListProposedActions(ctx, args[0], domain.ActionStatus(actionStatusFilter))
			if err != nil {
				return err
			}
			return printJSON(actions)
		})
	},
}

var actionApproveCmd = &cobra.Command{
	Use:   "approve <plan-id> <action-id>",
	Short: "Approve an action, applying its mutation atomically",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			a, err := svc.ApproveAction(ctx, args[0], id, actorID)
			if err != nil {
				return err
			}
			return printJSON(a)
		})
	},
}

var actionRejectCmd = &cobra.Command{
	Use:   "reject <plan-id> <action-id>",
	Short: "Reject an action",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			a, err := svc.RejectAction(ctx, args[0], id, actorID)
			if err != nil {
				return err
			}
			return printJSON(a)
		})
	},
}

var actionDeleteCmd = &cobra.Command{
	Use:   "delete <plan-id> <action-id>",
	Short: "Delete a proposed action",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			return svc.DeleteAction(ctx, args[0], id)
		})
	},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fail("invalid id %q", s)
	}
	return id, nil
}

func init() {
	eventIngestCmd.Flags().StringVar(&eventIngestFlags.eventType, "type", "", "event type (e.g. flight_cancellation)")
	eventIngestCmd.Flags().StringVar(&eventIngestFlags.title, "title", "", "event title")
	eventIngestCmd.Flags().StringVar(&eventIngestFlags.severity, "severity", "medium", "severity (low, medium, high, critical)")
	eventIngestCmd.Flags().StringSliceVar(&eventIngestFlags.tasks, "tasks", nil, "affected task ids")
	eventIngestCmd.Flags().StringVar(&eventIngestFlags.payload, "payload", "", "event payload as JSON")

	actionListCmd.Flags().StringVar(&actionStatusFilter, "status", "", "filter by status (pending, approved, rejected)")

	eventCmd.AddCommand(eventIngestCmd, eventListCmd, eventDeleteCmd, eventAlertsCmd)
	actionCmd.AddCommand(actionListCmd, actionApproveCmd, actionRejectCmd, actionDeleteCmd)
	rootCmd.AddCommand(eventCmd, actionCmd)
}
