package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/congresstwin/congresstwin/internal/cost"
	"github.com/congresstwin/congresstwin/internal/impact"
	"github.com/congresstwin/congresstwin/internal/planner"
)

var criticalPathCmd = &cobra.Command{
	Use:   "critical-path <plan-id>",
	Short: "Compute the plan's critical path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			cp, err := svc.GetCriticalPath(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cp)
		})
	},
}

var attentionCmd = &cobra.Command{
	Use:   "attention <plan-id>",
	Short: "Derive the attention dashboard views",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			rep, err := svc.GetAttention(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(rep)
		})
	},
}

var milestoneEventDate string

var milestoneCmd = &cobra.Command{
	Use:   "milestone <plan-id>",
	Short: "Split tasks against the event date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			var eventDate time.Time
			if milestoneEventDate != "" {
				at, err := parseTime(milestoneEventDate)
				if err != nil {
					return err
				}
				eventDate = at
			}
			m, err := svc.GetMilestoneAnalysis(ctx, args[0], eventDate)
			if err != nil {
				return err
			}
			return printJSON(m)
		})
	},
}

var simulateFlags struct {
	iterations int
	seed       uint64
	seedSet    bool
	eventDate  string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <plan-id>",
	Short: "Run the Monte Carlo end-date simulation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			eventDate, err := parseTimeFlag(simulateFlags.eventDate)
			if err != nil {
				return err
			}
			params := planner.SimulationParams{
				Iterations: simulateFlags.iterations,
				EventDate:  eventDate,
			}
			if cmd.Flags().Changed("seed") {
				params.Seed = &simulateFlags.seed
			}
			res, err := svc.RunMonteCarlo(ctx, args[0], params)
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var markovTaskID string

var markovCmd = &cobra.Command{
	Use:   "markov <plan-id>",
	Short: "Show the task state model and absorption expectations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			rep, err := svc.GetMarkov(ctx, args[0], markovTaskID)
			if err != nil {
				return err
			}
			return printJSON(rep)
		})
	},
}

var costFlags struct {
	schedule   float64
	resource   float64
	risk       float64
	quality    float64
	disruption float64
}

var costCmd = &cobra.Command{
	Use:   "cost <plan-id>",
	Short: "Evaluate the plan's multi-objective cost",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			w := cost.Weights{
				Schedule:   costFlags.schedule,
				Resource:   costFlags.resource,
				Risk:       costFlags.risk,
				Quality:    costFlags.quality,
				Disruption: costFlags.disruption,
			}
			b, err := svc.ComputeCost(ctx, args[0], w)
			if err != nil {
				return err
			}
			return printJSON(b)
		})
	},
}

var impactFlags struct {
	slippage float64
	due      string
	start    string
	simulate bool
}

var impactCmd = &cobra.Command{
	Use:   "impact <plan-id> <task-id>",
	Short: "Preview the impact of a hypothetical change",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			var change impact.Change
			if cmd.Flags().Changed("slippage") {
				change.SlippageDays = &impactFlags.slippage
			}
			due, err := parseTimeFlag(impactFlags.due)
			if err != nil {
				return err
			}
			change.DueAt = due
			start, err := parseTimeFlag(impactFlags.start)
			if err != nil {
				return err
			}
			change.StartAt = start

			res, err := svc.AnalyzeImpact(ctx, args[0], args[1], change, impactFlags.simulate)
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var insightsCmd = &cobra.Command{
	Use:   "insights [plan-id]",
	Short: "Mined history: calibration bias, assignee throughput, block rates, phase durations, implicit dependencies",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			planID := ""
			if len(args) == 1 {
				planID = args[0]
			}
			a, err := svc.GetHistoricalInsights(ctx, planID)
			if err != nil {
				return err
			}
			return printJSON(a)
		})
	},
}

var intelligenceSimulations bool

var intelligenceCmd = &cobra.Command{
	Use:   "intelligence <plan-id> <task-id>",
	Short: "Build the fused per-task risk report",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			rep, err := svc.GetTaskIntelligence(ctx, args[0], args[1], intelligenceSimulations)
			if err != nil {
				return err
			}
			return printJSON(rep)
		})
	},
}

func init() {
	milestoneCmd.Flags().StringVar(&milestoneEventDate, "event-date", "", "event date (defaults to the plan's)")

	simulateCmd.Flags().IntVar(&simulateFlags.iterations, "iterations", 0, "iteration count (0 = configured default)")
	simulateCmd.Flags().Uint64Var(&simulateFlags.seed, "seed", 0, "fixed RNG seed for reproducible runs")
	simulateCmd.Flags().StringVar(&simulateFlags.eventDate, "event-date", "", "on-time threshold (defaults to the plan's event date)")

	markovCmd.Flags().StringVar(&markovTaskID, "task", "", "resolve this task's state and expected days")

	def := cost.DefaultWeights()
	costCmd.Flags().Float64Var(&costFlags.schedule, "w-schedule", def.Schedule, "schedule weight")
	costCmd.Flags().Float64Var(&costFlags.resource, "w-resource", def.Resource, "resource weight")
	costCmd.Flags().Float64Var(&costFlags.risk, "w-risk", def.Risk, "risk weight")
	costCmd.Flags().Float64Var(&costFlags.quality, "w-quality", def.Quality, "quality weight")
	costCmd.Flags().Float64Var(&costFlags.disruption, "w-disruption", def.Disruption, "disruption weight")

	impactCmd.Flags().Float64Var(&impactFlags.slippage, "slippage", 0, "slippage in days")
	impactCmd.Flags().StringVar(&impactFlags.due, "due", "", "hypothetical due instant")
	impactCmd.Flags().StringVar(&impactFlags.start, "start", "", "hypothetical start instant")
	impactCmd.Flags().BoolVar(&impactFlags.simulate, "simulate", false, "include the probabilistic delta")

	intelligenceCmd.Flags().BoolVar(&intelligenceSimulations, "simulations", false, "include Monte Carlo and Markov summaries")

	rootCmd.AddCommand(criticalPathCmd, attentionCmd, milestoneCmd, simulateCmd, markovCmd, costCmd, impactCmd, insightsCmd, intelligenceCmd)
}
