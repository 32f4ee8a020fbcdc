package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/congresstwin/congresstwin/internal/planner"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Manage advisory task locks",
}

var lockTTL time.Duration

var lockAcquireCmd = &cobra.Command{
	Use:   "acquire <plan-id> <task-id>",
	Short: "Acquire or renew the lock as --user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			l, err := svc.AcquireLock(ctx, args[0], args[1], actorID, lockTTL)
			if err != nil {
				return err
			}
			return printJSON(l)
		})
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release <plan-id> <task-id>",
	Short: "Release the lock held by --user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			return svc.ReleaseLock(ctx, args[0], args[1], actorID)
		})
	},
}

var lockShowCmd = &cobra.Command{
	Use:   "show <plan-id> <task-id>",
	Short: "Show the live lock on a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *planner.Service) error {
			l, ok := svc.GetLock(args[0], args[1])
			if !ok {
				return fail("no live lock on %s/%s", args[0], args[1])
			}
			return printJSON(l)
		})
	},
}

func init() {
	lockAcquireCmd.Flags().DurationVar(&lockTTL, "ttl", 0, "lock lifetime (0 = configured default)")

	lockCmd.AddCommand(lockAcquireCmd, lockReleaseCmd, lockShowCmd)
	rootCmd.AddCommand(lockCmd)
}
