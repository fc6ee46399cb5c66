package main

import (
	"fmt"
	"log/slog"
	"time"

	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/spf13/cobra"
)

const cliActor = "cli"

var (
	targetUser string
	stopReason string
	actorID    string
	resetDate  string
)

var emergencyStopCmd = &cobra.Command{
	Use:   "emergency-stop",
	Short: "Halt or resume every agent action for a user",
}

var emergencyStopEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Deny every action for the user until disabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		if stopReason == "" {
			return fmt.Errorf("--reason is required")
		}
		return withServices(cmd.Context(), func(svc *portssvc.ServiceContainer) error {
			quotas, err := svc.Quota.EnableEmergencyStop(cmd.Context(), targetUser, stopReason, actorID)
			if err != nil {
				return err
			}
			logger.Warn("Emergency stop enabled", slog.String("user_id", quotas.UserID), slog.String("reason", stopReason))
			fmt.Fprintf(cmd.OutOrStdout(), "emergency stop enabled for %s\n", quotas.UserID)
			return nil
		})
	},
}

var emergencyStopDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Lift the emergency stop for the user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *portssvc.ServiceContainer) error {
			quotas, err := svc.Quota.DisableEmergencyStop(cmd.Context(), targetUser, actorID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "emergency stop disabled for %s\n", quotas.UserID)
			return nil
		})
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect or reset daily usage counters",
}

var usageResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Zero a user's counters for one UTC day",
	RunE: func(cmd *cobra.Command, args []string) error {
		day := time.Now().UTC()
		if resetDate != "" {
			parsed, err := time.Parse("2006-01-02", resetDate)
			if err != nil {
				return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
			}
			day = parsed
		}
		return withServices(cmd.Context(), func(svc *portssvc.ServiceContainer) error {
			if err := svc.Quota.ResetUsage(cmd.Context(), targetUser, day, actorID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "usage reset for %s on %s\n", targetUser, day.Format("2006-01-02"))
			return nil
		})
	},
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Maintain approval requests",
}

var approvalsExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire every pending approval past its deadline",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(svc *portssvc.ServiceContainer) error {
			expired, err := svc.Approval.ExpireStaleApprovals(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d approval request(s)\n", expired)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{emergencyStopEnableCmd, emergencyStopDisableCmd, usageResetCmd} {
		c.Flags().StringVar(&targetUser, "user", "", "user whose agent is governed")
		c.Flags().StringVar(&actorID, "actor", cliActor, "operator recorded as the actor")
		_ = c.MarkFlagRequired("user")
	}
	emergencyStopEnableCmd.Flags().StringVar(&stopReason, "reason", "", "why the agent is being stopped")
	usageResetCmd.Flags().StringVar(&resetDate, "date", "", "UTC day to reset (YYYY-MM-DD), defaults to today")

	emergencyStopCmd.AddCommand(emergencyStopEnableCmd, emergencyStopDisableCmd)
	usageCmd.AddCommand(usageResetCmd)
	approvalsCmd.AddCommand(approvalsExpireCmd)
}
