package main

import (
	"github.com/spf13/cobra"

	"github.com/isey69/sale-forces-crm-sub000"
)

func callCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Schedule calls and record their outcomes",
	}

	scheduleCmd := &cobra.Command{
		Use:   "schedule [customer]",
		Short: "Schedule a call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			clock, _ := cmd.Flags().GetString("time")
			priority, _ := cmd.Flags().GetString("priority")
			purpose, _ := cmd.Flags().GetString("purpose")
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			call, err := newClient(cmd).ScheduleCall(ctx, crm.ScheduleCallRequest{
				CustomerID:    args[0],
				ScheduledDate: date,
				ScheduledTime: clock,
				Priority:      priority,
				Purpose:       purpose,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, call)
		},
	}
	scheduleCmd.Flags().String("date", "", "date, YYYY-MM-DD")
	scheduleCmd.Flags().String("time", "", "time, HH:MM")
	scheduleCmd.Flags().String("priority", "medium", "low, medium or high")
	scheduleCmd.Flags().String("purpose", "", "purpose of the call")
	cmd.AddCommand(scheduleCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list [customer]",
		Short: "List the open calls of a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			calls, err := newClient(cmd).ListScheduledCalls(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, calls)
		},
	})

	logCmd := &cobra.Command{
		Use:   "log [call]",
		Short: "Record the outcome of a scheduled call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			notes, _ := cmd.Flags().GetString("notes")
			duration, _ := cmd.Flags().GetInt("duration")
			date, _ := cmd.Flags().GetString("date")
			clock, _ := cmd.Flags().GetString("time")
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			entry, err := newClient(cmd).LogOutcome(ctx, args[0], crm.LogOutcomeRequest{
				Status:   status,
				Notes:    notes,
				Duration: duration,
				Date:     date,
				Time:     clock,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, entry)
		},
	}
	addOutcomeFlags(logCmd)
	cmd.AddCommand(logCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel [call]",
		Short: "Cancel a scheduled call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			return newClient(cmd).CancelScheduledCall(ctx, args[0])
		},
	})

	historyCmd := &cobra.Command{
		Use:   "history [customer]",
		Short: "List the call history of a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			entries, err := newClient(cmd).ListHistory(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, entries)
		},
	}
	cmd.AddCommand(historyCmd)

	addCmd := &cobra.Command{
		Use:   "add [customer]",
		Short: "Record a call that was never scheduled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			notes, _ := cmd.Flags().GetString("notes")
			duration, _ := cmd.Flags().GetInt("duration")
			date, _ := cmd.Flags().GetString("date")
			clock, _ := cmd.Flags().GetString("time")
			callType, _ := cmd.Flags().GetString("call-type")
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			entry, err := newClient(cmd).AddHistoryEntry(ctx, args[0], crm.HistoryEntryRequest{
				Status:   status,
				Notes:    notes,
				Duration: duration,
				Date:     date,
				Time:     clock,
				CallType: callType,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, entry)
		},
	}
	addOutcomeFlags(addCmd)
	addCmd.Flags().String("call-type", "outbound", "inbound or outbound")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "forget [entry]",
		Short: "Delete a call history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			return newClient(cmd).DeleteHistoryEntry(ctx, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats [customer]",
		Short: "Show call statistics of a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			stats, err := newClient(cmd).Statistics(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	})

	return cmd
}

func addOutcomeFlags(cmd *cobra.Command) {
	cmd.Flags().String("status", "completed", "completed, no_answer or postponed")
	cmd.Flags().String("notes", "", "notes")
	cmd.Flags().Int("duration", 0, "duration in minutes")
	cmd.Flags().String("date", "", "date, YYYY-MM-DD (defaults to now)")
	cmd.Flags().String("time", "", "time, HH:MM (defaults to now)")
}
