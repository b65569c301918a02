package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Inspect referral orders",
	Long:  "Commands for listing orders and viewing a single order record.",
}

// -- orders list --

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List orders and their lifecycle status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPortal(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summaries, err := env.Service.List(ctx)
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Fprintln(os.Stderr, "No orders found.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ORDER\tSTATUS\tPATIENT\tPROCESSED")
		for _, s := range summaries {
			processed := ""
			if s.ProcessedDate != nil {
				processed = s.ProcessedDate.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.OrderID, s.Status, s.PatientName, processed)
		}
		return tw.Flush()
	},
}

// -- orders show --

var ordersShowCmd = &cobra.Command{
	Use:   "show <order-id>",
	Short: "Print one order record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPortal(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		order, err := env.Service.Get(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(order)
	},
}

// -- orders audit --

var ordersAuditCmd = &cobra.Command{
	Use:   "audit <order-id>",
	Short: "Print the lifecycle event trail for an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPortal(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Service.AuditTrail(ctx, args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No audit events.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tEVENT\tACTOR\tDETAIL")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Event, e.Actor, e.Detail)
		}
		return tw.Flush()
	},
}

func init() {
	ordersCmd.AddCommand(ordersListCmd)
	ordersCmd.AddCommand(ordersShowCmd)
	ordersCmd.AddCommand(ordersAuditCmd)
	rootCmd.AddCommand(ordersCmd)
}
