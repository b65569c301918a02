package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clarity-dx/referral-portal/internal/model"
)

var processJSON bool

var processCmd = &cobra.Command{
	Use:   "process <order-id> [order-id...]",
	Short: "Run extraction for one or more order folders",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPortal(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var failed int
		var orders []*model.Order
		for _, orderID := range args {
			order, err := env.Service.Process(ctx, orderID)
			if err != nil {
				zap.L().Error("process failed", zap.String("order_id", orderID), zap.Error(err))
				failed++
				continue
			}
			zap.L().Info("order processed",
				zap.String("order_id", order.OrderID),
				zap.String("patient", order.PatientName()),
			)
			orders = append(orders, order)
		}

		if processJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(orders); err != nil {
				return err
			}
		}

		if failed > 0 {
			zap.L().Warn("some orders failed", zap.Int("failed", failed), zap.Int("total", len(args)))
		}
		return nil
	},
}

func init() {
	processCmd.Flags().BoolVar(&processJSON, "json", false, "print processed records as JSON")
	rootCmd.AddCommand(processCmd)
}
