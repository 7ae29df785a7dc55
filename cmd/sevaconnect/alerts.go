package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sevaconnect-backend/pkg/alerts"
	"sevaconnect-backend/pkg/app"
	"sevaconnect-backend/pkg/models"
)

var alertsNGO string

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Recompute and print inventory and donation alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			list, err := a.Alerts.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			if alertsNGO != "" {
				list = a.Alerts.ForNGO(cmd.Context(), alertsNGO)
			}
			printAlerts(list)
			return nil
		})
	},
}

func init() {
	alertsCmd.Flags().StringVar(&alertsNGO, "ngo", "", "only show alerts for this NGO id")
}

func printAlerts(list []models.Alert) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tREAD\tCREATED\tMESSAGE")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", a.Type, a.IsRead, a.CreatedAt.Format("2006-01-02 15:04"), a.Message)
	}
	tw.Flush()

	counts := alerts.Count(list)
	fmt.Printf("\n%d low stock, %d expiring, %d new donations\n",
		counts[models.AlertLowStock], counts[models.AlertExpiry], counts[models.AlertNewDonation])
}
