package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/keralanet/floodwatch/pkg/model"
	"github.com/keralanet/floodwatch/pkg/store"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List alerts from the store",
	RunE:  runAlerts,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.Flags().Bool("current", false, "Show only the latest alert per district")
	alertsCmd.Flags().StringP("district", "d", "", "Filter by district")
	alertsCmd.Flags().StringP("level", "l", "", "Filter by alert level (Yellow, Orange, Red)")
	alertsCmd.Flags().IntP("limit", "n", 50, "Maximum rows to show")
}

func runAlerts(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := initStore(cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	current, _ := cmd.Flags().GetBool("current")
	district, _ := cmd.Flags().GetString("district")
	levelFlag, _ := cmd.Flags().GetString("level")
	limit, _ := cmd.Flags().GetInt("limit")

	var alerts []model.Alert
	if current {
		alerts, err = db.Current(cmd.Context())
	} else {
		filter := store.Filter{District: model.District(district), Limit: limit}
		if levelFlag != "" {
			filter.Level, err = model.ParseAlertLevel(levelFlag)
			if err != nil {
				return err
			}
		}
		alerts, err = db.List(cmd.Context(), filter)
	}
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}

	if len(alerts) == 0 {
		fmt.Println("No alerts recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "DISTRICT\tLEVEL\tCONFIDENCE\tAS OF\tCREATED\tNOTIFIED")
	for _, a := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\t%s\t%t\n",
			a.District,
			a.Level,
			a.Confidence*100,
			a.AsOfDate.Format("2006-01-02"),
			a.CreatedAt.Format(time.RFC3339),
			a.Notified)
	}
	return w.Flush()
}
