package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/keralanet/floodwatch/pkg/monitor"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single evaluation cycle and print the results",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Bool("demo", false, "Use the rule-based classifier instead of a model artifact")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	demo, _ := cmd.Flags().GetBool("demo")

	logger := newLogger(cfg)

	eng, db, err := initEngine(cfg, demo, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := initProvider(cfg)
	if err != nil {
		return fmt.Errorf("init observation source: %w", err)
	}

	runner := monitor.NewRunner(eng, provider, monitor.Config{
		Districts: cfg.DistrictList(),
		Interval:  cfg.Monitor.Interval,
	}, nil, logger)

	result := runner.RunCycle(cmd.Context())

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "DISTRICT\tPREDICTED\tCONFIDENCE\tOUTCOME")
	for _, out := range result.Evaluations {
		outcome := "quiet"
		switch {
		case out.Notified:
			outcome = "notified"
		case out.Suppressed:
			outcome = "suppressed"
		case out.Alert != nil:
			outcome = "recorded"
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\n",
			out.District,
			out.Prediction.PredictedAlert,
			out.Prediction.Confidence*100,
			outcome)
	}
	w.Flush()

	if len(result.Failures) > 0 {
		fmt.Println()
		fmt.Println("Failures:")
		for _, f := range result.Failures {
			fmt.Printf("  %s: %v\n", f.District, f.Err)
		}
	}

	fmt.Printf("\nEvaluated %d districts, %d failed, took %s\n",
		len(result.Evaluations), len(result.Failures), result.Duration.Round(time.Millisecond))
	return nil
}
