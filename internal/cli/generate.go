package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/keralanet/floodwatch/pkg/source"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a synthetic observations CSV",
	RunE:  runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringP("out", "o", "kerala_flood_data.csv", "Output file path")
	generateCmd.Flags().Int("days", 60, "Days of history to generate")
	generateCmd.Flags().Int64("seed", defaultSeed, "Random seed")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	days, _ := cmd.Flags().GetInt("days")
	seed, _ := cmd.Flags().GetInt64("seed")
	if days < 1 {
		return fmt.Errorf("days must be positive, got %d", days)
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -(days - 1))
	synthetic := source.NewSynthetic(cfg.CoordinateMap(), from, to, seed)

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	if err := synthetic.WriteCSV(f, cfg.CoordinateMap()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	fmt.Printf("Wrote %d days for %d districts to %s\n", days, len(cfg.Districts), out)
	return nil
}
