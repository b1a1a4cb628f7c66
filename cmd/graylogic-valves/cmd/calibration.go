package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-valves/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-valves/internal/store"
)

var calibrationJSON bool

var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Inspect or reset persisted valve calibration",
}

var calibrationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved position and calibration per valve",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStates(cmd.Context(), func(ctx context.Context, states *store.SQLiteRepository) error {
			records, err := states.List(ctx)
			if err != nil {
				return err
			}
			if calibrationJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return writeCalibrationTable(cmd.OutOrStdout(), records)
		})
	},
}

var calibrationResetCmd = &cobra.Command{
	Use:   "reset <valve-id>",
	Short: "Forget the saved state of one valve",
	Long: `Reset deletes the saved position and every learned calibration entry
of a valve. The controller starts from defaults on its next start.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStates(cmd.Context(), func(ctx context.Context, states *store.SQLiteRepository) error {
			if err := states.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", args[0])
			return nil
		})
	},
}

func init() {
	calibrationListCmd.Flags().BoolVar(&calibrationJSON, "json", false, "Print records as JSON")
	calibrationCmd.AddCommand(calibrationListCmd, calibrationResetCmd)
	rootCmd.AddCommand(calibrationCmd)
}

// withStates opens the configured database for the duration of fn.
func withStates(ctx context.Context, fn func(context.Context, *store.SQLiteRepository) error) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, store.NewSQLiteRepository(db.DB))
}

func writeCalibrationTable(w io.Writer, records []store.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VALVE\tPOSITION\tHEATING\tTARGET\tDELTA\tSWEET SPOT\tUPDATED")
	for _, r := range records {
		updated := r.UpdatedAt.Format(time.RFC3339)
		if len(r.State.Calibration) == 0 {
			fmt.Fprintf(tw, "%s\t%.2f\t%t\t-\t-\t-\t%s\n", r.ValveID, r.State.Position, r.State.HeatingUntilTarget, updated)
			continue
		}
		for i, e := range r.State.Calibration {
			if i == 0 {
				fmt.Fprintf(tw, "%s\t%.2f\t%t\t%.2f\t%.2f\t%.1f\t%s\n",
					r.ValveID, r.State.Position, r.State.HeatingUntilTarget,
					e.Target, e.FeltTempDelta, e.SweetSpot, updated)
				continue
			}
			fmt.Fprintf(tw, "\t\t\t%.2f\t%.2f\t%.1f\t\n", e.Target, e.FeltTempDelta, e.SweetSpot)
		}
	}
	return tw.Flush()
}
