package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"arrival-predictor/internal/ingest"
	"arrival-predictor/internal/sim"
)

var predictCmd = &cobra.Command{
	Use:   "predict <file>",
	Short: "Predicts arrivals for a CSV, JSON or GTFS zip file and prints them",
	Args:  cobra.ExactArgs(1),
	RunE:  predict,
}

var referenceDate string

func init() {
	predictCmd.Flags().StringVarP(&referenceDate, "reference-date", "d", "", "Service day (YYYY-MM-DD) for weekday and hour features")
}

func predict(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if referenceDate != "" {
		d, err := time.ParseInLocation(time.DateOnly, referenceDate, cfg.Location)
		if err != nil {
			return fmt.Errorf("invalid --reference-date %q: %w", referenceDate, err)
		}
		cfg.ReferenceDate = d
	}
	// stdout carries the result
	logger := newLogger(cfg, os.Stderr)

	est, err := buildEstimator(cfg, nil, logger)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	table, _, err := ingest.Decode(filepath.Base(args[0]), f)
	if err != nil {
		return err
	}

	simulator := sim.NewSimulator(est,
		sim.WithClock(cfg.Clock()),
		sim.WithLogger(logger),
		sim.WithDefaultDwell(cfg.DefaultDwellSeconds))
	routes, err := simulator.AssembleAndSimulate(cmd.Context(), table)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"routes": routes})
}
