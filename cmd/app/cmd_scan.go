package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/engine"
	"CryptoSignal/internal/scoreconfig"
	"CryptoSignal/internal/scoring/calibration"
	"CryptoSignal/internal/scoring/confidence"
	"CryptoSignal/internal/usecase"
	"CryptoSignal/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	scanInput   string
	scanScoring string
	scanWorkers int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Evaluate a file of asset snapshots once and print the decisions",
	Long: `Evaluate asset snapshots read from a JSON file (one snapshot or an array)
and print the decisions as JSON. Nothing is published or stored.

Example:
  cryptosignal scan --input snapshots.json --scoring config/scoring.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		snaps, err := readSnapshots(scanInput)
		if err != nil {
			return err
		}
		doc, err := scoreconfig.Load(scanScoring)
		if err != nil {
			return err
		}
		return runScan(cmd.Context(), doc, snaps, scanWorkers, cmd.OutOrStdout())
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanInput, "input", "", "JSON file with asset snapshots")
	scanCmd.Flags().StringVar(&scanScoring, "scoring", "config/scoring.yaml", "scoring configuration file")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 4, "parallel evaluations")
	_ = scanCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(scanCmd)
}

func runScan(ctx context.Context, doc *scoreconfig.Document, snaps []*models.AssetSnapshot, workers int, w io.Writer) error {
	tbl, err := doc.Calibration.Table()
	if err != nil {
		return fmt.Errorf("calibration table: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// a private registry keeps one-shot runs off the process metrics
	rec := metrics.NewWithRegisterer(prometheus.NewRegistry())
	eng := engine.New(doc, confidence.NewEvaluator(doc.Confidence), calibration.NewCalibrator(tbl))

	symbols := make([]string, len(snaps))
	for i, s := range snaps {
		symbols[i] = s.Symbol
	}
	sc := usecase.NewScanner(nil, eng, rec, symbols, usecase.WithWorkers(workers))
	decisions := sc.Evaluate(ctx, snaps)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(decisions)
}

func readSnapshots(path string) ([]*models.AssetSnapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}
	return decodeSnapshots(b)
}

// decodeSnapshots accepts a single snapshot object or an array of them.
func decodeSnapshots(b []byte) ([]*models.AssetSnapshot, error) {
	if c, ok := firstNonSpace(b); ok && c == '{' {
		s := &models.AssetSnapshot{}
		if err := json.Unmarshal(b, s); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		return []*models.AssetSnapshot{s}, nil
	}
	var out []*models.AssetSnapshot
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode snapshots: %w", err)
	}
	return out, nil
}

func firstNonSpace(b []byte) (byte, bool) {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c, true
	}
	return 0, false
}
