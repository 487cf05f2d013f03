// Package export writes finished trade results to disk for bookkeeping.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Format represents the export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Record is one finished trade.
type Record struct {
	Name      string    `json:"name"`
	IntentID  string    `json:"intent_id"`
	Kind      string    `json:"kind"`
	Token     string    `json:"token"`
	TokenID   string    `json:"token_id"`
	Amount    string    `json:"amount"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures the export behavior
type Options struct {
	Format      Format
	OnlySettled bool
	OutputDir   string
}

// Exporter writes trade records in the configured format.
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a trade exporter
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger.Named("export")}
}

// Export writes the records and returns the output path.
func (e *Exporter) Export(records []Record, options Options) (string, error) {
	filtered := records
	if options.OnlySettled {
		filtered = make([]Record, 0, len(records))
		for _, record := range records {
			if record.State == "settled" {
				filtered = append(filtered, record)
			}
		}
	}
	if len(filtered) == 0 {
		return "", fmt.Errorf("no trades match the export criteria")
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	if err := os.MkdirAll(options.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(options.OutputDir,
		fmt.Sprintf("trades_%s.%s", time.Now().Format("20060102_150405"), options.Format))

	var err error
	switch options.Format {
	case FormatCSV:
		err = e.writeCSV(filtered, outputPath)
	case FormatJSON:
		err = e.writeJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	e.logger.Info("Trades exported",
		zap.Int("count", len(filtered)),
		zap.String("path", outputPath))
	return outputPath, nil
}

func (e *Exporter) writeCSV(records []Record, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"name", "intent_id", "kind", "token", "token_id", "amount", "state", "reason", "tx_hash", "timestamp"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Name, r.IntentID, r.Kind, r.Token, r.TokenID, r.Amount,
			r.State, r.Reason, r.TxHash, r.Timestamp.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) writeJSON(records []Record, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}
