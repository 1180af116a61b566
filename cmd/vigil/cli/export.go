package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vigil-proxy/vigil/internal/audit"
	"github.com/vigil-proxy/vigil/internal/feedback"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export retraining samples from operator feedback",
	Long: `Join stored operator feedback against the audit log and emit the
requests confirmed safe as retraining samples. Feedback that does not
match an audit entry, or that carries a malformed correlation ID, is
skipped.`,
	Example: `  vigil export -c vigil.yaml
  vigil export -c vigil.yaml --format csv --output samples.csv`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json or csv")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "json" && exportFormat != "csv" {
		return fmt.Errorf("unknown format %q: want json or csv", exportFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.RedisAddr == "" {
		return fmt.Errorf("export requires redis_addr: in-memory stores do not outlive the gateway")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	correlator := feedback.NewCorrelator(
		feedback.NewRedisStore(rdb, feedback.DefaultQueue),
		audit.NewRedisStore(rdb, audit.DefaultStream),
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()

	samples, err := correlator.ExtractRetrainingSamples(ctx)
	if err != nil {
		return fmt.Errorf("extracting samples: %w", err)
	}
	logger.Info("extracted retraining samples", "count", len(samples))

	out := os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if exportFormat == "csv" {
		w := csv.NewWriter(out)
		if err := w.Write([]string{"correlation_id", "method", "path", "body"}); err != nil {
			return err
		}
		for _, s := range samples {
			if err := w.Write([]string{s.CorrelationID, s.Method, s.Path, s.Body}); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(samples)
}
