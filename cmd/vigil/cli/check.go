package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vigil-proxy/vigil/internal/classifier"
)

var (
	checkModel  string
	checkMethod string
	checkPath   string
	checkBody   string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run a request against a classifier artifact",
	Long: `Check what verdict a request would receive without running the gateway.
Useful for validating a freshly trained model artifact before loading it.`,
	Example: `  vigil check --model model.json --method GET --path "/api/users?id=1' OR 1=1"
  vigil check --model model.json --method POST --path /login --body '{"user":"a"}'`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkModel, "model", "", "classifier artifact (JSON)")
	checkCmd.Flags().StringVar(&checkMethod, "method", "GET", "HTTP method")
	checkCmd.Flags().StringVar(&checkPath, "path", "", "request path including query string")
	checkCmd.Flags().StringVar(&checkBody, "body", "", "request body")
	_ = checkCmd.MarkFlagRequired("model")
	_ = checkCmd.MarkFlagRequired("path")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	handle := classifier.NewHandle(logger)
	if err := handle.Load(checkModel); err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	gate := classifier.NewGate(handle, 1, logger)
	blocked, risk := gate.Evaluate(context.Background(), checkMethod, checkPath, checkBody)

	verdict := "allowed"
	if blocked {
		verdict = "blocked_anomaly"
	}

	meta, _ := handle.Metadata()
	output := struct {
		Verdict   string                   `json:"verdict"`
		RiskScore float64                  `json:"risk_score"`
		Features  classifier.FeatureVector `json:"features"`
		Model     classifier.Metadata      `json:"model"`
	}{
		Verdict:   verdict,
		RiskScore: risk,
		Features:  classifier.Features(checkMethod, checkPath, checkBody),
		Model:     meta,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}
