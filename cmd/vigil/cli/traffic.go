package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	trafficGateway string
	trafficRate    float64
	trafficCount   int
	trafficAttack  float64
	trafficAPIKey  string
)

var normalRequests = []struct {
	method string
	path   string
	body   string
}{
	{"GET", "/api/users", ""},
	{"GET", "/api/users/42", ""},
	{"GET", "/api/products?page=2", ""},
	{"POST", "/api/orders", `{"product_id": 7, "quantity": 2}`},
	{"GET", "/api/health", ""},
	{"PUT", "/api/users/42", `{"email": "user@example.com"}`},
}

var attackRequests = []struct {
	method string
	path   string
	body   string
}{
	{"GET", "/api/users?id=1' OR '1'='1", ""},
	{"GET", "/admin'--", ""},
	{"GET", "/search?q=<script>alert(1)</script>", ""},
	{"POST", "/api/login", `{"user": "admin'; DROP TABLE users;--"}`},
	{"GET", "/api/files?name=../../etc/passwd", ""},
	{"DELETE", "/api/users/1%3BDELETE%20FROM%20users", ""},
}

var trafficCmd = &cobra.Command{
	Use:   "traffic",
	Short: "Generate a paced mix of normal and hostile requests",
	Long: `Send a paced stream of requests at a running gateway: mostly
well-formed API calls with a configurable fraction of injection-style
probes. Useful for exercising the pipeline and for collecting audit
data to train a model on.`,
	Example: `  vigil traffic --gateway http://127.0.0.1:8000 --count 200
  vigil traffic --rate 50 --attack-ratio 0.2`,
	RunE: runTraffic,
}

func init() {
	trafficCmd.Flags().StringVar(&trafficGateway, "gateway", "http://127.0.0.1:8000", "gateway base URL")
	trafficCmd.Flags().Float64Var(&trafficRate, "rate", 10, "requests per second")
	trafficCmd.Flags().IntVar(&trafficCount, "count", 100, "total requests to send")
	trafficCmd.Flags().Float64Var(&trafficAttack, "attack-ratio", 0.1, "fraction of hostile requests")
	trafficCmd.Flags().StringVar(&trafficAPIKey, "api-key", "", "X-API-Key header value")
	rootCmd.AddCommand(trafficCmd)
}

func runTraffic(cmd *cobra.Command, args []string) error {
	if trafficRate <= 0 {
		return fmt.Errorf("rate must be positive, got %v", trafficRate)
	}
	if _, err := url.Parse(trafficGateway); err != nil {
		return fmt.Errorf("invalid gateway URL: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := rate.NewLimiter(rate.Limit(trafficRate), 1)
	client := &http.Client{Timeout: 5 * time.Second}

	counts := map[int]int{}
	sent := 0
	for i := 0; i < trafficCount; i++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		req := normalRequests[rand.Intn(len(normalRequests))]
		hostile := rand.Float64() < trafficAttack
		if hostile {
			req = attackRequests[rand.Intn(len(attackRequests))]
		}

		var body io.Reader
		if req.body != "" {
			body = strings.NewReader(req.body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, trafficGateway+req.path, body)
		if err != nil {
			logger.Error("building request", "path", req.path, "error", err)
			continue
		}
		if req.body != "" {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if trafficAPIKey != "" {
			httpReq.Header.Set("X-API-Key", trafficAPIKey)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			logger.Error("request failed", "path", req.path, "error", err)
			continue
		}
		resp.Body.Close()
		sent++
		counts[resp.StatusCode]++

		logger.Debug("sent",
			"method", req.method,
			"path", req.path,
			"hostile", hostile,
			"status", resp.StatusCode,
		)
	}

	fmt.Printf("sent %d requests\n", sent)
	for status, n := range counts {
		fmt.Printf("  %d: %d\n", status, n)
	}
	return nil
}
