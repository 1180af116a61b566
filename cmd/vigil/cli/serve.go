package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vigil-proxy/vigil/internal/audit"
	"github.com/vigil-proxy/vigil/internal/classifier"
	"github.com/vigil-proxy/vigil/internal/feedback"
	"github.com/vigil-proxy/vigil/internal/pipeline"
	"github.com/vigil-proxy/vigil/internal/proxy"
	"github.com/vigil-proxy/vigil/internal/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the inspection gateway",
	Long: `Start the gateway in front of the configured upstream. Every request
is checked by the admission gate and the anomaly classifier, audited,
and then forwarded or blocked.`,
	Example: `  vigil serve -c vigil.yaml
  vigil serve -c vigil.yaml -v`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var (
		counters   ratelimit.CounterStore
		auditStore audit.Store
		fbStore    feedback.Store
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		counters = ratelimit.NewRedisCounter(rdb)
		auditStore = audit.NewRedisStore(rdb, audit.DefaultStream)
		fbStore = feedback.NewRedisStore(rdb, feedback.DefaultQueue)
	} else {
		logger.Warn("no redis_addr configured, falling back to in-memory stores")
		counters = ratelimit.NewMemoryCounter()
		auditStore = audit.NewMemoryStore()
		fbStore = feedback.NewMemoryStore()
	}
	defer auditStore.Close()

	handle := classifier.NewHandle(logger)
	if cfg.ModelPath != "" {
		if err := handle.Load(cfg.ModelPath); err != nil {
			logger.Warn("model load failed, classifier starts degraded",
				"path", cfg.ModelPath, "error", err)
		}
	} else {
		logger.Warn("no model configured, classifier starts degraded")
	}

	limiter := ratelimit.NewLimiter(counters, cfg.RateLimitMax, cfg.RateLimitWindow, cfg.StoreTimeout, logger)
	chain := pipeline.NewChain(logger,
		pipeline.NewAdmissionGate(limiter),
		pipeline.NewAnomalyGate(classifier.NewGate(handle, cfg.ClassifierWorkers, logger)),
		pipeline.NewAuditGate(auditStore, cfg.Retention, cfg.StoreTimeout, logger),
	)

	srv, err := proxy.NewServer(proxy.Options{
		Target:            cfg.Target,
		APIKey:            cfg.APIKey,
		BodyCap:           cfg.BodyCap,
		TrustForwardedFor: cfg.TrustForwardedFor,
		RetryAfter:        cfg.RateLimitWindow,
		StoreTimeout:      cfg.StoreTimeout,
		Chain:             chain,
		AuditStore:        auditStore,
		Correlator:        feedback.NewCorrelator(fbStore, auditStore, logger),
		Counters:          counters,
		Handle:            handle,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting gateway",
		slog.String("listen", cfg.Listen),
		slog.String("target", cfg.Target),
		slog.Int("rate_limit", cfg.RateLimitMax),
		slog.Duration("window", cfg.RateLimitWindow),
	)

	return srv.ListenAndServe(ctx, cfg.Listen)
}
