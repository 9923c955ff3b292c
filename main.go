package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/cheuk209/inference-lab/pkg/adaptive"
	"github.com/cheuk209/inference-lab/pkg/config"
	"github.com/cheuk209/inference-lab/pkg/health"
	"github.com/cheuk209/inference-lab/pkg/limiter"
	"github.com/cheuk209/inference-lab/pkg/metrics"
	"github.com/cheuk209/inference-lab/pkg/rolling"
	"github.com/cheuk209/inference-lab/pkg/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config")
	flag.Parse()

	log := logrus.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	entry := logrus.NewEntry(log)

	if err := run(cfg, entry); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func run(cfg *config.Config, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker, err := rolling.New(cfg.WindowSize)
	if err != nil {
		return err
	}
	m := metrics.New(tracker)
	stats := &metrics.RequestStats{}

	var clientLimiter *limiter.RedisLimiter
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// The limiter fails open anyway; start up and let it recover.
			log.WithError(err).Warn("redis unreachable at startup")
		}
		clientLimiter = limiter.New(client, limiter.DefaultOptions(), log)
		defer client.Close()
	}

	var throttle *adaptive.Limiter
	if cfg.Adaptive.Enabled {
		throttle = adaptive.NewLimiter(cfg.Adaptive.BaseRate)

		source, err := buildSource(cfg, tracker, stats, log)
		if err != nil {
			return err
		}
		interval, err := cfg.Adaptive.Interval()
		if err != nil {
			return err
		}
		targets := adaptive.Targets{
			CPU:       cfg.Adaptive.TargetCPU,
			P95Ms:     cfg.Adaptive.TargetP95Ms,
			ErrorRate: cfg.Adaptive.TargetErrorRate,
		}
		monitor := adaptive.NewMonitor(throttle, source, interval, targets, log)
		go monitor.Run(ctx)
	}

	srv := server.New(tracker, m, stats, throttle, clientLimiter, cfg.ModelVersion, log)
	return srv.Serve(ctx, cfg.ListenAddr)
}

func buildSource(cfg *config.Config, tracker *rolling.Tracker, stats *metrics.RequestStats, log *logrus.Entry) (health.HealthSource, error) {
	switch cfg.Adaptive.Source {
	case "tracker":
		return health.NewTrackerSource(tracker, stats), nil
	case "prometheus":
		return health.NewPrometheusSource(cfg.Adaptive.PrometheusURL)
	case "simulated":
		return health.NewSimulatedSource(time.Now().UnixNano(), log), nil
	default:
		return nil, fmt.Errorf("unknown health source %q", cfg.Adaptive.Source)
	}
}
