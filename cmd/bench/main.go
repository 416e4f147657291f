// README: Benchmark runner; executes HTTP/DB/Redis checks against a running stride-api and prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"stride/internal/config"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bench := NewRunner(cfg)
	results := bench.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case "PASS":
			pass++
		case "FAIL":
			fail++
		case "SKIP":
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 || (cfg.Strict && skipped > 0) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL        string
	DSN            string
	RedisAddr      string
	MigrationPath  string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration
}

// loadConfig takes DB and Redis defaults from the service config so the bench
// points at the same backing stores as stride-api.
func loadConfig() Config {
	svc, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	base := os.Getenv("STRIDE_BENCH_BASE_URL")
	if base == "" {
		base = "http://localhost" + svc.HTTP.Addr
	}

	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", base, "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", svc.DB.DSN, "Postgres DSN")
	flag.StringVar(&cfg.RedisAddr, "redis", svc.Redis.Addr, "Redis address")
	flag.StringVar(&cfg.MigrationPath, "migration", "migrations/0001_init.sql", "Migration SQL path")
	flag.BoolVar(&cfg.ApplyMigration, "apply-migration", false, "Apply migration SQL before tests")
	flag.BoolVar(&cfg.Strict, "strict", false, "Fail on skipped checks")
	flag.DurationVar(&cfg.Timeout, "timeout", 60*time.Second, "Total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", 20, "Concurrency for perf tests")
	flag.DurationVar(&cfg.Duration, "duration", 10*time.Second, "Duration for perf tests")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}
