package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"envcheck/internal/platform/boot"
	"envcheck/internal/platform/config"
	"envcheck/internal/platform/logging"
	"envcheck/internal/verify"

	"go.uber.org/zap"
)

var errChecksFailed = errors.New("one or more checks failed")

func main() {
	envFile := flag.String("env-file", ".env", "file with KEY=VALUE pairs loaded before the checks; missing is fine")
	metricsFile := flag.String("metrics-file", "", "write check metrics here in Prometheus textfile format")
	flag.Parse()

	// Loaded before the logger so LOG_LEVEL can come from the file too.
	// The process environment wins over the file.
	envErr := config.LoadEnvFile(*envFile)

	err := boot.Run(context.Background(), boot.Options{
		ServiceName: "envcheck",
		MetricsFile: *metricsFile,
	}, func(ctx context.Context, deps boot.Deps) error {
		if envErr != nil {
			logging.From(ctx, deps.Log).Warn("env file not loaded", zap.String("path", *envFile), zap.Error(envErr))
		}

		rep := verify.New(verify.Options{
			Log:     deps.Log,
			Metrics: deps.Metrics,
			RunID:   deps.RunID,
			Stdout:  os.Stdout,
			Stderr:  os.Stderr,
		}).Run(ctx)
		if !rep.OK() {
			return errChecksFailed
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, errChecksFailed):
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "envcheck: %v\n", err)
		os.Exit(2)
	}
}
