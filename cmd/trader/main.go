package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/certmint/trade-engine/internal/app"
	"github.com/certmint/trade-engine/internal/config"
	"github.com/certmint/trade-engine/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Starting trade engine", zap.String("config", *configPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner, err := app.NewRunner(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize runner", zap.Error(err))
	}
	defer runner.Shutdown()

	if err := runner.Run(ctx); err != nil {
		log.Error("Run finished with failures", zap.Error(err))
		runner.Shutdown()
		os.Exit(1)
	}
}
