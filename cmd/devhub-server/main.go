package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"devhub/internal/config"
	"devhub/internal/logging"
	"devhub/internal/server"
)

func main() {
	port := flag.Int("port", 0, "listen port (overrides config)")
	scriptPath := flag.String("script", "", "JSON file of run scripts to replay (overrides config)")
	stepDelayMS := flag.Int("step-delay", -1, "milliseconds between replayed steps (overrides config)")
	flag.Parse()

	logger := logging.NewComponentLogger("Main")

	cfg, err := config.Load(config.WithOverride(func(c *config.RuntimeConfig) {
		if *port > 0 {
			c.Port = *port
		}
		if *scriptPath != "" {
			c.ScriptPath = *scriptPath
		}
		if *stepDelayMS >= 0 {
			c.StepDelayMS = *stepDelayMS
		}
	}))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.Info("=== Run Stream Server Configuration ===")
	logger.Info("Port: %d", cfg.Port)
	logger.Info("Environment: %s", cfg.Environment)
	logger.Info("Step delay: %dms", cfg.StepDelayMS)
	logger.Info("Script path: %s", cfg.ScriptPath)
	logger.Info("=======================================")

	store := server.NewScriptStore(logger)
	if cfg.ScriptPath != "" {
		loaded, err := store.LoadFile(cfg.ScriptPath)
		if err != nil {
			log.Fatalf("failed to load run scripts: %v", err)
		}
		logger.Info("serving %d run scripts", loaded)
	} else {
		store.Put(server.DemoScript("demo"))
		logger.Info("no script file configured; serving built-in demo run for task 'demo'")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, store, logger)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
