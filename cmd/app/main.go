package main

import (
	"flag"
	"log"
	"os"
	"time"

	"TokenPulse/internal/di"
	"TokenPulse/internal/handler/api"
	"TokenPulse/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s cache=%s publisher=%s", cfg.Environment, cfg.Cache.Mode, cfg.Publisher.Type)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg, api.ServiceInfo{
		Name:    "tokenpulse",
		Version: version,
		Started: time.Now(),
	})
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
