package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"novaground/internal/config"
	"novaground/internal/web"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", "./novaground.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("config load failed: %v", err)
		return 2
	}

	logs := web.NewLogBuffer(cfg.Web.LogLines)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	open, err := openerFor(cfg.PCA9685)
	if err != nil {
		log.Printf("pca9685 bus setup failed: %v", err)
		return 1
	}
	rt, err := newRuntime(cfg, open)
	if err != nil {
		log.Printf("pca9685 init failed: %v", err)
		return 1
	}
	defer rt.Close()

	log.Printf("novaground starting bus=%s addr=0x%02X backend=%s", cfg.PCA9685.Bus, cfg.PCA9685.Address, cfg.PCA9685.Backend)
	if err := rt.Run(ctx, logs); err != nil {
		log.Printf("novaground stopped: %v", err)
		return 1
	}
	log.Printf("novaground stopping")
	return 0
}
