package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/PottierLoic/Remotely/internal/commands"
	"github.com/PottierLoic/Remotely/internal/config"
	"github.com/PottierLoic/Remotely/internal/server"
	"github.com/PottierLoic/Remotely/pkg/logger"
)

// remotely-bridge is the sidecar the desktop shell spawns. It reads the same
// config file as the CLI and expects the shell to pass the shared secret.
func main() {
	configPath := flag.String("config", "", "Config file (default: user config dir)")
	addr := flag.String("addr", "", "Listen address (default: bridge_addr from config)")
	secret := flag.String("secret", os.Getenv("REMOTELY_BRIDGE_SECRET"), "Token signing secret (or REMOTELY_BRIDGE_SECRET)")
	flag.Parse()

	manager, err := config.NewManager(*configPath)
	if err != nil {
		log.Fatalf("Failed to locate config: %v", err)
	}
	if err := manager.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg := manager.Get()
	logger.Setup(cfg.LogFormat, cfg.LogLevel)

	if *secret == "" {
		*secret = cfg.BridgeSecret
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Error: --secret is required when bridge_secret is not configured")
		flag.Usage()
		os.Exit(1)
	}
	if *addr == "" {
		*addr = cfg.BridgeAddr
	}

	reg, err := manager.OpenRegistry()
	if err != nil {
		logger.Error("failed to open registry", "error", err)
		os.Exit(1)
	}

	bridge := server.NewBridge(commands.NewHandler(reg), []byte(*secret), logger.With("component", "bridge"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting bridge", "addr", *addr, "config", manager.GetConfigPath())
	if err := bridge.Run(ctx, *addr); err != nil {
		logger.Error("bridge stopped", "error", err)
		os.Exit(1)
	}
}
