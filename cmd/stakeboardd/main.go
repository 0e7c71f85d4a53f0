package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/duggee/stakeboard/internal/config"
	"github.com/duggee/stakeboard/internal/daemon"
	"github.com/duggee/stakeboard/internal/logging"
	"github.com/duggee/stakeboard/internal/mcpserver"
)

var Version = "0.1.0"

func main() {
	cfgPath := flag.String("config", "", "path to stakeboard.yaml")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools on stdio")
	flag.Parse()

	// Everything human-readable goes to stderr; stdout belongs to MCP.
	violet := "\033[38;5;99m"
	reset := "\033[0m"
	dim := "\033[2m"

	fmt.Fprintf(os.Stderr, violet+`
   ___ _        _       _                      _
  / __| |_ __ _| |_____| |__  ___  __ _ _ _ __| |
  \__ \  _/ _`+"`"+` | / / -_) '_ \/ _ \/ _`+"`"+` | '_/ _`+"`"+` |
  |___/\__\__,_|_\_\___|_.__/\___/\__,_|_| \__,_|
`+reset+`
  `+dim+`Staking console  v%s`+reset+`
  `+violet+`━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━`+reset+`
`, Version)

	if *cfgPath == "" {
		*cfgPath = config.DefaultPath()
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[main] Failed to load config: %v", err)
	}

	if _, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		log.Fatalf("[main] Failed to set up logging: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		log.Fatalf("[main] Failed to create data dir %s: %v", cfg.DataDir, err)
	}

	log.Printf("[main] Data dir: %s", cfg.DataDir)

	d, err := daemon.New(cfg)
	if err != nil {
		log.Fatalf("[main] Failed to create daemon: %v", err)
	}

	if err := d.Start(); err != nil {
		log.Fatalf("[main] Failed to start daemon: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *mcpMode {
		log.Println("[main] Serving MCP on stdio")
		if err := mcpserver.New(Version, d).Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[main] MCP session ended: %v", err)
		}
	} else {
		<-ctx.Done()
	}
	log.Println("[main] Shutting down...")

	d.Stop()
	log.Println("[main] Goodbye.")
}
