// Command memberauth serves the member register, login and federated-login API.
//
// All configuration comes from MEMBERAUTH_* environment variables; see the
// config package.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/panyam/memberauth/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, newLogger(cfg, os.Stderr)); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
