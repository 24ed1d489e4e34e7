package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"janus/internal/app"
)

func main() {
	if os.Geteuid() != 0 {
		log.Println("warning: not running as root — device writes and ejects will likely fail with permission errors")
	}

	application, err := app.NewApp()
	if err != nil {
		log.Fatalf("failed to create application: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- application.Start() }()

	select {
	case sig := <-sigCh:
		application.GetLogger().Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Fatalf("application failed: %v", err)
		}
	}

	if err := application.Stop(); err != nil {
		log.Fatalf("shutdown failed: %v", err)
	}
}
