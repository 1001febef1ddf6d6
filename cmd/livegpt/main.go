package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/davidbz/livegpt/internal/app"
	"github.com/davidbz/livegpt/internal/config"
	"github.com/davidbz/livegpt/internal/http"
)

func main() {
	container, err := app.BuildContainer(config.Load)
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	err = container.Invoke(func(server *http.Server) error {
		return run(server)
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

// run serves until SIGINT/SIGTERM, then drains in-flight streams.
func run(server *http.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), server.ShutdownTimeout())
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
