package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pumpfeed/internal/bus"
	"pumpfeed/internal/classify"
	"pumpfeed/internal/gateway"
	"pumpfeed/internal/geyser"
	"pumpfeed/internal/ingestion"
	"pumpfeed/internal/observability"
)

func main() {
	// Parse flags
	endpoint := flag.String("endpoint", "wss://fr.grpc.gadflynode.com:25565", "Upstream transaction stream endpoint (ws:// or wss://)")
	listenAddr := flag.String("listen-addr", ":8724", "HTTP address for the event stream server")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	program := flag.String("program", classify.PumpFunProgram, "Program ID whose create instructions are streamed")
	commitment := flag.String("commitment", "processed", "Upstream commitment level: processed, confirmed or finalized")
	busCapacity := flag.Int("bus-capacity", bus.DefaultCapacity, "Number of recent events retained for slow subscribers")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[pumpfeed] ", log.LstdFlags)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Event bus: the single fan-out point between the supervisor and the
	// gateway tasks.
	eventBus := bus.New(*busCapacity)

	// Event stream server
	gw := gateway.NewServer(eventBus, logger)
	srv := &http.Server{
		Addr:    *listenAddr,
		Handler: gw.Handler(),
		// No write timeout: /events connections stay open indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("Event stream server listening on %s", *listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("HTTP server error: %v", err)
			cancel()
		}
	}()

	// Upstream supervisor
	dialer := geyser.NewDialer(*endpoint, nil)
	supervisor := ingestion.NewSupervisor(ingestion.SupervisorOptions{
		Dialer: ingestion.DialerFunc(func(ctx context.Context) (ingestion.UpdateConn, error) {
			return dialer.Dial(ctx)
		}),
		Filter: geyser.SubscribeFilter{
			AccountInclude: []string{*program},
			Vote:           false,
			Failed:         false,
			Commitment:     *commitment,
		},
		Bus:    eventBus,
		Logger: logger,
	})

	logger.Printf("Streaming create transactions for program %s from %s", *program, *endpoint)
	err := supervisor.Run(ctx)

	// Shutdown: close the bus so gateway tasks drain and exit, then stop
	// accepting HTTP traffic.
	eventBus.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Printf("HTTP shutdown error: %v", serr)
	}

	close(done)

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}
	logger.Println("Shutdown complete")
}
