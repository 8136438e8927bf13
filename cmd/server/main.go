package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreprotocols/gomodbus/common"
	"github.com/coreprotocols/gomodbus/logging"
	"github.com/coreprotocols/gomodbus/server"
	"github.com/coreprotocols/gomodbus/store"
)

func main() {
	// Parse command line flags
	address := flag.String("address", "0.0.0.0", "Server address to bind to")
	port := flag.Int("port", common.DefaultTCPPort, "TCP port to listen on")
	debug := flag.Bool("debug", false, "Enable debug logging")
	preloadData := flag.Bool("preload", true, "Preload some example data in the register store")
	flag.Parse()

	// Create a logger
	logLevel := common.LevelInfo
	if *debug {
		logLevel = common.LevelDebug
	}
	logger := logging.NewLogger(logging.WithLevel(logLevel))

	// Create context for clean shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create the register store
	regs := store.New()

	// Preload some sample data
	if *preloadData {
		preloadSampleData(regs, logger)
	}

	// Create TCP server
	modbusServer := server.NewTCPServer(
		*address,
		server.WithServerPort(*port),
		server.WithServerLogger(logger),
		server.WithServerStore(regs),
		server.WithOnClientConnect(func(c server.ConnectedClient) {
			logger.Info(ctx, "Client connected: %s", c.RemoteAddr)
		}),
		server.WithOnClientDisconnect(func(c server.ConnectedClient) {
			logger.Info(ctx, "Client disconnected: %s", c)
		}),
	)

	// Setup signal handler for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info(ctx, "Received shutdown signal, stopping server...")
		if err := modbusServer.Stop(ctx); err != nil {
			logger.Error(ctx, "Error stopping server: %v", err)
		}
		cancel()
	}()

	// Start the server
	logger.Info(ctx, "Starting Modbus TCP server on %s:%d...", *address, *port)
	if err := modbusServer.Start(ctx); err != nil {
		logger.Error(ctx, "Failed to start server: %v", err)
		os.Exit(1)
	}

	// Start a goroutine to periodically update some registers to demonstrate changing values
	go func() {
		tick := time.NewTicker(1 * time.Second)
		defer tick.Stop()

		var counter uint16

		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				counter++
				regs.SetInput(1000, counter)
				regs.SetInput(1001, uint16(time.Now().Unix()&0xFFFF))
				regs.SetHolding(2000, counter)
				regs.SetCoil(3000, counter%2 == 0) // Toggle every second
			}
		}
	}()

	// Block until context is canceled
	<-ctx.Done()
	logger.Info(ctx, "Server shutdown complete")
}

// preloadSampleData initializes the register store with sample values
func preloadSampleData(regs store.Store, logger common.LoggerInterface) {
	ctx := context.Background()
	logger.Info(ctx, "Preloading sample data...")

	// Add some coils (digital outputs)
	coilValues := []bool{true, false, true, true, false}
	for i, value := range coilValues {
		regs.SetCoil(uint16(i), value)
	}

	// Add some discrete inputs (digital inputs)
	diValues := []bool{false, true, false, true, true}
	for i, value := range diValues {
		regs.SetDiscrete(uint16(i), value)
	}

	// Add some holding registers (analog outputs)
	hrValues := []uint16{1000, 2000, 3000, 4000, 5000}
	for i, value := range hrValues {
		regs.SetHolding(uint16(i), value)
	}

	// Add some input registers (analog inputs)
	irValues := []uint16{100, 200, 300, 400, 500}
	for i, value := range irValues {
		regs.SetInput(uint16(i), value)
	}

	// Add some special registers
	regs.SetInput(1000, 0)       // Counter register (will be updated)
	regs.SetInput(1001, 0)       // Timestamp register (will be updated)
	regs.SetHolding(2000, 0)     // Counter register (will be updated)
	regs.SetHolding(5000, 12345) // Fixed value
	regs.SetCoil(3000, false)    // Boolean toggle (will be updated)

	logger.Info(ctx, "Sample data preloaded")
}
