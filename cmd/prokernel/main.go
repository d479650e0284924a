package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kernellabs/prokernel"
	"github.com/kernellabs/prokernel/internal/console"
	"github.com/kernellabs/prokernel/internal/constants"
	"github.com/kernellabs/prokernel/internal/diag"
	"github.com/kernellabs/prokernel/internal/keyboard"
)

func main() {
	var (
		heapStr = flag.String("heap", "1M", "Size of the kernel heap (e.g., 256K, 1M)")
		tickMs  = flag.Int("tick", 10, "Tick interval in milliseconds")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	heapSize, err := parseSize(*heapStr)
	if err != nil {
		log.Fatalf("Invalid heap size '%s': %v", *heapStr, err)
	}

	logConfig := diag.DefaultConfig()
	if *verbose {
		logConfig.Level = diag.LevelDebug
	}
	logger := diag.NewLogger(logConfig)
	diag.SetDefault(logger)

	cfg := prokernel.DefaultBootConfig()
	cfg.HeapSize = uint32(heapSize)
	cfg.TickInterval = time.Duration(*tickMs) * time.Millisecond
	cfg.Logger = logger

	kernel := prokernel.NewKernel(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := kernel.Boot(ctx); err != nil {
		logger.Error("boot failed", "error", err)
		os.Exit(1)
	}
	defer kernel.Shutdown()

	con := console.NewGrid(os.Stdout,
		constants.ConsoleWidth, constants.ConsoleHeight, constants.ConsoleTabStop)

	// Raw mode so the line accumulator sees every keystroke, including
	// backspace, instead of the tty driver's canonical editing.
	stdinFd := int(os.Stdin.Fd())
	if saved, err := keyboard.EnableRaw(stdinFd); err == nil {
		defer func() {
			if err := keyboard.Restore(stdinFd, saved); err != nil {
				logger.Error("failed to restore terminal", "error", err)
			}
		}()
	} else if *verbose {
		logger.Debug("stdin is not a terminal, reading line-buffered", "error", err)
	}

	kbd := keyboard.New(os.Stdin, con.PutChar)
	go kbd.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	shell := prokernel.NewShell(kernel, con)

	fmt.Printf("prokernel: heap %s, tick %dms\n", formatSize(heapSize), *tickMs)
	fmt.Printf("Type 'help' for commands, Ctrl+C to stop.\n\n")

	shell.Run(ctx, kbd)
}

// parseSize parses a size string like "256K", "1M", "64M".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(s)

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}

// formatSize formats a byte count as a human-readable string.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.0f %ciB", float64(bytes)/float64(div), "KMG"[exp])
}
