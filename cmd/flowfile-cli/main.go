// Flowfile CLI - run a flow file from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/smilemakc/flowfile/internal/config"
	"github.com/smilemakc/flowfile/internal/infrastructure/logger"
	"github.com/smilemakc/flowfile/pkg/fingerprint"
	"github.com/smilemakc/flowfile/pkg/models"
	"github.com/smilemakc/flowfile/pkg/planner"
	"github.com/smilemakc/flowfile/pkg/scheduler"
	"github.com/smilemakc/flowfile/pkg/server"
)

const usage = `flowfile-cli - run a flow file

USAGE:
    flowfile-cli run <flow-file>

Exit codes: 0 success, 1 file not found/load error, 2 validation error,
3 execution failure, 130 cancelled.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 2 || args[0] != "run" {
		fmt.Fprint(os.Stderr, usage)
		return 1
	}
	path := args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowfile-cli: load configuration: %v\n", err)
		return 1
	}
	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowfile-cli: %v\n", err)
		return 1
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowfile-cli: %v\n", err)
		return 1
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	ff, err := models.ParseFlowFile(data, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowfile-cli: %v\n", err)
		return 1
	}

	g, err := ff.ToGraph(cfg.Cache.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowfile-cli: %v\n", err)
		return 2
	}

	if err := g.RecomputeFingerprints(); err != nil {
		fmt.Fprintf(os.Stderr, "flowfile-cli: %v\n", err)
		return 2
	}

	plan, err := planner.Build(g, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowfile-cli: %v\n", err)
		return 2
	}

	dispatchers, cleanup, err := server.NewDefaultDispatchers(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowfile-cli: %v\n", err)
		return 1
	}
	defer cleanup()

	cache := fingerprint.NewCache(cfg.Cache.Dir)
	mutex := fingerprint.NewMutex()
	runner := scheduler.NewRunner(dispatchers, cache, mutex)
	runner.RetryPolicy = scheduler.DefaultRetryPolicy()

	token := scheduler.NewCancelToken()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		appLogger.Info("cancellation requested")
		token.Cancel()
	}()

	info, err := runner.Run(context.Background(), g, plan, token, cfg.Server.RunDeadline)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowfile-cli: %v\n", err)
		return 3
	}

	if info.Cancelled {
		fmt.Fprintln(os.Stderr, "flowfile-cli: run cancelled")
		return 130
	}
	if !info.Success {
		fmt.Fprintln(os.Stderr, "flowfile-cli: run failed")
		return 3
	}

	fmt.Printf("flowfile-cli: flow %d completed, %d nodes\n", info.FlowID, info.NodesCompleted)
	return 0
}
