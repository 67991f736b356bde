// cmd/fulfillment-worker/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"digital-fulfillment/internal/pkg/config"
)

const usage = `Usage: fulfillment-worker [run] [-config file]

Commands:
  run    poll marketplace orders and deliver digital goods (default)
`

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

// run 解析命令行并启动 worker，返回进程退出码
func run(ctx context.Context, args []string, stderr io.Writer) int {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	if cmd != "run" {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage); fs.PrintDefaults() }
	configPath := fs.String("config", os.Getenv("FULFILLMENT_CONFIG"), "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "fulfillment-worker: %v\n", err)
		return 1
	}

	if err := runWorker(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("Worker exited with error")
		return 1
	}
	return 0
}
