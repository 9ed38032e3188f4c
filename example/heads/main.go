// Example heads: print the next 10 block headers, then exit.
//
// Usage:
//
//	go run ./example/heads
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/hedeqiang/chainprobe"
	"github.com/hedeqiang/chainprobe/block"
	mw "github.com/hedeqiang/chainprobe/middleware"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, logger)
	stop()
	if err != nil {
		logger.Error().Err(err).Msg("heads failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, logger zerolog.Logger) error {
	endpoint := os.Getenv("NODE_URL")
	if endpoint == "" {
		endpoint = chainprobe.DefaultEndpoint
	}

	p, err := chainprobe.Connect(ctx, endpoint,
		chainprobe.WithLogger(logger),
		chainprobe.WithMiddleware(mw.NewLogger(logger)),
	)
	if err != nil {
		return err
	}
	defer p.Close()

	name, err := p.ChainName(ctx)
	if err != nil {
		return err
	}

	return p.SampleNewHeads(ctx, 10, func(_ int, h block.Header) {
		fmt.Printf("%s: last block #: %d, hash #: %s\n", name, h.Number, h.Hash())
	})
}
