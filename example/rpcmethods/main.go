// Example rpcmethods: list the RPC methods of a local node.
//
// Usage:
//
//	go run ./example/rpcmethods
//	NODE_URL=wss://rpc.example.org go run ./example/rpcmethods
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/hedeqiang/chainprobe"
)

func main() {
	if err := run(context.Background()); err != nil {
		log.Error().Err(err).Msg("rpcmethods failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	endpoint := os.Getenv("NODE_URL")
	if endpoint == "" {
		endpoint = chainprobe.DefaultEndpoint
	}

	p, err := chainprobe.Connect(ctx, endpoint)
	if err != nil {
		return err
	}
	defer p.Close()

	methods, err := p.RPCMethods(ctx)
	if err != nil {
		return err
	}
	for _, m := range methods {
		fmt.Println(m)
	}
	return nil
}
