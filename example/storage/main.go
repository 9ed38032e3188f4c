// Example storage: print the node version and a multisig member list.
//
// Usage:
//
//	PALLET=SmultisigRpc ITEM=MultisigMembers go run ./example/storage
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/hedeqiang/chainprobe"
	"github.com/hedeqiang/chainprobe/storage"
)

func main() {
	if err := run(context.Background()); err != nil {
		log.Error().Err(err).Msg("storage failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	pallet, item := os.Getenv("PALLET"), os.Getenv("ITEM")
	if pallet == "" || item == "" {
		return errors.New("PALLET and ITEM environment variables are required")
	}

	key, err := storage.PlainKey(pallet, item)
	if err != nil {
		return err
	}

	p, err := chainprobe.Connect(ctx, chainprobe.DefaultEndpoint,
		chainprobe.WithRequestTimeout(5*time.Second),
	)
	if err != nil {
		return err
	}
	defer p.Close()

	version, err := p.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Println("version:", version)

	value, err := p.StorageValue(ctx, key)
	if err != nil {
		return err
	}

	members, err := storage.DecodeAccountIDs(value)
	if err != nil {
		fmt.Println("value:", value.Hex())
		return nil
	}
	for _, m := range members {
		addr, err := m.SS58(storage.DefaultSS58Prefix)
		if err != nil {
			return err
		}
		fmt.Println(addr, m.Hex())
	}
	return nil
}
