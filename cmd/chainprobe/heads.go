package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hedeqiang/chainprobe"
	"github.com/hedeqiang/chainprobe/block"
)

const defaultHeadCount = 10

type headLine struct {
	Chain  string `json:"chain" yaml:"chain"`
	Number uint64 `json:"number" yaml:"number"`
	Hash   string `json:"hash" yaml:"hash"`
}

func newHeadsCmd(a *app) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "heads",
		Short: "Print a bounded sample of new block headers",
		Long: `heads subscribes to new block headers, prints one line per header until
--count headers were received, then unsubscribes and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, p *chainprobe.Probe, out printer) error {
				name, err := p.ChainName(ctx)
				if err != nil {
					return err
				}

				var printErr error
				err = p.SampleNewHeads(ctx, count, func(_ int, h block.Header) {
					if printErr != nil {
						return
					}
					hash := h.Hash().Hex()
					printErr = out.print(headLine{Chain: name, Number: h.Number, Hash: hash}, func(w io.Writer) {
						fmt.Fprintf(w, "%s: last block #: %d, hash #: %s\n", name, h.Number, hash)
					})
				})
				if err != nil {
					return err
				}
				return printErr
			})
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", defaultHeadCount, "number of headers to print")
	return cmd
}
