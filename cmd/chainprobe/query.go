package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hedeqiang/chainprobe"
	"github.com/hedeqiang/chainprobe/chain"
)

func newMethodsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the RPC methods exposed by the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, p *chainprobe.Probe, out printer) error {
				methods, err := p.RPCMethods(ctx)
				if err != nil {
					return err
				}
				return out.print(struct {
					Methods []string `json:"methods" yaml:"methods"`
				}{methods}, func(w io.Writer) {
					for _, m := range methods {
						fmt.Fprintln(w, m)
					}
				})
			})
		},
	}
}

func newChainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chain",
		Short: "Print the chain name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, p *chainprobe.Probe, out printer) error {
				name, err := p.ChainName(ctx)
				if err != nil {
					return err
				}
				return out.print(map[string]string{"chain": name}, out.line("%s", name))
			})
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the node version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, p *chainprobe.Probe, out printer) error {
				version, err := p.Version(ctx)
				if err != nil {
					return err
				}
				return out.print(map[string]string{"version": version}, out.line("%s", version))
			})
		},
	}
}

type nodeInfo struct {
	Endpoint string       `json:"endpoint" yaml:"endpoint"`
	Chain    string       `json:"chain" yaml:"chain"`
	Name     string       `json:"name" yaml:"name"`
	Version  string       `json:"version" yaml:"version"`
	Health   chain.Health `json:"health" yaml:"health"`
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print chain, node name, version and health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, p *chainprobe.Probe, out printer) error {
				info := nodeInfo{Endpoint: p.Endpoint()}
				var err error
				if info.Chain, err = p.ChainName(ctx); err != nil {
					return err
				}
				if info.Name, err = p.NodeName(ctx); err != nil {
					return err
				}
				if info.Version, err = p.Version(ctx); err != nil {
					return err
				}
				if info.Health, err = p.Health(ctx); err != nil {
					return err
				}

				return out.print(info, func(w io.Writer) {
					fmt.Fprintf(w, "endpoint: %s\n", info.Endpoint)
					fmt.Fprintf(w, "chain: %s\n", info.Chain)
					fmt.Fprintf(w, "node: %s %s\n", info.Name, info.Version)
					fmt.Fprintf(w, "peers: %d, syncing: %t\n", info.Health.Peers, info.Health.IsSyncing)
				})
			})
		},
	}
}
