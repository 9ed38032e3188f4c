package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hedeqiang/chainprobe"
	"github.com/hedeqiang/chainprobe/storage"
)

const (
	decodeRaw      = "raw"
	decodeAccounts = "accounts"
)

type storageResult struct {
	Version  string    `json:"version" yaml:"version"`
	Key      string    `json:"key" yaml:"key"`
	Value    string    `json:"value" yaml:"value"`
	Accounts []account `json:"accounts,omitempty" yaml:"accounts,omitempty"`
}

// account is one decoded account id.
type account struct {
	Address   string `json:"address" yaml:"address"`
	PublicKey string `json:"publicKey" yaml:"publicKey"`
}

func newStorageCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Print the node version and one storage value",
		Long: `storage reads a single storage value at the best block. The item is given
either as --pallet and --item (optionally with a map key) or as a raw --key.
There is no default item; configure one with flags, the config file or
CHAINPROBE_STORAGE_* variables.`,
		Example: `  chainprobe storage --pallet SmultisigRpc --item MultisigMembers --decode accounts
  chainprobe storage --pallet System --item Account --hasher blake2_128concat \
    --map-key-account 5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := a.cfg.Storage.key()
			if err != nil {
				return err
			}
			decode := a.cfg.Storage.Decode
			if decode != decodeRaw && decode != decodeAccounts {
				return errors.Errorf("unknown decoding %q", decode)
			}

			return a.run(cmd, func(ctx context.Context, p *chainprobe.Probe, out printer) error {
				version, err := p.Version(ctx)
				if err != nil {
					return err
				}
				value, err := p.StorageValue(ctx, key)
				if err != nil {
					return err
				}

				res := storageResult{Version: version, Key: key.Hex(), Value: value.Hex()}
				if decode == decodeAccounts {
					ids, err := storage.DecodeAccountIDs(value)
					if err != nil {
						return err
					}
					for _, id := range ids {
						addr, err := id.SS58(a.cfg.SS58Prefix)
						if err != nil {
							return err
						}
						res.Accounts = append(res.Accounts, account{Address: addr, PublicKey: id.Hex()})
					}
				}

				return out.print(res, func(w io.Writer) {
					fmt.Fprintf(w, "version: %s\n", res.Version)
					fmt.Fprintf(w, "key: %s\n", res.Key)
					fmt.Fprintf(w, "value: %s\n", res.Value)
					for _, acc := range res.Accounts {
						fmt.Fprintln(w, acc.Address)
					}
				})
			})
		},
	}

	flags := cmd.Flags()
	flags.String("pallet", "", "pallet (module) name of the storage item")
	flags.String("item", "", "storage item name")
	flags.String("key", "", "raw 0x-prefixed storage key, overrides --pallet/--item")
	flags.String("hasher", string(storage.Twox64Concat), "map key hasher (identity, twox64concat, blake2_128concat)")
	flags.String("map-key-u32", "", "u32 map key")
	flags.String("map-key-account", "", "SS58 account map key")
	flags.String("decode", decodeRaw, "value decoding (raw, accounts)")

	a.bindFlags(cmd, map[string]string{
		"storage.pallet":          "pallet",
		"storage.item":            "item",
		"storage.key":             "key",
		"storage.hasher":          "hasher",
		"storage.map_key_u32":     "map-key-u32",
		"storage.map_key_account": "map-key-account",
		"storage.decode":          "decode",
	}, false)
	return cmd
}

// key builds the configured storage key.
func (c storageConfig) key() (storage.Key, error) {
	if c.Key != "" {
		return storage.ParseKey(c.Key)
	}
	if c.Pallet == "" || c.Item == "" {
		return nil, errors.New("no storage item configured: set --pallet and --item, or --key")
	}

	var mapKey []byte
	switch {
	case c.MapKeyU32 != "" && c.MapKeyAccount != "":
		return nil, errors.New("--map-key-u32 and --map-key-account are mutually exclusive")
	case c.MapKeyU32 != "":
		n, err := strconv.ParseUint(c.MapKeyU32, 10, 32)
		if err != nil {
			return nil, errors.Wrap(err, "map key")
		}
		mapKey = binary.LittleEndian.AppendUint32(nil, uint32(n))
	case c.MapKeyAccount != "":
		id, _, err := storage.ParseSS58(c.MapKeyAccount)
		if err != nil {
			return nil, err
		}
		mapKey = id[:]
	default:
		return storage.PlainKey(c.Pallet, c.Item)
	}

	hasher, err := storage.ParseHasher(c.Hasher)
	if err != nil {
		return nil, err
	}
	return storage.MapKey(c.Pallet, c.Item, hasher, mapKey)
}
