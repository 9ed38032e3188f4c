package storage_test

import (
	"encoding/binary"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/chainprobe/internal/hex"
	"github.com/hedeqiang/chainprobe/internal/scale"
	"github.com/hedeqiang/chainprobe/storage"
)

const alicePublicKey = "0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"

func alice() storage.AccountID {
	var id storage.AccountID
	copy(id[:], hex.MustDecode(alicePublicKey))
	return id
}

func TestTwox128(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"System", "0x26aa394eea5630e07c48ae0c9558cef7"},
		{"Account", "0xb99d880ec681799c0cf30e8886371da9"},
		{"Number", "0x02a5c1b19ab7a04f536c519aca4983ac"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, hex.Encode(storage.Twox128([]byte(tt.in))))
		})
	}
}

func TestPlainKey(t *testing.T) {
	k, err := storage.PlainKey("Timestamp", "Now")
	require.NoError(t, err)
	assert.Equal(t, "0xf0c365c3cf59d671eb72da0e7a4113c49f1f0515f462cdcf84e0f1d6045dfcbb", k.Hex())
	assert.Equal(t, k.Hex(), k.String())

	_, err = storage.PlainKey("", "Now")
	assert.True(t, errors.Is(err, storage.ErrInvalidKey))
}

func TestMapKeyBlake2128Concat(t *testing.T) {
	id := alice()
	k, err := storage.MapKey("System", "Account", storage.Blake2128Concat, id[:])
	require.NoError(t, err)
	assert.Equal(t,
		"0x26aa394eea5630e07c48ae0c9558cef7b99d880ec681799c0cf30e8886371da9"+
			"de1e86a9a8c739864cf3cc5ec2bea59f"+
			"d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d",
		k.Hex())
}

func TestMapKeyTwox64Concat(t *testing.T) {
	mapKey := []byte{0x07, 0x00, 0x00, 0x00}
	k, err := storage.MapKey("Multisig", "Members", storage.Twox64Concat, mapKey)
	require.NoError(t, err)
	require.Len(t, k, 32+8+len(mapKey))

	want := make([]byte, 8)
	binary.LittleEndian.PutUint64(want, xxhash.Sum64(mapKey))
	assert.Equal(t, want, []byte(k[32:40]))
	assert.Equal(t, mapKey, []byte(k[40:]))
}

func TestMapKeyIdentity(t *testing.T) {
	k, err := storage.MapKey("Multisig", "Members", storage.Identity, []byte{0xab})
	require.NoError(t, err)
	assert.Len(t, k, 33)
	assert.Equal(t, byte(0xab), k[32])
}

func TestParseHasher(t *testing.T) {
	h, err := storage.ParseHasher("Blake2_128Concat")
	require.NoError(t, err)
	assert.Equal(t, storage.Blake2128Concat, h)

	_, err = storage.ParseHasher("sha256")
	assert.True(t, errors.Is(err, storage.ErrInvalidKey))

	_, err = storage.MapKey("A", "B", storage.Hasher("md5"), nil)
	assert.True(t, errors.Is(err, storage.ErrInvalidKey))
}

func TestParseKey(t *testing.T) {
	k, err := storage.ParseKey("0x26AA394EEA5630E07C48AE0C9558CEF7")
	require.NoError(t, err)
	assert.Equal(t, "0x26aa394eea5630e07c48ae0c9558cef7", k.Hex())

	for _, bad := range []string{"", "0x", "0x123", "0xzz"} {
		_, err := storage.ParseKey(bad)
		assert.True(t, errors.Is(err, storage.ErrInvalidKey), bad)
	}
}

func TestSS58(t *testing.T) {
	id := alice()

	addr, err := id.SS58(storage.DefaultSS58Prefix)
	require.NoError(t, err)
	assert.Equal(t, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", addr)

	addr, err = id.SS58(0)
	require.NoError(t, err)
	assert.Equal(t, "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5", addr)

	_, err = id.SS58(16384)
	assert.True(t, errors.Is(err, storage.ErrInvalidAddress))
}

func TestParseSS58(t *testing.T) {
	got, prefix, err := storage.ParseSS58("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY")
	require.NoError(t, err)
	assert.Equal(t, alice(), got)
	assert.Equal(t, uint16(42), prefix)

	for _, p := range []uint16{1, 63, 64, 255, 1284, 16383} {
		addr, err := alice().SS58(p)
		require.NoError(t, err)
		got, prefix, err := storage.ParseSS58(addr)
		require.NoError(t, err, "prefix %d", p)
		assert.Equal(t, alice(), got)
		assert.Equal(t, p, prefix)
	}

	_, _, err = storage.ParseSS58("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQZ")
	assert.True(t, errors.Is(err, storage.ErrInvalidAddress))

	_, _, err = storage.ParseSS58("not-base58-0OIl")
	assert.True(t, errors.Is(err, storage.ErrInvalidAddress))
}

func TestDecodeAccountIDs(t *testing.T) {
	id := alice()
	var bob storage.AccountID
	copy(bob[:], hex.MustDecode("0x8eaf04151687736326c9fea17e25fc5287613693c912909cb226aa4794f26a48"))

	v := scale.EncodeCompact(2)
	v = append(v, id[:]...)
	v = append(v, bob[:]...)

	ids, err := storage.DecodeAccountIDs(storage.Value(v))
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, id, ids[0])
	assert.Equal(t, bob, ids[1])

	addr, err := ids[1].SS58(storage.DefaultSS58Prefix)
	require.NoError(t, err)
	assert.Equal(t, "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty", addr)

	_, err = storage.DecodeAccountIDs(storage.Value(v[:40]))
	assert.Error(t, err)
}

func TestValueHex(t *testing.T) {
	v := storage.Value{0x04, 0x01}
	assert.Equal(t, "0x0401", v.Hex())
	text, err := v.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "0x0401", string(text))
}
