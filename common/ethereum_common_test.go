package common

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEVMDevAccount(t *testing.T) {
	for i := 0; i < 10; i++ {
		addr, privKeyHex := GetEVMDevAccount(i)
		require.NotEqual(t, Address{}, addr)
		require.Len(t, privKeyHex, 64)

		privKey, err := crypto.HexToECDSA(privKeyHex)
		require.NoError(t, err)
		derivedAddr := crypto.PubkeyToAddress(privKey.PublicKey)
		assert.Equal(t, addr, Address(derivedAddr), "account %d", i)
	}
}

func TestIsAddress(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", true},
		{"0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", true},
		{"f39fd6e51aad88f6f4ce6ab8827279cfffb92266", true},
		{"0xF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266", true},
		// bad checksum: one letter case flipped
		{"0xF39Fd6e51aad88F6F4ce6aB8827279cffFb92266", false},
		{"0xf39fd6e51aad88f6f4ce6ab8827279cfffb922", false},
		{"0xzz9fd6e51aad88f6f4ce6ab8827279cfffb92266", false},
		{"", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsAddress(c.in), c.in)
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "f39fd6e51aad88f6f4ce6ab8827279cfffb92266", NormalizeAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"))
}

func TestKeccak256MatchesGethCrypto(t *testing.T) {
	data := []byte("reputation")
	assert.Equal(t, Hash(crypto.Keccak256Hash(data)), Keccak256(data))
	assert.Equal(t, Hash(crypto.Keccak256Hash([]byte("ab"), []byte("cd"))), Keccak256([]byte("ab"), []byte("cd")))
}

func TestUint64ToBytes32(t *testing.T) {
	b := Uint64ToBytes32(0x0102)
	require.Len(t, b, 32)
	assert.Equal(t, byte(0x01), b[30])
	assert.Equal(t, byte(0x02), b[31])
	assert.Equal(t, HexToHash("0x0102"), BytesToHash(b))
}
