package common

import (
	"fmt"

	ethereumCommon "github.com/ethereum/go-ethereum/common"
)

// Skips "0x" and prints the first and last four characters
func Str(hash Hash) string {
	return fmt.Sprintf("%s..%s", hash.Hex()[2:6], hash.Hex()[len(hash.Hex())-4:])
}

func Bytes2Hex(d []byte) string {
	return "0x" + ethereumCommon.Bytes2Hex(d)
}

func FromHex(b string) []byte {
	return ethereumCommon.FromHex(b)
}

// CopyBytes returns an exact copy of b, or nil for nil input.
func CopyBytes(b []byte) []byte {
	return ethereumCommon.CopyBytes(b)
}
