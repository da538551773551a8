package reputation

import (
	"encoding/hex"
	"fmt"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/holiman/uint256"
)

// KeyLength is colony (20) + skill id (32) + user (20).
const KeyLength = common.AddressLength + 32 + common.AddressLength

// Key identifies one reputation balance: colony ‖ skillId ‖ user, each
// fixed-width big-endian.
type Key [KeyLength]byte

// NewKey builds a key from already-validated addresses.
func NewKey(colony common.Address, skillID *uint256.Int, user common.Address) Key {
	var k Key
	copy(k[:20], colony.Bytes())
	skill := skillID.Bytes32()
	copy(k[20:52], skill[:])
	copy(k[52:], user.Bytes())
	return k
}

// ParseKey builds a key from address strings, validating and normalizing them.
func ParseKey(colonyAddress string, skillID *uint256.Int, userAddress string) (Key, error) {
	if !common.IsAddress(colonyAddress) {
		return Key{}, fmt.Errorf("colony %q: %w", colonyAddress, minererrors.ErrRMalformedAddress)
	}
	if !common.IsAddress(userAddress) {
		return Key{}, fmt.Errorf("user %q: %w", userAddress, minererrors.ErrRMalformedAddress)
	}
	colony, _ := hex.DecodeString(common.NormalizeAddress(colonyAddress))
	user, _ := hex.DecodeString(common.NormalizeAddress(userAddress))
	return NewKey(common.BytesToAddress(colony), skillID, common.BytesToAddress(user)), nil
}

// KeyFromBytes copies b into a Key; b must be exactly KeyLength bytes.
func KeyFromBytes(b []byte) (Key, error) {
	var k Key
	if len(b) != KeyLength {
		return k, fmt.Errorf("reputation key of %d bytes, want %d", len(b), KeyLength)
	}
	copy(k[:], b)
	return k, nil
}

func (k Key) Bytes() []byte {
	return k[:]
}

func (k Key) Hex() string {
	return common.Bytes2Hex(k[:])
}

func (k Key) String() string {
	return k.Hex()
}

func (k Key) Colony() common.Address {
	return common.BytesToAddress(k[:20])
}

func (k Key) SkillID() *uint256.Int {
	return new(uint256.Int).SetBytes32(k[20:52])
}

func (k Key) User() common.Address {
	return common.BytesToAddress(k[52:])
}
