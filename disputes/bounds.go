// Package disputes answers the on-chain dispute of a reputation root hash:
// the binary search for the first disagreeing justification leaf, then the
// challenge response proving how that log entry should have been applied.
package disputes

import (
	"fmt"
	"math/bits"

	"github.com/colorfulnotion/repminer/ledger"
	"github.com/colorfulnotion/repminer/minererrors"
)

// SearchBounds are the binary search bounds held by the contract. Lo is the
// last justification leaf both parties agree on, Hi the first known to differ.
type SearchBounds struct {
	Lo uint64
	Hi uint64
}

func BoundsOf(s ledger.Submission) SearchBounds {
	return SearchBounds{Lo: s.LowerBound, Hi: s.UpperBound}
}

// Converged reports whether the bounds are adjacent.
func (b SearchBounds) Converged() bool {
	return b.Hi > b.Lo && b.Hi-b.Lo == 1
}

func (b SearchBounds) Mid() uint64 {
	return (b.Lo + b.Hi) / 2
}

// Narrow applies the outcome of comparing both parties' leaf at Mid.
func (b SearchBounds) Narrow(agree bool) SearchBounds {
	if agree {
		return SearchBounds{Lo: b.Mid(), Hi: b.Hi}
	}
	return SearchBounds{Lo: b.Lo, Hi: b.Mid()}
}

// Validate checks the bounds against a cycle with nLogEntries entries, which
// has justification leaves 0..nLogEntries.
func (b SearchBounds) Validate(nLogEntries uint64) error {
	if b.Hi <= b.Lo || b.Hi > nLogEntries {
		return fmt.Errorf("bounds (%d,%d) with %d entries: %w", b.Lo, b.Hi, nLogEntries, minererrors.ErrDBoundsOutOfRange)
	}
	return nil
}

func (b SearchBounds) String() string {
	return fmt.Sprintf("(%d,%d)", b.Lo, b.Hi)
}

// MaxSteps is the number of binary search steps needed to converge from
// (0, n): ceil(log2 n).
func MaxSteps(n uint64) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(n - 1)
}
