package disputes

import (
	"context"
	"errors"
	"fmt"

	"github.com/colorfulnotion/repminer/log"
	"github.com/colorfulnotion/repminer/minererrors"
)

// Duel alternates Step between two drivers disputing each other until one of
// them has its challenge response accepted. A rejected challenge response
// takes that driver out of the duel. It returns the index of the winner.
func Duel(ctx context.Context, drivers [2]*Driver, maxRounds int) (int, error) {
	var out [2]bool
	for i := 0; i < maxRounds; i++ {
		for j, d := range drivers {
			if out[j] {
				continue
			}
			done, err := d.Step(ctx)
			if errors.Is(err, minererrors.ErrDChallengeRejected) {
				log.Warn(log.DisputeMonitoring, "challenge response rejected", "driver", j, "err", err)
				out[j] = true
				continue
			}
			if err != nil {
				return -1, fmt.Errorf("driver %d: %w", j, err)
			}
			if done {
				return j, nil
			}
		}
		if out[0] && out[1] {
			return -1, fmt.Errorf("both challenge responses rejected: %w", minererrors.ErrDChallengeRejected)
		}
	}
	return -1, fmt.Errorf("no winner after %d rounds: %w", maxRounds, minererrors.ErrDNotConverged)
}
