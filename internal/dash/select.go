package dash

import (
	"errors"
	"fmt"
)

// ErrResolutionUnavailable indicates the requested exact height is not
// in the ladder and the caller demanded it be.
var ErrResolutionUnavailable = errors.New("target resolution unavailable")

// Video selection policy values for targetHeight.
const (
	// HeightLowest selects the first entry of the ladder.
	HeightLowest = 0
	// HeightHighest selects the last entry of the ladder.
	HeightHighest = -1
)

// SelectVideo picks a video representation from the ladder, which must
// be sorted by height ascending.
//
// targetHeight HeightLowest picks the smallest, HeightHighest the
// largest. A concrete height picks the exact match; without force the
// greatest height below the target is an acceptable fallback. The
// fallback is always from below, never from above, so bandwidth usage
// stays predictable.
func SelectVideo(ladder []Representation, targetHeight int, force bool) (Representation, error) {
	if len(ladder) == 0 {
		return Representation{}, fmt.Errorf("%w: empty video ladder", ErrResolutionUnavailable)
	}

	switch targetHeight {
	case HeightLowest:
		return ladder[0], nil
	case HeightHighest:
		return ladder[len(ladder)-1], nil
	}

	for _, rep := range ladder {
		if rep.Height == targetHeight {
			return rep, nil
		}
	}
	if force {
		return Representation{}, fmt.Errorf("%w: height %d not found", ErrResolutionUnavailable, targetHeight)
	}

	// Nearest lower height.
	for i := len(ladder) - 1; i >= 0; i-- {
		if ladder[i].Height <= targetHeight {
			return ladder[i], nil
		}
	}
	return Representation{}, fmt.Errorf("%w: no height at or below %d", ErrResolutionUnavailable, targetHeight)
}
