// Package commission splits a task reward into the platform's commission and
// the runner's payout.
package commission

import (
	"fmt"
	"math"

	"github.com/errandhub/backend/internal/apperr"
)

// Split is the result of applying a commission percentage to a reward.
type Split struct {
	CommissionAmount int64
	RunnerAmount     int64
}

// MaxReward is the largest reward Calculate accepts. Above it reward*10000
// would overflow int64.
const MaxReward = (math.MaxInt64 - 5000) / 10000

// basisPoints converts a percentage to hundredths of a percent, rounding half up.
func basisPoints(percentage float64) int64 {
	return int64(math.Floor(percentage*100 + 0.5))
}

// Calculate returns the commission/runner split of reward in minor units.
// Commission is reward * percentage / 100 rounded half up; the runner receives
// the remainder, so the two always sum to reward exactly.
func Calculate(reward int64, percentage float64) (Split, error) {
	if math.IsNaN(percentage) || percentage < 0 || percentage > 100 {
		return Split{}, fmt.Errorf("%w: commission percentage %v outside [0, 100]", apperr.ErrInvalidSettings, percentage)
	}
	if reward < 0 {
		return Split{}, fmt.Errorf("%w: reward %d is negative", apperr.ErrInvalidAmount, reward)
	}
	if reward > MaxReward {
		return Split{}, fmt.Errorf("%w: reward %d exceeds %d", apperr.ErrInvalidAmount, reward, int64(MaxReward))
	}
	bps := basisPoints(percentage)
	// Half-up on the 1/10000 scale: (reward*bps + 5000) / 10000.
	fee := (reward*bps + 5000) / 10000
	return Split{CommissionAmount: fee, RunnerAmount: reward - fee}, nil
}
