// internal/math/vesting.go
package math

// LinearVested returns floor(total * min(elapsed, duration) / duration).
// Negative elapsed vests nothing. A non-positive duration vests everything.
func LinearVested(total uint64, elapsedSeconds, durationSeconds int64) (uint64, error) {
	if elapsedSeconds <= 0 {
		return 0, nil
	}
	if durationSeconds <= 0 || elapsedSeconds >= durationSeconds {
		return total, nil
	}
	return MulDiv(total, uint64(elapsedSeconds), uint64(durationSeconds), RoundDown)
}

// VestingClaimable returns how many of total are claimable after alreadyClaimed
// have been released. It never returns more than total - alreadyClaimed.
func VestingClaimable(total, alreadyClaimed uint64, elapsedSeconds, durationSeconds int64) (uint64, error) {
	vested, err := LinearVested(total, elapsedSeconds, durationSeconds)
	if err != nil {
		return 0, err
	}
	return SaturatingSub(vested, alreadyClaimed), nil
}
