package lending

import "math/big"

// RatePerStep derives the per-step borrow rate for a market from its
// utilization, both WAD-scaled. The curve is piecewise linear: below the
// optimal utilization the rate climbs from the base along slope1, above it
// slope2 takes over against the remaining headroom.
//
// Listing validation guarantees the optimal utilization is positive. When it
// is configured at exactly 100% the second branch would divide by zero, so
// the first branch applies for the whole range; utilization cannot exceed
// the optimal point in that configuration.
func RatePerStep(cfg AssetConfig, utilization *big.Int) *big.Int {
	rate := cloneBig(cfg.BaseRateWad)
	if utilization == nil || utilization.Sign() == 0 {
		return rate
	}
	opt := bpsToWad(cfg.OptimalUtilizationBps)
	if opt.Sign() == 0 {
		return rate
	}
	if utilization.Cmp(opt) <= 0 || opt.Cmp(wad) >= 0 {
		return rate.Add(rate, mulDiv(cfg.Slope1Wad, utilization, opt))
	}

	rate.Add(rate, nonNil(cfg.Slope1Wad))
	excess := new(big.Int).Sub(utilization, opt)
	headroom := new(big.Int).Sub(wad, opt)
	return rate.Add(rate, mulDiv(cfg.Slope2Wad, excess, headroom))
}
